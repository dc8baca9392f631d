package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/interfaces"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/config"
	"github.com/stretchr/testify/require"
)

type expiringLedger struct {
	interfaces.StepLedger

	mu      sync.Mutex
	ids     []uint64
	err     error
	calls   int
	message string
}

func (l *expiringLedger) FailExpiredLeases(_ context.Context, _ time.Time, message string) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.message = message
	ids := l.ids
	l.ids = nil
	return ids, l.err
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []uint64
}

func (n *recordingNotifier) Notify(_ context.Context, id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
}

func Test_Reap_Notifies_Each_Installation_Once(t *testing.T) {
	ledger := &expiringLedger{ids: []uint64{4, 4, 9}}
	notifier := &recordingNotifier{}
	SUT := NewLeaseReaper(ledger, notifier, &config.ReaperConfig{Interval: time.Minute})

	reaped := SUT.Reap(context.Background(), time.Now())

	require.Equal(t, 3, reaped)
	require.Equal(t, []uint64{4, 9}, notifier.ids)
	require.Equal(t, ExpiredLeaseMessage, ledger.message)
}

func Test_Reap_When_Ledger_Fails_Then_Nothing_Notified(t *testing.T) {
	ledger := &expiringLedger{err: errors.New("connection refused")}
	notifier := &recordingNotifier{}
	SUT := NewLeaseReaper(ledger, notifier, &config.ReaperConfig{Interval: time.Minute})

	require.Zero(t, SUT.Reap(context.Background(), time.Now()))
	require.Empty(t, notifier.ids)
}

func Test_LeaseReaper_Start_Reaps_On_Interval_Until_Stopped(t *testing.T) {
	ledger := &expiringLedger{ids: []uint64{1}}
	notifier := &recordingNotifier{}
	SUT := NewLeaseReaper(ledger, notifier, &config.ReaperConfig{Interval: 10 * time.Millisecond})

	go SUT.Start()
	require.Eventually(t, func() bool {
		ledger.mu.Lock()
		defer ledger.mu.Unlock()
		return ledger.calls >= 2
	}, time.Second, 5*time.Millisecond)
	SUT.Stop()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Equal(t, []uint64{1}, notifier.ids)
}
