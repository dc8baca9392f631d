package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/google/uuid"
)

// ErrLeaseLost means the step is no longer held by the lease presented, usually
// because the reaper failed it and it was started again.
var ErrLeaseLost = errors.New("step lease lost")

type Lease struct {
	Token     uuid.UUID
	ExpiresAt time.Time
}

// ExecutionContext is everything a step needs to resolve its configuration.
type ExecutionContext struct {
	Installation entity.Installation
	Providers    entity.ProviderSettings
	ClientName   string
	DraftData    entity.StepData
	Step         entity.Step
}

// Completion is the terminal write for a step run.
type Completion struct {
	StepID          uint64
	InstallationID  uint64
	Lease           uuid.UUID
	Status          consts.StepStatus
	ErrorMessage    string
	Payload         entity.StepData
	InstallerSiteID *string
}

type StepLedger interface {
	// ClaimStep atomically moves a PENDING or FAILED step to IN_PROGRESS under lease.
	// It returns errs.NotFoundError when the step row does not exist and
	// errs.ConflictError carrying the current step when it is IN_PROGRESS or SUCCESS.
	ClaimStep(ctx context.Context, installationID uint64, stepType consts.StepType, lease Lease, overrides entity.StepData) (entity.Step, error)
	ExtendLease(ctx context.Context, stepID uint64, token uuid.UUID, until time.Time) error
	CompleteStep(ctx context.Context, completion Completion) error
	ExecutionContext(ctx context.Context, installationID uint64, stepType consts.StepType) (ExecutionContext, error)
	ListSteps(ctx context.Context, installationID uint64) ([]entity.Step, error)
	// FailExpiredLeases fails IN_PROGRESS steps whose lease ended before now and
	// returns the affected installation ids.
	FailExpiredLeases(ctx context.Context, now time.Time, message string) ([]uint64, error)
}

// Notifier is told whenever the ledger of an installation changed.
type Notifier interface {
	Notify(ctx context.Context, installationID uint64)
}

// StepDispatcher runs a claimed step in the background.
type StepDispatcher interface {
	Dispatch(step entity.Step, lease Lease)
}

// Sealer encrypts stored credentials.
type Sealer interface {
	Seal(plain []byte) (string, error)
	Open(sealed string) ([]byte, error)
}
