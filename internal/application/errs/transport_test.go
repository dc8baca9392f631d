package errs_test

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/stretchr/testify/require"
)

func Test_TranslateTransport(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", fmt.Errorf("do: %w", context.DeadlineExceeded), "installer: request timed out"},
		{"dns", &net.DNSError{Err: "no such host", Name: "cp.internal"}, "installer: cannot resolve host cp.internal"},
		{"certificate", fmt.Errorf("get: %w", x509.UnknownAuthorityError{}), "installer: certificate error, the endpoint's TLS certificate could not be verified"},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, "installer: cannot connect to host"},
		{"other", errors.New("boom"), "installer: boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := errs.TranslateTransport("installer", tc.err)

			var transportErr errs.TransportError
			require.ErrorAs(t, err, &transportErr)
			require.Equal(t, tc.want, err.Error())
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func Test_TranslateTransport_Nil(t *testing.T) {
	require.NoError(t, errs.TranslateTransport("dns", nil))
}
