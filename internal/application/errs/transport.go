package errs

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
)

// TransportError is a network level failure talking to a provider, carrying a message
// meant for the person looking at the step.
type TransportError struct {
	Provider string
	Message  string
	Err      error
}

func (t TransportError) Error() string {
	return fmt.Sprintf("%s: %s", t.Provider, t.Message)
}

func (t TransportError) Unwrap() error {
	return t.Err
}

// TranslateTransport maps low level client errors onto readable text. Errors it does
// not recognise keep their own message.
func TranslateTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	return TransportError{Provider: provider, Message: transportMessage(err), Err: err}
}

func transportMessage(err error) string {
	var (
		dnsErr      *net.DNSError
		unknownCA   x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidCert x509.CertificateInvalidError
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		netErr      net.Error
		opErr       *net.OpError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return "request timed out"
	case errors.As(err, &dnsErr):
		return fmt.Sprintf("cannot resolve host %s", dnsErr.Name)
	case errors.As(err, &unknownCA), errors.As(err, &hostnameErr), errors.As(err, &invalidCert),
		errors.As(err, &verifyErr), errors.As(err, &recordErr):
		return "certificate error, the endpoint's TLS certificate could not be verified"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "request timed out"
	case errors.As(err, &opErr):
		return "cannot connect to host"
	}
	return err.Error()
}
