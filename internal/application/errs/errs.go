package errs

import (
	"fmt"
	"strings"

	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
)

type NotFoundError struct {
	Entity string
	ID     any
}

func (t NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", t.Entity, t.ID)
}

type ValidationError struct {
	Err error
}

func (t ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %v", t.Err)
}

func (t ValidationError) Unwrap() error {
	return t.Err
}

type ConflictReason string

const (
	ReasonAlreadyInProgress ConflictReason = "already in progress"
	ReasonAlreadyCompleted  ConflictReason = "already completed"
	ReasonDomainTaken       ConflictReason = "domain already in use"
	ReasonNotDraft          ConflictReason = "installation is not a draft"
	ReasonNotTerminal       ConflictReason = "steps are not all terminal"
	ReasonNotSucceeded      ConflictReason = "steps have not all succeeded"
)

// ConflictError is returned when a request meets state it cannot act on. Start-step
// conflicts carry the step as it currently is.
type ConflictError struct {
	Reason ConflictReason
	Step   *entity.Step
}

func (t ConflictError) Error() string {
	return "conflict: " + string(t.Reason)
}

type ConfigurationMissingError struct {
	Provider string
	Fields   []string
}

func (t ConfigurationMissingError) Error() string {
	return fmt.Sprintf("%s configuration missing: %s", t.Provider, strings.Join(t.Fields, ", "))
}

// AdapterRejectedError is a structured failure reported by a remote provider API.
type AdapterRejectedError struct {
	Provider string
	Message  string
}

func (t AdapterRejectedError) Error() string {
	return fmt.Sprintf("%s rejected the request: %s", t.Provider, t.Message)
}
