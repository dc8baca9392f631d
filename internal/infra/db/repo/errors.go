package repo

import (
	"errors"
	"fmt"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"
)

// translate maps constraint violations onto application errors.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case foreignKeyViolation:
		return errs.ValidationError{Err: fmt.Errorf("unknown reference: %s", pgErr.ConstraintName)}
	case uniqueViolation:
		if pgErr.ConstraintName == "installations_domain_uniq" {
			return errs.ConflictError{Reason: errs.ReasonDomainTaken}
		}
	}
	return err
}
