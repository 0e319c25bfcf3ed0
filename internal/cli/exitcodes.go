package cli

import (
	"errors"

	"github.com/lherron/dirsync/internal/cli/appctx"
	"github.com/lherron/dirsync/internal/domain"
	"github.com/lherron/dirsync/internal/plan"
	"github.com/lherron/dirsync/internal/reconcile"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitValidation = 2
	exitUsage      = 3
	exitDB         = 4
	exitDBWrite    = 5
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	var cfgErr *appctx.ConfigError
	if errors.As(err, &cfgErr) {
		return exitUsage
	}
	var dbErr *appctx.DatabaseError
	if errors.As(err, &dbErr) {
		return exitDB
	}
	return 1
}

// runError classifies an engine error. A fatal snapshot outranks write
// failures since it means the department phase never ran.
func runError(err error) error {
	if err == nil {
		return nil
	}
	var srcErr *domain.SourceError
	var mismatch *plan.RevMismatchError
	switch {
	case errors.As(err, &srcErr), errors.As(err, &mismatch), reconcile.IsFatal(err):
		return withCode(exitValidation, err)
	case reconcile.HasWriteFailures(err):
		return withCode(exitDBWrite, err)
	default:
		return withCode(exitDB, err)
	}
}
