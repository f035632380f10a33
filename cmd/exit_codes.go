package cmd

import "fmt"

const (
	ExitCodeUnknownError     = 1
	ExitCodeInvalidArguments = 2
	ExitCodeInvalidConfig    = 3
	ExitCodeInvalidInput     = 4
	ExitCodeInvalidOutput    = 5
	ExitCodeServerError      = 6
)

type ExitCodeError struct {
	err      error
	exitCode int
}

func newExitCodeError(err error, exitCode int) *ExitCodeError {
	return &ExitCodeError{err: err, exitCode: exitCode}
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("%v (exit code %d)", e.err, e.exitCode)
}

func (e *ExitCodeError) Unwrap() error {
	return e.err
}

func (e *ExitCodeError) ExitCode() int {
	return e.exitCode
}
