package backport

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBusy is returned when an install run is requested while another one
// holds the install lock.
var ErrBusy = errors.New("an install run is already in progress")

// QueryError indicates the version query mechanism itself failed, as
// opposed to the package simply not being installed.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("version query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ChecksumError indicates the downloaded archive did not match the
// expected digest.
type ChecksumError struct {
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("archive checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// ExtractError indicates a malformed archive or one with no installable
// package files.
type ExtractError struct {
	Message string
	Err     error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("extract failed: %s", e.Message)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// InstallError is terminal for an install run. When the dependency repair
// pass ran, RepairOutput carries its diagnostics alongside the original
// dpkg output.
type InstallError struct {
	InstallOutput string
	RepairOutput  string
	Err           error
}

func (e *InstallError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "package install failed: %v", e.Err)
	if e.InstallOutput != "" {
		fmt.Fprintf(&b, "; dpkg: %s", e.InstallOutput)
	}
	if e.RepairOutput != "" {
		fmt.Fprintf(&b, "; repair pass: %s", e.RepairOutput)
	}
	return b.String()
}

func (e *InstallError) Unwrap() error { return e.Err }

// ServiceError indicates a service manager operation failed.
type ServiceError struct {
	Service string
	Output  string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("service %s: %v: %s", e.Service, e.Err, e.Output)
	}
	return fmt.Sprintf("service %s: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ServiceTimeoutError indicates a restarted service did not report active
// within the configured window.
type ServiceTimeoutError struct {
	Service string
	Timeout time.Duration
}

func (e *ServiceTimeoutError) Error() string {
	return fmt.Sprintf("service %s did not become active within %s", e.Service, e.Timeout)
}

// StageError wraps a pipeline step failure with the name of the step that
// produced it.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
