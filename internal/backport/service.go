package backport

import (
	"context"
	"strings"
	"time"
)

// ServiceController restarts systemd services and waits for them to report
// active again.
type ServiceController struct {
	run          commandRunner
	pollInterval time.Duration
}

func NewServiceController() *ServiceController {
	return &ServiceController{run: runCommand, pollInterval: time.Second}
}

// Restart restarts the named service.
func (s *ServiceController) Restart(ctx context.Context, name string) error {
	out, err := s.run(ctx, "systemctl", "restart", name)
	if err != nil {
		return &ServiceError{Service: name, Output: out, Err: err}
	}
	return nil
}

// WaitActive polls the service's active state until it reports active or
// the timeout elapses.
func (s *ServiceController) WaitActive(ctx context.Context, name string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if s.IsActive(ctx, name) {
			return nil
		}
		if time.Now().After(deadline) {
			return &ServiceTimeoutError{Service: name, Timeout: timeout}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

// IsActive reports whether the named service is currently active.
// systemctl is-active exits nonzero for anything but "active".
func (s *ServiceController) IsActive(ctx context.Context, name string) bool {
	out, err := s.run(ctx, "systemctl", "is-active", name)
	return err == nil && strings.TrimSpace(out) == "active"
}
