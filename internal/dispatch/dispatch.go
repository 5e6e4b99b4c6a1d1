package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hunter-fleet/nm-backport-agent/internal/backport"
	"github.com/hunter-fleet/nm-backport-agent/internal/config"
	"github.com/hunter-fleet/nm-backport-agent/internal/health"
	"github.com/hunter-fleet/nm-backport-agent/internal/logging"
)

var log = logging.L("dispatch")

// Command names accepted by the dispatcher.
const (
	CmdCheckStatus     = "check_status"
	CmdInstallBackport = "install_backport"
	CmdGetNMVersion    = "get_nm_version"
	CmdHealthCheck     = "health_check"
	CmdGetConfig       = "get_config"
	CmdListBackports   = "list_backports"
	CmdValidateArchive = "validate_archive"
	CmdCleanupFiles    = "cleanup_files"
)

// Result statuses.
const (
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
	StatusBusy           = "busy"
	StatusUnknownCommand = "unknown_command"
)

// Result is the response record for one dispatched command.
type Result struct {
	Status     string         `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs,omitempty"`
}

// UnknownCommandError is returned for command names the dispatcher does
// not recognize.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command: %s", e.Name)
}

// Handler processes one command. Handlers route and shape responses only;
// business logic lives in the backport package.
type Handler func(d *Dispatcher, ctx context.Context) Result

// handlerRegistry maps command names to their handlers. Written only
// during package init, read-only thereafter.
var handlerRegistry = map[string]Handler{
	CmdCheckStatus:     handleCheckStatus,
	CmdInstallBackport: handleInstallBackport,
	CmdGetNMVersion:    handleGetNMVersion,
	CmdHealthCheck:     handleHealthCheck,
	CmdGetConfig:       handleGetConfig,
	CmdListBackports:   handleListBackports,
	CmdValidateArchive: handleValidateArchive,
	CmdCleanupFiles:    handleCleanupFiles,
}

// Names returns the registered command names, sorted.
func Names() []string {
	names := make([]string, 0, len(handlerRegistry))
	for name := range handlerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Component interfaces consumed by the dispatcher; tests substitute fakes.
type statusInspector interface {
	Inspect(ctx context.Context) (backport.Status, error)
}

type installOps interface {
	RunInstall(ctx context.Context, force bool) (backport.InstallResult, error)
	CleanupFiles() ([]string, error)
	ValidateArchive(ctx context.Context) backport.ValidationResult
}

type serviceProbe interface {
	IsActive(ctx context.Context, name string) bool
}

// BackgroundTask is the scheduler surface the dispatcher reports on.
type BackgroundTask interface {
	IsRunning() bool
}

// Dispatcher maps command names to component calls and shapes responses.
type Dispatcher struct {
	cfg       *config.Config
	inspector statusInspector
	orch      installOps
	services  serviceProbe
	sched     BackgroundTask // nil when auto-install is off
	monitor   *health.Monitor
}

func New(cfg *config.Config, inspector statusInspector, orch installOps, services serviceProbe, sched BackgroundTask, monitor *health.Monitor) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		inspector: inspector,
		orch:      orch,
		services:  services,
		sched:     sched,
		monitor:   monitor,
	}
}

// Dispatch routes a named command to its handler. Unknown names produce an
// unknown_command result listing what is available.
func (d *Dispatcher) Dispatch(ctx context.Context, name string) Result {
	handler, ok := handlerRegistry[name]
	if !ok {
		log.Warn("unknown command", "command", name)
		return Result{
			Status: StatusUnknownCommand,
			Error:  (&UnknownCommandError{Name: name}).Error(),
			Data:   map[string]any{"available_commands": Names()},
		}
	}

	start := time.Now()
	result := handler(d, ctx)
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

func (d *Dispatcher) backgroundTaskRunning() bool {
	return d.sched != nil && d.sched.IsRunning()
}
