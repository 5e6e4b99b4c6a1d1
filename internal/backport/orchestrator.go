package backport

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hunter-fleet/nm-backport-agent/internal/config"
	"github.com/hunter-fleet/nm-backport-agent/internal/logging"
)

// Component interfaces consumed by the orchestrator. The concrete types in
// this package implement them; tests substitute fakes.
type statusInspector interface {
	Inspect(ctx context.Context) (Status, error)
}

type archiveFetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

type packageExtractor interface {
	Extract(archivePath, destDir string) ([]string, error)
	List(archivePath string) ([]string, error)
}

type packageInstaller interface {
	Install(ctx context.Context, packages []string) error
}

type serviceController interface {
	Restart(ctx context.Context, name string) error
	WaitActive(ctx context.Context, name string, timeout time.Duration) error
}

// Orchestrator composes the install pipeline:
// check -> download -> verify -> extract -> install -> restart -> cleanup.
// At most one install run may be in flight per orchestrator; manual and
// scheduled installs contend for the same lock.
type Orchestrator struct {
	cfg       *config.Config
	inspector statusInspector
	fetcher   archiveFetcher
	extractor packageExtractor
	installer packageInstaller
	services  serviceController

	installMu sync.Mutex

	stateMu    sync.Mutex
	state      State
	failReason string
}

func NewOrchestrator(cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		inspector: NewInspector(cfg),
		fetcher:   NewFetcher(cfg),
		extractor: NewExtractor(),
		installer: NewInstaller(),
		services:  NewServiceController(),
		state:     StateIdle,
	}
}

// State returns the current pipeline state and, when failed, the reason.
func (o *Orchestrator) State() (State, string) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return o.state, o.failReason
}

func (o *Orchestrator) setState(s State) {
	o.stateMu.Lock()
	o.state = s
	o.failReason = ""
	o.stateMu.Unlock()
}

func (o *Orchestrator) setFailed(reason string) {
	o.stateMu.Lock()
	o.state = StateFailed
	o.failReason = reason
	o.stateMu.Unlock()
}

// RunInstall executes one install run. It returns ErrBusy without touching
// any state when another run holds the install lock. Pipeline failures are
// normal, reportable results, not errors.
func (o *Orchestrator) RunInstall(ctx context.Context, force bool) (InstallResult, error) {
	if !o.installMu.TryLock() {
		return InstallResult{}, ErrBusy
	}
	defer o.installMu.Unlock()

	runID := uuid.NewString()
	rlog := logging.WithRun(log, runID)

	result := o.runPipeline(ctx, rlog, force)
	result.RunID = runID
	return result, nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, rlog *slog.Logger, force bool) InstallResult {
	o.setState(StateChecking)
	status, err := o.inspector.Inspect(ctx)
	if err != nil {
		return o.fail(rlog, StateChecking, err)
	}

	if status.IsBackported && !force && !o.cfg.ForceReinstall {
		o.setState(StateDone)
		rlog.Info("backport already installed, skipping", "version", status.CurrentVersion)
		return InstallResult{
			Success:      true,
			Action:       ActionSkipped,
			Version:      status.CurrentVersion,
			IsBackported: true,
			Message:      "backport already installed",
		}
	}

	rlog.Info("starting backport install",
		"target", o.cfg.TargetVersion,
		"url", o.cfg.BackportURL,
		"force", force || o.cfg.ForceReinstall,
	)

	workDir := o.cfg.WorkPath()
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return o.fail(rlog, StateDownloading, err)
	}

	o.setState(StateDownloading)
	archivePath := o.cfg.ArchivePath()
	if err := o.fetcher.Fetch(ctx, o.cfg.BackportURL, archivePath); err != nil {
		stage := StateDownloading
		var ce *ChecksumError
		if errors.As(err, &ce) {
			stage = StateVerifying
		}
		return o.fail(rlog, stage, err)
	}

	o.setState(StateExtracting)
	packages, err := o.extractor.Extract(archivePath, workDir)
	if err != nil {
		return o.fail(rlog, StateExtracting, err)
	}
	rlog.Info("archive extracted", "packages", len(packages))

	o.setState(StateInstalling)
	if err := o.installer.Install(ctx, packages); err != nil {
		return o.fail(rlog, StateInstalling, err)
	}

	o.setState(StateRestartingService)
	if err := o.restartAndWait(ctx, o.cfg.ServiceName); err != nil {
		return o.fail(rlog, StateRestartingService, err)
	}

	if o.cfg.RestartDependentAgent && o.cfg.AgentService != "" {
		o.setState(StateRestartingAgent)
		if err := o.restartAndWait(ctx, o.cfg.AgentService); err != nil {
			return o.fail(rlog, StateRestartingAgent, err)
		}
	}

	if o.cfg.CleanupAfterInstall {
		o.setState(StateCleaningUp)
		if removed, err := o.CleanupFiles(); err != nil {
			// Leftover artifacts are harmless after a successful install.
			rlog.Warn("cleanup after install failed", "error", err)
		} else {
			rlog.Debug("cleaned up install artifacts", "removed", len(removed))
		}
	}

	final, err := o.inspector.Inspect(ctx)
	if err != nil {
		// Install completed; a failed confirmation query downgrades the
		// detail, not the outcome.
		rlog.Warn("post-install status query failed", "error", err)
		final = Status{TargetVersion: o.cfg.TargetVersion}
	}

	o.setState(StateDone)
	rlog.Info("backport install complete", "version", final.CurrentVersion)
	return InstallResult{
		Success:      true,
		Action:       ActionInstalled,
		Version:      final.CurrentVersion,
		IsBackported: final.IsBackported,
		Message:      "backport installed successfully",
	}
}

func (o *Orchestrator) restartAndWait(ctx context.Context, name string) error {
	if err := o.services.Restart(ctx, name); err != nil {
		return err
	}
	return o.services.WaitActive(ctx, name, o.cfg.ServiceTimeout())
}

func (o *Orchestrator) fail(rlog *slog.Logger, stage State, err error) InstallResult {
	wrapped := &StageError{Stage: stage, Err: err}
	o.setFailed(wrapped.Error())
	rlog.Error("install run failed", "stage", string(stage), "error", err)
	return InstallResult{
		Success: false,
		Action:  ActionFailed,
		Message: wrapped.Error(),
	}
}

// CleanupFiles removes install artifacts. Only paths directly under the
// work dir are ever touched. Exposed separately so a failed run's
// artifacts can be removed after inspection.
func (o *Orchestrator) CleanupFiles() ([]string, error) {
	workDir := o.cfg.WorkPath()
	entries, err := os.ReadDir(workDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var removed []string
	for _, entry := range entries {
		p := filepath.Join(workDir, entry.Name())
		if err := os.RemoveAll(p); err != nil {
			return removed, err
		}
		removed = append(removed, p)
	}

	// Drop the now-empty dir as well; ignore failure, the next run recreates it.
	os.Remove(workDir)
	return removed, nil
}

// ValidateArchive downloads the configured archive into a throwaway dir,
// verifies it if configured, and examines its contents without installing.
func (o *Orchestrator) ValidateArchive(ctx context.Context) ValidationResult {
	tmpDir, err := os.MkdirTemp("", "nm-backport-validate-")
	if err != nil {
		return ValidationResult{Valid: false, Reason: err.Error()}
	}
	defer os.RemoveAll(tmpDir)

	archivePath := filepath.Join(tmpDir, o.cfg.ArchiveFileName())
	if err := o.fetcher.Fetch(ctx, o.cfg.BackportURL, archivePath); err != nil {
		return ValidationResult{Valid: false, Reason: err.Error()}
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return ValidationResult{Valid: false, Reason: err.Error()}
	}

	names, err := o.extractor.List(archivePath)
	if err != nil {
		return ValidationResult{Valid: false, Reason: err.Error()}
	}

	var debs []string
	for _, name := range names {
		if strings.HasSuffix(name, ".deb") {
			debs = append(debs, name)
		}
	}
	if len(debs) == 0 {
		return ValidationResult{
			Valid:     false,
			Reason:    "archive contains no .deb packages",
			FileCount: len(names),
		}
	}

	return ValidationResult{
		Valid:       true,
		ArchiveSize: info.Size(),
		FileCount:   len(names),
		DebFiles:    debs,
	}
}
