package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hunter-fleet/nm-backport-agent/internal/backport"
	"github.com/hunter-fleet/nm-backport-agent/internal/config"
	"github.com/hunter-fleet/nm-backport-agent/internal/health"
)

type fakeInspector struct {
	status backport.Status
	err    error
}

func (f *fakeInspector) Inspect(_ context.Context) (backport.Status, error) {
	return f.status, f.err
}

type fakeOps struct {
	installResult backport.InstallResult
	installErr    error
	removed       []string
	cleanupErr    error
	validation    backport.ValidationResult
}

func (f *fakeOps) RunInstall(_ context.Context, force bool) (backport.InstallResult, error) {
	return f.installResult, f.installErr
}

func (f *fakeOps) CleanupFiles() ([]string, error) {
	return f.removed, f.cleanupErr
}

func (f *fakeOps) ValidateArchive(_ context.Context) backport.ValidationResult {
	return f.validation
}

type fakeProbe struct {
	active bool
}

func (f *fakeProbe) IsActive(_ context.Context, _ string) bool {
	return f.active
}

type fakeTask struct {
	running bool
}

func (f *fakeTask) IsRunning() bool { return f.running }

func dispatchConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.BackportURL = "https://packages.example.com/jammy-nm-backports.tar"
	cfg.TargetVersion = "1.42.8"
	cfg.WorkDir = filepath.Join(t.TempDir(), "work")
	cfg.Platform = "ubuntu-22.04"
	cfg.Description = "NetworkManager 1.42.8 backport for jammy"
	return cfg
}

func newTestDispatcher(cfg *config.Config, ins *fakeInspector, ops *fakeOps, probe *fakeProbe, task BackgroundTask) *Dispatcher {
	return New(cfg, ins, ops, probe, task, health.NewMonitor())
}

func TestDispatchUnknownCommand(t *testing.T) {
	d := newTestDispatcher(dispatchConfig(t), &fakeInspector{}, &fakeOps{}, &fakeProbe{}, nil)

	result := d.Dispatch(context.Background(), "reboot_datacenter")

	if result.Status != StatusUnknownCommand {
		t.Fatalf("expected unknown_command status, got %q", result.Status)
	}
	if result.Error == "" {
		t.Fatal("expected error message naming the command")
	}
	available, ok := result.Data["available_commands"].([]string)
	if !ok || len(available) != 8 {
		t.Fatalf("expected 8 available commands, got %v", result.Data["available_commands"])
	}
}

func TestDispatchCheckStatusInstalled(t *testing.T) {
	ins := &fakeInspector{status: backport.Status{
		IsBackported:   true,
		CurrentVersion: "1.42.8-1ubuntu1",
		TargetVersion:  "1.42.8",
		Platform:       "ubuntu-22.04",
	}}
	d := newTestDispatcher(dispatchConfig(t), ins, &fakeOps{}, &fakeProbe{}, nil)

	result := d.Dispatch(context.Background(), CmdCheckStatus)

	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %+v", result)
	}
	if result.Data["status"] != "installed" {
		t.Fatalf("expected installed status, got %v", result.Data["status"])
	}
	if result.Data["is_backported"] != true || result.Data["current_version"] != "1.42.8-1ubuntu1" {
		t.Fatalf("unexpected status payload: %v", result.Data)
	}
}

func TestDispatchCheckStatusNeedsInstall(t *testing.T) {
	ins := &fakeInspector{status: backport.Status{TargetVersion: "1.42.8", LeftoverFiles: true}}
	d := newTestDispatcher(dispatchConfig(t), ins, &fakeOps{}, &fakeProbe{}, nil)

	result := d.Dispatch(context.Background(), CmdCheckStatus)

	if result.Data["status"] != "needs_install" {
		t.Fatalf("expected needs_install, got %v", result.Data["status"])
	}
	if result.Data["backport_files_exist"] != true {
		t.Fatal("expected leftover files to be reported")
	}
}

func TestDispatchCheckStatusQueryFailure(t *testing.T) {
	ins := &fakeInspector{err: &backport.QueryError{Err: errors.New("dbus timeout")}}
	d := newTestDispatcher(dispatchConfig(t), ins, &fakeOps{}, &fakeProbe{}, nil)

	result := d.Dispatch(context.Background(), CmdCheckStatus)

	if result.Status != StatusFailed || result.Error == "" {
		t.Fatalf("expected failed result with error, got %+v", result)
	}
}

func TestDispatchInstallBusy(t *testing.T) {
	ops := &fakeOps{installErr: backport.ErrBusy}
	d := newTestDispatcher(dispatchConfig(t), &fakeInspector{}, ops, &fakeProbe{}, nil)

	result := d.Dispatch(context.Background(), CmdInstallBackport)

	if result.Status != StatusBusy {
		t.Fatalf("expected busy status, got %+v", result)
	}
}

func TestDispatchInstallSuccess(t *testing.T) {
	ops := &fakeOps{installResult: backport.InstallResult{
		RunID:        "run-1",
		Success:      true,
		Action:       backport.ActionInstalled,
		Version:      "1.42.8-1ubuntu1",
		IsBackported: true,
		Message:      "backport installed successfully",
	}}
	d := newTestDispatcher(dispatchConfig(t), &fakeInspector{}, ops, &fakeProbe{}, nil)

	result := d.Dispatch(context.Background(), CmdInstallBackport)

	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %+v", result)
	}
	if result.Data["action"] != "installed" || result.Data["run_id"] != "run-1" {
		t.Fatalf("unexpected install payload: %v", result.Data)
	}
}

func TestDispatchInstallPipelineFailure(t *testing.T) {
	ops := &fakeOps{installResult: backport.InstallResult{
		RunID:   "run-2",
		Action:  backport.ActionFailed,
		Message: "installing: exit status 1",
	}}
	d := newTestDispatcher(dispatchConfig(t), &fakeInspector{}, ops, &fakeProbe{}, nil)

	result := d.Dispatch(context.Background(), CmdInstallBackport)

	if result.Status != StatusFailed {
		t.Fatalf("expected failed status for failed pipeline, got %+v", result)
	}
	if result.Data["message"] != "installing: exit status 1" {
		t.Fatalf("expected failure message in payload, got %v", result.Data)
	}
}

func TestDispatchGetNMVersion(t *testing.T) {
	ins := &fakeInspector{status: backport.Status{CurrentVersion: "1.36.6", TargetVersion: "1.42.8"}}
	d := newTestDispatcher(dispatchConfig(t), ins, &fakeOps{}, &fakeProbe{}, nil)

	result := d.Dispatch(context.Background(), CmdGetNMVersion)

	if result.Data["version"] != "1.36.6" || result.Data["is_target_version"] != false {
		t.Fatalf("unexpected version payload: %v", result.Data)
	}
}

func TestDispatchHealthCheckHealthy(t *testing.T) {
	ins := &fakeInspector{status: backport.Status{IsBackported: true, CurrentVersion: "1.42.8-1ubuntu1"}}
	d := newTestDispatcher(dispatchConfig(t), ins, &fakeOps{}, &fakeProbe{active: true}, &fakeTask{running: true})

	result := d.Dispatch(context.Background(), CmdHealthCheck)

	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %+v", result)
	}
	if result.Data["overall_health"] != "healthy" {
		t.Fatalf("expected healthy overall, got %v", result.Data["overall_health"])
	}
	if result.Data["background_task_running"] != true {
		t.Fatal("expected background task reported running")
	}
	nested, ok := result.Data["backport_status"].(map[string]any)
	if !ok || nested["is_backported"] != true {
		t.Fatalf("unexpected nested backport status: %v", result.Data["backport_status"])
	}
}

func TestDispatchHealthCheckDegradedWhenServiceDown(t *testing.T) {
	ins := &fakeInspector{status: backport.Status{IsBackported: true}}
	d := newTestDispatcher(dispatchConfig(t), ins, &fakeOps{}, &fakeProbe{active: false}, nil)

	result := d.Dispatch(context.Background(), CmdHealthCheck)

	if result.Data["overall_health"] != "degraded" {
		t.Fatalf("expected degraded overall with inactive service, got %v", result.Data["overall_health"])
	}
	if result.Data["networkmanager_service_active"] != false {
		t.Fatal("expected inactive service reported")
	}
}

func TestDispatchGetConfig(t *testing.T) {
	cfg := dispatchConfig(t)
	cfg.AutoInstall = true
	d := newTestDispatcher(cfg, &fakeInspector{}, &fakeOps{}, &fakeProbe{}, &fakeTask{running: false})

	result := d.Dispatch(context.Background(), CmdGetConfig)

	if result.Data["auto_install"] != true || result.Data["check_interval"] != 3600 {
		t.Fatalf("unexpected config payload: %v", result.Data)
	}
	if result.Data["background_task_running"] != false {
		t.Fatal("expected stopped background task reported")
	}
	if result.Data["backup_dir"] != cfg.WorkPath() {
		t.Fatalf("expected resolved work dir, got %v", result.Data["backup_dir"])
	}
}

func TestDispatchListBackports(t *testing.T) {
	d := newTestDispatcher(dispatchConfig(t), &fakeInspector{}, &fakeOps{}, &fakeProbe{}, nil)

	result := d.Dispatch(context.Background(), CmdListBackports)

	entries, ok := result.Data["available_backports"].([]map[string]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("expected one configured backport, got %v", result.Data)
	}
	if entries[0]["version"] != "1.42.8" || entries[0]["platform"] != "ubuntu-22.04" {
		t.Fatalf("unexpected backport entry: %v", entries[0])
	}
}

func TestDispatchValidateArchive(t *testing.T) {
	ops := &fakeOps{validation: backport.ValidationResult{
		Valid:       true,
		ArchiveSize: 2048,
		FileCount:   3,
		DebFiles:    []string{"a.deb", "b.deb"},
	}}
	d := newTestDispatcher(dispatchConfig(t), &fakeInspector{}, ops, &fakeProbe{}, nil)

	result := d.Dispatch(context.Background(), CmdValidateArchive)

	if result.Status != StatusCompleted || result.Data["valid"] != true {
		t.Fatalf("expected valid archive result, got %+v", result)
	}
	if result.Data["deb_count"] != 2 {
		t.Fatalf("expected deb count, got %v", result.Data["deb_count"])
	}

	ops.validation = backport.ValidationResult{Valid: false, Reason: "archive contains no .deb packages"}
	result = d.Dispatch(context.Background(), CmdValidateArchive)
	if result.Status != StatusFailed || result.Data["reason"] == "" {
		t.Fatalf("expected invalid archive result with reason, got %+v", result)
	}
}

func TestDispatchCleanupFiles(t *testing.T) {
	ops := &fakeOps{removed: []string{"/var/lib/nm-backport/a.deb"}}
	d := newTestDispatcher(dispatchConfig(t), &fakeInspector{}, ops, &fakeProbe{}, nil)

	result := d.Dispatch(context.Background(), CmdCleanupFiles)

	removed, ok := result.Data["removed"].([]string)
	if !ok || len(removed) != 1 {
		t.Fatalf("expected removed paths, got %v", result.Data)
	}

	ops.removed = nil
	result = d.Dispatch(context.Background(), CmdCleanupFiles)
	removed, ok = result.Data["removed"].([]string)
	if !ok || removed == nil || len(removed) != 0 {
		t.Fatalf("expected empty slice for nothing removed, got %v", result.Data["removed"])
	}
}

func TestNamesSortedAndComplete(t *testing.T) {
	names := Names()
	if len(names) != 8 {
		t.Fatalf("expected 8 commands, got %d: %v", len(names), names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("expected sorted names, got %v", names)
		}
	}
}
