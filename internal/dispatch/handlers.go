package dispatch

import (
	"context"
	"errors"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/hunter-fleet/nm-backport-agent/internal/backport"
	"github.com/hunter-fleet/nm-backport-agent/internal/health"
)

func handleCheckStatus(d *Dispatcher, ctx context.Context) Result {
	status, err := d.inspector.Inspect(ctx)
	if err != nil {
		return Result{Status: StatusFailed, Error: err.Error()}
	}

	state := "needs_install"
	if status.IsBackported {
		state = "installed"
	}

	data := map[string]any{
		"status":               state,
		"is_backported":        status.IsBackported,
		"current_version":      status.CurrentVersion,
		"target_version":       status.TargetVersion,
		"platform":             status.Platform,
		"auto_install_enabled": d.cfg.AutoInstall,
		"backport_files_exist": status.LeftoverFiles,
		"description":          d.cfg.Description,
		"backport_url":         d.cfg.BackportURL,
	}
	if detected := detectedPlatform(ctx); detected != "" {
		data["detected_platform"] = detected
	}

	return Result{Status: StatusCompleted, Data: data}
}

func handleInstallBackport(d *Dispatcher, ctx context.Context) Result {
	result, err := d.orch.RunInstall(ctx, false)
	if err != nil {
		if errors.Is(err, backport.ErrBusy) {
			return Result{Status: StatusBusy, Error: err.Error()}
		}
		return Result{Status: StatusFailed, Error: err.Error()}
	}

	status := StatusCompleted
	if !result.Success {
		status = StatusFailed
	}
	return Result{
		Status: status,
		Data: map[string]any{
			"success":       result.Success,
			"message":       result.Message,
			"action":        string(result.Action),
			"version":       result.Version,
			"is_backported": result.IsBackported,
			"run_id":        result.RunID,
		},
	}
}

func handleGetNMVersion(d *Dispatcher, ctx context.Context) Result {
	status, err := d.inspector.Inspect(ctx)
	if err != nil {
		return Result{Status: StatusFailed, Error: err.Error()}
	}

	return Result{
		Status: StatusCompleted,
		Data: map[string]any{
			"version":           status.CurrentVersion,
			"is_target_version": status.IsBackported,
		},
	}
}

func handleHealthCheck(d *Dispatcher, ctx context.Context) Result {
	serviceActive := d.services.IsActive(ctx, d.cfg.ServiceName)
	if serviceActive {
		d.monitor.Update(health.ComponentService, health.Healthy, "")
	} else {
		d.monitor.Update(health.ComponentService, health.Degraded, "service not active")
	}

	status, err := d.inspector.Inspect(ctx)
	if err != nil {
		d.monitor.Update(health.ComponentBackport, health.Degraded, err.Error())
		return Result{Status: StatusFailed, Error: err.Error()}
	}
	if status.IsBackported {
		d.monitor.Update(health.ComponentBackport, health.Healthy, "")
	} else {
		d.monitor.Update(health.ComponentBackport, health.Degraded, "backport not installed")
	}

	overall := health.Degraded
	if serviceActive && status.IsBackported {
		overall = health.Healthy
	}

	data := map[string]any{
		"overall_health":                string(overall),
		"networkmanager_service_active": serviceActive,
		"should_auto_install":           d.cfg.AutoInstall && !status.IsBackported,
		"background_task_running":       d.backgroundTaskRunning(),
		"backport_status": map[string]any{
			"is_backported":        status.IsBackported,
			"current_version":      status.CurrentVersion,
			"target_version":       status.TargetVersion,
			"backport_files_exist": status.LeftoverFiles,
		},
	}
	if up, err := host.UptimeWithContext(ctx); err == nil {
		data["uptime_seconds"] = up
	}

	return Result{Status: StatusCompleted, Data: data}
}

func handleGetConfig(d *Dispatcher, _ context.Context) Result {
	return Result{
		Status: StatusCompleted,
		Data: map[string]any{
			"configured":              true,
			"auto_install":            d.cfg.AutoInstall,
			"check_interval":          d.cfg.CheckIntervalSeconds,
			"background_task_running": d.backgroundTaskRunning(),
			"backup_dir":              d.cfg.WorkPath(),
			"target_version":          d.cfg.TargetVersion,
			"platform":                d.cfg.Platform,
		},
	}
}

func handleListBackports(d *Dispatcher, _ context.Context) Result {
	return Result{
		Status: StatusCompleted,
		Data: map[string]any{
			"available_backports": []map[string]any{
				{
					"version":     d.cfg.TargetVersion,
					"platform":    d.cfg.Platform,
					"url":         d.cfg.BackportURL,
					"description": d.cfg.Description,
				},
			},
		},
	}
}

func handleValidateArchive(d *Dispatcher, ctx context.Context) Result {
	vr := d.orch.ValidateArchive(ctx)

	data := map[string]any{"valid": vr.Valid}
	if vr.Reason != "" {
		data["reason"] = vr.Reason
	}
	if vr.Valid {
		data["archive_size"] = vr.ArchiveSize
		data["file_count"] = vr.FileCount
		data["deb_files"] = vr.DebFiles
		data["deb_count"] = len(vr.DebFiles)
	}

	status := StatusCompleted
	if !vr.Valid {
		status = StatusFailed
	}
	return Result{Status: status, Data: data}
}

func handleCleanupFiles(d *Dispatcher, _ context.Context) Result {
	removed, err := d.orch.CleanupFiles()
	if err != nil {
		return Result{Status: StatusFailed, Error: err.Error()}
	}
	if removed == nil {
		removed = []string{}
	}
	return Result{
		Status: StatusCompleted,
		Data:   map[string]any{"removed": removed},
	}
}

// detectedPlatform reports the running host's platform, best effort, for
// comparison against the configured one.
func detectedPlatform(ctx context.Context) string {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return ""
	}
	if info.Platform == "" {
		return info.OS
	}
	return info.Platform + "-" + info.PlatformVersion
}
