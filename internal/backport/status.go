package backport

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hunter-fleet/nm-backport-agent/internal/config"
)

// Inspector computes the current backport status from the OS.
type Inspector struct {
	cfg *config.Config
	run commandRunner
}

func NewInspector(cfg *config.Config) *Inspector {
	return &Inspector{cfg: cfg, run: runCommand}
}

// Inspect queries the installed NetworkManager version and compares it
// against the configured target. A missing binary means "not installed";
// any other execution failure is a QueryError.
func (i *Inspector) Inspect(ctx context.Context) (Status, error) {
	status := Status{
		TargetVersion: i.cfg.TargetVersion,
		Platform:      i.cfg.Platform,
		LeftoverFiles: i.leftoverFiles(),
	}

	out, err := i.run(ctx, "NetworkManager", "--version")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return status, nil
		}
		return Status{}, &QueryError{Err: err}
	}

	// The binary prints a bare version string, possibly with distro suffixes
	// (e.g. "1.42.8-1ubuntu1"), so containment rather than equality.
	status.CurrentVersion = firstLine(out)
	status.IsBackported = status.CurrentVersion != "" &&
		strings.Contains(status.CurrentVersion, i.cfg.TargetVersion)

	return status, nil
}

// leftoverFiles reports whether a prior or interrupted run left the archive
// or extracted packages in the work dir.
func (i *Inspector) leftoverFiles() bool {
	workDir := i.cfg.WorkPath()
	if _, err := os.Stat(filepath.Join(workDir, i.cfg.ArchiveFileName())); err == nil {
		return true
	}
	debs, err := filepath.Glob(filepath.Join(workDir, "*.deb"))
	return err == nil && len(debs) > 0
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
