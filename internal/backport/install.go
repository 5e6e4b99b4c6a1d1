package backport

import (
	"context"
	"strings"
)

// Installer drives dpkg against the extracted packages, with a single
// apt-get repair pass when dpkg reports unmet dependencies. Repeated blind
// retries against a broken dependency graph do not converge, so the repair
// pass runs at most once.
type Installer struct {
	run commandRunner
}

func NewInstaller() *Installer {
	return &Installer{run: runCommand}
}

// Install installs all package files in one dpkg pass.
func (in *Installer) Install(ctx context.Context, packages []string) error {
	args := append([]string{"-i"}, packages...)
	out, err := in.run(ctx, "dpkg", args...)
	if err == nil {
		return nil
	}

	if !dependencyFailure(out) {
		return &InstallError{InstallOutput: out, Err: err}
	}

	log.Warn("dpkg reported unmet dependencies, running repair pass")
	repairOut, repairErr := in.run(ctx, "apt-get", "install", "-f", "-y")
	if repairErr != nil {
		return &InstallError{InstallOutput: out, RepairOutput: repairOut, Err: repairErr}
	}

	return nil
}

// dependencyFailure recognizes dpkg's unmet-dependency exit condition from
// its diagnostic output.
func dependencyFailure(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "dependency problems") ||
		strings.Contains(lower, "unmet dependencies") ||
		strings.Contains(lower, "depends on")
}
