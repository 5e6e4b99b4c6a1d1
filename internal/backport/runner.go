package backport

import (
	"context"
	"os/exec"
	"strings"

	"github.com/hunter-fleet/nm-backport-agent/internal/logging"
)

var log = logging.L("backport")

// commandRunner abstracts external process invocation so the exec-driven
// components can be exercised in tests.
type commandRunner func(ctx context.Context, name string, args ...string) (string, error)

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}
