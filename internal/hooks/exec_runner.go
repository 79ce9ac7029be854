package hooks

import (
	"context"
	"os"
	"os/exec"

	"github.com/relaymesh/relayd/internal/dlog"
)

// ExecRunner shells out to a script with os/exec, logging its start,
// output lines and completion. A missing script is not an error: hook
// scripts are optional.
type ExecRunner struct{}

var _ Runner = ExecRunner{}

func (ExecRunner) Up(ctx context.Context, script string, env map[string]string) error {
	return run(ctx, script, env)
}

func (ExecRunner) Down(ctx context.Context, script string, env map[string]string) error {
	return run(ctx, script, env)
}

func run(ctx context.Context, script string, env map[string]string) error {
	if _, err := os.Stat(script); err != nil {
		dlog.Debugf(ctx, "hooks: %s absent, skipping", script)
		return nil
	}

	cmd := exec.CommandContext(ctx, script)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	dlog.Infof(ctx, "hooks: running %s", script)
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		dlog.Debugf(ctx, "hooks: %s output: %s", script, out)
	}
	if err != nil {
		dlog.Warnf(ctx, "hooks: %s failed: %v", script, err)
		return err
	}
	dlog.Debugf(ctx, "hooks: %s finished successfully", script)
	return nil
}
