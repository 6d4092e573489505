package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

type shellExecParams struct {
	Command string `json:"command" jsonschema:"required,description=Shell command line to run."`
	Cwd     string `json:"cwd" jsonschema:"description=Working directory relative to the workspace root. Empty means the root."`
	Timeout int    `json:"timeout" jsonschema:"description=Wall-clock timeout in seconds. 0 uses the default of 30."`
}

const defaultShellTimeout = 30 * time.Second

func shellExecTool() *Tool {
	return &Tool{
		Name:                 "shell_exec",
		Description:          "Run a command in a subshell under the workspace and capture its stdout, stderr, and exit code. Killed if it exceeds the timeout.",
		RequiresConfirmation: true,
		Params:               &shellExecParams{},
		Preview: func(ctx context.Context, env *Env, args map[string]any) string {
			p, err := decode[shellExecParams](args)
			if err != nil {
				return "shell_exec"
			}
			return fmt.Sprintf("shell_exec: %s", p.Command)
		},
		Run: func(ctx context.Context, env *Env, args map[string]any) (map[string]any, error) {
			p, err := decode[shellExecParams](args)
			if err != nil {
				return nil, err
			}
			if p.Command == "" {
				return nil, fmt.Errorf("command is required")
			}

			cwd := env.WorkDir
			if p.Cwd != "" {
				abs, err := env.Sandbox.Validate(p.Cwd)
				if err != nil {
					return nil, err
				}
				cwd = abs
			}

			timeout := defaultShellTimeout
			if p.Timeout > 0 {
				timeout = time.Duration(p.Timeout) * time.Second
			}

			runCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(runCtx, "sh", "-c", p.Command)
			cmd.Dir = cwd

			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			runErr := cmd.Run()

			exitCode := 0
			timedOut := runCtx.Err() == context.DeadlineExceeded
			if runErr != nil {
				if exitErr, ok := runErr.(*exec.ExitError); ok {
					exitCode = exitErr.ExitCode()
				} else if !timedOut {
					return nil, fmt.Errorf("run command: %w", runErr)
				}
			}

			return map[string]any{
				"stdout":   stdout.String(),
				"stderr":   stderr.String(),
				"exitCode": exitCode,
				"timedOut": timedOut,
			}, nil
		},
	}
}
