// Package cmd wires the CLI frontend: flag parsing, configuration and
// logger bootstrap, backend/registry/gate/store/guidelines construction, and
// the interactive REPL. This chrome exists only to drive the core
// subsystems; none of them depend back on it.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentichat/agentichat-go/agent"
	"github.com/agentichat/agentichat-go/config"
	"github.com/agentichat/agentichat-go/confirm"
	"github.com/agentichat/agentichat-go/guidelines"
	"github.com/agentichat/agentichat-go/llm"
	"github.com/agentichat/agentichat-go/obslog"
	"github.com/agentichat/agentichat-go/store"
	"github.com/agentichat/agentichat-go/tools"
	"github.com/agentichat/agentichat-go/ui"
)

// Version is the build version, overridable at link time with
// -ldflags "-X github.com/agentichat/agentichat-go/cmd.Version=...".
var Version = "dev"

var (
	flagModel    string
	flagBackend  string
	flagConfig   string
	flagNoResume bool
)

// Execute builds and runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "agentichat",
		Short:         "Converse with an LLM that can read, write, and run code in this workspace",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, args []string) error {
			return runREPL(c.Context())
		},
	}
	root.Flags().StringVar(&flagModel, "model", "", "Override the default backend's model name")
	root.Flags().StringVar(&flagBackend, "backend", "", "Name of the backend to use (overrides default_backend)")
	root.Flags().StringVar(&flagConfig, "config", "", "Explicit path to a config.yaml (bypasses workspace/home discovery)")
	root.Flags().BoolVar(&flagNoResume, "no-resume", false, "Don't offer to reload the last session's conversation.json on startup")
	return root
}

// session bundles every long-lived collaborator the REPL drives a turn
// through, built once at startup.
type session struct {
	cfg        *config.Config
	backendCfg config.BackendConfig
	backendKey string

	logger *obslog.Logger
	term   *ui.Terminal
	gate   *confirm.Gate
	store  *store.Store
	ag     *agent.Agent

	workDir string
	dataDir string
}

func runREPL(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess, err := bootstrap(ctx)
	if err != nil {
		return err
	}

	sess.term.PrintBanner(sess.backendKey, sess.ag.Backend.Model(), sess.workDir, Version)

	if err := offerGuidelinesConfirm(ctx, sess); err != nil {
		sess.term.PrintWarning(fmt.Sprintf("guidelines: %s", err))
	}

	if !flagNoResume {
		maybeOfferResumeFile(sess)
	}

	reader := sess.term
	for {
		input, err := reader.ReadLine(reader.Prompt())
		if err != nil {
			fmt.Println()
			break
		}
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") || input == "exit" || input == "quit" {
			done, err := dispatchCommand(ctx, sess, input)
			if err != nil {
				sess.term.PrintError(err)
			}
			if done {
				break
			}
			continue
		}

		if err := runTurn(ctx, sess, input); err != nil {
			if ctx.Err() != nil {
				fmt.Println("\nInterrupted.")
				break
			}
			sess.term.PrintError(err)
		}
	}

	if err := sess.ag.SaveResumeFile(sess.dataDir); err != nil {
		sess.logger.With("cmd").Warn().Err(err).Msg("save resume file")
	}
	return nil
}

// bootstrap loads configuration, opens the logger and session store, builds
// the sandboxed tool registry, and constructs the Agent for the configured
// default (or flag-overridden) backend.
func bootstrap(ctx context.Context) (*session, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	dataDir := config.DataDir(workDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(dataDir, "agentichat.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger := obslog.New(logFile, cfg.LogLevel)

	backendKey := flagBackend
	if backendKey == "" {
		backendKey = cfg.DefaultBackend
	}
	backendCfg, ok := cfg.Backends[backendKey]
	if !ok {
		return nil, fmt.Errorf("backend %q is not configured (see backends in config.yaml)", backendKey)
	}
	if flagModel != "" {
		backendCfg.Model = flagModel
	}

	backend, err := buildBackend(backendCfg)
	if err != nil {
		return nil, fmt.Errorf("build backend %q: %w", backendKey, err)
	}
	applyLearnedConstraint(backend, backendCfg)

	env, err := tools.NewEnv(workDir, dataDir)
	if err != nil {
		return nil, fmt.Errorf("build tool environment: %w", err)
	}
	applySandboxConfig(env, cfg.Sandbox)
	registry := tools.NewRegistry(env)

	gate := confirm.NewGate()

	st, err := store.Open(ctx, filepath.Join(dataDir, "agentichat.db"))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	gp := guidelines.New(workDir, dataDir, logger)

	ag := agent.New(backend, backendKey, registry, gate, st, gp, workDir,
		cfg.MaxIterations, cfg.Compression, backendCfg.EffectiveContextWindow(), logger)

	if err := ag.StartSession(ctx, backendCfg.Model); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	return &session{
		cfg:        cfg,
		backendCfg: backendCfg,
		backendKey: backendKey,
		logger:     logger,
		term:       ui.NewTerminal(),
		gate:       gate,
		store:      st,
		ag:         ag,
		workDir:    workDir,
		dataDir:    dataDir,
	}, nil
}

// buildBackend constructs the concrete Backend for bc.Type.
func buildBackend(bc config.BackendConfig) (llm.Backend, error) {
	timeout := time.Duration(bc.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	switch bc.Type {
	case "local-runtime":
		return llm.NewLocalRuntimeAdapter(bc.URL, bc.Model, bc.MaxTokens, bc.Temperature, timeout), nil
	case "openai-compat", "":
		return llm.NewOpenAICompatAdapter(bc.URL, bc.APIKey, bc.Model, bc.MaxTokens, bc.Temperature, timeout), nil
	default:
		return nil, fmt.Errorf("unrecognized backend type %q (want openai-compat or local-runtime)", bc.Type)
	}
}

// applyLearnedConstraint applies both the config-declared and any
// previously-learned max_parallel_tools cap for this model.
func applyLearnedConstraint(backend llm.Backend, bc config.BackendConfig) {
	if bc.MaxParallelTools > 0 {
		backend.SetMaxParallelTools(bc.MaxParallelTools)
	}
	meta, err := config.LoadModelMetadata()
	if err != nil {
		return
	}
	if c, ok := meta.Models[bc.Model]; ok && c.MaxParallelTools > 0 {
		backend.SetMaxParallelTools(c.MaxParallelTools)
	}
}

// applySandboxConfig overrides the Env's default glob lists and size cap
// with anything set in config.yaml's sandbox section, reconciling the two
// independent compiled-in default lists (config's and sandbox's) exactly
// once, at startup.
func applySandboxConfig(env *tools.Env, sc config.SandboxConfig) {
	if sc.MaxFileSize > 0 {
		env.Sandbox.MaxFileSize = sc.MaxFileSize
	}
	if len(sc.BlockedPaths) > 0 {
		env.Sandbox.BlockedGlobs = sc.BlockedPaths
	}
	if len(sc.IgnoredPaths) > 0 {
		env.Sandbox.IgnoredGlobs = sc.IgnoredPaths
	}
}
