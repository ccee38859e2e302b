package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"vbs2exe-tools/go/pkg/builder"
	"vbs2exe-tools/go/pkg/bundle"
	"vbs2exe-tools/go/pkg/config"
	"vbs2exe-tools/go/pkg/embedder"
	"vbs2exe-tools/go/pkg/logbowl"
	"vbs2exe-tools/go/pkg/pipeline"
)

// Exit codes.
const (
	ExitSuccess       = 0
	ExitBuildFailure  = 1
	ExitInvalidInput  = 2
	ExitConfigError   = 3
	ExitInternalError = 4
)

// configError marks failures to resolve configuration.
type configError struct{ err error }

func (e *configError) Error() string { return "configuration: " + e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// usageError marks bad command-line usage.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// exactArgs is cobra.ExactArgs reporting a usageError.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

// app carries what every command needs once PersistentPreRunE has run.
type app struct {
	log    logbowl.Logger
	cfg    config.Config
	stdout io.Writer
	stderr io.Writer

	configPath  string
	compiler    string
	guiFlag     string
	extraFlags  []string
	extraEnv    []string
	timeout     time.Duration
	interpreter string
}

// NewRootCmd builds the full command tree writing to stdout and stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, log: logbowl.Null()}

	rootCmd := &cobra.Command{
		Use:           "vbs2exe",
		Short:         "Wraps a script into a standalone Windows launcher executable.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.log = logbowl.CreateWithOutput("vbs2exe", a.stderr)
			return a.loadConfig(cmd)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err}
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Path to a TOML config file (default $"+config.ConfigFileEnvVar+").")
	pf.StringVar(&a.compiler, "compiler", "", "Compiler executable (default \""+builder.DefaultCompiler+"\").")
	pf.StringVar(&a.guiFlag, "gui-flag", "", "Flag requesting a windowless binary (default \""+builder.DefaultGUIFlag+"\").")
	pf.StringArrayVar(&a.extraFlags, "cflag", nil, "Extra compiler flag, repeatable.")
	pf.StringArrayVar(&a.extraEnv, "env", nil, "Extra NAME=VALUE for the compiler's environment, repeatable.")
	pf.DurationVar(&a.timeout, "timeout", 0, "Stop the compiler after this long (0 waits forever).")
	pf.StringVar(&a.interpreter, "interpreter", "", "Interpreter the launcher runs (default \""+embedder.DefaultInterpreter+"\").")

	rootCmd.AddCommand(
		newBuildCmd(a),
		newEmbedCmd(a),
		newCompileCmd(a),
		newBatchCmd(a),
		newExtractCmd(a),
		newBundleCmd(a),
		newUnbundleCmd(a),
		newInspectCmd(a),
		newKeygenCmd(a),
		newVersionCmd(a),
	)
	return rootCmd
}

// loadConfig resolves file and environment settings, then applies the
// flags the user actually set.
func (a *app) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		a.log.Error("config", "load", "error", "Failed to load configuration", "error", err)
		return &configError{err}
	}
	flags := cmd.Flags()
	if flags.Changed("compiler") {
		cfg.Compiler = a.compiler
	}
	if flags.Changed("gui-flag") {
		cfg.GUIFlag = a.guiFlag
	}
	if flags.Changed("cflag") {
		cfg.ExtraFlags = a.extraFlags
	}
	if flags.Changed("env") {
		cfg.Env = a.extraEnv
	}
	if flags.Changed("timeout") {
		cfg.Timeout = a.timeout
	}
	if flags.Changed("interpreter") {
		cfg.Interpreter = a.interpreter
	}
	if err := cfg.Validate(); err != nil {
		return &configError{err}
	}
	a.cfg = cfg
	a.log.Debug("config", "load", "success", "Configuration resolved", "compiler", cfg.Compiler, "timeout", cfg.Timeout)
	return nil
}

func (a *app) newEmbedder() *embedder.Embedder {
	return embedder.New(a.log, a.cfg.EmbedderOptions())
}

func (a *app) newBuilder() *builder.Builder {
	opts := a.cfg.BuilderOptions()
	opts.Stream = a.stderr
	return builder.New(a.log, opts)
}

func (a *app) newPipeline() *pipeline.Pipeline {
	return pipeline.New(a.log, a.newEmbedder(), a.newBuilder(),
		pipeline.WithOutputExt(a.cfg.OutputExt),
		pipeline.WithProgress(func(pct int) {
			a.log.Debug("pipeline", "build", "progress", "Progress", "percent", pct)
		}))
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	var (
		inErr    *pipeline.InputError
		tcErr    *pipeline.ToolchainError
		cfgErr   *configError
		usageErr *usageError
		batchErr *batchError
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &inErr), errors.As(err, &usageErr), isBundleIntegrity(err):
		return ExitInvalidInput
	case errors.As(err, &tcErr), errors.As(err, &batchErr):
		return ExitBuildFailure
	case errors.As(err, &cfgErr):
		return ExitConfigError
	default:
		return ExitInternalError
	}
}

// isBundleIntegrity reports whether err means a bundle was damaged or forged.
func isBundleIntegrity(err error) bool {
	for _, target := range []error{
		bundle.ErrChecksumMismatch, bundle.ErrPathTraversal, bundle.ErrNoManifest,
		bundle.ErrUnsigned, bundle.ErrInvalidSignature, bundle.ErrUnlistedEntry,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Run executes the command line args and returns the exit status.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return ExitCode(err)
}

// Execute runs the CLI against the process arguments and exits.
func Execute() {
	os.Exit(Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
