// Package builder runs the external compiler over a generated wrapper source.
//
// A compiler that runs and exits non-zero is a failed build, not an error:
// Build reports it through Result.Success. Only a compiler that cannot be
// started at all sets Result.LaunchErr.
package builder

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/pkg/errors"

	"vbs2exe-tools/go/pkg/logbowl"
)

// Defaults for Options.
const (
	DefaultCompiler = "g++"
	DefaultGUIFlag  = "-mwindows"
)

// ErrTimeout marks a compiler run that was stopped by Options.Timeout or a
// cancelled context.
var ErrTimeout = errors.New("compiler run did not finish in time")

// Options configures the compiler invocation.
type Options struct {
	// Compiler is an executable name looked up on PATH, or a path.
	Compiler string
	// GUIFlag asks for a windowless binary. An empty value uses DefaultGUIFlag.
	GUIFlag string
	// ExtraFlags are appended after GUIFlag.
	ExtraFlags []string
	// Timeout bounds the compiler run. Zero waits for as long as it takes.
	Timeout time.Duration
	// ExtraEnv is appended to the inherited environment.
	ExtraEnv []string
	// Stream, when set, also receives the compiler's output as it is produced.
	Stream io.Writer
}

func (o Options) withDefaults() Options {
	if o.Compiler == "" {
		o.Compiler = DefaultCompiler
	}
	if o.GUIFlag == "" {
		o.GUIFlag = DefaultGUIFlag
	}
	return o
}

// Result describes one compiler run.
type Result struct {
	Success bool
	// ExitCode is the compiler's exit status, or -1 when it never ran to
	// completion.
	ExitCode int
	// Output is the compiler's combined stdout and stderr.
	Output []byte
	// LaunchErr is set when the compiler could not be found or started.
	LaunchErr error
	// TimedOut is set when the run was cut short by a deadline or cancellation.
	TimedOut bool
	Args     []string
	Duration time.Duration
}

// Err returns nil for a successful run and a descriptive error otherwise.
func (r Result) Err() error {
	switch {
	case r.Success:
		return nil
	case r.LaunchErr != nil:
		return errors.Wrap(r.LaunchErr, "launching compiler")
	case r.TimedOut:
		return ErrTimeout
	default:
		return errors.Errorf("compiler exited with status %d", r.ExitCode)
	}
}

// Builder invokes the compiler.
type Builder struct {
	opts Options
	log  logbowl.Logger
}

// New returns a Builder using opts.
func New(log logbowl.Logger, opts Options) *Builder {
	return &Builder{opts: opts.withDefaults(), log: log}
}

// Command returns the argv that Build runs for sourcePath and outputPath:
// compiler, source, -o output, GUI flag, then any extra flags.
func Command(opts Options, sourcePath, outputPath string) []string {
	opts = opts.withDefaults()
	args := []string{opts.Compiler, sourcePath, "-o", outputPath, opts.GUIFlag}
	return append(args, opts.ExtraFlags...)
}

// Command is the package-level Command with b's options.
func (b *Builder) Command(sourcePath, outputPath string) []string {
	return Command(b.opts, sourcePath, outputPath)
}

// Build runs the compiler synchronously and maps its exit status. It blocks
// until the compiler exits, the configured timeout elapses, or ctx is done.
func (b *Builder) Build(ctx context.Context, sourcePath, outputPath string) Result {
	argv := b.Command(sourcePath, outputPath)
	res := Result{ExitCode: -1, Args: argv}

	compilerPath, err := exec.LookPath(argv[0])
	if err != nil {
		b.log.Error("toolchain", "init", "notfound", "Compiler executable not found", "compiler", argv[0], "error", err)
		res.LaunchErr = err
		return res
	}

	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	var output bytes.Buffer
	var sink io.Writer = &output
	if b.opts.Stream != nil {
		sink = io.MultiWriter(&output, b.opts.Stream)
	}

	cmd := exec.CommandContext(ctx, compilerPath, argv[1:]...)
	cmd.Stdout = sink
	cmd.Stderr = sink
	cmd.Env = append(os.Environ(), b.opts.ExtraEnv...)
	// Children of the compiler may keep the output pipe open after it is killed.
	cmd.WaitDelay = 2 * time.Second

	b.log.Info("builder", "execute", "progress", "Invoking compiler", "compiler", compilerPath, "source", sourcePath, "output", outputPath)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		b.log.Error("toolchain", "start", "error", "Compiler could not be started", "compiler", compilerPath, "error", err)
		res.LaunchErr = err
		return res
	}
	err = cmd.Wait()
	res.Duration = time.Since(start)
	res.Output = output.Bytes()

	if err != nil {
		if stoppedByContext(ctx, err) {
			res.TimedOut = true
			b.log.Error("builder", "execute", "timeout", "Compiler run was stopped", "reason", ctx.Err(), "elapsed", res.Duration)
			return res
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			res.LaunchErr = err
			b.log.Error("toolchain", "execute", "error", "Compiler did not run to completion", "error", err)
			return res
		}
		res.ExitCode = exitErr.ExitCode()
		b.log.Error("builder", "build", "failure", "Compiler reported failure", "exitCode", res.ExitCode, "elapsed", res.Duration)
		return res
	}

	res.ExitCode = 0
	res.Success = true
	b.log.Info("builder", "build", "success", "Compiler finished", "output", outputPath, "elapsed", res.Duration)
	return res
}

// stoppedByContext reports whether err, as returned by Wait, means ctx cut
// the run short. A compiler that exited on its own keeps its status even if
// the deadline passed meanwhile; only a signal death counts.
func stoppedByContext(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return true
	}
	return exitErr.ProcessState != nil && exitErr.ExitCode() == -1
}
