// Package pipeline joins the embedder and the builder behind a single
// request/response call.
package pipeline

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"vbs2exe-tools/go/pkg/builder"
	"vbs2exe-tools/go/pkg/logbowl"
)

// Progress milestones reported through ProgressFunc.
const (
	ProgressValidated = 10
	ProgressGenerated = 40
	ProgressDone      = 100
	ProgressFailed    = 0
)

// ProgressFunc receives a completion percentage.
type ProgressFunc func(percent int)

// Embedder writes the wrapper source for a script and returns its path.
type Embedder interface {
	Embed(scriptPath string) (string, error)
}

// Builder compiles a wrapper source into an executable.
type Builder interface {
	Build(ctx context.Context, sourcePath, outputPath string) builder.Result
}

// Response is the outcome of Run.
type Response struct {
	Success    bool
	OutputPath string
	SourcePath string
	ExitCode   int
	// Diagnostics is the compiler output, if any.
	Diagnostics string
	launchErr   error
	timedOut    bool
}

// ToolchainError describes a build the compiler did not complete.
type ToolchainError struct {
	ExitCode    int
	Diagnostics string
	LaunchErr   error
	TimedOut    bool
}

func (e *ToolchainError) Error() string {
	switch {
	case e.LaunchErr != nil:
		return fmt.Sprintf("compiler could not be launched: %v", e.LaunchErr)
	case e.TimedOut:
		return "compiler run was stopped before it finished"
	default:
		return fmt.Sprintf("compiler failed with exit status %d", e.ExitCode)
	}
}

func (e *ToolchainError) Unwrap() error { return e.LaunchErr }

// Err is nil on success and a *ToolchainError otherwise.
func (r Response) Err() error {
	if r.Success {
		return nil
	}
	return &ToolchainError{ExitCode: r.ExitCode, Diagnostics: r.Diagnostics, LaunchErr: r.launchErr, TimedOut: r.timedOut}
}

// Pipeline runs embed-then-build for one request at a time. It holds no
// state between calls but is not safe for concurrent use on requests that
// share a script directory or output path.
type Pipeline struct {
	embedder  Embedder
	builder   Builder
	outputExt string
	log       logbowl.Logger
	progress  ProgressFunc
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithOutputExt sets the extension appended to output names.
func WithOutputExt(ext string) Option {
	return func(p *Pipeline) { p.outputExt = ext }
}

// New returns a Pipeline. Output names get ".exe" unless WithOutputExt says
// otherwise.
func New(log logbowl.Logger, e Embedder, b Builder, opts ...Option) *Pipeline {
	p := &Pipeline{embedder: e, builder: b, outputExt: ".exe", log: log}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pipeline) report(percent int) {
	if p.progress != nil {
		p.progress(percent)
	}
}

// Run validates req, embeds the script and builds it. Invalid input returns
// an *InputError. A failed compile is a Response with Success false, not an
// error. Any other error is an I/O fault from the embed step.
func (p *Pipeline) Run(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		p.log.Warn("pipeline", "validate", "invalid", "Request rejected", "error", err)
		return Response{}, err
	}
	p.report(ProgressValidated)

	outputPath := req.OutputPath(p.outputExt)
	p.log.Info("pipeline", "start", "progress", "Converting script", "script", req.ScriptPath, "output", outputPath)

	sourcePath, err := p.embedder.Embed(req.ScriptPath)
	if err != nil {
		p.report(ProgressFailed)
		return Response{OutputPath: outputPath}, errors.Wrap(err, "generating wrapper source")
	}
	p.report(ProgressGenerated)

	res := p.builder.Build(ctx, sourcePath, outputPath)
	resp := Response{
		Success:     res.Success,
		OutputPath:  outputPath,
		SourcePath:  sourcePath,
		ExitCode:    res.ExitCode,
		Diagnostics: string(res.Output),
		launchErr:   res.LaunchErr,
		timedOut:    res.TimedOut,
	}
	if !resp.Success {
		p.report(ProgressFailed)
		p.log.Error("pipeline", "finish", "failure", "Failed to compile the generated wrapper source", "source", sourcePath, "command", res.Args, "elapsed", res.Duration, "error", resp.Err())
		return resp, nil
	}
	p.report(ProgressDone)
	p.log.Info("pipeline", "finish", "success", "Executable created", "path", outputPath, "elapsed", res.Duration)
	return resp, nil
}
