// Package embedder turns a script file into a C++ wrapper source that, once
// compiled and run, writes the script back out to the temp directory and
// hands it to the script interpreter.
//
// The script travels as one C++ string literal. EscapeLiteral and
// DecodeLiteral are exact inverses for any byte string, which is what makes
// the generated program reproduce the script byte for byte.
package embedder

import (
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/pkg/errors"

	"vbs2exe-tools/go/pkg/logbowl"
)

// Defaults for Options.
const (
	DefaultWrapperFileName = "vbs_embedded_wrapper.cpp"
	DefaultInterpreter     = "wscript.exe"
	DefaultTempFileName    = "embedded_script.vbs"
)

// ErrInvalidEncoding is returned when a script is not valid UTF-8 text.
var ErrInvalidEncoding = errors.New("script is not valid UTF-8")

// Options controls the generated wrapper. Zero fields take the defaults.
type Options struct {
	WrapperFileName string
	Interpreter     string
	TempFileName    string
}

func (o Options) withDefaults() Options {
	if o.WrapperFileName == "" {
		o.WrapperFileName = DefaultWrapperFileName
	}
	if o.Interpreter == "" {
		o.Interpreter = DefaultInterpreter
	}
	if o.TempFileName == "" {
		o.TempFileName = DefaultTempFileName
	}
	return o
}

// Embedder writes wrapper sources next to the scripts they embed.
type Embedder struct {
	opts Options
	log  logbowl.Logger
}

// New returns an Embedder using opts.
func New(log logbowl.Logger, opts Options) *Embedder {
	return &Embedder{opts: opts.withDefaults(), log: log}
}

// SourcePath is where Embed writes the wrapper for scriptPath. It depends
// only on the script's directory.
func (e *Embedder) SourcePath(scriptPath string) string {
	return filepath.Join(filepath.Dir(scriptPath), e.opts.WrapperFileName)
}

// Generate reads scriptPath and returns the wrapper source without writing
// it anywhere.
func (e *Embedder) Generate(scriptPath string) ([]byte, error) {
	content, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading script %s", scriptPath)
	}
	if !utf8.Valid(content) {
		return nil, errors.Wrapf(ErrInvalidEncoding, "reading script %s", scriptPath)
	}
	e.log.Debug("embed", "read", "success", "Script loaded", "path", scriptPath, "bytes", len(content))

	src, err := Render(TemplateData{
		ScriptPath:   scriptPath,
		Script:       string(content),
		Interpreter:  e.opts.Interpreter,
		TempFileName: e.opts.TempFileName,
	})
	if err != nil {
		e.log.Error("template", "render", "error", "Failed to render wrapper template", "error", err)
		return nil, err
	}
	return src, nil
}

// Embed generates the wrapper for scriptPath and writes it to
// SourcePath(scriptPath), replacing any existing file. It returns the path
// written.
func (e *Embedder) Embed(scriptPath string) (string, error) {
	src, err := e.Generate(scriptPath)
	if err != nil {
		return "", err
	}
	outPath := e.SourcePath(scriptPath)
	if err := os.WriteFile(outPath, src, 0644); err != nil {
		e.log.Error("embed", "write", "error", "Failed to write wrapper source", "path", outPath, "error", err)
		return "", errors.Wrapf(err, "writing wrapper source %s", outPath)
	}
	e.log.Info("embed", "write", "success", "Wrapper source generated", "path", outPath, "bytes", len(src))
	return outPath, nil
}
