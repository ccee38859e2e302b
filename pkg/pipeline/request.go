package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Request is one conversion job. It is a value: the pipeline never changes
// it, and everything Run needs is in it.
type Request struct {
	ScriptPath   string
	OutputName   string
	OutputFolder string
}

// NewRequest trims the output name and cleans both paths.
func NewRequest(scriptPath, outputName, outputFolder string) Request {
	r := Request{OutputName: strings.TrimSpace(outputName)}
	if scriptPath != "" {
		r.ScriptPath = filepath.Clean(scriptPath)
	}
	if outputFolder != "" {
		r.OutputFolder = filepath.Clean(outputFolder)
	}
	return r
}

// InputError reports a request the pipeline refuses to start on.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate checks the request against the filesystem. The returned error, if
// any, is an *InputError.
func (r Request) Validate() error {
	if r.ScriptPath == "" {
		return &InputError{Field: "script", Message: "no script selected"}
	}
	info, err := os.Stat(r.ScriptPath)
	switch {
	case err != nil:
		return &InputError{Field: "script", Message: fmt.Sprintf("%s is not readable: %v", r.ScriptPath, err)}
	case info.IsDir():
		return &InputError{Field: "script", Message: fmt.Sprintf("%s is a directory", r.ScriptPath)}
	}

	name := strings.TrimSpace(r.OutputName)
	switch {
	case name == "":
		return &InputError{Field: "output name", Message: "enter a name for the output executable"}
	case strings.ContainsAny(name, `/\`) || name == "." || name == "..":
		return &InputError{Field: "output name", Message: fmt.Sprintf("%q must be a plain file name", name)}
	}

	if r.OutputFolder == "" {
		return &InputError{Field: "output folder", Message: "no output folder selected"}
	}
	info, err = os.Stat(r.OutputFolder)
	switch {
	case err != nil:
		return &InputError{Field: "output folder", Message: fmt.Sprintf("%s does not exist", r.OutputFolder)}
	case !info.IsDir():
		return &InputError{Field: "output folder", Message: fmt.Sprintf("%s is not a directory", r.OutputFolder)}
	}
	return nil
}

// OutputPath is where the executable for r is written. ext is appended
// unless the name already ends with it (case-insensitively).
func (r Request) OutputPath(ext string) string {
	name := strings.TrimSpace(r.OutputName)
	if ext != "" && !strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
		name += ext
	}
	return filepath.Join(r.OutputFolder, name)
}
