package embedder

import (
	"bytes"
	"embed"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"
)

const wrapperTemplate = "templates/wrapper.cpp.tmpl"

//go:embed templates/*.tmpl
var tplFS embed.FS

var (
	tplOnce   sync.Once
	tplParsed *template.Template
	tplErr    error
)

// TemplateData is everything the wrapper template consumes.
type TemplateData struct {
	// ScriptPath is shown in the generated header comment only.
	ScriptPath string
	// Script is the raw script text to embed.
	Script string
	// Interpreter is launched against the reconstructed script.
	Interpreter string
	// TempFileName is the file name written inside the temp directory.
	TempFileName string
}

type renderData struct {
	ScriptPath   string
	Literal      string
	Interpreter  string
	TempFileName string
}

func funcMap() template.FuncMap {
	fm := sprig.TxtFuncMap()
	fm["cstring"] = func(s string) string { return `"` + EscapeLiteral(s) + `"` }
	return fm
}

func loadTemplate() (*template.Template, error) {
	tplOnce.Do(func() {
		tplParsed, tplErr = template.New(filepath.Base(wrapperTemplate)).
			Funcs(funcMap()).
			Option("missingkey=error").
			ParseFS(tplFS, wrapperTemplate)
		if tplErr != nil {
			tplErr = errors.Wrapf(tplErr, "parsing template %q", wrapperTemplate)
		}
	})
	return tplParsed, tplErr
}

// Render produces the wrapper source for data. It performs no I/O and is
// deterministic: equal inputs give byte-identical output.
func Render(data TemplateData) ([]byte, error) {
	t, err := loadTemplate()
	if err != nil {
		return nil, err
	}
	rd := renderData{
		ScriptPath:   commentSafe(filepath.ToSlash(data.ScriptPath)),
		Literal:      strings.Join(LiteralPieces(data.Script), "\n"),
		Interpreter:  data.Interpreter,
		TempFileName: data.TempFileName,
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, rd); err != nil {
		return nil, errors.Wrapf(err, "executing template %q", t.Name())
	}
	return buf.Bytes(), nil
}

// commentSafe keeps a value on one line of a // comment. A trailing
// backslash would splice the next source line into the comment.
func commentSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r < 0x20 || r == 0x7f:
			return ' '
		case r == '\\':
			return '/'
		}
		return r
	}, s)
}
