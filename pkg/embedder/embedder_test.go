package embedder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vbs2exe-tools/go/pkg/logbowl"
)

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestRenderGolden(t *testing.T) {
	got, err := Render(TemplateData{
		ScriptPath:   "scripts/hello.vbs",
		Script:       "MsgBox \"hi\"\r\nWScript.Quit 0\r\n",
		Interpreter:  DefaultInterpreter,
		TempFileName: DefaultTempFileName,
	})
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "wrapper_hello", got)
}

func TestRenderDefaultsInterpreter(t *testing.T) {
	got, err := Render(TemplateData{Script: "x", TempFileName: "a.vbs"})
	require.NoError(t, err)
	assert.Contains(t, string(got), `ShellExecuteA(NULL, "open", "wscript.exe", args.c_str(), NULL, SW_HIDE);`)
}

func TestRenderHeaderStaysOnOneLine(t *testing.T) {
	got, err := Render(TemplateData{ScriptPath: "dir/evil\nname.vbs", Script: "x"})
	require.NoError(t, err)
	firstLine := strings.SplitN(string(got), "\n", 2)[0]
	assert.Equal(t, "// Code generated by vbs2exe from evil name.vbs. DO NOT EDIT.", firstLine)
}

func TestEmbedHappyPath(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "hello.vbs", `MsgBox "hi"`)

	e := New(logbowl.Null(), Options{})
	out, err := e.Embed(script)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultWrapperFileName), out)

	src, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(src), `MsgBox \"hi\"`)

	recovered, err := ExtractScript(src)
	require.NoError(t, err)
	assert.Equal(t, `MsgBox "hi"`, string(recovered))
}

func TestEmbedIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "a.vbs", "WScript.Echo \"x\"\r\n")
	e := New(logbowl.Null(), Options{})

	out1, err := e.Embed(script)
	require.NoError(t, err)
	first, err := os.ReadFile(out1)
	require.NoError(t, err)

	out2, err := e.Embed(script)
	require.NoError(t, err)
	second, err := os.ReadFile(out2)
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
	assert.Equal(t, first, second)
}

func TestEmbedPathIgnoresContent(t *testing.T) {
	dir := t.TempDir()
	e := New(logbowl.Null(), Options{})
	var paths []string
	for i, content := range []string{"", "one", strings.Repeat("long line\n", 500)} {
		script := writeScript(t, dir, "s"+string(rune('0'+i))+".vbs", content)
		out, err := e.Embed(script)
		require.NoError(t, err)
		paths = append(paths, out)
	}
	assert.Equal(t, paths[0], paths[1])
	assert.Equal(t, paths[1], paths[2])
	assert.Equal(t, e.SourcePath(filepath.Join(dir, "anything.vbs")), paths[0])
}

func TestEmbedOverwritesExistingWrapper(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultWrapperFileName), []byte("stale"), 0644))
	script := writeScript(t, dir, "a.vbs", "fresh")

	out, err := New(logbowl.Null(), Options{}).Embed(script)
	require.NoError(t, err)
	src, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(src), "stale")
	assert.Contains(t, string(src), `"fresh"`)
}

func TestEmbedCustomOptions(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "a.js", "WScript.Echo('x');")
	e := New(logbowl.Null(), Options{WrapperFileName: "launcher.cpp", Interpreter: "cscript.exe", TempFileName: "run.js"})

	out, err := e.Embed(script)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "launcher.cpp"), out)
	src, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(src), `"cscript.exe"`)
	assert.Contains(t, string(src), `+ "run.js";`)
}

func TestEmbedErrors(t *testing.T) {
	dir := t.TempDir()
	e := New(logbowl.Null(), Options{})

	_, err := e.Embed(filepath.Join(dir, "missing.vbs"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := writeScript(t, dir, "bad.vbs", "\xff\xfe")
	_, err = e.Embed(bad)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
	assert.NoFileExists(t, e.SourcePath(bad))

	unwritable := New(logbowl.Null(), Options{WrapperFileName: filepath.Join("no-such-dir", "w.cpp")})
	ok := writeScript(t, dir, "ok.vbs", "x")
	_, err = unwritable.Embed(ok)
	assert.Error(t, err)
}

func TestEmbedRoundTripThroughSource(t *testing.T) {
	dir := t.TempDir()
	e := New(logbowl.Null(), Options{})
	for _, text := range []string{"", "a\\b\"c", "line1\nline2\r\nline3", "tab\there ??= \x01\x7f"} {
		script := writeScript(t, dir, "rt.vbs", text)
		out, err := e.Embed(script)
		require.NoError(t, err)
		src, err := os.ReadFile(out)
		require.NoError(t, err)
		got, err := ExtractScript(src)
		require.NoError(t, err)
		assert.Equal(t, text, string(got))
	}
}

func TestCommentSafe(t *testing.T) {
	assert.Equal(t, "a/b c d", commentSafe("a\\b\tc\rd"))
}
