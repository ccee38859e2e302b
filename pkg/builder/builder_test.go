package builder

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vbs2exe-tools/go/pkg/logbowl"
)

// writeStub creates an executable shell script that stands in for the
// compiler. It records its arguments to args.txt next to itself.
func writeStub(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub compilers are shell scripts")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "stub-cc")
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > \"" + filepath.Join(dir, "args.txt") + "\"\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestCommandShape(t *testing.T) {
	assert.Equal(t,
		[]string{"g++", "w.cpp", "-o", "out.exe", "-mwindows"},
		Command(Options{}, "w.cpp", "out.exe"))
	assert.Equal(t,
		[]string{"x86_64-w64-mingw32-g++", "w.cpp", "-o", "out.exe", "-mwindows", "-static", "-Os"},
		Command(Options{Compiler: "x86_64-w64-mingw32-g++", ExtraFlags: []string{"-static", "-Os"}}, "w.cpp", "out.exe"))
}

func TestBuildSuccessOnZeroExit(t *testing.T) {
	stub := writeStub(t, "echo compiled; exit 0")
	b := New(logbowl.Null(), Options{Compiler: stub})

	res := b.Build(context.Background(), "/src/w.cpp", "/out/app.exe")
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.ExitCode)
	assert.NoError(t, res.LaunchErr)
	assert.NoError(t, res.Err())
	assert.Contains(t, string(res.Output), "compiled")

	args, err := os.ReadFile(filepath.Join(filepath.Dir(stub), "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "/src/w.cpp\n-o\n/out/app.exe\n-mwindows\n", string(args))
}

func TestBuildFailureOnNonZeroExit(t *testing.T) {
	for _, code := range []string{"1", "2", "255"} {
		t.Run("exit "+code, func(t *testing.T) {
			stub := writeStub(t, "echo 'w.cpp:1: error: boom' >&2; exit "+code)
			res := New(logbowl.Null(), Options{Compiler: stub}).Build(context.Background(), "w.cpp", "app.exe")

			assert.False(t, res.Success)
			assert.NoError(t, res.LaunchErr)
			assert.False(t, res.TimedOut)
			assert.Equal(t, code, strconv.Itoa(res.ExitCode))
			assert.ErrorContains(t, res.Err(), "exited with status "+code)
			assert.Contains(t, string(res.Output), "error: boom")
		})
	}
}

func TestBuildUnlaunchableCompiler(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "definitely-not-a-compiler")
	res := New(logbowl.Null(), Options{Compiler: missing}).Build(context.Background(), "w.cpp", "app.exe")

	assert.False(t, res.Success)
	assert.Error(t, res.LaunchErr)
	assert.Equal(t, -1, res.ExitCode)
	assert.ErrorContains(t, res.Err(), "launching compiler")
}

func TestBuildTimeoutStopsCompiler(t *testing.T) {
	stub := writeStub(t, "exec sleep 30")
	b := New(logbowl.Null(), Options{Compiler: stub, Timeout: 200 * time.Millisecond})

	start := time.Now()
	res := b.Build(context.Background(), "w.cpp", "app.exe")
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.False(t, res.Success)
	assert.True(t, res.TimedOut)
	assert.ErrorIs(t, res.Err(), ErrTimeout)
}

func TestStoppedByContextKeepsRealExitStatus(t *testing.T) {
	exitErr := func(ctx context.Context, script string) error {
		t.Helper()
		err := exec.CommandContext(ctx, writeStub(t, script)).Run()
		var ee *exec.ExitError
		require.ErrorAs(t, err, &ee)
		return err
	}
	expired, cancel := context.WithCancel(context.Background())
	cancel()

	// Exited with its own status, deadline passed afterwards.
	exited := exitErr(context.Background(), "exit 3")
	assert.False(t, stoppedByContext(expired, exited))
	assert.False(t, stoppedByContext(context.Background(), exited))

	// Killed by the context.
	ctx, stop := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer stop()
	killedErr := exitErr(ctx, "exec sleep 30")
	assert.True(t, stoppedByContext(ctx, killedErr))

	assert.True(t, stoppedByContext(expired, exec.ErrWaitDelay))
	assert.False(t, stoppedByContext(context.Background(), exec.ErrWaitDelay))
}

func TestBuildHonoursCancelledContext(t *testing.T) {
	stub := writeStub(t, "exec sleep 30")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(logbowl.Null(), Options{Compiler: stub}).Build(ctx, "w.cpp", "app.exe")
	assert.False(t, res.Success)
	assert.True(t, res.TimedOut || res.LaunchErr != nil)
}

func TestBuildStreamsAndPassesEnv(t *testing.T) {
	stub := writeStub(t, `echo "flavour=$VBS2EXE_TEST_FLAVOUR"`)
	var stream bytes.Buffer
	b := New(logbowl.Null(), Options{Compiler: stub, Stream: &stream, ExtraEnv: []string{"VBS2EXE_TEST_FLAVOUR=mint"}})

	res := b.Build(context.Background(), "w.cpp", "app.exe")
	require.True(t, res.Success)
	assert.Equal(t, "flavour=mint\n", stream.String())
	assert.Equal(t, stream.Bytes(), res.Output)
}
