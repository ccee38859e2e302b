package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "vbs2exe.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigFileEnvVar, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "g++", cfg.Compiler)
	assert.Equal(t, "-mwindows", cfg.GUIFlag)
	assert.Equal(t, time.Duration(0), cfg.Timeout)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
compiler = "x86_64-w64-mingw32-g++"
extra_flags = ["-static", "-Os"]
timeout = "2m"
interpreter = "cscript.exe"
`)
	t.Setenv("VBS2EXE_INTERPRETER", "wscript.exe")
	t.Setenv("VBS2EXE_TIMEOUT", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "x86_64-w64-mingw32-g++", cfg.Compiler, "file overrides default")
	assert.Equal(t, []string{"-static", "-Os"}, cfg.ExtraFlags)
	assert.Equal(t, "wscript.exe", cfg.Interpreter, "environment overrides file")
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, "-mwindows", cfg.GUIFlag, "untouched keys keep defaults")
}

func TestLoadCompilerEnvironment(t *testing.T) {
	t.Setenv(ConfigFileEnvVar, "")
	path := writeConfig(t, `env = ["CPLUS_INCLUDE_PATH=/opt/mingw/include"]`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"CPLUS_INCLUDE_PATH=/opt/mingw/include"}, cfg.Env)

	t.Setenv("VBS2EXE_ENV", "LANG=C,TMP=/var/tmp")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"LANG=C", "TMP=/var/tmp"}, cfg.Env)
	assert.Equal(t, cfg.Env, cfg.BuilderOptions().ExtraEnv)
}

func TestLoadFileFromEnvironment(t *testing.T) {
	path := writeConfig(t, `output_ext = ".com"`)
	t.Setenv(ConfigFileEnvVar, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ".com", cfg.OutputExt)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "compiler = \"g++\"\ncompiller = \"typo\"\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown keys: compiller")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	t.Setenv(ConfigFileEnvVar, "")
	t.Setenv("VBS2EXE_TIMEOUT", "soon")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty compiler":        func(c *Config) { c.Compiler = " " },
		"negative timeout":      func(c *Config) { c.Timeout = -time.Second },
		"wrapper with dir":      func(c *Config) { c.WrapperFileName = "sub/w.cpp" },
		"empty temp file":       func(c *Config) { c.TempFileName = "" },
		"extension without dot": func(c *Config) { c.OutputExt = "exe" },
		"env without equals":    func(c *Config) { c.Env = []string{"PATH"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestValidateNamesTOMLKeys(t *testing.T) {
	cfg := Default()
	cfg.WrapperFileName = `sub\w.cpp`
	cfg.OutputExt = "exe"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, `wrapper_file_name: "sub\\w.cpp" fails must be a bare file name`)
	assert.ErrorContains(t, err, `output_ext: "exe" fails must start with a dot`)
}

func TestProjections(t *testing.T) {
	cfg := Default()
	cfg.ExtraFlags = []string{"-s"}
	cfg.Timeout = time.Minute
	cfg.Env = []string{"LANG=C"}

	bo := cfg.BuilderOptions()
	assert.Equal(t, "g++", bo.Compiler)
	assert.Equal(t, []string{"-s"}, bo.ExtraFlags)
	assert.Equal(t, time.Minute, bo.Timeout)
	assert.Equal(t, []string{"LANG=C"}, bo.ExtraEnv)

	eo := cfg.EmbedderOptions()
	assert.Equal(t, "vbs_embedded_wrapper.cpp", eo.WrapperFileName)
	assert.Equal(t, "embedded_script.vbs", eo.TempFileName)
}
