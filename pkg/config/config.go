// Package config resolves tool settings from built-in defaults, an optional
// TOML file, and VBS2EXE_* environment variables, in that order of
// precedence. Command-line flags are applied on top by the CLI.
package config

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"vbs2exe-tools/go/pkg/builder"
	"vbs2exe-tools/go/pkg/embedder"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "VBS2EXE_"

// ConfigFileEnvVar names a config file when --config is not given.
const ConfigFileEnvVar = EnvPrefix + "CONFIG"

// Config holds every tunable of the embed-and-build pipeline.
type Config struct {
	Compiler        string        `toml:"compiler" env:"COMPILER" validate:"required"`
	GUIFlag         string        `toml:"gui_flag" env:"GUI_FLAG"`
	ExtraFlags      []string      `toml:"extra_flags" env:"EXTRA_FLAGS" envSeparator:" "`
	Timeout         time.Duration `toml:"timeout" env:"TIMEOUT" validate:"gte=0s"`
	Env             []string      `toml:"env" env:"ENV" envSeparator:"," validate:"dive,contains=="`
	Interpreter     string        `toml:"interpreter" env:"INTERPRETER"`
	TempFileName    string        `toml:"temp_file_name" env:"TEMP_FILE_NAME" validate:"required,excludesall=/\\"`
	WrapperFileName string        `toml:"wrapper_file_name" env:"WRAPPER_FILE_NAME" validate:"required,excludesall=/\\"`
	OutputExt       string        `toml:"output_ext" env:"OUTPUT_EXT" validate:"omitempty,startswith=."`
}

// validate reports field errors under their TOML key names.
var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("toml"), ",", 2)[0]
	})
	return v
}()

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Compiler:        builder.DefaultCompiler,
		GUIFlag:         builder.DefaultGUIFlag,
		Interpreter:     embedder.DefaultInterpreter,
		TempFileName:    embedder.DefaultTempFileName,
		WrapperFileName: embedder.DefaultWrapperFileName,
		OutputExt:       ".exe",
	}
}

// Load resolves the configuration. path may be empty, in which case
// VBS2EXE_CONFIG is consulted; an empty result means no file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(ConfigFileEnvVar)
	}
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, errors.Wrap(err, "reading environment")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return errors.Wrapf(err, "reading config file %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return errors.Errorf("config file %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// Validate rejects settings the pipeline cannot work with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Compiler) == "" {
		return errors.New("compiler must not be empty")
	}
	err := validate.Struct(c)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string {
		return fmt.Sprintf("%s: %q fails %s", fe.Field(), fmt.Sprint(fe.Value()), describeTag(fe))
	})
	return errors.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "gte":
		return "must not be negative"
	case "excludesall":
		return "must be a bare file name"
	case "startswith":
		return "must start with a dot"
	case "contains":
		return "must be NAME=VALUE"
	}
	return fe.Tag()
}

// EmbedderOptions projects the embedder settings.
func (c Config) EmbedderOptions() embedder.Options {
	return embedder.Options{
		WrapperFileName: c.WrapperFileName,
		Interpreter:     c.Interpreter,
		TempFileName:    c.TempFileName,
	}
}

// BuilderOptions projects the compiler settings.
func (c Config) BuilderOptions() builder.Options {
	return builder.Options{
		Compiler:   c.Compiler,
		GUIFlag:    c.GUIFlag,
		ExtraFlags: append([]string(nil), c.ExtraFlags...),
		Timeout:    c.Timeout,
		ExtraEnv:   append([]string(nil), c.Env...),
	}
}
