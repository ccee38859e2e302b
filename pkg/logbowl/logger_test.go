package logbowl

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFormatCarriesDomainFields(t *testing.T) {
	t.Setenv(LogFormatEnvVar, "json")
	t.Setenv(LogLevelEnvVar, "debug")

	var buf bytes.Buffer
	log := CreateWithOutput("test-logbowl", &buf)
	log.Debug("embed", "write", "success", "Wrapper source written", "path", "/tmp/x.cpp")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "embed", entry["domain"])
	assert.Equal(t, "write", entry["action"])
	assert.Equal(t, "success", entry["status"])
	assert.Equal(t, "/tmp/x.cpp", entry["path"])
	assert.Equal(t, "Wrapper source written", entry["@message"])
}

func TestTextFormatPrefixesDomain(t *testing.T) {
	t.Setenv(LogFormatEnvVar, "text")
	t.Setenv(LogLevelEnvVar, "")

	var buf bytes.Buffer
	log := CreateWithOutput("test-logbowl", &buf)
	log.Info("builder", "execute", "progress", "Invoking compiler")
	log.Debug("builder", "execute", "progress", "hidden at info level")

	out := buf.String()
	assert.Contains(t, out, "[BUILDER] Invoking compiler")
	assert.NotContains(t, out, "hidden at info level")
}

func TestEmojiFallbacks(t *testing.T) {
	assert.Equal(t, domains["default"], getEmoji(domains, "no-such-domain"))
	assert.Equal(t, "🧬", getEmoji(domains, "embed"))
}

func TestNullLoggerIsSilent(t *testing.T) {
	assert.NotPanics(t, func() {
		Null().Error("system", "finish", "error", "nothing to see")
		Logger{}.Info("system", "finish", "ok", "zero value is usable")
	})
}
