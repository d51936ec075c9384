package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, DefaultConfigFile))
	assert.True(t, cfg.IsFirstRun())
	assert.Equal(t, 11753, cfg.GetServer().Port)
	assert.Equal(t, "0.0.4-1", cfg.GetClient().NetworkVersion)
}

func TestLoadKeepsValuesAndFillsNewFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"host":"park.example","port":12000,"username":"ranger"}}`), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "park.example", cfg.GetServer().Host)
	assert.Equal(t, "ranger", cfg.GetServer().Username)
	assert.False(t, cfg.IsFirstRun())
	assert.Equal(t, 30*time.Second, cfg.GetClient().LivenessTimeout())
	assert.Equal(t, "parklink", cfg.GetApplicationData().MQTT.TopicPrefix)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "liveness_timeout_ms")
}

func TestLoadRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{"), 0600))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestUpdateServerField(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.UpdateServerField("host", "10.0.0.2"))
	require.NoError(t, cfg.UpdateServerField("port", "11800"))
	require.NoError(t, cfg.UpdateServerField("auto_reconnect", "false"))
	require.NoError(t, cfg.UpdateServerField("reconnect_delay_sec", 3))

	s := cfg.GetServer()
	assert.Equal(t, "10.0.0.2", s.Host)
	assert.Equal(t, 11800, s.Port)
	assert.False(t, s.AutoReconnect)
	assert.Equal(t, 3, s.ReconnectDelaySec)

	assert.Error(t, cfg.UpdateServerField("port", "eleven"))
	assert.Error(t, cfg.UpdateServerField("auto_reconnect", "maybe"))
	assert.Error(t, cfg.UpdateServerField("missing", "x"))
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	result := Validate(cfg)
	require.False(t, result.IsValid())
	assert.Equal(t, "server.username", result.Errors[0].Field)

	cfg.Server.Username = "ranger"
	result = Validate(cfg)
	assert.True(t, result.IsValid(), "%v", result.Errors)

	cfg.Server.Port = 70000
	cfg.Server.Password = "a\x00b"
	cfg.Client.RequestTimeoutMS = 0
	cfg.Application.Webhook.Enabled = true
	cfg.Application.Webhook.URL = "http://insecure.example/hook"
	cfg.Application.MQTT.Enabled = true
	result = Validate(cfg)

	fields := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{
		"server.port",
		"server.password",
		"client.request_timeout_ms",
		"application.webhook.url",
		"application.mqtt.broker_url",
	}, fields)
}

func TestValidateWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Username = "ranger"
	cfg.Client.PollIntervalMS = cfg.Client.LivenessTimeoutMS
	cfg.Application.Logging.Level = "loud"

	result := Validate(cfg)
	assert.True(t, result.IsValid())
	require.Len(t, result.Warnings, 2)
	assert.Contains(t, result.Warnings[0].Message, "not shorter")
}

func TestSetupWizard(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), DefaultConfigFile))

	answers := strings.Join([]string{
		"park.example", // host
		"",             // port: keep default
		"ranger",       // name
		"",             // password
		"n",            // auto reconnect
		"",             // api: keep default
		"",             // mqtt: keep default
	}, "\n") + "\n"

	require.NoError(t, RunSetupWizard(cfg, strings.NewReader(answers)))

	s := cfg.GetServer()
	assert.Equal(t, "park.example", s.Host)
	assert.Equal(t, 11753, s.Port)
	assert.Equal(t, "ranger", s.Username)
	assert.False(t, s.AutoReconnect)
	assert.True(t, cfg.GetApplicationData().API.Enabled)
	assert.FileExists(t, cfg.Path())
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("04:30")
	require.NoError(t, err)
	assert.Equal(t, 4, h)
	assert.Equal(t, 30, m)

	for _, bad := range []string{"", "4", "24:00", "12:60", "noon"} {
		_, _, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}
