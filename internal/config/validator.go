package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks every section of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateServer(&cfg.Server, result)
	validateClient(&cfg.Client, result)
	validateApplication(&cfg.Application, result)

	return result
}

func validateServer(s *ServerConfig, result *ValidationResult) {
	if strings.TrimSpace(s.Host) == "" {
		result.AddError("server.host", "server host is required")
	}
	validatePort("server.port", s.Port, result)

	if strings.TrimSpace(s.Username) == "" {
		result.AddError("server.username", "username is required")
	} else if strings.ContainsRune(s.Username, 0) {
		result.AddError("server.username", "username must not contain NUL bytes")
	}
	if strings.ContainsRune(s.Password, 0) {
		result.AddError("server.password", "password must not contain NUL bytes")
	}

	if s.AutoReconnect && s.ReconnectDelaySec < 1 {
		result.AddWarning("server.reconnect_delay_sec", "reconnect delay below 1s, using 1s")
	}
}

func validateClient(c *ClientConfig, result *ValidationResult) {
	if c.NetworkVersion == "" {
		result.AddError("client.network_version", "network version is required")
	}
	if c.RequestTimeoutMS <= 0 {
		result.AddError("client.request_timeout_ms", "must be positive")
	}
	if c.LivenessTimeoutMS <= 0 {
		result.AddError("client.liveness_timeout_ms", "must be positive")
	}
	if c.PollIntervalMS <= 0 {
		result.AddError("client.poll_interval_ms", "must be positive")
	} else if c.LivenessTimeoutMS > 0 && c.PollIntervalMS >= c.LivenessTimeoutMS {
		result.AddWarning("client.poll_interval_ms",
			fmt.Sprintf("poll interval (%dms) is not shorter than the liveness timeout (%dms)",
				c.PollIntervalMS, c.LivenessTimeoutMS))
	}
	if c.DialTimeoutMS <= 0 {
		result.AddError("client.dial_timeout_ms", "must be positive")
	}
	if c.WriteTimeoutMS <= 0 {
		result.AddError("client.write_timeout_ms", "must be positive")
	}
}

func validateApplication(app *ApplicationData, result *ValidationResult) {
	if app.API.Enabled {
		validatePort("application.api.port", app.API.Port, result)
	}

	if app.MQTT.Enabled {
		if strings.TrimSpace(app.MQTT.BrokerURL) == "" {
			result.AddError("application.mqtt.broker_url", "broker URL is required when MQTT is enabled")
		}
		validatePort("application.mqtt.port", app.MQTT.Port, result)
		if (app.MQTT.CertFile == "") != (app.MQTT.KeyFile == "") {
			result.AddError("application.mqtt.cert_file", "cert_file and key_file must be set together")
		}
	}

	if app.API.Enabled && app.API.UseTLS && (app.API.CertFile == "" || app.API.KeyFile == "") {
		result.AddError("application.api.cert_file", "cert_file and key_file are required when use_tls is set")
	}

	if app.Webhook.Enabled && !strings.HasPrefix(app.Webhook.URL, "https://") {
		result.AddError("application.webhook.url", "webhook URL must be an https:// URL")
	}

	if app.History.Enabled {
		if strings.TrimSpace(app.History.Path) == "" {
			result.AddError("application.history.path", "history database path is required")
		}
		if app.History.RetentionDays < 0 {
			result.AddError("application.history.retention_days", "must not be negative")
		}
		if _, _, err := ParseClock(app.History.PruneTime); app.History.RetentionDays > 0 && err != nil {
			result.AddError("application.history.prune_time", err.Error())
		}
	}

	if app.Timers.HeartbeatInterval < 0 || app.Timers.SessionCheckInterval < 0 {
		result.AddError("application.timers", "intervals must not be negative")
	}

	switch strings.ToLower(app.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		result.AddWarning("application.logging.level",
			fmt.Sprintf("unknown log level %q, falling back to info", app.Logging.Level))
	}
}

func validatePort(field string, port int, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("port %d out of range", port))
	}
}

// ParseClock parses a local "HH:MM" time of day.
func ParseClock(clock string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(clock, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:MM", clock)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time of day %q out of range", clock)
	}
	return hour, minute, nil
}
