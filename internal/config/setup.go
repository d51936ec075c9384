package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard prompts for the server to join and the name to join as,
// then saves the configuration.
func RunSetupWizard(cfg *Config, in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║          parklink - First Run Setup          ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("── Server ──")
	cfg.Server.Host = promptString(reader, "Server host", cfg.Server.Host)
	cfg.Server.Port = promptInt(reader, "Server port", cfg.Server.Port)

	fmt.Println()
	fmt.Println("── Identity ──")
	cfg.Server.Username = promptString(reader, "Player name", cfg.Server.Username)
	cfg.Server.Password = promptPassword(reader, "Server password (blank for none)")

	fmt.Println()
	fmt.Println("── Integrations ──")
	cfg.Server.AutoReconnect = promptBool(reader, "Reconnect automatically", cfg.Server.AutoReconnect)
	cfg.Application.API.Enabled = promptBool(reader, "Enable REST API", cfg.Application.API.Enabled)
	cfg.Application.MQTT.Enabled = promptBool(reader, "Enable MQTT telemetry", cfg.Application.MQTT.Enabled)
	if cfg.Application.MQTT.Enabled {
		cfg.Application.MQTT.BrokerURL = promptString(reader, "MQTT broker host", cfg.Application.MQTT.BrokerURL)
	}

	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Println("\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Printf("  - [%s] %s\n", e.Field, e.Message)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Configuration saved to", cfg.Path())
	fmt.Println()

	return nil
}

func promptString(reader *bufio.Reader, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Printf("  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptPassword(reader *bufio.Reader, prompt string) string {
	fmt.Printf("  %s: ", prompt)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func promptInt(reader *bufio.Reader, prompt string, defaultVal int) int {
	fmt.Printf("  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Printf("    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Printf("  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
