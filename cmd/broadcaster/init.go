package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foxzi/broadcaster/internal/config"
)

var (
	initMode       string
	initGatewayURL string
	initGatewayKey string
	initAPIKey     string
	initListenAddr string
	initDataDir    string
	initOutput     string
	initMetrics    bool
	initForce      bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize broadcaster configuration",
	Long: `Interactive wizard to create a broadcaster configuration file.

Examples:
  # Interactive mode - prompts for missing values
  broadcaster init

  # Gateway session, non-interactive
  broadcaster init --mode gateway --gateway-url http://127.0.0.1:3000

  # Offline setup for testing
  broadcaster init --mode sandbox -o test.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initMode, "mode", "", "Session mode: gateway or sandbox")
	initCmd.Flags().StringVar(&initGatewayURL, "gateway-url", "", "Session gateway base URL")
	initCmd.Flags().StringVar(&initGatewayKey, "gateway-key", "", "Session gateway API key")
	initCmd.Flags().StringVar(&initAPIKey, "api-key", "", "API key (auto-generated if not provided)")
	initCmd.Flags().StringVar(&initListenAddr, "listen", ":8080", "HTTP API listen address")
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "/var/lib/broadcaster", "Data directory")
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "config.yaml", "Output configuration file path")
	initCmd.Flags().BoolVar(&initMetrics, "metrics", false, "Enable Prometheus metrics")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Broadcaster Configuration Wizard")
	fmt.Println("================================")
	fmt.Println()

	if initMode == "" {
		initMode = prompt(reader, "Session mode (gateway, sandbox)", config.SessionModeSandbox)
	}
	if initMode != config.SessionModeGateway && initMode != config.SessionModeSandbox {
		return fmt.Errorf("invalid mode: %s (must be gateway or sandbox)", initMode)
	}

	if initMode == config.SessionModeGateway && initGatewayURL == "" {
		initGatewayURL = prompt(reader, "Gateway URL", "http://127.0.0.1:3000")
	}

	initDataDir = prompt(reader, "Data directory", initDataDir)

	if initAPIKey == "" {
		initAPIKey = generateRandomString(32)
		fmt.Printf("  Generated API key: %s\n", initAPIKey)
	}

	if !initForce {
		if _, err := os.Stat(initOutput); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", initOutput)
		}
	}

	fmt.Println()
	fmt.Println("Creating configuration...")

	if err := os.MkdirAll(initDataDir, 0755); err != nil {
		fmt.Printf("  Warning: Could not create data directory: %v\n", err)
	}

	if err := os.WriteFile(initOutput, []byte(generateConfig()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("  Configuration saved to: %s\n", initOutput)
	fmt.Println()

	printNextSteps()
	return nil
}

func prompt(reader *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", question, defaultValue)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

func generateRandomString(length int) string {
	bytes := make([]byte, length/2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func generateConfig() string {
	sessionSection := ""
	if initMode == config.SessionModeGateway {
		callback := "http://127.0.0.1" + initListenAddr + "/api/v1/session/events"
		if !strings.HasPrefix(initListenAddr, ":") {
			callback = "http://" + initListenAddr + "/api/v1/session/events"
		}
		sessionSection = fmt.Sprintf(`session:
  mode: gateway
  gateway_url: "%s"
  api_key: "%s"
  callback_url: "%s"
  timeout: 2m`, initGatewayURL, initGatewayKey, callback)
	} else {
		sessionSection = `session:
  mode: sandbox
  sandbox:
    # fixture_file: "` + filepath.Join(initDataDir, "fixture.yaml") + `"
    error_probability: 0`
	}

	metricsSection := `metrics:
  enabled: false`
	if initMetrics {
		metricsSection = `metrics:
  enabled: true
  listen_addr: ":9090"
  path: "/metrics"
  flush_interval: 1m`
	}

	return fmt.Sprintf(`# Broadcaster configuration

%s

api:
  listen_addr: "%s"
  api_key: "%s"

send:
  # Messages per second, 0 sends back to back
  rate_per_sec: 0

storage:
  path: "%s"

logging:
  level: info
  format: json

%s
`, sessionSection, initListenAddr, initAPIKey, filepath.Join(initDataDir, "broadcaster.db"), metricsSection)
}

func printNextSteps() {
	fmt.Println("Next Steps")
	fmt.Println("==========")
	fmt.Println()
	fmt.Println("1. Validate the configuration:")
	fmt.Printf("   broadcaster config validate -c %s\n", initOutput)
	fmt.Println()
	fmt.Println("2. Start the server:")
	fmt.Printf("   broadcaster serve -c %s\n", initOutput)
	fmt.Println()
	fmt.Println("3. Check the session:")
	fmt.Printf("   curl -H \"Authorization: Bearer %s\" http://localhost%s/api/v1/status\n", initAPIKey, initListenAddr)
	fmt.Println()
	fmt.Println("Credentials")
	fmt.Println("-----------")
	fmt.Printf("API Key: %s\n", initAPIKey)
	fmt.Println()
}
