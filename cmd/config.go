package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/modelrelay/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the relay configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	Long:  `Initialize configuration by prompting for upstream details.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the current configuration for errors.`,
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	color.Blue("Model Relay Configuration Setup")
	color.Yellow("Follow the prompts to configure your first upstream and model.")

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("\nUpstream Name (e.g., anthropic, google): ")
	upstreamName, _ := reader.ReadString('\n')
	upstreamName = strings.TrimSpace(upstreamName)

	fmt.Print("Provider Family (claude, gemini, other): ")
	family, _ := reader.ReadString('\n')
	family = strings.TrimSpace(family)

	fmt.Print("API Key: ")
	apiKey, _ := reader.ReadString('\n')
	apiKey = strings.TrimSpace(apiKey)

	fmt.Print("API Base URL: ")
	baseURL, _ := reader.ReadString('\n')
	baseURL = strings.TrimSpace(baseURL)

	fmt.Print("Model ID: ")
	model, _ := reader.ReadString('\n')
	model = strings.TrimSpace(model)

	// Optional relay API key
	fmt.Print("Relay API Key (optional, for authentication): ")
	relayAPIKey, _ := reader.ReadString('\n')
	relayAPIKey = strings.TrimSpace(relayAPIKey)

	cfg := &config.Config{
		Host:   config.DefaultHost,
		Port:   config.DefaultPort,
		APIKey: relayAPIKey,
		Upstreams: []config.Upstream{
			{
				Name:    upstreamName,
				Family:  family,
				APIBase: baseURL,
				APIKey:  apiKey,
			},
		},
		Models: []config.Model{
			{
				ID:               model,
				Upstream:         upstreamName,
				SupportsThinking: true,
				SupportsToolUse:  true,
			},
		},
	}

	// BuildRegistry runs the same validation the server runs at startup.
	if _, err := cfg.BuildRegistry(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfgMgr.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	color.Green("Configuration saved successfully to: %s", cfgMgr.GetPath())
	color.Cyan("You can now start the relay with: relay start")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration found. Run 'relay config init' to create one.")
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	color.Blue("Current Configuration:")
	fmt.Printf("  %-15s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-15s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-15s: %s\n", "API Key", maskString(cfg.APIKey))
	fmt.Printf("  %-15s: %d\n", "Fallback Hops", cfg.MaxFallbackHops)
	fmt.Printf("  %-15s: %s\n", "Attempt Timeout", cfg.AttemptTimeout())
	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())

	fmt.Println("\nUpstreams:")
	for _, u := range cfg.Upstreams {
		fmt.Printf("  - Name: %s\n", u.Name)
		fmt.Printf("    Family: %s\n", u.Family)
		fmt.Printf("    API Base: %s\n", u.APIBase)
		fmt.Printf("    API Key: %s\n", maskString(u.APIKey))
		fmt.Println()
	}

	fmt.Println("Models:")
	for _, m := range cfg.Models {
		fmt.Printf("  - ID: %s\n", m.ID)
		fmt.Printf("    Upstream: %s\n", m.Upstream)
		fmt.Printf("    Thinking: %v\n", m.SupportsThinking)
		fmt.Printf("    Tool Use: %v\n", m.SupportsToolUse)
		if m.Fallback != "" {
			fmt.Printf("    Fallback: %s\n", m.Fallback)
		}
		fmt.Println()
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		return fmt.Errorf("no configuration found")
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var errors []string

	if len(cfg.Upstreams) == 0 {
		errors = append(errors, "no upstreams configured")
	}

	for i, u := range cfg.Upstreams {
		if u.Name == "" {
			errors = append(errors, fmt.Sprintf("upstream %d: name is required", i))
		}
		if u.Family == "" {
			errors = append(errors, fmt.Sprintf("upstream %d: family is required", i))
		}
		if u.APIBase == "" {
			errors = append(errors, fmt.Sprintf("upstream %d: API base URL is required", i))
		}
		if u.APIKey == "" {
			errors = append(errors, fmt.Sprintf("upstream %d: API key is required", i))
		}
	}

	if len(cfg.Models) == 0 {
		errors = append(errors, "no models configured")
	}

	// Registry construction catches the structural problems: unknown
	// upstreams and families, duplicate ids, broken fallback chains.
	if _, err := cfg.BuildRegistry(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		color.Red("Configuration validation failed:")
		for _, e := range errors {
			fmt.Printf("  - %s\n", e)
		}
		return fmt.Errorf("configuration validation failed")
	}

	color.Green("Configuration is valid!")
	return nil
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
