package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom/internal/ai"
	cfgpkg "github.com/KaramelBytes/vizloom/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set vizloom configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No config loaded")
			return nil
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "api_key: %s\n", mask(cfg.APIKey))
		fmt.Fprintf(w, "default_provider: %s\n", cfg.DefaultProvider)
		fmt.Fprintf(w, "default_model: %s\n", cfg.DefaultModel)
		fmt.Fprintf(w, "max_tokens: %d\n", cfg.MaxTokens)
		fmt.Fprintf(w, "viz_max_tokens: %d\n", cfg.VizMaxTokens)
		fmt.Fprintf(w, "temperature: %.3f\n", cfg.Temperature)
		fmt.Fprintf(w, "language: %s\n", cfg.Language)
		fmt.Fprintf(w, "summary_detail: %s\n", cfg.SummaryDetail)
		fmt.Fprintf(w, "exec_timeout_sec: %d\n", cfg.ExecTimeoutSec)
		fmt.Fprintf(w, "output_dir: %s\n", cfg.OutputDir)
		fmt.Fprintf(w, "history_enabled: %t\n", cfg.HistoryEnabled)
		fmt.Fprintf(w, "history_db: %s\n", cfg.HistoryDB)
		fmt.Fprintf(w, "dashboard_addr: %s\n", cfg.DashboardAddr)
		fmt.Fprintf(w, "log_level: %s\n", cfg.LogLevel)
		if cfg.OllamaHost != "" {
			fmt.Fprintf(w, "ollama_host: %s\n", cfg.OllamaHost)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := setConfigValue(cfg, key, val); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	switch key {
	case "api_key":
		c.APIKey = val
	case "default_model":
		c.DefaultModel = val
	case "default_provider":
		p := strings.ToLower(strings.TrimSpace(val))
		if _, err := ai.InitializeClient(p, ai.RuntimeConfig{}); err != nil {
			return fmt.Errorf("invalid default_provider: %s (use %s)", val, strings.Join(ai.Providers(), "|"))
		}
		c.DefaultProvider = p
	case "max_tokens", "viz_max_tokens", "exec_timeout_sec":
		i, err := strconv.Atoi(val)
		if err != nil || i <= 0 {
			return fmt.Errorf("invalid positive int for %s: %v", key, val)
		}
		switch key {
		case "max_tokens":
			c.MaxTokens = i
		case "viz_max_tokens":
			c.VizMaxTokens = i
		default:
			c.ExecTimeoutSec = i
		}
	case "temperature":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid float for temperature: %w", err)
		}
		c.Temperature = f
	case "language":
		c.Language = strings.ToLower(val)
	case "summary_detail":
		c.SummaryDetail = strings.ToLower(val)
	case "output_dir":
		c.OutputDir = val
	case "history_db":
		c.HistoryDB = val
	case "history_enabled":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for history_enabled: %w", err)
		}
		c.HistoryEnabled = b
	case "dashboard_addr":
		c.DashboardAddr = val
	case "log_level":
		c.LogLevel = strings.ToLower(val)
	case "ollama_host":
		c.OllamaHost = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
