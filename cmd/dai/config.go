package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daicraft/dai/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective configuration and where it came from",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("User config:    %s\n", config.GetUserConfigPath())
		if project := config.GetProjectConfigPath(); project != "" {
			fmt.Printf("Project config: %s\n", project)
		}
		fmt.Println()

		anthropicKey, _ := config.GetAnthropicKey(cfg)
		fmt.Printf("Anthropic key:  %s (%s)\n",
			config.MaskAPIKey(anthropicKey), config.GetAnthropicKeySource(cfg))
		if cfg.Anthropic.UseBedrock {
			fmt.Printf("Bedrock:        enabled (region %s)\n", cfg.Anthropic.AWSRegion)
		}
		openaiKey, _ := config.GetOpenAIKey(cfg)
		fmt.Printf("OpenAI key:     %s\n", config.MaskAPIKey(openaiKey))
		fmt.Println()

		fmt.Printf("Run defaults:   concurrency=%d retries=%d backoff=%s policy=%s timeout=%s\n",
			cfg.Run.MaxConcurrency, cfg.Run.MaxRetries, cfg.Run.BackoffBase,
			cfg.Run.FailurePolicy, cfg.Run.CallTimeout)
		return nil
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key <anthropic|openai> <api-key>",
	Short: "Store a provider API key in the user config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, key := args[0], args[1]

		// Edit the user config file only; project config and env stay as
		// they are.
		cfg := config.Default()
		if path := config.GetUserConfigPath(); path != "" {
			if _, err := os.Stat(path); err == nil {
				loaded, err := config.LoadFromPath(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}
		}

		switch provider {
		case "anthropic":
			if err := config.ValidateAnthropicKey(key); err != nil {
				return fmt.Errorf("anthropic key: %w", err)
			}
			cfg.Anthropic.APIKey = key
		case "openai":
			cfg.OpenAI.APIKey = key
		default:
			return fmt.Errorf("unknown provider %q (want anthropic or openai)", provider)
		}

		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("Saved %s key %s to %s\n",
			provider, config.MaskAPIKey(key), config.GetUserConfigPath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetKeyCmd)
}
