package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JoeyEamigh/ccengram/configs"
	"github.com/JoeyEamigh/ccengram/internal/config"
	"github.com/JoeyEamigh/ccengram/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user configuration",
		Long: `Manage the user/global configuration file.

User configuration holds machine-specific settings that apply to every
project indexed on this machine: embedding backend, thermal management,
default server options.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/ccengram/config.yaml)
  3. Project config (.ccengram.yaml)
  4. Environment variables (CCENGRAM_*)`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the user configuration file from a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			configPath := config.GetUserConfigPath()
			if config.UserConfigExists() && !force {
				out.Warning("user configuration already exists")
				out.Statusf("", "location: %s", configPath)
				out.Status("", "use --force to overwrite")
				return nil
			}

			if err := os.MkdirAll(config.GetUserConfigDir(), 0o755); err != nil {
				return fmt.Errorf("creating config directory: %w", err)
			}
			if err := os.WriteFile(configPath, []byte(configs.UserConfigTemplate), 0o644); err != nil {
				return fmt.Errorf("writing config file: %w", err)
			}

			out.Success("created user configuration")
			out.Statusf("", "location: %s", configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		asJSON bool
		source string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sourceDesc, err := loadConfigForSource(source)
			if err != nil {
				return err
			}
			if cfg == nil {
				fmt.Fprintln(cmd.OutOrStdout(), sourceDesc)
				return nil
			}

			if asJSON {
				data, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return fmt.Errorf("marshaling config: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			out := output.New(cmd.OutOrStdout())
			out.Statusf("", "source: %s", sourceDesc)
			out.Newline()
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "config source: merged, user, project, defaults")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	}
}

// loadConfigForSource resolves one of the four config views the `show`
// subcommand exposes. A nil *config.Config paired with a human-readable
// message means there is nothing to display yet (e.g. no project/user
// config file written).
func loadConfigForSource(source string) (*config.Config, string, error) {
	switch source {
	case "merged":
		root, err := projectRoot()
		if err != nil {
			root, _ = os.Getwd()
		}
		cfg, err := config.Load(root)
		if err != nil {
			return nil, "", fmt.Errorf("loading config: %w", err)
		}
		return cfg, "merged (defaults + user + project + env)", nil

	case "user":
		if !config.UserConfigExists() {
			return nil, fmt.Sprintf("no user configuration found; run `ccengram config init` (expected at %s)", config.GetUserConfigPath()), nil
		}
		cfg, err := config.LoadUserConfig()
		if err != nil {
			return nil, "", fmt.Errorf("loading user config: %w", err)
		}
		return cfg, fmt.Sprintf("user (%s)", config.GetUserConfigPath()), nil

	case "project":
		root, err := projectRoot()
		if err != nil {
			return nil, "no project configuration found; run `ccengram init`", nil
		}
		cfg := config.NewConfig()
		data, err := os.ReadFile(filepath.Join(root, ".ccengram.yaml"))
		if err != nil {
			return nil, "no project configuration found; run `ccengram init`", nil
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("parsing project config: %w", err)
		}
		return cfg, fmt.Sprintf("project (%s/.ccengram.yaml)", root), nil

	case "defaults":
		return config.NewConfig(), "defaults (hardcoded)", nil

	default:
		return nil, "", fmt.Errorf("invalid source %q (use: merged, user, project, defaults)", source)
	}
}
