package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openrag/chunkstore/internal/config"
	"github.com/openrag/chunkstore/internal/ui"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigBackupsCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after layering defaults, the user config, the
project config, environment variables, and flags.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default user config file",
		Long: `Write the default configuration to the user config path. An existing
config is backed up first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.GetUserConfigPath()
			styles := ui.StylesFor(cmd.OutOrStdout(), noColor)

			if config.UserConfigExists() {
				if !force {
					return fmt.Errorf("config already exists at %s, use --force to overwrite", path)
				}
				backup, err := config.BackupUserConfig()
				if err != nil {
					return fmt.Errorf("backup existing config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Backed up existing config to %s\n", backup)
			}

			if err := config.NewConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render("Wrote "+path))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config (after backing it up)")

	return cmd
}

func newConfigBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List user config backups, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			backups, err := config.ListUserConfigBackups()
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No backups found.")
				return nil
			}
			for _, b := range backups {
				fmt.Fprintln(cmd.OutOrStdout(), b)
			}
			return nil
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-path>",
		Short: "Restore the user config from a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.RestoreUserConfig(args[0]); err != nil {
				return err
			}
			styles := ui.StylesFor(cmd.OutOrStdout(), noColor)
			fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render(
				"Restored "+config.GetUserConfigPath()))
			return nil
		},
	}
}
