package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/leonardotrapani/voiceflow/internal/bus"
	"github.com/leonardotrapani/voiceflow/internal/config"
	"github.com/leonardotrapani/voiceflow/internal/daemon"
	"github.com/leonardotrapani/voiceflow/internal/tui"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "voiceflow",
	Short:        "Real-time speech transcription and translation relay",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		statusCmd(),
		versionCmd(),
		stopCmd(),
		configureCmd(),
	)
}

func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "voiceflow",
	})
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	log.SetDefault(logger)
	return logger
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config.toml (default: user config dir)")

	return cmd
}

func runServe(configPath string) error {
	logger := newLogger(os.Getenv(config.EnvLogLevel))

	if err := config.LoadDotEnv(); err != nil {
		logger.Warn("ignoring .env", "err", err)
	}

	if configPath == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		configPath = p
	}

	mgr, err := config.NewManagerAt(configPath, logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if lvl, err := log.ParseLevel(mgr.GetConfig().Log.Level); err == nil {
		logger.SetLevel(lvl)
	}

	d := daemon.New(mgr, nil, logger, version)
	return d.Run()
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show active sessions and connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand('s')
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			fields, err := bus.ParseStatus(resp)
			if err != nil {
				return err
			}
			fmt.Print(formatStatus(fields))
			return nil
		},
	}
}

func formatStatus(fields map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "sessions:    %s\n", valueOr(fields["sessions"], "0"))
	fmt.Fprintf(&b, "connections: %s\n", valueOr(fields["connections"], "0"))
	return b.String()
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print client and daemon versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("client: %s\n", version)

			resp, err := bus.SendCommand('v')
			if err != nil {
				fmt.Println("daemon: not running")
				return nil
			}
			fields, err := bus.ParseStatus(resp)
			if err != nil {
				return err
			}
			fmt.Printf("daemon: %s (protocol %s)\n", fields["version"], fields["proto"])
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand('q')
			if err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration for voiceflow.
This will guide you through setting up:
- Speech recognition credentials and audio format
- Translation and summaries
- The listen address and frontend directory`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return err
	}

	cfg, err := config.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := config.Save(result.Config, configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("Configuration saved successfully!")
	fmt.Println()
	fmt.Println("A running daemon picks up the new settings automatically.")
	fmt.Println("Otherwise start it with: voiceflow serve")
	fmt.Printf("Config file location: %s\n", configPath)

	return nil
}
