// Package cmd implements the assistant command line.
package cmd

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"backend-go-assistant/config"
	"backend-go-assistant/internal/logger"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "assistant",
	Short: "Voice-first conversational assistant",
	Long: `assistant plans each user turn, optionally searches the web or stores a memory,
and streams a grounded reply from the configured language model.

Use "serve" for the websocket server or "chat" for a console session.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultConfigPath, "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file and builds the process logger writing to logOut.
func loadConfig(logOut io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, logger.New(logOut, cfg.Log.Level), nil
}
