// Command vendorchat runs a vendor chat session from the terminal and answers
// one-shot queries against the chat REST services.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"vendor-chat/internal/chat"
	"vendor-chat/internal/config"
	"vendor-chat/internal/observability"
)

// Flag variables.
var (
	configPath, logFile, logLevel, userID string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "vendorchat",
	Short:         "Real-time chat client for the vendor dashboard.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// init is the initialization function for Cobra which defines flags.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		"vendorchat.yaml", "Path to the YAML configuration file.")
	rootCmd.PersistentFlags().StringVarP(&logFile, "log", "l", "-",
		"Log output path. By default, logs are printed to stdout. "+
			"To disable logging, set this to empty (\"\").")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "v", "",
		"Log level (trace, debug, info, warn, error). Overrides the config.")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "",
		"Signed-in user id. Overrides the config.")

	rootCmd.AddCommand(runCmd, chatsCmd, historyCmd, unreadCmd)
}

// setup loads the configuration, applies the flag overrides and initializes
// logging. A session cannot start without a user id.
func setup() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if userID != "" {
		cfg.UserID = userID
	}
	if err := initLog(cfg.LogLevel, logFile); err != nil {
		return config.Config{}, err
	}
	if cfg.UserID == "" {
		return config.Config{}, chat.ErrIdentityRequired
	}
	return cfg, nil
}

// initLog enables jww logging to logPath at level. An empty path disables
// logging and "-" keeps it on stdout.
func initLog(level, logPath string) error {
	switch logPath {
	case "":
		jww.SetStdoutOutput(io.Discard)
		jww.SetLogOutput(io.Discard)
		return nil
	case "-":
		observability.SetupLogging(level, nil)
	default:
		logOutput, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return errors.Wrapf(err, "open log file %s", logPath)
		}
		jww.SetStdoutOutput(io.Discard)
		observability.SetupLogging(level, logOutput)
	}

	// Display microseconds if the threshold is set to TRACE or DEBUG
	if t := jww.LogThreshold(); t == jww.LevelTrace || t == jww.LevelDebug {
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}
	jww.INFO.Printf("Log level set to: %s", jww.LogThreshold())
	return nil
}
