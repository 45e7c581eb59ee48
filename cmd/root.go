// Package cmd implements the apexion CLI entry points.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/apexion/internal/config"
)

var (
	cfgFile     string
	autoApprove bool
	yoloFlag    string

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "apexion",
		Short: "Core tool scheduler for AI-assistant tool invocations",
		Long: "apexion schedules, confirms, and executes tool calls on behalf of an " +
			"AI assistant: validation, per-invocation allowlisting, user confirmation, " +
			"cancellation, and structured function-response output.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/apexion/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&autoApprove, "auto-approve", false, "set permission mode to auto-approve (skip confirmation for edit-kind tools)")
	rootCmd.PersistentFlags().StringVar(&yoloFlag, "approval-mode", "", "override approval mode: default|auto-edit|yolo")

	rootCmd.AddCommand(newScheduleCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))
	rootCmd.AddCommand(newInitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// displayVersion returns a formatted version string, e.g. "v0.3.1 (abc1234)".
func displayVersion() string {
	v := "v" + appVersion
	if appCommit != "" && appCommit != "none" {
		v += " (" + appCommit + ")"
	}
	return v
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if autoApprove {
		cfg.Permissions.Mode = "auto-approve"
	}
	if yoloFlag != "" {
		cfg.Permissions.Mode = yoloFlag
	}

	return cfg
}
