// Package config loads and manages apexion configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (APEXION_TEMP_DIR, APEXION_SHELL)
// 2. Config file path specified via --config flag
// 3. ~/.config/apexion/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PermissionConfig holds permission system settings.
type PermissionConfig struct {
	// Mode: "interactive" (default) | "auto-approve" | "auto-edit" | "yolo"
	Mode string `yaml:"mode"`

	// AutoApproveTools: tools auto-approved without confirmation (e.g. ["read_file", "list_dir"])
	AutoApproveTools []string `yaml:"auto_approve_tools"`

	// AllowedCommands: bash command allowlist with prefix matching (e.g. ["go test", "go build"])
	AllowedCommands []string `yaml:"allowed_commands"`

	// AllowedPaths: file path glob patterns (e.g. ["./src/**", "./tests/**"]).
	// Loaded from the config file only; the scheduler and tools do not read
	// it, so edits are not limited to these paths.
	AllowedPaths []string `yaml:"allowed_paths"`

	// DeniedCommands: command denylist entries. Loaded from the config file
	// only; the scheduler and bash tool do not read it, so listed commands
	// are not blocked.
	DeniedCommands []string `yaml:"denied_commands"`
}

// SchedulerConfig holds settings for the core tool scheduler: where
// truncated tool output gets spilled to disk, the thresholds that trigger
// truncation, and which shell the bash tool invokes.
type SchedulerConfig struct {
	// TempDir is the directory truncated tool output is saved under.
	// Empty = os.TempDir().
	TempDir string `yaml:"temp_dir"`

	// OutputThresholdBytes is the byte size above which tool output is
	// truncated and spilled to TempDir. 0 = use the built-in default.
	OutputThresholdBytes int `yaml:"output_threshold_bytes"`

	// OutputTruncateLines is the number of lines kept (split between head
	// and tail) when output is truncated. 0 = use the built-in default.
	OutputTruncateLines int `yaml:"output_truncate_lines"`

	// ShellExec names a shell binary, e.g. "/bin/bash" or "/bin/sh". It is
	// loaded (and overridable via APEXION_SHELL) but not passed to the bash
	// tool, which picks its shell from $SHELL, then bash, then sh.
	ShellExec string `yaml:"shell_exec"`
}

// SandboxConfig holds settings for bash tool sandboxing.
type SandboxConfig struct {
	// WorkDir is the working directory bash commands start in. It is not a
	// sandbox: commands can still reach paths outside it.
	// Empty = current working directory (default).
	WorkDir string `yaml:"work_dir"`

	// AuditLog path for logging all bash commands. Empty = no logging.
	AuditLog string `yaml:"audit_log"`
}

// Config is the complete configuration structure for apexion.
type Config struct {
	// Permissions holds permission system settings.
	Permissions PermissionConfig `yaml:"permissions"`

	// Sandbox holds settings for bash tool sandboxing.
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Scheduler holds settings for the core tool scheduler.
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Permissions: PermissionConfig{
			Mode: "interactive",
			AutoApproveTools: []string{
				"read_file", "list_dir",
			},
		},
		Scheduler: SchedulerConfig{
			OutputThresholdBytes: 80_000,
			OutputTruncateLines:  1000,
		},
	}
}

// Load reads the config file and merges environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Determine config file path
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".config", "apexion", "config.yaml")
		}
	}

	// Read config file (use defaults if not found)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APEXION_TEMP_DIR"); v != "" {
		cfg.Scheduler.TempDir = v
	}
	if v := os.Getenv("APEXION_SHELL"); v != "" {
		cfg.Scheduler.ShellExec = v
	}
}
