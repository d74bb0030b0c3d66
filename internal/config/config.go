// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/repowatchapp/repowatch-server/internal/validation"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Server  ServerConfig
	Repo    RepoConfig
	Monitor MonitorConfig
	Journal JournalConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `json:"environment" validate:"required,oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `json:"level" validate:"required,oneof=debug info warn error"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        `json:"port" validate:"required"`
	ReadTimeout  time.Duration `json:"read_timeout"`  // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration `json:"write_timeout"` // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration `json:"idle_timeout"`  // HTTP idle timeout (default: 60s)
}

// RepoConfig holds the watched repository configuration.
type RepoConfig struct {
	// WorktreePath is the working tree to monitor. Defaults to the current
	// directory; repository discovery walks up from here.
	WorktreePath string `json:"worktree_path" validate:"required"`
}

// MonitorConfig holds filesystem monitoring configuration.
type MonitorConfig struct {
	// Enabled gates whether filesystem monitoring may be enabled at all.
	// When false the monitor degrades to no-ops and the rest of the
	// application behaves identically.
	Enabled bool `json:"enabled"`
}

// JournalConfig holds notification journal configuration.
type JournalConfig struct {
	// Path is the directory for the badger journal database
	// (default: {state dir}/repowatch/journal).
	Path string `json:"path" validate:"required"`
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	worktreePath := flag.String("worktree", "", "Path to the working tree to monitor")
	journalPath := flag.String("journal-path", "", "Directory for the notification journal")
	monitorEnabled := flag.String("monitor-enabled", "", "Enable filesystem monitoring (default: true)")

	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port: getConfigValue(*serverPort, "SERVER_PORT", "8080"),
		},
		Repo: RepoConfig{
			WorktreePath: getConfigValue(*worktreePath, "WORKTREE_PATH", "."),
		},
		Monitor: MonitorConfig{
			Enabled: getBoolConfigValue(*monitorEnabled, "MONITOR_ENABLED", true),
		},
		Journal: JournalConfig{
			Path: getConfigValue(*journalPath, "JOURNAL_PATH", ""),
		},
	}

	// Parse server timeouts.
	var err error
	if cfg.Server.ReadTimeout, err = parseDurationValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = parseDurationValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.IdleTimeout, err = parseDurationValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"); err != nil {
		return nil, err
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// ExpandPaths expands ~ and makes configured paths absolute, applying
// defaults for paths left empty.
func (c *Config) ExpandPaths() error {
	worktree, err := expandPath(c.Repo.WorktreePath, ".")
	if err != nil {
		return fmt.Errorf("invalid worktree path: %w", err)
	}
	c.Repo.WorktreePath = worktree

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultJournal := filepath.Join(homeDir, ".local", "state", "repowatch", "journal")

	journal, err := expandPath(c.Journal.Path, defaultJournal)
	if err != nil {
		return fmt.Errorf("invalid journal path: %w", err)
	}
	c.Journal.Path = journal
	return nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	v := validation.New()
	if err := v.Validate(c.App); err != nil {
		return err
	}
	if err := v.Validate(c.Logger); err != nil {
		return err
	}
	if err := v.Validate(c.Server); err != nil {
		return err
	}
	if err := v.Validate(c.Repo); err != nil {
		return err
	}
	if err := v.Validate(c.Journal); err != nil {
		return err
	}

	if !filepath.IsAbs(c.Repo.WorktreePath) {
		return errors.New("worktree path must be absolute after expansion")
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		path = defaultPath
	}
	if path == "" {
		return "", nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// parseDurationValue resolves a duration from flag, env var, or default.
func parseDurationValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	str := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(str)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", strings.ToLower(envKey), str, err)
	}
	return d, nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
