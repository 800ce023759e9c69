// Package core contains the rule engine of medic-conf: the fact model,
// window calculation, task definition evaluation, emission sequencing,
// action rendering, rule project compilation and configuration.
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/medic/medic-conf/pkg/models"
	"github.com/spf13/viper"
)

// ConfigurationManager defines the interface for loading, merging, and
// validating configuration from global (.medicconf) and per-project
// (.medicrc) files.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.GlobalConfig, error)
	LoadProjectConfig(projectDir string) (*models.ProjectConfig, error)
	GetMergedConfig(projectDir string) (*models.MergedConfig, error)
	ValidateConfig(config interface{}) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML configuration files.
type viperConfigManager struct {
	// basePath is the root directory where .medicconf resides.
	basePath string
}

// NewConfigurationManager creates a new ConfigurationManager that reads
// configuration files relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultGlobalConfig returns a GlobalConfig populated with sensible defaults.
func DefaultGlobalConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		ProjectDir:    ".",
		ContactsGlob:  "contacts/**/*.json",
		Workers:       4,
		WindowPolicy:  models.PolicyWithinWindow,
		Timezone:      "UTC",
		EventLog:      true,
		WatchDebounce: "500ms",
		Notifications: models.NotificationConfig{
			Alerts: models.AlertConfig{
				MaxFailures:     1,
				MaxOverdueTasks: 50,
			},
		},
	}
}

// LoadGlobalConfig reads the .medicconf file from the base path using Viper.
// If the file does not exist, sensible defaults are returned. Environment
// variables prefixed MEDIC_CONF_ override file values.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	v := viper.New()
	v.SetConfigName(".medicconf")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("MEDIC_CONF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("project.dir", cfg.ProjectDir)
	v.SetDefault("contacts.glob", cfg.ContactsGlob)
	v.SetDefault("evaluation.workers", cfg.Workers)
	v.SetDefault("evaluation.window_policy", string(cfg.WindowPolicy))
	v.SetDefault("evaluation.timezone", cfg.Timezone)
	v.SetDefault("observability.event_log", cfg.EventLog)
	v.SetDefault("observability.metrics_addr", cfg.MetricsAddr)
	v.SetDefault("watch.debounce", cfg.WatchDebounce)
	v.SetDefault("notifications.enabled", cfg.Notifications.Enabled)
	v.SetDefault("notifications.slack.webhook_url", "")
	v.SetDefault("notifications.alerts.max_failures", cfg.Notifications.Alerts.MaxFailures)
	v.SetDefault("notifications.alerts.max_overdue_tasks", cfg.Notifications.Alerts.MaxOverdueTasks)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading .medicconf: %w", err)
		}
	}

	// Map nested YAML keys to flat GlobalConfig fields.
	cfg.ProjectDir = v.GetString("project.dir")
	cfg.ContactsGlob = v.GetString("contacts.glob")
	cfg.Workers = v.GetInt("evaluation.workers")
	cfg.WindowPolicy = models.WindowPolicy(v.GetString("evaluation.window_policy"))
	cfg.Timezone = v.GetString("evaluation.timezone")
	cfg.EventLog = v.GetBool("observability.event_log")
	cfg.MetricsAddr = v.GetString("observability.metrics_addr")
	cfg.WatchDebounce = v.GetString("watch.debounce")
	cfg.Notifications.Enabled = v.GetBool("notifications.enabled")
	cfg.Notifications.Slack.WebhookURL = v.GetString("notifications.slack.webhook_url")
	cfg.Notifications.Alerts.MaxFailures = v.GetInt("notifications.alerts.max_failures")
	cfg.Notifications.Alerts.MaxOverdueTasks = v.GetInt("notifications.alerts.max_overdue_tasks")

	return cfg, nil
}

// LoadProjectConfig reads a .medicrc file from the given project directory.
// If the file does not exist, nil is returned (no project-specific config).
func (cm *viperConfigManager) LoadProjectConfig(projectDir string) (*models.ProjectConfig, error) {
	v := viper.New()
	v.SetConfigName(".medicrc")
	v.SetConfigType("yaml")
	v.AddConfigPath(projectDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, nil
		}
		return nil, fmt.Errorf("reading .medicrc in %s: %w", projectDir, err)
	}

	return &models.ProjectConfig{
		WindowPolicy: models.WindowPolicy(v.GetString("window_policy")),
		Timezone:     v.GetString("timezone"),
		ContactsGlob: v.GetString("contacts_glob"),
		Forms:        v.GetStringSlice("forms"),
	}, nil
}

// GetMergedConfig loads the global config and overlays any project-specific
// settings from .medicrc. Precedence: .medicrc > .medicconf > defaults.
func (cm *viperConfigManager) GetMergedConfig(projectDir string) (*models.MergedConfig, error) {
	globalCfg, err := cm.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("loading global config for merge: %w", err)
	}

	merged := &models.MergedConfig{GlobalConfig: *globalCfg}
	if projectDir == "" {
		return merged, nil
	}

	projectCfg, err := cm.LoadProjectConfig(projectDir)
	if err != nil {
		return nil, fmt.Errorf("loading project config for merge: %w", err)
	}
	merged.Project = projectCfg

	return merged, nil
}

// ValidateConfig checks the provided configuration for invalid values and
// returns a clear error message identifying the problem.
// It accepts *GlobalConfig, *ProjectConfig, or *MergedConfig.
func (cm *viperConfigManager) ValidateConfig(config interface{}) error {
	if config == nil {
		return fmt.Errorf("configuration is nil")
	}

	switch cfg := config.(type) {
	case *models.GlobalConfig:
		return validateGlobalConfig(cfg)
	case *models.ProjectConfig:
		return validateProjectConfig(cfg)
	case *models.MergedConfig:
		if err := validateGlobalConfig(&cfg.GlobalConfig); err != nil {
			return err
		}
		if cfg.Project != nil {
			return validateProjectConfig(cfg.Project)
		}
		return nil
	default:
		return fmt.Errorf("unsupported configuration type: %T", config)
	}
}

// validateGlobalConfig checks a GlobalConfig for invalid field values.
func validateGlobalConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("global configuration is nil")
	}

	var errs []string

	if cfg.Workers <= 0 {
		errs = append(errs, fmt.Sprintf("evaluation.workers must be positive, got %d", cfg.Workers))
	}
	if cfg.WindowPolicy == "" || !validPolicies[cfg.WindowPolicy] {
		errs = append(errs, fmt.Sprintf(
			"evaluation.window_policy %q is invalid, must be one of: within_window, always",
			cfg.WindowPolicy,
		))
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("evaluation.timezone %q is invalid: %v", cfg.Timezone, err))
	}
	if cfg.WatchDebounce != "" {
		if _, err := time.ParseDuration(cfg.WatchDebounce); err != nil {
			errs = append(errs, fmt.Sprintf("watch.debounce %q is invalid: %v", cfg.WatchDebounce, err))
		}
	}
	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL == "" {
		errs = append(errs, "notifications.slack.webhook_url must be set when notifications are enabled")
	}
	if cfg.Notifications.Alerts.MaxFailures < 0 || cfg.Notifications.Alerts.MaxOverdueTasks < 0 {
		errs = append(errs, "notifications.alerts thresholds must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("global config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// validateProjectConfig checks a ProjectConfig for invalid field values.
func validateProjectConfig(cfg *models.ProjectConfig) error {
	if cfg == nil {
		return fmt.Errorf("project configuration is nil")
	}

	var errs []string

	if cfg.WindowPolicy != "" && !validPolicies[cfg.WindowPolicy] {
		errs = append(errs, fmt.Sprintf(
			"window_policy %q is invalid, must be one of: within_window, always",
			cfg.WindowPolicy,
		))
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("timezone %q is invalid: %v", cfg.Timezone, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("project config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
