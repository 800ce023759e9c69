package models

// AlertConfig holds alert thresholds from .medicconf.
type AlertConfig struct {
	MaxFailures     int `yaml:"max_failures" mapstructure:"max_failures"`
	MaxOverdueTasks int `yaml:"max_overdue_tasks" mapstructure:"max_overdue_tasks"`
}

// SlackConfig holds the Slack webhook used for alert notifications.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// NotificationConfig groups the notification settings.
type NotificationConfig struct {
	Enabled bool        `yaml:"enabled" mapstructure:"enabled"`
	Slack   SlackConfig `yaml:"slack" mapstructure:"slack"`
	Alerts  AlertConfig `yaml:"alerts" mapstructure:"alerts"`
}

// GlobalConfig holds system-wide settings read from .medicconf via Viper.
type GlobalConfig struct {
	ProjectDir    string             `yaml:"project_dir" mapstructure:"project_dir"`
	ContactsGlob  string             `yaml:"contacts_glob" mapstructure:"contacts_glob"`
	Workers       int                `yaml:"workers" mapstructure:"workers"`
	WindowPolicy  WindowPolicy       `yaml:"window_policy" mapstructure:"window_policy"`
	Timezone      string             `yaml:"timezone" mapstructure:"timezone"`
	EventLog      bool               `yaml:"event_log" mapstructure:"event_log"`
	MetricsAddr   string             `yaml:"metrics_addr" mapstructure:"metrics_addr"`
	WatchDebounce string             `yaml:"watch_debounce" mapstructure:"watch_debounce"`
	Notifications NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
}

// ProjectConfig holds per-project settings read from a .medicrc file in the
// project directory.
type ProjectConfig struct {
	WindowPolicy WindowPolicy `yaml:"window_policy,omitempty" mapstructure:"window_policy"`
	Timezone     string       `yaml:"timezone,omitempty" mapstructure:"timezone"`
	ContactsGlob string       `yaml:"contacts_glob,omitempty" mapstructure:"contacts_glob"`
	Forms        []string     `yaml:"forms,omitempty" mapstructure:"forms"`
}

// MergedConfig combines global and project-specific configuration,
// with project settings taking precedence over global defaults.
type MergedConfig struct {
	GlobalConfig `yaml:",inline" mapstructure:",squash"`
	Project      *ProjectConfig `yaml:"project,omitempty" mapstructure:"project"`
}

// EffectiveWindowPolicy returns the project's policy when set, otherwise
// the global one.
func (m *MergedConfig) EffectiveWindowPolicy() WindowPolicy {
	if m.Project != nil && m.Project.WindowPolicy != "" {
		return m.Project.WindowPolicy
	}
	return m.WindowPolicy
}

// EffectiveTimezone returns the project's timezone when set, otherwise the
// global one.
func (m *MergedConfig) EffectiveTimezone() string {
	if m.Project != nil && m.Project.Timezone != "" {
		return m.Project.Timezone
	}
	return m.Timezone
}

// EffectiveContactsGlob returns the project's contacts glob when set,
// otherwise the global one.
func (m *MergedConfig) EffectiveContactsGlob() string {
	if m.Project != nil && m.Project.ContactsGlob != "" {
		return m.Project.ContactsGlob
	}
	return m.ContactsGlob
}
