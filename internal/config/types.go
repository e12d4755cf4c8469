// Package config defines the service configuration file and its hot-reload
// manager. The file is JSON or YAML (YAML is coerced to JSON so both share
// one strict decoder).
package config

import "strings"

type Config struct {
	Paths      PathsConfig      `json:"paths"`
	Logging    LoggingConfig    `json:"logging"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Retention  RetentionConfig  `json:"retention,omitempty"`
	Storage    StorageConfig    `json:"storage,omitempty"`
	Server     ServerConfig     `json:"server"`
	Classifier ClassifierConfig `json:"classifier,omitempty"`
}

// PathsConfig locates the filesystem layout: the staging area, the storage
// root of timestamp-named directories, the results directory and the
// schedule rule file.
type PathsConfig struct {
	Temp    string `json:"temp,omitempty"`    // default "./Temp"
	Storage string `json:"storage,omitempty"` // default "./Storage"
	Results string `json:"results,omitempty"` // default "./Results"
	Rules   string `json:"rules,omitempty"`   // default "./Scheduler/schedule_config.json"
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"` // TRACE..ERROR, default INFO
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SchedulerConfig controls the rule-poll cadence.
//
// PollInterval is a Go duration string and must stay below one minute so no
// matching minute is skipped; values at or above one minute are clamped.
type SchedulerConfig struct {
	Enabled      bool   `json:"enabled"`
	PollInterval string `json:"poll_interval,omitempty"` // default "20s"
	TaskTimeout  string `json:"task_timeout,omitempty"`  // default "5m"
	Timezone     string `json:"timezone,omitempty"`      // IANA TZ, e.g. "Asia/Jakarta"
}

type RetentionConfig struct {
	MaxAgeDays int `json:"max_age_days,omitempty"` // default 730
}

// StorageConfig controls the prediction row store.
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // "sqlite" or "none"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

type ServerConfig struct {
	Addr string `json:"addr,omitempty"` // default ":5000"
	// Origins allowed by CORS; empty allows none beyond same-origin.
	Origins []string `json:"origins,omitempty"`
	// UploadRatePerSec limits accepted uploads per second (0 = unlimited).
	UploadRatePerSec int `json:"upload_rate_per_sec,omitempty"`
}

// ClassifierConfig configures the external classifier command. The image
// path is appended as the last argument.
type ClassifierConfig struct {
	Command []string `json:"command,omitempty"`
	Timeout string   `json:"timeout,omitempty"` // Go duration string, default "2m"
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.Paths.Temp) == "" {
		c.Paths.Temp = "./Temp"
	}
	if strings.TrimSpace(c.Paths.Storage) == "" {
		c.Paths.Storage = "./Storage"
	}
	if strings.TrimSpace(c.Paths.Results) == "" {
		c.Paths.Results = "./Results"
	}
	if strings.TrimSpace(c.Paths.Rules) == "" {
		c.Paths.Rules = "./Scheduler/schedule_config.json"
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = ":5000"
	}
	if c.Retention.MaxAgeDays <= 0 {
		c.Retention.MaxAgeDays = 730
	}
	return c
}
