// CLAUDE:SUMMARY Configuration structs (db, notes, restore, bus, fetch, browser) and YAML loader for the contextmemo service.
package memo

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all contextmemo configuration.
type Config struct {
	DBPath   string        `yaml:"db_path"`
	Addr     string        `yaml:"addr"`
	TraceSQL bool          `yaml:"trace_sql"` // log every statement at debug level
	DB       DBConfig      `yaml:"db"`
	Notes    NotesConfig   `yaml:"notes"`
	Restore  RestoreConfig `yaml:"restore"`
	Bus      BusConfig     `yaml:"bus"`
	Fetch    FetchConfig   `yaml:"fetch"`
	Browser  BrowserConfig `yaml:"browser"`
}

// DBConfig tunes the SQLite connections.
type DBConfig struct {
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	Synchronous string        `yaml:"synchronous"` // off, normal, full or extra
}

// NotesConfig bounds note content.
type NotesConfig struct {
	MaxContentLen int `yaml:"max_content_len"` // runes
}

// RestoreConfig controls how notes are re-highlighted on page load.
type RestoreConfig struct {
	Delay   time.Duration `yaml:"delay"`
	Span    string        `yaml:"span"`    // "all" or "first"
	Styling string        `yaml:"styling"` // "auto", "class" or "inline"
}

// BusConfig controls tab messaging.
type BusConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// FetchConfig controls the HTTP page loader.
type FetchConfig struct {
	UserAgent    string        `yaml:"user_agent"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxBytes     int64         `yaml:"max_bytes"`
	AllowPrivate bool          `yaml:"allow_private"`
}

// BrowserConfig controls the headless browser used for script-rendered pages.
type BrowserConfig struct {
	Enabled   bool          `yaml:"enabled"`
	RemoteURL string        `yaml:"remote_url"`
	Settle    time.Duration `yaml:"settle"`
	NoStealth bool          `yaml:"no_stealth"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "contextmemo.db"
	}
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8420"
	}
	if c.DB.BusyTimeout <= 0 {
		c.DB.BusyTimeout = 10 * time.Second
	}
	if c.DB.Synchronous == "" {
		c.DB.Synchronous = "normal"
	}
	if c.Notes.MaxContentLen <= 0 {
		c.Notes.MaxContentLen = 16
	}
	if c.Restore.Delay <= 0 {
		c.Restore.Delay = 1500 * time.Millisecond
	}
	if c.Bus.RequestTimeout <= 0 {
		c.Bus.RequestTimeout = 5 * time.Second
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 << 20
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
