// Package common provides shared configuration, logging and run statistics
// for the space-weather archiver.
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KI7MT/swx-archive/internal/archive"
)

// DefaultStations is the NMDB station list used when none is configured.
var DefaultStations = []string{
	"OULU", "APT", "CALG", "CALM", "DRBS",
	"INVK", "IRK2", "JUNG", "JUNG1", "KERG",
	"KIEL2", "LMKS", "PTFM", "PWNK", "ROME",
	"TERA", "THUL",
}

// Date layouts accepted for start/end, in order. The second is the
// day-first form typed at the interactive prompt.
var dateLayouts = []string{"2006-01-02", "02012006", "02/01/2006"}

// Date is a calendar day in UTC.
type Date struct {
	time.Time
}

// ParseDate parses a start/end date in any accepted layout.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{t}, nil
		}
	}
	return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD or DDMMYYYY)", s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseDate(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Date) MarshalYAML() (interface{}, error) {
	return d.Format("2006-01-02"), nil
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// ClickHouseConfig configures the optional ClickHouse mirror.
// An empty Host disables it.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Enabled reports whether the mirror is configured.
func (c ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

// Config holds everything a run needs. It is built once at the CLI boundary
// (defaults, env, YAML file, flags or prompts) and passed down.
type Config struct {
	DataDir     string        `yaml:"data_dir"`
	PlotDir     string        `yaml:"plot_dir"`
	Format      string        `yaml:"format"`
	Start       Date          `yaml:"start"`
	End         Date          `yaml:"end"`
	Sources     []string      `yaml:"sources"` // empty = all
	Stations    []string      `yaml:"stations"`
	Purge       bool          `yaml:"purge"`
	AssumeYes   bool          `yaml:"-"`
	Interactive bool          `yaml:"interactive"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	GOESDays    int           `yaml:"goes_days"`
	GFZIndex    string        `yaml:"gfz_index"`
	GFZStatus   string        `yaml:"gfz_status"`
	LogLevel    string        `yaml:"log_level"`

	// Collision overrides the key collision policy per source id
	// (keep-existing or prefer-incoming).
	Collision map[string]string `yaml:"collision"`

	// Endpoints overrides a source's URL per source id.
	Endpoints map[string]string `yaml:"endpoints"`

	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	return &Config{
		DataDir:     getEnv("SWX_DATA_DIR", "data"),
		PlotDir:     getEnv("SWX_PLOT_DIR", "plots"),
		Format:      getEnv("SWX_FORMAT", archive.FormatCSV),
		Start:       Date{time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
		End:         Date{today},
		Stations:    append([]string(nil), DefaultStations...),
		HTTPTimeout: getEnvDuration("SWX_HTTP_TIMEOUT", 30*time.Second),
		GOESDays:    3,
		GFZIndex:    "Kp",
		GFZStatus:   "def",
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		ClickHouse: ClickHouseConfig{
			Host:     getEnv("CLICKHOUSE_HOST", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "swx"),
			Table:    getEnv("CLICKHOUSE_TABLE", "observations"),
			User:     getEnv("CLICKHOUSE_USER", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},
	}
}

// LoadFile overlays a YAML file onto c. Keys absent from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if _, err := archive.CodecForFormat(c.Format); err != nil {
		return err
	}
	if c.End.Before(c.Start.Time) {
		return fmt.Errorf("end date %s is before start date %s", c.End, c.Start)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive, got %v", c.HTTPTimeout)
	}
	switch c.GOESDays {
	case 1, 3, 7:
	default:
		return fmt.Errorf("goes_days must be 1, 3 or 7, got %d", c.GOESDays)
	}
	for id, policy := range c.Collision {
		if _, err := archive.ParseCollisionPolicy(policy); err != nil {
			return fmt.Errorf("collision[%s]: %w", id, err)
		}
	}
	return nil
}

// Selected reports whether a source id is enabled for this run.
func (c *Config) Selected(id string) bool {
	if len(c.Sources) == 0 {
		return true
	}
	for _, s := range c.Sources {
		if strings.EqualFold(s, id) {
			return true
		}
	}
	return false
}

// CollisionFor returns the collision policy for a source id.
func (c *Config) CollisionFor(id string, fallback archive.CollisionPolicy) archive.CollisionPolicy {
	if v, ok := c.Collision[id]; ok {
		if p, err := archive.ParseCollisionPolicy(v); err == nil {
			return p
		}
	}
	return fallback
}

// ArchivePath returns the archive file for a source directory and base name.
func (c *Config) ArchivePath(dir, name string) string {
	codec, err := archive.CodecForFormat(c.Format)
	if err != nil {
		codec, _ = archive.CodecForFormat(archive.FormatCSV)
	}
	return filepath.Join(c.DataDir, dir, name+codec.Ext())
}

// OutputDirs lists the directories a purge removes.
func (c *Config) OutputDirs() []string {
	return []string{c.DataDir, c.PlotDir}
}

// NormalizeStations upper-cases and trims station codes, dropping blanks.
func NormalizeStations(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
