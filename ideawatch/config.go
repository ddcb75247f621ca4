package ideawatch

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config configures the ideawatch service.
type Config struct {
	// SimilarityThreshold is the minimum score (inclusive) of a competitor.
	SimilarityThreshold int `yaml:"similarity_threshold"`
	// MaxCandidates caps the listings scored per scan.
	MaxCandidates int `yaml:"max_candidates"`
	// MaxDigestItems caps the competitors in one notification.
	MaxDigestItems int `yaml:"max_digest_items"`
	ScoreWorkers   int `yaml:"score_workers"`

	SourceTimeout time.Duration `yaml:"source_timeout"`
	AITimeout     time.Duration `yaml:"ai_timeout"`
	// AIMinInterval is the global minimum delay between two model calls.
	// Negative disables the gate.
	AIMinInterval time.Duration `yaml:"ai_min_interval"`
	AIMaxAttempts int           `yaml:"ai_max_attempts"`
	AIBaseBackoff time.Duration `yaml:"ai_base_backoff"`

	// MonitorInterval is the minimum time between two monitoring scans.
	MonitorInterval time.Duration `yaml:"monitor_interval"`
	// MonitorCron is when the scheduler looks for due ideas (UTC).
	MonitorCron string `yaml:"monitor_cron"`

	QueueVisibility time.Duration `yaml:"queue_visibility"`
	QueueWorkers    int           `yaml:"queue_workers"`
	QueuePoll       time.Duration `yaml:"queue_poll"`

	// EnableAnalysis turns on the verdict and gap calls.
	EnableAnalysis *bool `yaml:"enable_analysis"`
	// BaseURL is the public address used in feedback and unsubscribe links.
	BaseURL string `yaml:"base_url"`
	// MaxImageBytes bounds a decoded submission image.
	MaxImageBytes int `yaml:"max_image_bytes"`

	Sources SourcesConfig `yaml:"sources"`
}

// LoadConfig reads a YAML config file. Unset fields keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ideawatch: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ideawatch: parse config %s: %w", path, err)
	}
	cfg.defaults()
	return &cfg, nil
}

func (c *Config) defaults() {
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 60
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 15
	}
	if c.MaxDigestItems <= 0 {
		c.MaxDigestItems = 5
	}
	if c.ScoreWorkers <= 0 {
		c.ScoreWorkers = 3
	}
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = 30 * time.Second
	}
	if c.AITimeout <= 0 {
		c.AITimeout = 60 * time.Second
	}
	if c.AIMinInterval == 0 {
		c.AIMinInterval = 4 * time.Second
	}
	if c.AIMaxAttempts <= 0 {
		c.AIMaxAttempts = 4
	}
	if c.AIBaseBackoff <= 0 {
		c.AIBaseBackoff = 2 * time.Second
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 7 * 24 * time.Hour
	}
	if c.MonitorCron == "" {
		c.MonitorCron = "0 9 * * 1"
	}
	if c.QueueVisibility <= 0 {
		c.QueueVisibility = 15 * time.Minute
	}
	if c.QueueWorkers <= 0 {
		c.QueueWorkers = 2
	}
	if c.QueuePoll <= 0 {
		c.QueuePoll = time.Second
	}
	if c.EnableAnalysis == nil {
		on := true
		c.EnableAnalysis = &on
	}
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = 5 << 20
	}
}
