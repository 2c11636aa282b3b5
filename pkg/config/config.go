package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Request  RequestConfig  `yaml:"request"`
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Server   ServerConfig   `yaml:"server"`
	GPlates  GPlatesConfig  `yaml:"gplates"`
	Grid     GridConfig     `yaml:"grid"`
	Prefetch PrefetchConfig `yaml:"prefetch"`
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
	// CacheRetention bounds the response cache age; zero keeps forever.
	// Grid samples are never pruned.
	CacheRetention Duration `yaml:"cache_retention"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// GPlatesConfig holds settings for the GPlates Web Service.
type GPlatesConfig struct {
	BaseURL string `yaml:"base_url"`
	Contact string `yaml:"contact"` // included in the User-Agent
}

// GridConfig holds the sampling grid geometry.
// StepDeg is shared by the store, fetcher and interpolator; changing it
// invalidates nothing on disk (cache keys embed the coordinates) but
// queries only see corners aligned to the current step.
type GridConfig struct {
	StepDeg   float64 `yaml:"step_deg"`
	AgeStepMa int     `yaml:"age_step_ma"`
}

// PrefetchConfig holds settings for the prefetch worker pool.
type PrefetchConfig struct {
	Horizon int `yaml:"horizon"` // future ages to fetch ahead
	Workers int `yaml:"workers"` // bounded pool size
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(30 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(60 * time.Second),
			},
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path: "./data/fossiljourney.db",
		},
		Server: ServerConfig{
			Address: "localhost:1859",
		},
		GPlates: GPlatesConfig{
			BaseURL: "https://gws.gplates.org",
			Contact: "fossiljourney@ittoceaneon.example",
		},
		Grid: GridConfig{
			StepDeg:   5.0,
			AgeStepMa: 10,
		},
		Prefetch: PrefetchConfig{
			Horizon: 3,
			Workers: 4,
		},
	}
}

// Load reads the config file at path, filling gaps with defaults.
// If the file does not exist, it is created with the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Grid.StepDeg <= 0 {
		return fmt.Errorf("grid.step_deg must be positive, got %v", c.Grid.StepDeg)
	}
	if c.Grid.AgeStepMa <= 0 {
		return fmt.Errorf("grid.age_step_ma must be positive, got %d", c.Grid.AgeStepMa)
	}
	if c.Prefetch.Workers <= 0 {
		return fmt.Errorf("prefetch.workers must be positive, got %d", c.Prefetch.Workers)
	}
	if c.Prefetch.Horizon < 0 {
		return fmt.Errorf("prefetch.horizon must not be negative, got %d", c.Prefetch.Horizon)
	}
	return nil
}

// Save writes the config to disk.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Fossil Journey Tracker Configuration
# ------------------------------------
# Duration units: ns, us, ms, s, m, h, d (day), w (week)

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
