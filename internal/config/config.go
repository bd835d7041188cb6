// Package config holds the programme scraper settings: where the listing
// lives, which filter it is queried with, and how the festival calendar maps
// onto timestamps.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrMissingBaseURL    = errors.New("base_url is required")
	ErrMissingPath       = errors.New("programme_path is required")
	ErrInvalidYear       = errors.New("year must be between 1900 and 9999")
	ErrInvalidOffset     = errors.New("utc_offset_hours must be between -12 and 14")
	ErrNegativeDelay     = errors.New("delay must be non-negative")
	ErrNegativeMaxPages  = errors.New("max_pages must be non-negative")
	ErrReservedPageParam = errors.New("query must not set page")
)

type Config struct {
	BaseURL        string            `yaml:"base_url"`
	ProgrammePath  string            `yaml:"programme_path"`
	Query          map[string]string `yaml:"query"`
	UserAgent      string            `yaml:"user_agent"`
	Year           int               `yaml:"year"`
	UTCOffsetHours int               `yaml:"utc_offset_hours"`
	Delay          time.Duration     `yaml:"delay"`
	MaxPages       int               `yaml:"max_pages"`
}

func Default() *Config {
	return &Config{
		BaseURL:       "https://www.berlinale.de",
		ProgrammePath: "/en/programme/programme/berlinale-programme.html",
		Query: map[string]string{
			"film_nums":   "377",
			"section_id":  "0",
			"country_id":  "0",
			"order_by":    "1",
			"documentary": "",
			"screenings":  "efm_festival",
		},
		UserAgent:      "berlinale-programme/1.0",
		Year:           2020,
		UTCOffsetHours: 1,
		Delay:          time.Second,
		MaxPages:       0,
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default value; query entries in the file are merged over the default
// filter.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	query := cfg.Query
	cfg.Query = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	for k, v := range cfg.Query {
		query[k] = v
	}
	cfg.Query = query

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if c.ProgrammePath == "" {
		return ErrMissingPath
	}
	if c.Year < 1900 || c.Year > 9999 {
		return ErrInvalidYear
	}
	if c.UTCOffsetHours < -12 || c.UTCOffsetHours > 14 {
		return ErrInvalidOffset
	}
	if c.Delay < 0 {
		return ErrNegativeDelay
	}
	if c.MaxPages < 0 {
		return ErrNegativeMaxPages
	}
	if _, ok := c.Query["page"]; ok {
		return ErrReservedPageParam
	}
	return nil
}
