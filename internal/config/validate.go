package config

import (
	"errors"
	"fmt"
	"net/url"

	log "github.com/sirupsen/logrus"
)

func (c *Config) Validate() error {
	// Backend
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url %q must be an absolute http(s) URL", c.Backend.BaseURL)
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("backend.timeout must be positive")
	}
	if c.Backend.RateLimit < 0 {
		return errors.New("backend.rate_limit must not be negative")
	}

	// Pipeline
	p := c.Pipeline
	if p.SampleSize <= 0 {
		return errors.New("pipeline.sample_size must be a positive integer")
	}
	if len(p.Preprocessing.Steps) == 0 {
		return errors.New("pipeline.preprocessing.steps must list at least one step")
	}
	for i, s := range p.Preprocessing.Steps {
		if s == "" {
			return fmt.Errorf("pipeline.preprocessing.steps[%d] is empty", i)
		}
	}
	if p.Classification.BatchSize <= 0 {
		return errors.New("pipeline.classification.batch_size must be a positive integer")
	}
	if p.Classification.Threshold <= 0 || p.Classification.Threshold > 1 {
		return fmt.Errorf("pipeline.classification.threshold (%v) must be in (0, 1]", p.Classification.Threshold)
	}
	if p.Intervals.Extraction <= 0 || p.Intervals.Preprocessing <= 0 || p.Intervals.Classification <= 0 {
		return errors.New("pipeline.intervals must all be positive")
	}
	if p.MaxPollDuration < 0 {
		return errors.New("pipeline.max_poll_duration must not be negative")
	}

	// Database
	switch c.Database.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver %q must be one of sqlite, postgres, none", c.Database.Driver)
	}

	// Logging
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}

	return nil
}
