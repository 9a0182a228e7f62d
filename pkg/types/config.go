package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// weightTolerance bounds the rounding error accepted when eligibility
// weights are checked to sum to one.
const weightTolerance = 1e-9

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "evidence-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// ScreeningConfig holds settings for title/abstract screening.
type ScreeningConfig struct {
	// Topic selects the rule pack (e.g. "resveratrol_t2d").
	Topic string `json:"topic" yaml:"topic" mapstructure:"topic"`

	// HighThreshold is the minimum relevance score for include (default 0.7).
	HighThreshold float64 `json:"high_threshold" yaml:"high_threshold" mapstructure:"high_threshold"`

	// MidThreshold is the minimum relevance score for maybe (default 0.5).
	MidThreshold float64 `json:"mid_threshold" yaml:"mid_threshold" mapstructure:"mid_threshold"`

	// NegativeCeiling is the score below which a negative-rule hit excludes
	// the citation outright (default 0.5).
	NegativeCeiling float64 `json:"negative_ceiling" yaml:"negative_ceiling" mapstructure:"negative_ceiling"`

	// Workers bounds the number of citations screened concurrently (default 4).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// DefaultScreeningConfig returns the screening defaults.
func DefaultScreeningConfig() ScreeningConfig {
	return ScreeningConfig{
		Topic:           "resveratrol_t2d",
		HighThreshold:   0.7,
		MidThreshold:    0.5,
		NegativeCeiling: 0.5,
		Workers:         4,
	}
}

// Validate fails fast on thresholds outside [0,1] or out of order.
func (c ScreeningConfig) Validate() error {
	if c.Topic == "" {
		return errors.New("screening.topic is required")
	}
	if err := unitInterval("screening.high_threshold", c.HighThreshold); err != nil {
		return err
	}
	if err := unitInterval("screening.mid_threshold", c.MidThreshold); err != nil {
		return err
	}
	if err := unitInterval("screening.negative_ceiling", c.NegativeCeiling); err != nil {
		return err
	}
	if c.MidThreshold > c.HighThreshold {
		return fmt.Errorf("screening.mid_threshold %.4g exceeds high_threshold %.4g", c.MidThreshold, c.HighThreshold)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("screening.workers must be positive, got %d", c.Workers)
	}
	return nil
}

// EligibilityWeights weights the three PICO checks of full-text screening.
type EligibilityWeights struct {
	Design     float64 `json:"design" yaml:"design" mapstructure:"design"`
	Population float64 `json:"population" yaml:"population" mapstructure:"population"`
	Outcomes   float64 `json:"outcomes" yaml:"outcomes" mapstructure:"outcomes"`
}

// Sum returns the total weight.
func (w EligibilityWeights) Sum() float64 {
	return w.Design + w.Population + w.Outcomes
}

// EligibilityConfig holds settings for full-text screening.
type EligibilityConfig struct {
	Weights EligibilityWeights `json:"weights" yaml:"weights" mapstructure:"weights"`

	// IncludeThreshold is the minimum eligibility score for include (default 0.75).
	IncludeThreshold float64 `json:"include_threshold" yaml:"include_threshold" mapstructure:"include_threshold"`

	// ReviewThreshold is the minimum score flagged for human review (default 0.55).
	ReviewThreshold float64 `json:"review_threshold" yaml:"review_threshold" mapstructure:"review_threshold"`

	// Concurrency bounds in-flight full-text fetches (default 4).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// FetchTimeout bounds one full-text fetch; a timeout counts as unavailable.
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
}

// DefaultEligibilityConfig returns the full-text screening defaults.
func DefaultEligibilityConfig() EligibilityConfig {
	return EligibilityConfig{
		Weights:          EligibilityWeights{Design: 0.4, Population: 0.3, Outcomes: 0.3},
		IncludeThreshold: 0.75,
		ReviewThreshold:  0.55,
		Concurrency:      4,
		FetchTimeout:     30 * time.Second,
	}
}

// Validate fails fast on weights that do not sum to one or bad thresholds.
func (c EligibilityConfig) Validate() error {
	for _, w := range []struct {
		name string
		v    float64
	}{
		{"eligibility.weights.design", c.Weights.Design},
		{"eligibility.weights.population", c.Weights.Population},
		{"eligibility.weights.outcomes", c.Weights.Outcomes},
	} {
		if err := unitInterval(w.name, w.v); err != nil {
			return err
		}
	}
	if sum := c.Weights.Sum(); math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("eligibility.weights sum to %.6g, want 1", sum)
	}
	if err := unitInterval("eligibility.include_threshold", c.IncludeThreshold); err != nil {
		return err
	}
	if err := unitInterval("eligibility.review_threshold", c.ReviewThreshold); err != nil {
		return err
	}
	if c.ReviewThreshold > c.IncludeThreshold {
		return fmt.Errorf("eligibility.review_threshold %.4g exceeds include_threshold %.4g", c.ReviewThreshold, c.IncludeThreshold)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("eligibility.concurrency must be positive, got %d", c.Concurrency)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("eligibility.fetch_timeout must be positive, got %v", c.FetchTimeout)
	}
	return nil
}

// FulltextConfig selects and configures the full-text collaborator.
type FulltextConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Dir serves full text from <dir>/<id>.md files.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// URL is the base URL of an extraction service.
	URL string `json:"url" yaml:"url" mapstructure:"url"`

	// APIKey is sent as a bearer token to the extraction service.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// RateLimit is the sustained request rate per second (0 = unlimited).
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`

	// Burst is the number of requests allowed above RateLimit (default 1).
	Burst int `json:"burst" yaml:"burst" mapstructure:"burst"`

	// MaxRetries is the number of retries on 429/503 responses (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// Validate requires exactly one source.
func (c FulltextConfig) Validate() error {
	switch {
	case c.Dir == "" && c.URL == "":
		return errors.New("fulltext: provide a directory or a service URL")
	case c.Dir != "" && c.URL != "":
		return errors.New("fulltext: directory and service URL are mutually exclusive")
	case c.RateLimit < 0:
		return fmt.Errorf("fulltext.rate_limit must not be negative, got %g", c.RateLimit)
	}
	return nil
}

// PoolingConfig holds settings for the statistical pooling engine.
type PoolingConfig struct {
	// Model is fixed or random. There is no implicit default inside the engine.
	Model PoolingModel `json:"model" yaml:"model" mapstructure:"model"`

	// Z is the normal quantile for confidence intervals (default 1.96).
	Z float64 `json:"z" yaml:"z" mapstructure:"z"`

	// MinK is the minimum number of usable studies to pool (default 1).
	MinK int `json:"min_k" yaml:"min_k" mapstructure:"min_k"`
}

// DefaultPoolingConfig returns pooling defaults with the random-effects model.
func DefaultPoolingConfig() PoolingConfig {
	return PoolingConfig{Model: ModelRandom, Z: 1.96, MinK: 1}
}

// Validate rejects unknown models and non-positive quantiles.
func (c PoolingConfig) Validate() error {
	if _, err := ParsePoolingModel(string(c.Model)); err != nil {
		return fmt.Errorf("pooling.model: %w", err)
	}
	if c.Z <= 0 || math.IsNaN(c.Z) {
		return fmt.Errorf("pooling.z must be positive, got %g", c.Z)
	}
	if c.MinK < 1 {
		return fmt.Errorf("pooling.min_k must be at least 1, got %d", c.MinK)
	}
	return nil
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	// Level is debug, info, warn, or error (default info).
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is json or console (default console).
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// LedgerConfig holds settings for the SQLite decision ledger.
type LedgerConfig struct {
	// Dir is the directory containing ledger.db.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// EngineConfig groups all stage configurations.
type EngineConfig struct {
	Screening   ScreeningConfig   `json:"screening" yaml:"screening" mapstructure:"screening"`
	Eligibility EligibilityConfig `json:"eligibility" yaml:"eligibility" mapstructure:"eligibility"`
	Fulltext    FulltextConfig    `json:"fulltext" yaml:"fulltext" mapstructure:"fulltext"`
	Pooling     PoolingConfig     `json:"pooling" yaml:"pooling" mapstructure:"pooling"`
	Log         LogConfig         `json:"log" yaml:"log" mapstructure:"log"`
	Ledger      LedgerConfig      `json:"ledger" yaml:"ledger" mapstructure:"ledger"`
}

func unitInterval(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%s %g out of range [0,1]", name, v)
	}
	return nil
}
