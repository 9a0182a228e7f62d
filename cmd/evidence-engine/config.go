// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// setDefaults registers every configuration key so that environment
// variables reach viper.Unmarshal. screening.topic is bound without a
// default so the protocol's topic can apply when nothing else sets it.
func setDefaults() {
	sc := types.DefaultScreeningConfig()
	viper.SetDefault("screening.high_threshold", sc.HighThreshold)
	viper.SetDefault("screening.mid_threshold", sc.MidThreshold)
	viper.SetDefault("screening.negative_ceiling", sc.NegativeCeiling)
	viper.SetDefault("screening.workers", sc.Workers)
	_ = viper.BindEnv("screening.topic")
	viper.SetDefault("screening.scorer", "heuristic")
	viper.SetDefault("screening.model_file", "")
	viper.SetDefault("screening.rules_file", "")

	el := types.DefaultEligibilityConfig()
	viper.SetDefault("eligibility.weights.design", el.Weights.Design)
	viper.SetDefault("eligibility.weights.population", el.Weights.Population)
	viper.SetDefault("eligibility.weights.outcomes", el.Weights.Outcomes)
	viper.SetDefault("eligibility.include_threshold", el.IncludeThreshold)
	viper.SetDefault("eligibility.review_threshold", el.ReviewThreshold)
	viper.SetDefault("eligibility.concurrency", el.Concurrency)
	viper.SetDefault("eligibility.fetch_timeout", el.FetchTimeout)

	viper.SetDefault("fulltext.dir", "")
	viper.SetDefault("fulltext.url", "")
	viper.SetDefault("fulltext.api_key", "")
	viper.SetDefault("fulltext.rate_limit", 0)
	viper.SetDefault("fulltext.burst", 1)
	viper.SetDefault("fulltext.max_retries", 3)
	viper.SetDefault("fulltext.timeout", "60s")
	viper.SetDefault("fulltext.user_agent", "evidence-engine/"+version)

	pc := types.DefaultPoolingConfig()
	viper.SetDefault("pooling.model", string(pc.Model))
	viper.SetDefault("pooling.z", pc.Z)
	viper.SetDefault("pooling.min_k", pc.MinK)
}

// loadConfig decodes the merged flag, environment, file and default values.
func loadConfig() (types.EngineConfig, error) {
	var cfg types.EngineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	return cfg, nil
}

func bindFlag(key string, f *pflag.Flag) {
	if err := viper.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", f.Name, err))
	}
}

// loadProtocol reads a review protocol from YAML or JSON and validates it.
func loadProtocol(path string) (types.Protocol, error) {
	var p types.Protocol
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("reading protocol: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parsing protocol %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("protocol %s: %w", path, err)
	}
	return p, nil
}

// writeOutput writes v to path as JSON when the extension is .json and as
// YAML otherwise.
func writeOutput(path string, v any) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = yaml.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
