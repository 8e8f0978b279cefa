// Package config loads earlywire's tunable settings.
//
// The file may be YAML or JSON (JSON is a subset of YAML 1.2); missing
// fields keep their baked-in defaults, so a config file only needs to
// name what it overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abelbrown/earlywire/internal/anomaly"
	"github.com/abelbrown/earlywire/internal/cascade"
)

// Config is the full application configuration.
type Config struct {
	DBPath  string        `json:"db_path" yaml:"db_path"`
	Cascade CascadeConfig `json:"cascade" yaml:"cascade"`
	Anomaly AnomalyConfig `json:"anomaly" yaml:"anomaly"`
}

// CascadeConfig overlays the classifier's lexicon and thresholds.
type CascadeConfig struct {
	SignificanceTerms   []string `json:"significance_terms" yaml:"significance_terms"`
	StopWords           []string `json:"stop_words" yaml:"stop_words"`
	SimilarityThreshold float64  `json:"similarity_threshold" yaml:"similarity_threshold"`
	FreshWindowMinutes  int      `json:"fresh_window_minutes" yaml:"fresh_window_minutes"`
	MinCorroborating    int      `json:"min_corroborating" yaml:"min_corroborating"`
}

// AnomalyConfig overlays the detector's thresholds.
type AnomalyConfig struct {
	WindowHours    float64 `json:"window_hours" yaml:"window_hours"`
	RatioThreshold float64 `json:"ratio_threshold" yaml:"ratio_threshold"`
	MinObserved    int     `json:"min_observed" yaml:"min_observed"`
}

// Default returns the baked-in configuration.
func Default() Config {
	cc := cascade.DefaultConfig()
	ac := anomaly.DefaultConfig()
	return Config{
		Cascade: CascadeConfig{
			SignificanceTerms:   cc.SignificanceTerms,
			StopWords:           cc.StopWords,
			SimilarityThreshold: cc.SimilarityThreshold,
			FreshWindowMinutes:  int(cc.FreshWindow / time.Minute),
			MinCorroborating:    cc.MinCorroborating,
		},
		Anomaly: AnomalyConfig{
			WindowHours:    ac.WindowHours,
			RatioThreshold: ac.RatioThreshold,
			MinObserved:    ac.MinObserved,
		},
	}
}

// Load reads the file at path and merges it over the defaults. A missing
// path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if len(data) == 0 {
		return cfg, errors.New("empty config file")
	}

	var parsed Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &parsed); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	return Merge(cfg, parsed), nil
}

// Merge overlays non-zero fields from override onto base.
func Merge(base, override Config) Config {
	if strings.TrimSpace(override.DBPath) != "" {
		base.DBPath = override.DBPath
	}
	if len(override.Cascade.SignificanceTerms) > 0 {
		base.Cascade.SignificanceTerms = override.Cascade.SignificanceTerms
	}
	if len(override.Cascade.StopWords) > 0 {
		base.Cascade.StopWords = override.Cascade.StopWords
	}
	if override.Cascade.SimilarityThreshold > 0 {
		base.Cascade.SimilarityThreshold = override.Cascade.SimilarityThreshold
	}
	if override.Cascade.FreshWindowMinutes > 0 {
		base.Cascade.FreshWindowMinutes = override.Cascade.FreshWindowMinutes
	}
	if override.Cascade.MinCorroborating > 0 {
		base.Cascade.MinCorroborating = override.Cascade.MinCorroborating
	}
	if override.Anomaly.WindowHours > 0 {
		base.Anomaly.WindowHours = override.Anomaly.WindowHours
	}
	if override.Anomaly.RatioThreshold > 0 {
		base.Anomaly.RatioThreshold = override.Anomaly.RatioThreshold
	}
	if override.Anomaly.MinObserved > 0 {
		base.Anomaly.MinObserved = override.Anomaly.MinObserved
	}
	return base
}

// ClassifierConfig converts the overlay into the classifier's native config.
func (c Config) ClassifierConfig() cascade.Config {
	return cascade.Config{
		SignificanceTerms:   c.Cascade.SignificanceTerms,
		StopWords:           c.Cascade.StopWords,
		SimilarityThreshold: c.Cascade.SimilarityThreshold,
		FreshWindow:         time.Duration(c.Cascade.FreshWindowMinutes) * time.Minute,
		MinCorroborating:    c.Cascade.MinCorroborating,
	}
}

// DetectorConfig converts the overlay into the detector's native config.
func (c Config) DetectorConfig() anomaly.Config {
	return anomaly.Config{
		WindowHours:    c.Anomaly.WindowHours,
		RatioThreshold: c.Anomaly.RatioThreshold,
		MinObserved:    c.Anomaly.MinObserved,
	}
}
