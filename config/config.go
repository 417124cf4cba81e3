// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default prefetch watermarks. The high mark is the number of buffered
// messages at which the channel is suspended, the low mark the number at
// which it is resumed.
const (
	DefaultPrefetchHigh = 5000
	DefaultPrefetchLow  = 2500
)

// Tuning holds the process-wide session switches. A single Tuning value is
// injected into every session at construction; nothing reads it from global
// state.
type Tuning struct {
	// Strict rejects or degrades operations that are not covered by the
	// strict wire specification (selectors, browsers, durable subscribers).
	Strict bool `yaml:"strict"`

	// StrictFatal makes non-compliant operations fail under Strict rather
	// than silently degrade.
	StrictFatal bool `yaml:"strict_fatal"`

	// ImmediatePrefetch lets the broker push the prefetch window as soon as
	// a subscribe returns. When false the channel is kept suspended until
	// the first receive or listener assignment.
	ImmediatePrefetch bool `yaml:"immediate_prefetch"`

	// PrefetchHigh is the buffered-message count at which the channel is
	// suspended.
	PrefetchHigh int `yaml:"prefetch_high"`

	// PrefetchLow is the buffered-message count at which the channel is
	// resumed.
	PrefetchLow int `yaml:"prefetch_low"`

	// ProducerMandatory is the default mandatory flag for new producers.
	ProducerMandatory bool `yaml:"producer_mandatory"`

	// ProducerImmediate is the default immediate flag for new producers.
	ProducerImmediate bool `yaml:"producer_immediate"`
}

// Default returns the default tuning.
func Default() Tuning {
	return Tuning{
		Strict:            false,
		StrictFatal:       true,
		ImmediatePrefetch: false,
		PrefetchHigh:      DefaultPrefetchHigh,
		PrefetchLow:       DefaultPrefetchLow,
		ProducerMandatory: true,
		ProducerImmediate: false,
	}
}

// Load reads tuning from a YAML file, applying defaults for unset fields.
func Load(path string) (Tuning, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the tuning for consistency.
func (t Tuning) Validate() error {
	if t.PrefetchHigh <= 0 {
		return fmt.Errorf("prefetch_high must be positive, got %d", t.PrefetchHigh)
	}
	if t.PrefetchLow <= 0 {
		return fmt.Errorf("prefetch_low must be positive, got %d", t.PrefetchLow)
	}
	if t.PrefetchLow > t.PrefetchHigh {
		return fmt.Errorf("prefetch_low %d exceeds prefetch_high %d", t.PrefetchLow, t.PrefetchHigh)
	}
	return nil
}
