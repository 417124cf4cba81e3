// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Strict {
		t.Error("expected strict mode off by default")
	}
	if !cfg.StrictFatal {
		t.Error("expected strict_fatal on by default")
	}
	if cfg.ImmediatePrefetch {
		t.Error("expected immediate_prefetch off by default")
	}
	if cfg.PrefetchHigh != 5000 {
		t.Errorf("expected prefetch_high 5000, got %d", cfg.PrefetchHigh)
	}
	if cfg.PrefetchLow != 2500 {
		t.Errorf("expected prefetch_low 2500, got %d", cfg.PrefetchLow)
	}
	if !cfg.ProducerMandatory {
		t.Error("expected producer_mandatory on by default")
	}
	if cfg.ProducerImmediate {
		t.Error("expected producer_immediate off by default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Tuning)
		wantErr bool
	}{
		{
			name:    "default tuning is valid",
			modify:  func(t *Tuning) {},
			wantErr: false,
		},
		{
			name:    "zero high mark",
			modify:  func(t *Tuning) { t.PrefetchHigh = 0 },
			wantErr: true,
		},
		{
			name:    "negative low mark",
			modify:  func(t *Tuning) { t.PrefetchLow = -1 },
			wantErr: true,
		},
		{
			name: "low above high",
			modify: func(t *Tuning) {
				t.PrefetchHigh = 10
				t.PrefetchLow = 20
			},
			wantErr: true,
		},
		{
			name: "equal marks",
			modify: func(t *Tuning) {
				t.PrefetchHigh = 10
				t.PrefetchLow = 10
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected a validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	data := []byte("strict: true\nstrict_fatal: false\nprefetch_high: 100\nprefetch_low: 50\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Strict {
		t.Error("expected strict mode on")
	}
	if cfg.StrictFatal {
		t.Error("expected strict_fatal off")
	}
	if cfg.PrefetchHigh != 100 || cfg.PrefetchLow != 50 {
		t.Errorf("expected marks 100/50, got %d/%d", cfg.PrefetchHigh, cfg.PrefetchLow)
	}
	// Unset fields keep their defaults.
	if !cfg.ProducerMandatory {
		t.Error("expected producer_mandatory default preserved")
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	data := []byte("prefetch_high: 10\nprefetch_low: 20\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected a validation error for low > high")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
