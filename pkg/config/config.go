// Copyright 2022 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the trainlog toml configuration and carries the
// handful of runtime knobs that can also come from the environment.
package config

import (
	"context"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matrixorigin/trainlog/pkg/common/moerr"
	"github.com/matrixorigin/trainlog/pkg/logutil"
)

const (
	defaultDataDir            = "trainlog-data"
	defaultCheckpointInterval = 60_000 // ms
)

type Config struct {
	// DataDir anchors every relative path below.
	DataDir string `toml:"data-dir"`

	Log        logutil.LogConfig `toml:"log"`
	Checkpoint CheckpointConfig  `toml:"checkpoint"`
	Store      StoreConfig       `toml:"store"`
	Export     ExportConfig      `toml:"export"`
}

type CheckpointConfig struct {
	// Dir receives periodic snapshot files. Empty disables the file sink.
	Dir string `toml:"dir"`
	// IntervalMS is the flush period in milliseconds.
	IntervalMS int64 `toml:"interval-ms"`
	// Compress makes the file sink write lz4 frames.
	Compress bool `toml:"compress"`
}

type StoreConfig struct {
	// Path is the pebble directory of the run archive. Empty disables
	// the store sink.
	Path string `toml:"path"`
}

type ExportConfig struct {
	// Workers bounds the bulk csv export pool. 0 means one per CPU.
	Workers int `toml:"workers"`
}

// Load reads a toml file into a Config, fills defaults and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, moerr.NewBadConfig(context.TODO(), "%s: %v", path, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults fills every unset field, leaving set ones alone.
func (c *Config) SetDefaults() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.Checkpoint.IntervalMS == 0 {
		c.Checkpoint.IntervalMS = GetCheckpointInterval().Milliseconds()
	}
	if c.Export.Workers == 0 {
		c.Export.Workers = int(EnvOrDefaultInt[int32]("TRAINLOG_EXPORT_WORKERS", 0))
	}
	c.Log.Adjust()
}

func (c *Config) Validate() error {
	if c.Checkpoint.IntervalMS < 0 {
		return moerr.NewBadConfig(context.TODO(), "checkpoint interval-ms %d < 0", c.Checkpoint.IntervalMS)
	}
	if c.Export.Workers < 0 {
		return moerr.NewBadConfig(context.TODO(), "export workers %d < 0", c.Export.Workers)
	}
	return nil
}

// Apply pushes file values into the runtime knobs.
func (c *Config) Apply() {
	SetCheckpointInterval(time.Duration(c.Checkpoint.IntervalMS) * time.Millisecond)
	SetCheckpointCompress(c.Checkpoint.Compress)
}
