// Copyright 2026 The Quartz Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
)

// Config contains configuration options for one partition engine instance.
type Config struct {
	Log         Log         `toml:"log" json:"log"`
	Performance Performance `toml:"performance" json:"performance"`
}

// Log is the log section of config.
type Log struct {
	// Log level, one of debug, info, warn, error, fatal.
	Level string `toml:"level" json:"level"`
	// Log format, one of json or text.
	Format string `toml:"format" json:"format"`
	// Disable automatic timestamps in output.
	DisableTimestamp bool `toml:"disable-timestamp" json:"disable-timestamp"`
}

// Performance is the performance section of the config.
type Performance struct {
	// PlanCacheCapacity is the capacity of the compiled view plan cache.
	PlanCacheCapacity int `toml:"plan-cache-capacity" json:"plan-cache-capacity"`
}

var defaultConf = Config{
	Log: Log{
		Level:  "info",
		Format: "text",
	},
	Performance: Performance{
		PlanCacheCapacity: 128,
	},
}

var globalConf atomic.Pointer[Config]

func init() {
	conf := defaultConf
	StoreGlobalConfig(&conf)
}

// NewConfig creates a new config instance with default value.
func NewConfig() *Config {
	conf := defaultConf
	return &conf
}

// GetGlobalConfig returns the global configuration for this server.
// It should store configuration from command line and configuration file.
// Other parts of the system can read the global configuration use this
// function.
func GetGlobalConfig() *Config {
	return globalConf.Load()
}

// StoreGlobalConfig stores a new config to the globalConf.
func StoreGlobalConfig(config *Config) {
	globalConf.Store(config)
}

// Load loads config options from a toml file.
func (c *Config) Load(confFile string) error {
	_, err := toml.DecodeFile(confFile, c)
	return errors.Trace(err)
}

// Valid checks if this config is valid.
func (c *Config) Valid() error {
	if c.Performance.PlanCacheCapacity <= 0 {
		return errors.Errorf("invalid plan-cache-capacity %d", c.Performance.PlanCacheCapacity)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return errors.Errorf("invalid log level %q", c.Log.Level)
	}
	return nil
}
