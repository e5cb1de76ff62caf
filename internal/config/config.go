// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the daxd server configuration.
//
// Configuration is a small JSON document, optionally overridden by
// environment variables loaded from a ".env" file (see LoadDotEnv). The
// file is checked against an embedded JSON Schema before being decoded,
// the same "validate before decode" shape used by the teacher's
// pkg/schema.Validate.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/opendax/daxd/pkg/daxlog"
)

// ProgramConfig is the format of daxd's configuration file.
type ProgramConfig struct {
	// Addr is the TCP address the module wire protocol listener binds to.
	Addr string `json:"addr"`

	// HTTPAddr is the address of the introspection HTTP surface
	// (/metrics, /healthz, /debug/tags). Empty disables it.
	HTTPAddr string `json:"http-addr"`

	// User/Group to drop privileges to once the listener is bound.
	User  string `json:"user"`
	Group string `json:"group"`

	// LogLevel is one of trace, debug, info, notice, warn, err, crit.
	LogLevel string `json:"log-level"`
	LogDate  bool   `json:"log-date"`

	// TagArraySize is the initial and growth-increment size for the tag
	// array and name index (§4.B growth policy). 0 means use the default.
	TagArraySize int `json:"tag-array-size"`

	// NatsAddress, if non-empty, bridges module notification channels onto
	// NATS subjects in addition to their in-process delivery (see
	// internal/notify).
	NatsAddress string `json:"nats-address"`
}

// Keys holds the effective, possibly-overridden configuration. It is
// populated by Init and read by the rest of the program afterwards.
var Keys = ProgramConfig{
	Addr:         ":9500",
	HTTPAddr:     ":9600",
	LogLevel:     "info",
	LogDate:      false,
	TagArraySize: 1024,
}

// LoadDotEnv loads DAX_* environment variable overrides from file, if it
// exists. A missing file is not an error.
func LoadDotEnv(file string) error {
	if err := godotenv.Load(file); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}

// Init reads and validates flagConfigFile, merging it on top of the
// defaults in Keys. A missing file is not an error (defaults are used
// as-is); a malformed or schema-invalid file is fatal, matching the
// teacher's config.Init behavior.
func Init(flagConfigFile string) {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			daxlog.Fatal(err)
		}
		return
	}

	if err := Validate(bytes.NewReader(raw)); err != nil {
		daxlog.Fatalf("validate config: %v", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		daxlog.Fatal(err)
	}

	if Keys.Addr == "" {
		daxlog.Fatal("config: 'addr' must not be empty")
	}
}

// ApplyEnvOverrides lets a handful of settings be overridden by environment
// variables without touching the config file, mirroring the teacher's
// "env:" convention for secrets that should not live in a checked-in file.
func ApplyEnvOverrides() {
	if v := os.Getenv("DAX_ADDR"); v != "" {
		Keys.Addr = v
	}
	if v := os.Getenv("DAX_LOG_LEVEL"); v != "" {
		Keys.LogLevel = v
	}
	if v := os.Getenv("DAX_NATS_ADDRESS"); v != "" {
		Keys.NatsAddress = v
	}
}

func (c ProgramConfig) String() string {
	return fmt.Sprintf("addr=%s http-addr=%s log-level=%s tag-array-size=%d", c.Addr, c.HTTPAddr, c.LogLevel, c.TagArraySize)
}
