// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package config loads the tuning knobs a probescript VM is constructed
// with from a TOML file, the way cmd/gprobe/config.go loads node
// configuration: a toml.Config with field names normalized to match the Go
// struct verbatim, decoded with naoina/toml.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/naoina/toml"
)

// tomlSettings keeps TOML keys identical to the Go struct field names and
// rejects unknown fields, rather than silently ignoring typos in a config
// file.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// VM carries the engine's tunable collector and heap parameters.
type VM struct {
	MinHeapSize  int64   // bytes; floor below which the heap budget never shrinks
	GrowthFactor float64 // heap_size = max(MinHeapSize, bytesAllocated*(1+GrowthFactor))
}

// Config is the top-level shape a probescript.toml file decodes into.
type Config struct {
	VM VM
}

// Defaults mirrors the Params zero-value behavior in package vm: a
// MinHeapSize of 0 there means "1MiB", a GrowthFactor of 0 means "1.0". This
// copy lets a config file override only the fields it cares about and leave
// the rest at those same defaults.
var Defaults = Config{
	VM: VM{
		MinHeapSize:  1 << 20,
		GrowthFactor: 1.0,
	},
}

// Load reads and decodes a TOML config file, starting from Defaults.
func Load(path string) (Config, error) {
	cfg := Defaults

	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	return cfg, err
}
