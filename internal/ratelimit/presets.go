package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// PresetName names a pre-tuned Config for a class of operation.
type PresetName string

const (
	PresetAuth   PresetName = "auth"
	PresetAPI    PresetName = "api"
	PresetUpload PresetName = "upload"
	PresetSearch PresetName = "search"
	PresetEmail  PresetName = "email"
)

// presetOrder fixes the listing order of the catalog.
var presetOrder = []PresetName{PresetAuth, PresetAPI, PresetUpload, PresetSearch, PresetEmail}

// Authentication and email get small budgets with long lockouts; search and
// general API traffic are liberal; uploads sit in between.
var presets = map[PresetName]Config{
	PresetAuth: {
		Name:                   string(PresetAuth),
		Window:                 15 * time.Minute,
		MaxRequests:            5,
		BlockDuration:          30 * time.Minute,
		SkipSuccessfulRequests: true,
	},
	PresetAPI: {
		Name:        string(PresetAPI),
		Window:      time.Minute,
		MaxRequests: 100,
	},
	PresetUpload: {
		Name:          string(PresetUpload),
		Window:        time.Minute,
		MaxRequests:   10,
		BlockDuration: 5 * time.Minute,
	},
	PresetSearch: {
		Name:        string(PresetSearch),
		Window:      time.Minute,
		MaxRequests: 200,
	},
	PresetEmail: {
		Name:          string(PresetEmail),
		Window:        time.Hour,
		MaxRequests:   10,
		BlockDuration: time.Hour,
	},
}

// Preset returns a copy of the named config.
func Preset(name PresetName) (Config, error) {
	cfg, ok := presets[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownPreset, string(name))
	}
	return cfg, nil
}

// MustPreset is like Preset but panics on an unknown name.
func MustPreset(name PresetName) Config {
	cfg, err := Preset(name)
	if err != nil {
		panic(err)
	}
	return cfg
}

// ParsePresetName resolves a user-supplied preset name.
func ParsePresetName(s string) (PresetName, error) {
	name := PresetName(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := presets[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPreset, s)
	}
	return name, nil
}

// PresetNames lists the catalog in a stable order.
func PresetNames() []PresetName {
	return append([]PresetName(nil), presetOrder...)
}

// Presets returns copies of every catalog config in PresetNames order.
func Presets() []Config {
	out := make([]Config, 0, len(presetOrder))
	for _, name := range presetOrder {
		out = append(out, presets[name])
	}
	return out
}
