// Package qc computes quality-control flags for LEVEL3 instances.
package qc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Thresholds are the cutoffs applied by Evaluate.
type Thresholds struct {
	// Count is the minimum bead count for one instance.
	Count float64 `yaml:"count"`
	// MedianCount is the minimum median count across a well.
	MedianCount float64 `yaml:"mcount"`
	// ControlMedianMFI is the minimum median logMFI of the invariant control in a well.
	ControlMedianMFI float64 `yaml:"ctl_mmfi"`
	DynamicRange     float64 `yaml:"dr"`
	ErrorRate        float64 `yaml:"er"`
	VehicleMedian    float64 `yaml:"ctl_md"`
}

// DefaultThresholds returns the standard cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Count:            25,
		MedianCount:      25,
		ControlMedianMFI: 8,
		DynamicRange:     1.8,
		ErrorRate:        0.05,
		VehicleMedian:    6,
	}
}

// LoadThresholds reads a YAML file. Keys left out keep their defaults; an
// empty path returns the defaults.
func LoadThresholds(path string) (Thresholds, error) {
	th := DefaultThresholds()
	if path == "" {
		return th, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return th, fmt.Errorf("read thresholds: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&th); err != nil && !errors.Is(err, io.EOF) {
		return th, fmt.Errorf("parse thresholds %s: %w", path, err)
	}
	return th, nil
}
