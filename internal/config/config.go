// Package config loads the tracker's tunable parameters (spec §6).
// Configuration is read once at startup; tracker.New takes the Config
// by value and keeps its own copy, which the tracker never mutates.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyt-labs/auto-aim/internal/motion"
)

// Config is the root configuration for the tracking subsystem. Load
// unmarshals a file onto DefaultConfig, so a partial file only
// overrides the fields it names and the defaults supply everything
// else.
type Config struct {
	Tracker     TrackerConfig     `json:"tracker"`
	EKF         EKFConfig         `json:"ekf"`
	TargetFrame string            `json:"target_frame,omitempty"`
}

// TrackerConfig mirrors spec §6's tracker.* keys.
type TrackerConfig struct {
	MaxMatchDistance float64 `json:"max_match_distance"`
	MaxMatchYawDiff  float64 `json:"max_match_yaw_diff"`
	TrackingThres    int     `json:"tracking_thres"`
	LostTimeThres    float64 `json:"lost_time_thres"`
}

// EKFConfig mirrors spec §6's ekf.* keys.
type EKFConfig struct {
	SigmaQX              float64 `json:"sigma2_q_x"`
	SigmaQY              float64 `json:"sigma2_q_y"`
	SigmaQZ              float64 `json:"sigma2_q_z"`
	SigmaQYaw            float64 `json:"sigma2_q_yaw"`
	SigmaQR              float64 `json:"sigma2_q_r"`
	Rx                   float64 `json:"r_x"`
	Ry                   float64 `json:"r_y"`
	Rz                   float64 `json:"r_z"`
	Ryaw                 float64 `json:"r_yaw"`
	ReplicateSourceQuirk bool    `json:"replicate_source_quirk"`
}

// DefaultConfig returns spec §6's production defaults.
func DefaultConfig() Config {
	return Config{
		Tracker: TrackerConfig{
			MaxMatchDistance: 0.2,
			MaxMatchYawDiff:  1.0,
			TrackingThres:    5,
			LostTimeThres:    0.3,
		},
		EKF: EKFConfig{
			SigmaQX:   20,
			SigmaQY:   20,
			SigmaQZ:   20,
			SigmaQYaw: 100,
			SigmaQR:   800,
			Rx:        0.05,
			Ry:        0.05,
			Rz:        0.05,
			Ryaw:      0.02,
		},
		TargetFrame: "odom",
	}
}

// Load reads a JSON file at path and overlays it onto DefaultConfig,
// validating the result. A missing or empty path is not an error —
// the caller gets the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("config: file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", cleanPath, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", cleanPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: invalid: %w", err)
	}

	return cfg, nil
}

// Validate checks that every threshold is in a sane range.
func (c Config) Validate() error {
	if c.Tracker.MaxMatchDistance <= 0 {
		return fmt.Errorf("tracker.max_match_distance must be positive, got %v", c.Tracker.MaxMatchDistance)
	}
	if c.Tracker.MaxMatchYawDiff <= 0 {
		return fmt.Errorf("tracker.max_match_yaw_diff must be positive, got %v", c.Tracker.MaxMatchYawDiff)
	}
	if c.Tracker.TrackingThres <= 0 {
		return fmt.Errorf("tracker.tracking_thres must be positive, got %v", c.Tracker.TrackingThres)
	}
	if c.Tracker.LostTimeThres <= 0 {
		return fmt.Errorf("tracker.lost_time_thres must be positive, got %v", c.Tracker.LostTimeThres)
	}
	for name, v := range map[string]float64{
		"ekf.sigma2_q_x":   c.EKF.SigmaQX,
		"ekf.sigma2_q_y":   c.EKF.SigmaQY,
		"ekf.sigma2_q_z":   c.EKF.SigmaQZ,
		"ekf.sigma2_q_yaw": c.EKF.SigmaQYaw,
		"ekf.sigma2_q_r":   c.EKF.SigmaQR,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %v", name, v)
		}
	}
	return nil
}

// NoiseConfig converts the JSON-facing EKFConfig into the motion
// package's NoiseConfig.
func (c Config) NoiseConfig() motion.NoiseConfig {
	return motion.NoiseConfig{
		SigmaQX:              c.EKF.SigmaQX,
		SigmaQY:              c.EKF.SigmaQY,
		SigmaQZ:              c.EKF.SigmaQZ,
		SigmaQYaw:            c.EKF.SigmaQYaw,
		SigmaQR:              c.EKF.SigmaQR,
		Rx:                   c.EKF.Rx,
		Ry:                   c.EKF.Ry,
		Rz:                   c.EKF.Rz,
		Ryaw:                 c.EKF.Ryaw,
		ReplicateSourceQuirk: c.EKF.ReplicateSourceQuirk,
	}
}
