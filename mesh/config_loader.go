package mesh

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the service configuration from a YAML file. Fields the
// file omits keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks the cross-field constraints the drivers would otherwise
// reject mid-run.
func (c *Config) Validate() error {
	r := c.Registration
	switch r.Mode {
	case "pyramid", "nonrigid", "rigid":
	default:
		return fmt.Errorf("registration.mode must be pyramid, nonrigid or rigid, got %q", r.Mode)
	}
	if r.NumIterations < 1 {
		return fmt.Errorf("registration.numIterations must be >= 1, got %d", r.NumIterations)
	}
	if r.Mode == "pyramid" && r.NumPyramidLayers < 1 {
		return fmt.Errorf("registration.numPyramidLayers must be >= 1, got %d", r.NumPyramidLayers)
	}
	for name, pct := range map[string]float64{
		"downsampleFloatStart":  r.DownsampleFloatStart,
		"downsampleFloatEnd":    r.DownsampleFloatEnd,
		"downsampleTargetStart": r.DownsampleTargetStart,
		"downsampleTargetEnd":   r.DownsampleTargetEnd,
	} {
		if pct < 0 || pct >= 100 {
			return fmt.Errorf("registration.%s must be in [0, 100), got %g", name, pct)
		}
	}
	if r.CorrespondencesNumNeighbours < 1 {
		return fmt.Errorf("registration.correspondencesNumNeighbours must be >= 1, got %d", r.CorrespondencesNumNeighbours)
	}
	if r.InlierKappa <= 0 {
		return fmt.Errorf("registration.inlierKappa must be positive, got %g", r.InlierKappa)
	}
	if r.Mode != "rigid" {
		if r.TransformSigma <= 0 {
			return fmt.Errorf("registration.transformSigma must be positive, got %g", r.TransformSigma)
		}
		if r.TransformNumNeighbours < 1 {
			return fmt.Errorf("registration.transformNumNeighbours must be >= 1, got %d", r.TransformNumNeighbours)
		}
	}
	if c.Snapshot.Dir != "" {
		if c.Snapshot.Every < 1 {
			return fmt.Errorf("snapshot.every must be >= 1, got %d", c.Snapshot.Every)
		}
		if c.Snapshot.Width < 1 || c.Snapshot.Height < 1 {
			return fmt.Errorf("snapshot dimensions must be positive, got %dx%d", c.Snapshot.Width, c.Snapshot.Height)
		}
	}
	return nil
}
