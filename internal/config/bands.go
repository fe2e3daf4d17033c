package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HSVRange is an inclusive OpenCV HSV range (H 0-180, S and V 0-255).
type HSVRange struct {
	Lower [3]float64 `yaml:"lower"`
	Upper [3]float64 `yaml:"upper"`
}

// HueBand describes a target colour as two HSV ranges so that hues
// wrapping around 180/0 (red) can be covered.
type HueBand struct {
	Name   string     `yaml:"name"`
	Ranges []HSVRange `yaml:"ranges"`
}

// Bands selects the colour bands used by the enhancer and by the
// dedicated colour pass of the cascade.
type Bands struct {
	Enhancer  HueBand `yaml:"enhancer"`
	ColorPass HueBand `yaml:"color_pass"`
}

// DefaultBands returns the red bands tuned for red-on-white codes.
func DefaultBands() Bands {
	return Bands{
		Enhancer: HueBand{
			Name: "red",
			Ranges: []HSVRange{
				{Lower: [3]float64{0, 70, 50}, Upper: [3]float64{10, 255, 255}},
				{Lower: [3]float64{170, 70, 50}, Upper: [3]float64{180, 255, 255}},
			},
		},
		ColorPass: HueBand{
			Name: "red",
			Ranges: []HSVRange{
				{Lower: [3]float64{0, 50, 50}, Upper: [3]float64{10, 255, 255}},
				{Lower: [3]float64{160, 50, 50}, Upper: [3]float64{180, 255, 255}},
			},
		},
	}
}

// LoadBands reads a YAML bands file. An empty path yields DefaultBands.
// Sections missing from the file keep their defaults.
func LoadBands(path string) (Bands, error) {
	bands := DefaultBands()
	if path == "" {
		return bands, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return bands, fmt.Errorf("failed to read bands file: %w", err)
	}

	var parsed Bands
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return bands, fmt.Errorf("failed to parse bands file %s: %w", path, err)
	}

	if len(parsed.Enhancer.Ranges) > 0 {
		if err := parsed.Enhancer.validate(); err != nil {
			return bands, err
		}
		bands.Enhancer = parsed.Enhancer
	}
	if len(parsed.ColorPass.Ranges) > 0 {
		if err := parsed.ColorPass.validate(); err != nil {
			return bands, err
		}
		bands.ColorPass = parsed.ColorPass
	}
	return bands, nil
}

func (b HueBand) validate() error {
	for i, r := range b.Ranges {
		if r.Lower[0] < 0 || r.Upper[0] > 180 || r.Lower[0] > r.Upper[0] {
			return fmt.Errorf("band %q range %d: hue must satisfy 0 <= lower <= upper <= 180", b.Name, i)
		}
		for c := 1; c < 3; c++ {
			if r.Lower[c] < 0 || r.Upper[c] > 255 || r.Lower[c] > r.Upper[c] {
				return fmt.Errorf("band %q range %d: saturation/value must satisfy 0 <= lower <= upper <= 255", b.Name, i)
			}
		}
	}
	return nil
}
