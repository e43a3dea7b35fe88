package recording

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profiles maps every quality preset to its encoder parameters.
type Profiles map[Quality]Profile

// DefaultProfiles returns the built-in preset table.
func DefaultProfiles() Profiles {
	return Profiles{
		QualityHigh: {
			VideoBitrate: 2_500_000,
			AudioBitrate: 128_000,
			Width:        1920,
			Height:       1080,
			FrameRate:    30,
		},
		QualityMedium: {
			VideoBitrate: 1_500_000,
			AudioBitrate: 96_000,
			Width:        1280,
			Height:       720,
			FrameRate:    30,
		},
		QualityLow: {
			VideoBitrate: 800_000,
			AudioBitrate: 64_000,
			Width:        854,
			Height:       480,
			FrameRate:    24,
		},
	}
}

// LoadProfiles returns the default table with any presets found in the YAML
// file at path merged over it. An empty path returns the defaults.
//
//	high:
//	  video_bitrate: 4000000
//	  frame_rate: 60
func LoadProfiles(path string) (Profiles, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profiles: %w", err)
	}

	overrides := make(map[string]Profile)
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing profiles: %w", err)
	}

	for name, o := range overrides {
		q, err := ParseQuality(name)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		profiles[q] = merge(profiles[q], o)
	}
	return profiles, nil
}

// merge overlays the non-zero fields of o on base.
func merge(base, o Profile) Profile {
	if o.VideoBitrate > 0 {
		base.VideoBitrate = o.VideoBitrate
	}
	if o.AudioBitrate > 0 {
		base.AudioBitrate = o.AudioBitrate
	}
	if o.Width > 0 {
		base.Width = o.Width
	}
	if o.Height > 0 {
		base.Height = o.Height
	}
	if o.FrameRate > 0 {
		base.FrameRate = o.FrameRate
	}
	return base
}
