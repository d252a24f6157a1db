package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Preset is a named ffmpeg argument template. Arguments are kept as an
// ordered list end to end; a preset is never a single shell string.
type Preset struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Args        []string `yaml:"args"`

	// Params are default placeholder values; callers may override them
	// per job.
	Params map[string]string `yaml:"params,omitempty"`
}

// Presets is a collection of presets keyed by name.
type Presets map[string]Preset

// builtinPresets cover the common cases when no presets file exists.
var builtinPresets = Presets{
	"h265": {
		Name:        "h265",
		Description: "HEVC re-encode, CRF 28",
		Args:        []string{"-c:v", "libx265", "-crf", "{crf}", "-preset", "medium", "-c:a", "copy"},
		Params:      map[string]string{"crf": "28"},
	},
	"h264": {
		Name:        "h264",
		Description: "H.264 re-encode, CRF 23",
		Args:        []string{"-c:v", "libx264", "-crf", "{crf}", "-preset", "medium", "-c:a", "aac"},
		Params:      map[string]string{"crf": "23"},
	},
	"remux": {
		Name:        "remux",
		Description: "stream copy remux",
		Args:        []string{"-c", "copy"},
	},
}

// LoadPresets reads the presets file at path. A missing or empty path
// yields the built-in presets.
func LoadPresets(path string) (Presets, error) {
	if path == "" {
		return builtinPresets, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return builtinPresets, nil
		}
		return nil, fmt.Errorf("reading presets file: %w", err)
	}

	var raw struct {
		Presets []Preset `yaml:"presets"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing presets file: %w", err)
	}

	presets := make(Presets, len(raw.Presets))
	for _, p := range raw.Presets {
		if p.Name == "" {
			return nil, fmt.Errorf("presets file %s: preset without a name", path)
		}
		if len(p.Args) == 0 {
			return nil, fmt.Errorf("presets file %s: preset %q has no args", path, p.Name)
		}
		if _, exists := presets[p.Name]; exists {
			return nil, fmt.Errorf("presets file %s: duplicate preset %q", path, p.Name)
		}
		presets[p.Name] = p
	}

	if len(presets) == 0 {
		return builtinPresets, nil
	}
	return presets, nil
}

// Get returns the preset with the given name.
func (p Presets) Get(name string) (Preset, bool) {
	preset, ok := p[name]
	return preset, ok
}

// Names returns all preset names in sorted order.
func (p Presets) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
