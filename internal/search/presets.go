package search

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Preset is a named, reusable filter set loaded from a YAML file.
type Preset struct {
	Name     string   `yaml:"name"`
	Enabled  bool     `yaml:"enabled"`
	Keywords []string `yaml:"keywords"`
	Params   Params   `yaml:"params"`
	MaxPages int      `yaml:"max_pages"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// LoadPresets reads a preset file and returns the enabled presets, in
// file order. Facet fields left empty in the file fall back to defaults.
func LoadPresets(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "search: read preset file %s", path)
	}

	var pf presetFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, eris.Wrapf(err, "search: parse preset file %s", path)
	}

	defaults := DefaultParams()
	var enabled []Preset
	for _, p := range pf.Presets {
		if !p.Enabled {
			continue
		}
		if p.Params.SearchType == "" {
			p.Params.SearchType = defaults.SearchType
		}
		if p.Params.BidSort == "" {
			p.Params.BidSort = defaults.BidSort
		}
		if p.Params.PinMu == "" {
			p.Params.PinMu = defaults.PinMu
		}
		if p.Params.BidType == "" {
			p.Params.BidType = defaults.BidType
		}
		if p.Params.TimeType == "" {
			p.Params.TimeType = defaults.TimeType
		}
		enabled = append(enabled, p)
	}
	return enabled, nil
}
