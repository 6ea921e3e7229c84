// Package config loads .dynimp.json files: the module whose imports are
// resolved at run time and, per symbol, where to find it in each version.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

// AnyVersion matches every requested version.
const AnyVersion = "any"

// Point types understood by the run-time loader.
const (
	PointAddress = "address"
	PointPattern = "pattern"
	PointOffset  = "offset"
)

// ErrConfiguration reports an unreadable or invalid .dynimp.json file.
var ErrConfiguration = errors.New("动态导入配置无效")

// DynImp is the root of a .dynimp.json file.
type DynImp struct {
	Target  string   `json:"target"`
	Imports []Import `json:"imports"`
}

// Import is one dynamically resolved symbol.
type Import struct {
	Symbol string  `json:"symbol"`
	Points []Point `json:"points"`
}

// Point locates a symbol in one version of the target module. Type and
// Value are interpreted by the run-time loader only.
type Point struct {
	Version string `json:"version"`
	Type    string `json:"type,omitempty"`
	Value   string `json:"value"`
}

// Load reads and validates a .dynimp.json file.
func Load(path string) (*DynImp, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates .dynimp.json content.
func Parse(data []byte) (*DynImp, error) {
	var cfg DynImp
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields the tool depends on.
func (d *DynImp) Validate() error {
	if strings.TrimSpace(d.Target) == "" {
		return fmt.Errorf("%w: 缺少 target 字段", ErrConfiguration)
	}
	for i, imp := range d.Imports {
		if imp.Symbol == "" {
			return fmt.Errorf("%w: 第 %d 个导入缺少 symbol 字段", ErrConfiguration, i+1)
		}
		for _, p := range imp.Points {
			if p.Version == "" {
				return fmt.Errorf("%w: 符号 %s 的导入点缺少 version 字段", ErrConfiguration, imp.Symbol)
			}
		}
	}
	return nil
}

// Matches reports whether the point applies to version.
func (p Point) Matches(version string) bool {
	return p.Version == version || p.Version == AnyVersion
}

// Select returns the imports having at least one point for version, in
// file order.
func (d *DynImp) Select(version string) []Import {
	var selected []Import
	for _, imp := range d.Imports {
		for _, p := range imp.Points {
			if p.Matches(version) {
				selected = append(selected, imp)
				break
			}
		}
	}
	return selected
}

// Symbols returns the names of the imports selected for version.
func (d *DynImp) Symbols(version string) []string {
	selected := d.Select(version)
	symbols := make([]string, len(selected))
	for i, imp := range selected {
		symbols[i] = imp.Symbol
	}
	return symbols
}

// TargetStem returns the target module name without directory or extension.
func (d *DynImp) TargetStem() string {
	base := filepath.Base(strings.ReplaceAll(d.Target, `\`, "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
