package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Settings represents the dynimp settings file
// (~/.config/dynimp/config.yaml). Every field is a default that the
// matching flag overrides.
type Settings struct {
	OutDir     string `yaml:"outdir"`
	Machine    string `yaml:"machine"`
	Version    string `yaml:"version"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	VCToolsDir string `yaml:"vctools_dir"`
}

func settingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "dynimp", "config.yaml")
}

// LoadSettings reads the settings file. A missing file yields zero
// Settings.
func LoadSettings(path string) (Settings, error) {
	if path == "" {
		return Settings{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("读取设置文件失败: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("解析设置文件 %s 失败: %w", path, err)
	}
	return s, nil
}

// applyString sets *dst to value when value is non-empty and the flag was
// not given on the command line or through its environment variable.
func applyString(c *cli.Command, flag string, dst *string, value string) {
	if value != "" && !c.IsSet(flag) {
		*dst = value
	}
}
