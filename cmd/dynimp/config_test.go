package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSettings(t *testing.T) {
	t.Run("Missing file", func(t *testing.T) {
		s, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil || s != (Settings{}) {
			t.Errorf("LoadSettings() = %+v, %v, want zero settings", s, err)
		}
	})

	t.Run("All fields", func(t *testing.T) {
		path := writeSettings(t, `
outdir: build/out
machine: x86
version: 1.21.2.2
log_level: debug
log_format: json
vctools_dir: C:\tools
`)
		s, err := LoadSettings(path)
		if err != nil {
			t.Fatalf("LoadSettings() error = %v", err)
		}
		want := Settings{
			OutDir:     "build/out",
			Machine:    "x86",
			Version:    "1.21.2.2",
			LogLevel:   "debug",
			LogFormat:  "json",
			VCToolsDir: `C:\tools`,
		}
		if s != want {
			t.Errorf("LoadSettings() = %+v, want %+v", s, want)
		}
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		if _, err := LoadSettings(writeSettings(t, "outdir: [unclosed")); err == nil {
			t.Error("LoadSettings() expected error for invalid YAML")
		}
	})
}

func TestApplyString(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     string
		setting string
		want    string
	}{
		{"Flag wins", []string{"test", "--outdir", "flag"}, "env", "file", "flag"},
		{"Environment wins over file", []string{"test"}, "env", "file", "env"},
		{"File fills unset flag", []string{"test"}, "", "file", "file"},
		{"Nothing set", []string{"test"}, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envOutDir, tt.env)
			if tt.env == "" {
				_ = os.Unsetenv(envOutDir)
			}

			var outDir string
			cmd := &cli.Command{
				Name:  "test",
				Flags: []cli.Flag{outDirFlag(&outDir)},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					applyString(cmd, "outdir", &outDir, tt.setting)
					return nil
				},
			}
			if err := cmd.Run(context.Background(), tt.args); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if outDir != tt.want {
				t.Errorf("outdir = %q, want %q", outDir, tt.want)
			}
		})
	}
}

func TestVCToolsDirSources(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     string
		setting string
		want    string
	}{
		{"Flag wins", []string{"test", "--vctools-dir", `C:\flag`}, `C:\env`, `C:\file`, `C:\flag`},
		{"Environment wins over file", []string{"test"}, `C:\env`, `C:\file`, `C:\env`},
		{"File fills unset flag", []string{"test"}, "", `C:\file`, `C:\file`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envVCToolsDir, tt.env)
			if tt.env == "" {
				_ = os.Unsetenv(envVCToolsDir)
			}

			var dir string
			cmd := &cli.Command{
				Name:  "test",
				Flags: []cli.Flag{vcToolsDirFlag(&dir)},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					applyString(cmd, "vctools-dir", &dir, tt.setting)
					return nil
				},
			}
			if err := cmd.Run(context.Background(), tt.args); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if dir != tt.want {
				t.Errorf("vctools-dir = %q, want %q", dir, tt.want)
			}
		})
	}
}

func TestSetupUsesSettingsFile(t *testing.T) {
	path := writeSettings(t, "log_level: debug\nlog_format: text\n")

	if err := newApp().Run(context.Background(), []string{"dynimp", "--config", path, "version"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if logLevel != "debug" || logFormat != "text" {
		t.Errorf("log settings = %q/%q, want debug/text", logLevel, logFormat)
	}

	if err := newApp().Run(context.Background(), []string{"dynimp", "--config", path, "--log-level", "warn", "version"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if logLevel != "warn" {
		t.Errorf("log level = %q, want warn", logLevel)
	}
}
