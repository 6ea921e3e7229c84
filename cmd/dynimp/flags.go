package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/raonygamer/dynimp/internal/libgen"
	"github.com/raonygamer/dynimp/internal/logger"
)

// Environment overrides. Flags read them through their Sources; nothing
// below cmd/ looks at the environment for dynimp settings.
const (
	envOutDir     = "DYNIMP_OUTDIR"
	envVCToolsDir = libgen.VCToolsDirEnv
)

var (
	logLevel     string
	logFormat    string
	settingsFile string

	// settings holds the settings file loaded by setup.
	settings Settings
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "日志级别 (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "日志格式 (pretty, text, json)",
			Value:       logger.FormatPretty,
			Destination: &logFormat,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "设置文件路径 (默认: " + settingsPath() + ")",
			Destination: &settingsFile,
		},
	}
}

func dynimpFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "dynimp",
		Aliases:     []string{"d"},
		Usage:       "动态导入配置文件 (*.dynimp.json)",
		Required:    true,
		Destination: dst,
	}
}

func versionFlags(ver, from *string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "version",
			Usage:       "目标模块版本，未指定时只选择 \"any\" 导入点",
			Destination: ver,
		},
		&cli.StringFlag{
			Name:        "version-from",
			Usage:       "从该模块的文件版本读取目标版本",
			Destination: from,
		},
	}
}

func outDirFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "outdir",
		Aliases:     []string{"o"},
		Usage:       "输出目录 (默认: 当前目录)",
		Sources:     cli.EnvVars(envOutDir),
		Destination: dst,
	}
}

func vcToolsDirFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "vctools-dir",
		Usage:       "MSVC 工具 bin 目录 (默认自动查找)",
		Sources:     cli.EnvVars(envVCToolsDir),
		Destination: dst,
	}
}

// setup loads the settings file and installs the logger.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := settingsFile
	if path == "" {
		path = settingsPath()
	}

	var err error
	if settings, err = LoadSettings(path); err != nil {
		return ctx, err
	}
	applyString(cmd, "log-level", &logLevel, settings.LogLevel)
	applyString(cmd, "log-format", &logFormat, settings.LogFormat)

	log := logger.NewFormat(os.Stderr, logFormat, logger.ParseLevel(logLevel))
	return logger.WithContext(ctx, log), nil
}
