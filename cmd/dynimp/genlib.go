package main

import (
	"context"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/raonygamer/dynimp/internal/config"
	"github.com/raonygamer/dynimp/internal/dynimp"
	"github.com/raonygamer/dynimp/internal/libgen"
	"github.com/raonygamer/dynimp/internal/logger"
)

func genlibCmd() *cli.Command {
	var (
		dynimpFile  string
		machine     string
		ver         string
		versionFrom string
		outDir      string
		vcToolsDir  string
	)

	return &cli.Command{
		Name:  "genlib",
		Usage: "为选中的导入生成 .def 文件和导入库 (.lib)",
		Flags: append([]cli.Flag{
			dynimpFlag(&dynimpFile),
			&cli.StringFlag{
				Name:        "machine",
				Aliases:     []string{"m"},
				Usage:       "目标架构 (x64, x86)",
				Value:       libgen.MachineX64,
				Destination: &machine,
			},
			outDirFlag(&outDir),
			vcToolsDirFlag(&vcToolsDir),
		}, versionFlags(&ver, &versionFrom)...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			applyString(cmd, "outdir", &outDir, settings.OutDir)
			applyString(cmd, "version", &ver, settings.Version)
			applyString(cmd, "machine", &machine, settings.Machine)
			applyString(cmd, "vctools-dir", &vcToolsDir, settings.VCToolsDir)

			if err := libgen.ValidateMachine(machine); err != nil {
				return err
			}

			cfg, err := config.Load(dynimpFile)
			if err != nil {
				return err
			}
			log.Info("已加载动态导入配置", "target", cfg.Target, "imports", len(cfg.Imports))

			v, err := dynimp.ResolveVersion(ver, versionFrom, log)
			if err != nil {
				return err
			}

			res, err := dynimp.GenLib(ctx, dynimp.GenLibOptions{
				Config:   cfg,
				Machine:  machine,
				Version:  v,
				OutDir:   outDir,
				ToolsDir: vcToolsDir,
			}, log)
			if err != nil {
				return err
			}
			if res == nil {
				return nil
			}

			green := color.New(color.FgGreen, color.Bold)
			_, _ = green.Printf("✓ 已生成: %s\n", res.DefPath)
			_, _ = green.Printf("✓ 已生成: %s\n", res.LibPath)
			return nil
		},
	}
}
