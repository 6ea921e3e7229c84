package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/raonygamer/dynimp/internal/config"
	"github.com/raonygamer/dynimp/internal/dynimp"
	"github.com/raonygamer/dynimp/internal/logger"
)

func modbinCmd() *cli.Command {
	var (
		dynimpFile     string
		ver            string
		versionFrom    string
		outDir         string
		updateChecksum bool
	)

	return &cli.Command{
		Name:      "modbin",
		Usage:     "修改PE文件的导入表，将目标模块的导入移入 .dynimp 节区",
		ArgsUsage: "<exe|dll>",
		Flags: append([]cli.Flag{
			dynimpFlag(&dynimpFile),
			outDirFlag(&outDir),
			&cli.BoolFlag{
				Name:        "update-checksum",
				Usage:       "修改后更新校验和",
				Value:       true,
				Destination: &updateChecksum,
			},
		}, versionFlags(&ver, &versionFrom)...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("需要指定一个PE文件")
			}
			log := logger.FromContext(ctx)

			applyString(cmd, "outdir", &outDir, settings.OutDir)
			applyString(cmd, "version", &ver, settings.Version)

			cfg, err := config.Load(dynimpFile)
			if err != nil {
				return err
			}
			log.Info("已加载动态导入配置", "target", cfg.Target, "imports", len(cfg.Imports))

			v, err := dynimp.ResolveVersion(ver, versionFrom, log)
			if err != nil {
				return err
			}

			res, err := dynimp.ModBin(dynimp.ModBinOptions{
				Config:         cfg,
				Image:          cmd.Args().First(),
				Version:        v,
				OutDir:         outDir,
				UpdateChecksum: updateChecksum,
			}, log)
			if err != nil {
				return err
			}
			if res.Output == "" {
				return nil
			}

			green := color.New(color.FgGreen, color.Bold)
			_, _ = green.Printf("✓ 已写入: %s (静态 %d 项, 动态 %d 项)\n",
				res.Output, len(res.Rewrite.Static), len(res.Rewrite.Dynamic))
			if res.Rewrite.StrippedSig {
				yellow := color.New(color.FgYellow)
				_, _ = yellow.Println("  已移除数字签名，请重新签名")
			}
			return nil
		},
	}
}
