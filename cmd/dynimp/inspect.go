package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	report "github.com/raonygamer/dynimp/internal/cli"
	"github.com/raonygamer/dynimp/internal/config"
	"github.com/raonygamer/dynimp/internal/pe"
)

func inspectCmd() *cli.Command {
	var (
		dynimpFile     string
		verbose        bool
		suspiciousOnly bool
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "显示PE文件的节区、导入表以及动态导入表",
		ArgsUsage: "<exe|dll>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dynimp",
				Aliases:     []string{"d"},
				Usage:       "标记该配置的目标模块导入",
				Destination: &dynimpFile,
			},
			&cli.BoolFlag{
				Name:        "verbose",
				Aliases:     []string{"v"},
				Usage:       "显示所有导入/导出函数",
				Destination: &verbose,
			},
			&cli.BoolFlag{
				Name:        "suspicious",
				Aliases:     []string{"s"},
				Usage:       "仅显示可疑节区（RWX权限）",
				Destination: &suspiciousOnly,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("需要指定一个PE文件")
			}

			img, err := pe.Open(cmd.Args().First())
			if err != nil {
				return err
			}

			info, err := pe.NewAnalyzer(img).Analyze()
			if err != nil {
				return err
			}

			reporter := report.NewReporter(info, os.Stdout)
			reporter.SetVerbose(verbose)
			reporter.SetSuspiciousOnly(suspiciousOnly)

			if dynimpFile != "" {
				cfg, err := config.Load(dynimpFile)
				if err != nil {
					return err
				}
				reporter.SetTarget(cfg.Target)
			}

			reporter.Print()
			return nil
		},
	}
}
