// Package main provides the dynimp CLI tool.
package main

import (
	"context"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/raonygamer/dynimp/internal/version"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(os.Stderr, "\n错误: %v\n\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:        "dynimp",
		Usage:       "将指定模块的导入移入动态导入表，并生成对应的导入库",
		Version:     version.String(),
		HideVersion: true,
		Flags:       globalFlags(),
		Before:      setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			modbinCmd(),
			genlibCmd(),
			inspectCmd(),
			versionCmd(),
		},
	}
}
