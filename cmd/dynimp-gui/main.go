// Package main provides the dynimp GUI application.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/fatih/color"
	"github.com/xyproto/env/v2"

	report "github.com/raonygamer/dynimp/internal/cli"
	"github.com/raonygamer/dynimp/internal/config"
	"github.com/raonygamer/dynimp/internal/dynimp"
	"github.com/raonygamer/dynimp/internal/libgen"
	"github.com/raonygamer/dynimp/internal/logger"
	"github.com/raonygamer/dynimp/internal/pe"
)

func main() {
	color.NoColor = true

	myApp := app.New()
	myWindow := myApp.NewWindow("dynimp - 动态导入表工具")
	myWindow.Resize(fyne.NewSize(900, 700))

	imageEntry := widget.NewEntry()
	imageEntry.SetPlaceHolder("选择PE文件 (exe/dll)...")
	dynimpEntry := widget.NewEntry()
	dynimpEntry.SetPlaceHolder("选择动态导入配置 (*.dynimp.json)...")
	outDirEntry := widget.NewEntry()
	outDirEntry.SetPlaceHolder("输出目录 (默认: 当前目录)")
	versionEntry := widget.NewEntry()
	versionEntry.SetPlaceHolder(config.AnyVersion)

	machineSelect := widget.NewSelect([]string{libgen.MachineX64, libgen.MachineX86}, nil)
	machineSelect.SetSelected(libgen.MachineX64)
	checksumCheck := widget.NewCheck("更新校验和", nil)
	checksumCheck.SetChecked(true)

	output := widget.NewMultiLineEntry()
	output.SetPlaceHolder("结果将显示在这里...")
	output.Disable()

	statusLabel := widget.NewLabel("就绪")

	pickFile := func(entry *widget.Entry) func() {
		return func() {
			dialog.ShowFileOpen(func(file fyne.URIReadCloser, err error) {
				if err != nil || file == nil {
					return
				}
				defer func() { _ = file.Close() }()
				entry.SetText(file.URI().Path())
			}, myWindow)
		}
	}
	pickFolder := func() {
		dialog.ShowFolderOpen(func(dir fyne.ListableURI, err error) {
			if err != nil || dir == nil {
				return
			}
			outDirEntry.SetText(dir.Path())
		}, myWindow)
	}

	// run executes task off the UI thread and reports back on it.
	run := func(status string, task func(log logger.Logger) (string, error)) {
		statusLabel.SetText(status)
		go func() {
			var buf strings.Builder
			result, err := task(logger.Text(&buf, slog.LevelInfo))

			fyne.Do(func() {
				output.SetText(buf.String() + result)
				if err != nil {
					dialog.ShowError(err, myWindow)
					statusLabel.SetText("失败")
					return
				}
				statusLabel.SetText("完成")
			})
		}()
	}

	analyzeButton := widget.NewButton("分析", func() {
		if imageEntry.Text == "" {
			dialog.ShowError(fmt.Errorf("请先选择PE文件"), myWindow)
			return
		}
		image, dynimpFile := imageEntry.Text, dynimpEntry.Text
		run("正在分析...", func(logger.Logger) (string, error) {
			return analyzePEFile(image, dynimpFile)
		})
	})

	modbinButton := widget.NewButton("修改导入表", func() {
		if imageEntry.Text == "" || dynimpEntry.Text == "" {
			dialog.ShowError(fmt.Errorf("请先选择PE文件和动态导入配置"), myWindow)
			return
		}
		opts := dynimp.ModBinOptions{
			Image:          imageEntry.Text,
			Version:        versionEntry.Text,
			OutDir:         outDirEntry.Text,
			UpdateChecksum: checksumCheck.Checked,
		}
		dynimpFile := dynimpEntry.Text
		run("正在修改导入表...", func(log logger.Logger) (string, error) {
			return modifyBinary(dynimpFile, opts, log)
		})
	})

	genlibButton := widget.NewButton("生成导入库", func() {
		if dynimpEntry.Text == "" {
			dialog.ShowError(fmt.Errorf("请先选择动态导入配置"), myWindow)
			return
		}
		opts := dynimp.GenLibOptions{
			Machine:  machineSelect.Selected,
			Version:  versionEntry.Text,
			OutDir:   outDirEntry.Text,
			ToolsDir: env.Str(libgen.VCToolsDirEnv),
		}
		dynimpFile := dynimpEntry.Text
		run("正在生成导入库...", func(log logger.Logger) (string, error) {
			return generateLibrary(dynimpFile, opts, log)
		})
	})

	// Layout
	form := container.NewVBox(
		widget.NewLabel("PE文件路径:"),
		container.NewBorder(nil, nil, nil, widget.NewButton("选择文件", pickFile(imageEntry)), imageEntry),
		widget.NewLabel("动态导入配置:"),
		container.NewBorder(nil, nil, nil, widget.NewButton("选择文件", pickFile(dynimpEntry)), dynimpEntry),
		widget.NewLabel("输出目录:"),
		container.NewBorder(nil, nil, nil, widget.NewButton("选择目录", pickFolder), outDirEntry),
		container.NewGridWithColumns(3,
			widget.NewLabel("版本:"),
			widget.NewLabel("架构:"),
			widget.NewLabel(""),
		),
		container.NewGridWithColumns(3,
			versionEntry,
			machineSelect,
			checksumCheck,
		),
		widget.NewSeparator(),
		container.NewGridWithColumns(3, analyzeButton, modbinButton, genlibButton),
	)

	mainContent := container.NewBorder(
		form,
		container.NewVBox(
			widget.NewSeparator(),
			statusLabel,
		),
		nil,
		nil,
		container.NewVScroll(output),
	)

	myWindow.SetContent(mainContent)
	myWindow.ShowAndRun()
}

func analyzePEFile(path, dynimpFile string) (string, error) {
	img, err := pe.Open(path)
	if err != nil {
		return "", err
	}

	info, err := pe.NewAnalyzer(img).Analyze()
	if err != nil {
		return "", err
	}

	var out strings.Builder
	reporter := report.NewReporter(info, &out)
	if dynimpFile != "" {
		cfg, err := config.Load(dynimpFile)
		if err != nil {
			return "", err
		}
		reporter.SetTarget(cfg.Target)
	}
	reporter.Print()

	return out.String(), nil
}

func modifyBinary(dynimpFile string, opts dynimp.ModBinOptions, log logger.Logger) (string, error) {
	cfg, err := config.Load(dynimpFile)
	if err != nil {
		return "", err
	}
	opts.Config = cfg

	res, err := dynimp.ModBin(opts, log)
	if err != nil {
		return "", err
	}
	if res.Output == "" {
		return "\n没有匹配该版本的导入，未生成文件\n", nil
	}

	return fmt.Sprintf("\n✓ 已写入: %s\n  静态导入: %d 项\n  动态导入: %d 项\n",
		res.Output, len(res.Rewrite.Static), len(res.Rewrite.Dynamic)), nil
}

func generateLibrary(dynimpFile string, opts dynimp.GenLibOptions, log logger.Logger) (string, error) {
	cfg, err := config.Load(dynimpFile)
	if err != nil {
		return "", err
	}
	opts.Config = cfg

	res, err := dynimp.GenLib(context.Background(), opts, log)
	if err != nil {
		return "", err
	}
	if res == nil {
		return "\n没有匹配该版本的导入，未生成文件\n", nil
	}

	return fmt.Sprintf("\n✓ 已生成: %s\n✓ 已生成: %s\n", res.DefPath, res.LibPath), nil
}
