// Package dynimp runs the modbin and genlib pipelines shared by the
// command-line tool and the desktop front end.
package dynimp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/raonygamer/dynimp/internal/config"
	"github.com/raonygamer/dynimp/internal/libgen"
	"github.com/raonygamer/dynimp/internal/logger"
	"github.com/raonygamer/dynimp/internal/pe"
)

// DefaultOutDir is the working directory, used when no output directory
// is configured.
const DefaultOutDir = "."

// ErrSameFile reports an output path that would overwrite the input image.
var ErrSameFile = errors.New("输出文件与输入文件相同，请指定其他输出目录")

// ResolveVersion returns the version imports are selected for. A non-empty
// versionFrom names a module whose file version wins over version.
func ResolveVersion(version, versionFrom string, log logger.Logger) (string, error) {
	if versionFrom != "" {
		img, err := pe.Open(versionFrom)
		if err != nil {
			return "", err
		}
		v, err := pe.FileVersion(img)
		if err != nil {
			return "", fmt.Errorf("读取 %s 的版本失败: %w", versionFrom, err)
		}
		log.Info("从模块读取版本", "module", versionFrom, "version", v)
		return v, nil
	}
	if version == "" {
		return config.AnyVersion, nil
	}
	return version, nil
}

// ModBinOptions configures ModBin.
type ModBinOptions struct {
	Config         *config.DynImp
	Image          string // Path of the image to rewrite.
	Version        string
	OutDir         string
	UpdateChecksum bool
}

// ModBinResult describes a finished ModBin run. Output is empty and Rewrite
// nil when no import was selected.
type ModBinResult struct {
	Output  string
	Symbols []string
	Rewrite *pe.RewriteResult
}

// OutputPath returns the path ModBin writes image to.
func OutputPath(outDir, image string) string {
	return filepath.Join(outDir, filepath.Base(image))
}

// ModBin rewrites the import tables of opts.Image so that the imports of
// the configured target become dynamic, and writes the result into
// opts.OutDir under the same file name.
func ModBin(opts ModBinOptions, log logger.Logger) (*ModBinResult, error) {
	if opts.OutDir == "" {
		opts.OutDir = DefaultOutDir
	}
	if opts.Version == "" {
		opts.Version = config.AnyVersion
	}

	res := &ModBinResult{Symbols: opts.Config.Symbols(opts.Version)}
	if len(res.Symbols) == 0 {
		log.Warn("没有匹配该版本的导入，跳过", "target", opts.Config.Target, "version", opts.Version)
		return res, nil
	}
	log.Info("已选择导入", "target", opts.Config.Target, "version", opts.Version, "count", len(res.Symbols))

	output := OutputPath(opts.OutDir, opts.Image)
	if err := checkDistinct(opts.Image, output); err != nil {
		return nil, err
	}

	img, err := pe.Open(opts.Image)
	if err != nil {
		return nil, err
	}
	img.SetUpdateChecksum(opts.UpdateChecksum)

	res.Rewrite, err = pe.Rewrite(img, opts.Config.Target, log)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := img.WriteFile(output); err != nil {
		return nil, err
	}
	res.Output = output

	log.Info("已写入修改后的文件", "path", output,
		"static", len(res.Rewrite.Static), "dynamic", len(res.Rewrite.Dynamic))
	return res, nil
}

// checkDistinct fails when output names the same file as input.
func checkDistinct(input, output string) error {
	in, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	out, err := filepath.Abs(output)
	if err != nil {
		return err
	}
	if in == out {
		return fmt.Errorf("%w: %s", ErrSameFile, output)
	}

	inInfo, err := os.Stat(in)
	if err != nil {
		return nil
	}
	if outInfo, err := os.Stat(out); err == nil && os.SameFile(inInfo, outInfo) {
		return fmt.Errorf("%w: %s", ErrSameFile, output)
	}
	return nil
}

// GenLibOptions configures GenLib.
type GenLibOptions struct {
	Config   *config.DynImp
	Machine  string
	Version  string
	OutDir   string
	ToolsDir string          // MSVC tools bin directory; located when empty.
	Archiver libgen.Archiver // Defaults to lib.exe in ToolsDir.
}

// GenLib writes the .def file for the imports selected for opts.Version
// and builds the matching import library. It returns nil when no import
// was selected.
func GenLib(ctx context.Context, opts GenLibOptions, log logger.Logger) (*libgen.Result, error) {
	if opts.OutDir == "" {
		opts.OutDir = DefaultOutDir
	}
	if opts.Version == "" {
		opts.Version = config.AnyVersion
	}
	if opts.Machine == "" {
		opts.Machine = libgen.MachineX64
	}
	if err := libgen.ValidateMachine(opts.Machine); err != nil {
		return nil, err
	}

	symbols := opts.Config.Symbols(opts.Version)
	if len(symbols) == 0 {
		log.Warn("没有匹配该版本的导入，跳过", "target", opts.Config.Target, "version", opts.Version)
		return nil, nil
	}

	archiver := opts.Archiver
	if archiver == nil {
		dir, err := libgen.Locate(opts.Machine, opts.ToolsDir)
		if err != nil {
			return nil, err
		}
		log.Debug("VC++ 工具目录", "path", dir)
		archiver = libgen.NewLibTool(dir)
	}

	return libgen.Generate(ctx, libgen.Request{
		Target:  opts.Config.Target,
		Stem:    opts.Config.TargetStem(),
		Symbols: symbols,
		Machine: opts.Machine,
		Version: opts.Version,
		OutDir:  opts.OutDir,
	}, archiver, log)
}
