package libgen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/raonygamer/dynimp/internal/logger"
)

// Supported machines.
const (
	MachineX64 = "x64"
	MachineX86 = "x86"
)

var (
	// ErrMachine reports an unsupported target architecture.
	ErrMachine = errors.New("不支持的机器架构，请使用 x64 或 x86")
	// ErrNoSymbols reports an empty export list.
	ErrNoSymbols = errors.New("没有需要导出的符号")
)

// ValidateMachine checks that machine is x64 or x86.
func ValidateMachine(machine string) error {
	if machine != MachineX64 && machine != MachineX86 {
		return fmt.Errorf("%w: %q", ErrMachine, machine)
	}
	return nil
}

// Request describes one import library.
type Request struct {
	Target  string   // Module the library resolves to.
	Stem    string   // File name stem of the outputs.
	Symbols []string // Exported symbols.
	Machine string
	Version string
	OutDir  string
}

// Dir returns outdir/<machine>/<version>.
func (r Request) Dir() string {
	return filepath.Join(r.OutDir, r.Machine, r.Version)
}

// DefPath returns the path of the module-definition file.
func (r Request) DefPath() string {
	return filepath.Join(r.Dir(), r.Stem+".def")
}

// LibPath returns the path of the import library.
func (r Request) LibPath() string {
	return filepath.Join(r.Dir(), r.Stem+".lib")
}

// Result lists the generated files.
type Result struct {
	DefPath string
	LibPath string
	Output  []byte
}

// Generate writes the .def file of req and archives it into a .lib.
func Generate(ctx context.Context, req Request, archiver Archiver, log logger.Logger) (*Result, error) {
	if err := ValidateMachine(req.Machine); err != nil {
		return nil, err
	}
	if len(req.Symbols) == 0 {
		return nil, ErrNoSymbols
	}

	res := &Result{DefPath: req.DefPath(), LibPath: req.LibPath()}

	log.Info("生成导出定义文件", "target", req.Target, "path", res.DefPath, "symbols", len(req.Symbols))
	if err := WriteDef(res.DefPath, req.Target, req.Symbols); err != nil {
		return nil, err
	}

	log.Info("生成导入库", "target", req.Target, "path", res.LibPath)
	out, err := archiver.Archive(ctx, res.DefPath, req.Machine, res.LibPath)
	if len(bytes.TrimSpace(out)) > 0 {
		log.Debug("lib.exe 输出", "output", string(bytes.TrimSpace(out)))
	}
	if err != nil {
		return nil, err
	}
	res.Output = out

	return res, nil
}
