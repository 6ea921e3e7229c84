package libgen

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/execabs"
)

// Archiver builds an import library from a module-definition file.
type Archiver interface {
	Archive(ctx context.Context, defPath, machine, libPath string) (output []byte, err error)
}

// LibTool runs the MSVC librarian, lib.exe.
type LibTool struct {
	Path string
}

// NewLibTool returns a LibTool for lib.exe inside toolsDir.
func NewLibTool(toolsDir string) *LibTool {
	return &LibTool{Path: filepath.Join(toolsDir, "lib.exe")}
}

// Args returns the librarian arguments for one import library.
func Args(defPath, machine, libPath string) []string {
	return []string{"/def:" + defPath, "/machine:" + machine, "/out:" + libPath}
}

// Archive runs lib.exe and returns its combined output. A non-zero exit is
// an error carrying that output.
func (l *LibTool) Archive(ctx context.Context, defPath, machine, libPath string) ([]byte, error) {
	cmd := execabs.CommandContext(ctx, l.Path, Args(defPath, machine, libPath)...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("运行 %s 失败: %w\n%s", l.Path, err, bytes.TrimSpace(out.Bytes()))
	}
	return out.Bytes(), nil
}
