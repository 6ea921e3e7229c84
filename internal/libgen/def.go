// Package libgen produces import libraries for a dynamically imported
// module: a .def file listing the selected symbols and the .lib built from
// it by the MSVC librarian.
package libgen

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// DefContents returns the module-definition file for target exporting
// symbols, one per line.
func DefContents(target string, symbols []string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "LIBRARY \"%s\"\n", target)
	buf.WriteString("EXPORTS\n")
	for _, sym := range symbols {
		fmt.Fprintf(&buf, "    %s\n", sym)
	}
	return buf.Bytes()
}

// WriteDef writes the module-definition file to path, creating its
// directory.
func WriteDef(path, target string, symbols []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(path, DefContents(target, symbols), 0o644); err != nil {
		return fmt.Errorf("写入定义文件失败: %w", err)
	}
	return nil
}
