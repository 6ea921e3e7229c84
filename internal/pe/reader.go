// Package pe provides an in-memory PE image with the operations needed to
// rewrite its import directory.
package pe

import (
	"debug/pe"
	"fmt"
	"io/fs"
	"os"
)

// Open reads a PE file into memory. The file is closed before Open returns;
// nothing ever writes back to filepath.
func Open(filepath string) (*Image, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("打开PE文件失败: %w", err)
	}

	stat, err := os.Stat(filepath)
	if err != nil {
		return nil, fmt.Errorf("获取文件信息失败: %w", err)
	}

	img, err := NewImage(data)
	if err != nil {
		return nil, err
	}
	img.filepath = filepath
	img.mode = stat.Mode().Perm()

	return img, nil
}

// File returns the debug/pe view of the image as it was loaded.
func (img *Image) File() *pe.File {
	return img.file
}

// FilePath returns the path the image was loaded from.
func (img *Image) FilePath() string {
	return img.filepath
}

// FileSize returns the size of the loaded file in bytes.
func (img *Image) FileSize() int64 {
	return int64(len(img.raw))
}

// Mode returns the permission bits of the source file.
func (img *Image) Mode() fs.FileMode {
	if img.mode == 0 {
		return 0o644
	}
	return img.mode
}
