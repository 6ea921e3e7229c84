package libgen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// VCToolsDirEnv names an explicit MSVC tools bin directory. Front ends read
// it and pass the value to Locate as the override.
const VCToolsDirEnv = "DYNIMP_VCTOOLS_DIR"

// visualStudioDir is the Visual Studio 2022 Community install below
// Program Files.
const visualStudioDir = "Microsoft Visual Studio/2022/Community"

// ErrVCToolsNotFound reports a missing MSVC toolset.
var ErrVCToolsNotFound = errors.New("未找到 VC++ 工具集，请安装带有 C++ 工作负载的 Visual Studio")

// VersionFilePath returns the file naming the default MSVC tools version.
func VersionFilePath(programFiles string) string {
	return filepath.Join(programFiles, visualStudioDir, "VC/Auxiliary/Build/Microsoft.VCToolsVersion.default.txt")
}

// ToolsDir returns the bin directory of the MSVC tools targeting arch on a
// host of the same architecture.
func ToolsDir(programFiles, version, arch string) string {
	return filepath.Join(programFiles, visualStudioDir, "VC/Tools/MSVC", version, "bin", "Host"+arch, arch)
}

// Locate finds the MSVC tools bin directory for arch. A non-empty override
// is returned as is; otherwise the default toolset of Visual Studio 2022.
func Locate(arch, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	programFiles, err := programFilesDir()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrVCToolsNotFound, err)
	}

	data, err := os.ReadFile(VersionFilePath(programFiles))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrVCToolsNotFound, err)
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return "", fmt.Errorf("%w: %s 为空", ErrVCToolsNotFound, VersionFilePath(programFiles))
	}

	return ToolsDir(programFiles, version, arch), nil
}
