//go:build !windows

package libgen

import "github.com/xyproto/env/v2"

// programFilesDir returns $ProgramFiles, as exported under Wine or when the
// toolset is mounted from a Windows host.
func programFilesDir() (string, error) {
	return env.Str("ProgramFiles", `C:\Program Files`), nil
}
