//go:build windows

package libgen

import "golang.org/x/sys/windows"

// programFilesDir returns the native Program Files folder.
func programFilesDir() (string, error) {
	return windows.KnownFolderPath(windows.FOLDERID_ProgramFiles, 0)
}
