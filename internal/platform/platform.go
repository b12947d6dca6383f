// Package platform provides small OS helpers shared across packages.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// IsMacOS returns true on darwin
func IsMacOS() bool {
	return runtime.GOOS == "darwin"
}

// IsLinux returns true on linux
func IsLinux() bool {
	return runtime.GOOS == "linux"
}

// IsWindows returns true on windows
func IsWindows() bool {
	return runtime.GOOS == "windows"
}

// FileExists reports whether path exists (file or directory)
func FileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// IsRegularFile reports whether path exists and is a regular file
func IsRegularFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// ExpandEnv expands ${VAR} and $VAR references. Unset variables are left
// untouched so that misconfigured paths stay recognisable in error messages.
func ExpandEnv(s string) string {
	return os.Expand(s, func(name string) string {
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return "${" + name + "}"
	})
}

// ExpandHome expands a leading ~ to the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// ExpandPath applies ExpandHome and ExpandEnv
func ExpandPath(path string) string {
	return ExpandHome(ExpandEnv(path))
}
