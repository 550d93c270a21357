package log

import (
	"os"
	"path/filepath"
	"runtime"
)

var (
	logDir     string
	logDirOnce bool
)

// GetLogDir returns the platform-specific log directory for pageboost.
// - Linux: /var/log/pageboost/
// - Other: ~/.pageboost/ (falling back to the temp directory)
// The directory is created automatically if it doesn't exist.
func GetLogDir() string {
	if logDirOnce {
		return logDir
	}

	logDir = determineLogDir()
	logDirOnce = true

	if err := os.MkdirAll(logDir, 0755); err != nil {
		logDir = filepath.Join(os.TempDir(), "pageboost")
		_ = os.MkdirAll(logDir, 0755)
	}

	return logDir
}

func determineLogDir() string {
	switch runtime.GOOS {
	case "linux":
		varLogDir := "/var/log/pageboost"
		if err := os.MkdirAll(varLogDir, 0755); err == nil {
			testFile := filepath.Join(varLogDir, ".write_test")
			if f, err := os.Create(testFile); err == nil {
				_ = f.Close()
				_ = os.Remove(testFile)
				return varLogDir
			}
		}
		return getUserLogDir()
	default:
		return getUserLogDir()
	}
}

func getUserLogDir() string {
	homeDir, err := os.UserHomeDir()
	if err == nil {
		userLogDir := filepath.Join(homeDir, ".pageboost")
		if err := os.MkdirAll(userLogDir, 0755); err == nil {
			return userLogDir
		}
	}

	return filepath.Join(os.TempDir(), "pageboost")
}

// GetLogFilePath returns the full path to the main log file.
func GetLogFilePath() string {
	return filepath.Join(GetLogDir(), "pageboost.log")
}

// GetStatsFilePath returns the full path to a stats file.
func GetStatsFilePath(name string) string {
	return filepath.Join(GetLogDir(), name)
}
