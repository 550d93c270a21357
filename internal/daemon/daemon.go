// Package daemon prepares the process for long-running operation on
// router-class hosts.
package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/user"
	"strings"

	"github.com/pageboost/pageboost/internal/config"
	"github.com/pageboost/pageboost/internal/usergroup"
)

func DaemonSetup(cfg *config.Config) error {
	if IsOpenWrt() {
		// Routers are memory starved; keep the proxy off the OOM killer's
		// shortlist.
		if err := SetOOMScoreAdj(-900); err != nil {
			slog.Warn("SetOOMScoreAdj", slog.Any("error", err))
		}
	}
	if err := usergroup.SetUserGroup(); err != nil {
		return fmt.Errorf("usergroup.SetUserGroup: %w", err)
	}
	return nil
}

func IsOpenWrt() bool {
	checkFiles := []string{
		"/etc/openwrt_release",
	}
	for _, f := range checkFiles {
		if _, err := os.Stat(f); err == nil {
			return true
		}
	}

	data, err := os.ReadFile("/etc/os-release")
	if err == nil && strings.Contains(string(data), "OpenWrt") {
		return true
	}

	if _, err := user.Lookup("uci"); err == nil {
		return true
	}

	if _, err := exec.LookPath("opkg"); err == nil {
		return true
	}

	return false
}

// SetOOMScoreAdj adjusts the kernel OOM score for the current process.
// Values range from -1000 (never kill) to 1000 (kill first).
func SetOOMScoreAdj(score int) error {
	if err := os.WriteFile("/proc/self/oom_score_adj", []byte(fmt.Sprintf("%d", score)), 0644); err != nil {
		return fmt.Errorf("write oom_score_adj: %w", err)
	}
	return nil
}
