//go:build linux

// Package usergroup drops the proxy's group privileges after startup.
// The rewriter only ever talks plain sockets, so when launched as root it
// moves itself into an unprivileged group.
package usergroup

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
)

const unprivilegedGroup = "nogroup"

func SetUserGroup() error {
	if os.Geteuid() != 0 {
		return nil
	}

	gid, err := getGroupID(unprivilegedGroup)
	if err != nil {
		slog.Warn("getGroupID", slog.String("group", unprivilegedGroup), slog.Any("error", err))
		return nil
	}

	if err := syscall.Setgid(gid); err != nil {
		if err == syscall.EPERM {
			slog.Warn("syscall.Setgid", slog.String("group", unprivilegedGroup), slog.Int("gid", gid), slog.Any("error", err))
			return nil
		}
		return fmt.Errorf("syscall.Setgid: %w", err)
	}

	slog.Info("Setup user group", slog.String("group", unprivilegedGroup), slog.Int("gid", gid))
	return nil
}

func getGroupID(groupName string) (int, error) {
	file, err := os.Open("/etc/group")
	if err != nil {
		return 0, fmt.Errorf("failed to open /etc/group: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.Split(line, ":")
		if len(parts) >= 3 && parts[0] == groupName {
			gid, err := strconv.Atoi(parts[2])
			if err != nil {
				return 0, fmt.Errorf("failed to parse GID for group %s: %w", groupName, err)
			}
			return gid, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("error reading /etc/group: %w", err)
	}

	return 0, fmt.Errorf("group %s not found", groupName)
}
