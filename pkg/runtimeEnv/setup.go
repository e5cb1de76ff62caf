// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package runtimeEnv

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
	"time"

	"github.com/opendax/daxd/pkg/daxlog"
)

// Changes the processes user and group to that
// specified in the config.json. The go runtime
// takes care of all threads (and not only the calling one)
// executing the underlying systemcall.
func DropPrivileges(username string, group string) error {
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			daxlog.Warn("Error while looking up group")
			return err
		}

		gid, _ := strconv.Atoi(g.Gid)
		if err := syscall.Setgid(gid); err != nil {
			daxlog.Warn("Error while setting gid")
			return err
		}
	}

	if username != "" {
		u, err := user.Lookup(username)
		if err != nil {
			daxlog.Warn("Error while looking up user")
			return err
		}

		uid, _ := strconv.Atoi(u.Uid)
		if err := syscall.Setuid(uid); err != nil {
			daxlog.Warn("Error while setting uid")
			return err
		}
	}

	return nil
}

// notify shells out to systemd-notify with args, a no-op if daxd was not
// started under systemd. Shared by SystemdNotifiy and the watchdog pinger
// below since both just append flags onto the same underlying call.
func notify(args ...string) {
	if os.Getenv("NOTIFY_SOCKET") == "" {
		// Not started using systemd
		return
	}

	full := append([]string{fmt.Sprintf("--pid=%d", os.Getpid())}, args...)
	cmd := exec.Command("systemd-notify", full...)
	cmd.Run() // errors ignored on purpose, there is not much to do anyways.
}

// If started via systemd, inform systemd that we are running:
// https://www.freedesktop.org/software/systemd/man/sd_notify.html
func SystemdNotifiy(ready bool, status string) {
	var args []string
	if ready {
		args = append(args, "--ready")
	}
	if status != "" {
		args = append(args, fmt.Sprintf("--status=%s", status))
	}
	notify(args...)
}

// WatchdogInterval returns how often Watchdog should ping systemd, derived
// from WATCHDOG_USEC and halved per sd_notify(3)'s own recommendation that
// clients "ping at least twice" within the configured timeout. It returns
// zero when no watchdog is configured (WatchdogSec unset in the unit file),
// in which case the caller should not start Watchdog at all.
func WatchdogInterval() time.Duration {
	usec, err := strconv.ParseInt(os.Getenv("WATCHDOG_USEC"), 10, 64)
	if err != nil || usec <= 0 {
		return 0
	}
	return (time.Duration(usec) * time.Microsecond) / 2
}

// Watchdog pings systemd's watchdog every interval until ctx is cancelled.
// The module wire protocol's accept loop has no request/response cadence an
// external health check could piggyback on the way an HTTP server's own
// liveness probe route would, so daxd reports its own liveness to systemd
// directly instead.
func Watchdog(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			notify("WATCHDOG=1")
		}
	}
}
