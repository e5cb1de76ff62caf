// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"

	"github.com/opendax/daxd/internal/config"
	"github.com/opendax/daxd/internal/server"
	"github.com/opendax/daxd/pkg/daxlog"
	"github.com/opendax/daxd/pkg/runtimeEnv"
)

func main() {
	var (
		configFile = flag.String("config", "/etc/daxd/daxd.json", "path to the daxd configuration file")
		envFile    = flag.String("env", ".env", "path to a .env file of DAX_* overrides")
		gopsAgent  = flag.Bool("gops", false, "start the gops diagnostics agent")
	)
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		daxlog.Fatalf("loading %s: %v", *envFile, err)
	}
	config.Init(*configFile)
	config.ApplyEnvOverrides()

	daxlog.SetLogLevel(config.Keys.LogLevel)
	daxlog.SetLogDateTime(config.Keys.LogDate)
	daxlog.Infof("daxd starting: %s", config.Keys)

	if *gopsAgent {
		if err := agent.Listen(agent.Options{}); err != nil {
			daxlog.Warnf("gops agent: %v", err)
		} else {
			defer agent.Close()
		}
	}

	srv, err := server.New(config.Keys)
	if err != nil {
		daxlog.Fatalf("starting server: %v", err)
	}
	daxlog.Infof("module protocol listening on %s", srv.Addr())

	if err := runtimeEnv.DropPrivileges(config.Keys.User, config.Keys.Group); err != nil {
		daxlog.Fatalf("dropping privileges: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtimeEnv.SystemdNotifiy(true, "daxd ready")

	if err := srv.Run(ctx); err != nil {
		daxlog.Fatalf("server exited: %v", err)
	}

	runtimeEnv.SystemdNotifiy(false, "daxd shutting down")
	daxlog.Info("daxd stopped")
}
