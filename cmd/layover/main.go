package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/layover/internal/daemon"
	"github.com/matheus3301/layover/internal/profile"
	"github.com/matheus3301/layover/internal/tui"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	debugFlag := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	deps := tui.Deps{Profile: name}
	app := fx.New(
		daemon.Module(daemon.Params{
			Profile: name,
			Binary:  "layover",
			Debug:   *debugFlag,
		}),
		fx.Populate(
			&deps.Controller,
			&deps.Directory,
			&deps.Session,
			&deps.Notifications,
			&deps.Feed,
			&deps.Store,
			&deps.Status,
			&deps.Bus,
			&deps.Logger,
		),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "start client: %v\n", err)
		os.Exit(1)
	}

	runErr := tui.NewApp(deps).Run()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		deps.Logger.Warn("error stopping client", zap.Error(err))
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}

