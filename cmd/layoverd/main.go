package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/layover/internal/daemon"
	"github.com/matheus3301/layover/internal/profile"
	"go.uber.org/fx"
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

	app := fx.New(
		daemon.Module(daemon.Params{
			Profile: name,
			Binary:  "layoverd",
			Console: true,
			Debug:   *debugFlag,
		}),
	)

	app.Run()
}
