package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/alive/v2"
	"github.com/temoto/weathermatrix/cmd/weathermatrix/check"
	"github.com/temoto/weathermatrix/cmd/weathermatrix/run"
	"github.com/temoto/weathermatrix/cmd/weathermatrix/subcmd"
	"github.com/temoto/weathermatrix/internal/config"
	"github.com/temoto/weathermatrix/internal/state"
	"github.com/temoto/weathermatrix/log2"
)

var BuildVersion string = "unknown" // set by ldflags -X

var log = log2.NewStderr(log2.LDebug)

var modules = []subcmd.Mod{
	run.Mod,
	check.Mod,
}

func main() {
	flagset := flag.NewFlagSet("weathermatrix", flag.ContinueOnError)
	flagConfig := flagset.String("config", "weathermatrix.hcl", "")
	flagVersion := flagset.Bool("version", false, "print build version and exit")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "Usage: weathermatrix [flags] [command]\nFlags:\n")
		flagset.PrintDefaults()
		fmt.Fprintf(flagset.Output(), "Commands:\n")
		for _, m := range modules {
			fmt.Fprintf(flagset.Output(), "  %s\t%s\n", m.Name, m.Help)
		}
	}
	if err := flagset.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}
	if *flagVersion {
		fmt.Printf("weathermatrix %s\n", BuildVersion)
		return
	}

	cmdName := flagset.Arg(0)
	if cmdName == "" {
		cmdName = run.Mod.Name
	}
	mod, err := subcmd.Parse(cmdName, modules)
	if err != nil {
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// under systemd assume journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	} else {
		log.SetFlags(log2.LStdFlags)
	}
	log.Infof("weathermatrix version=%s command=%s", BuildVersion, mod.Name)

	fs, err := config.NewOsFullReader("")
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	cfg, err := config.ReadConfig(log, fs, os.LookupEnv, *flagConfig)
	if err != nil {
		if mod.Name == run.Mod.Name {
			state.ShowBootError(log, nil)
		}
		log.Fatal(errors.ErrorStack(err))
	}

	g := &state.Global{
		Alive:        alive.NewAlive(),
		BuildVersion: BuildVersion,
		Log:          log,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, state.ContextKey, g)

	if err := mod.Main(ctx, cfg); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
