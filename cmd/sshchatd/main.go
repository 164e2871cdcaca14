// Command sshchatd runs the SSH chat server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/docopt/docopt-go"

	"github.com/sshchat/sshchatd/config"
	"github.com/sshchat/sshchatd/logging"
	"github.com/sshchat/sshchatd/supervisor"
)

const version = "0.1.0"

const usage = `sshchatd: an SSH chat server with an abuse-mitigation pipeline.

Usage:
  sshchatd [--conf=<path>] [--debug]
  sshchatd -h | --help
  sshchatd --version

Options:
  --conf=<path>  Path to the TOML config file. [default: sshchatd.toml]
  --debug        Enable debug-level logging.
  -h --help      Show this help.
  --version      Show version.
`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	confPath, _ := opts.String("--conf")
	debug, _ := opts.Bool("--debug")

	log, err := logging.NewManager(debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sshchatd: failed to initialize logging: %s\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(confPath)
	if err != nil {
		log.Error("main", fmt.Sprintf("failed to load config: %s", err))
		os.Exit(1)
	}

	sup, err := supervisor.New(cfg, log)
	if err != nil {
		log.Error("main", fmt.Sprintf("failed to initialize server: %s", err))
		os.Exit(1)
	}

	if err := sup.Run(context.Background()); err != nil {
		log.Error("main", fmt.Sprintf("server exited with error: %s", err))
		os.Exit(1)
	}
}
