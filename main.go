// Program hunterlog is a command-line logger for Parks on the Air hunters. It
// keeps a local SQLite record of parks, activators, contacts and spots, logs
// each hunted contact to an ADIF backup file and a UDP logging peer, and
// reconciles hunt counts from the POTA hunter export.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"hunterlog/config"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/term"
)

const (
	defaultConfigPath = "data/config/hunterlog.yaml"
	envConfigPath     = "HUNTERLOG_CONFIG"
)

// Version will be set at build time
var Version = "dev"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// Purpose: Report whether stdout is a TTY.
// Key aspects: Uses term.IsTerminal on stdout fd.
// Upstream: root command logging setup.
// Downstream: term.IsTerminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Purpose: Resolve and load the configuration file.
// Key aspects: The --config flag wins, then HUNTERLOG_CONFIG, then the
// default path. A missing file yields defaults; a present but invalid file
// is an error.
// Upstream: root command PersistentPreRunE.
// Downstream: config.Load.
func loadConfig(flagPath string) (*config.Config, error) {
	path := strings.TrimSpace(flagPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(envConfigPath))
	}
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if cfg.LoadedFrom == "" {
		log.Printf("No config at %s; using defaults", path)
	}
	return cfg, nil
}
