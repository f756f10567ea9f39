package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/crawlforge/harvester/internal/config"
	"github.com/crawlforge/harvester/internal/orchestrator"
	"github.com/crawlforge/harvester/internal/runtimeEnv"
	"github.com/crawlforge/harvester/pkg/log"
	"github.com/google/gops/agent"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	var flagGops bool
	var flagConfigFile, flagEnvFile string
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.StringVar(&flagConfigFile, "config", "", "Path to the harvester's TOML config file (overrides the positional argument)")
	flag.StringVar(&flagEnvFile, "env", "./.env", "Path to an optional .env overlay file")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := runtimeEnv.LoadEnv(flagEnvFile); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing %q failed: %s", flagEnvFile, err.Error())
	}

	// First positional argument is the config path; default "config.toml".
	// -config, if given, takes precedence over both.
	configPath := "config.toml"
	if flag.NArg() > 0 {
		configPath = flag.Arg(0)
	}
	if flagConfigFile != "" {
		configPath = flagConfigFile
	}

	cfg := config.MustLoad(configPath)

	ctx, cancel := context.WithCancel(context.Background())

	o, err := orchestrator.New(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer o.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		runtimeEnv.SystemdNotifiy(false, "shutting down")
		cancel()
	}()

	runtimeEnv.SystemdNotifiy(true, "running")
	if err := o.Run(ctx); err != nil {
		log.Fatal(err)
	}
	log.Print("harvester shut down")
}
