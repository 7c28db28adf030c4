// Fleetbot: simulated robots that report telemetry to a robofleet hub.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/markus-barta/robofleet/internal/config"
	"github.com/markus-barta/robofleet/internal/robot"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

func main() {
	showHelp := flag.BoolP("help", "h", false, "show usage")
	fleetPath := flag.StringP("fleet", "f", "", "YAML file listing several robots to simulate")
	robotID := flag.String("id", "", "robot id (overrides FLEETBOT_ROBOT_ID)")
	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	// Set up logging
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Logger()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *robotID != "" {
		cfg.RobotID = *robotID
	}

	switch cfg.LogLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfgs := []*config.Config{cfg}
	if *fleetPath != "" {
		cfgs, err = config.LoadFleet(*fleetPath, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load fleet file")
		}
	}

	robots := make([]*robot.Robot, 0, len(cfgs))
	for _, c := range cfgs {
		robots = append(robots, robot.New(c, log))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received signal")
		for _, r := range robots {
			r.Shutdown()
		}
	}()

	var wg sync.WaitGroup
	for _, r := range robots {
		r := r
		// Commands and signals are logged by the robot; drain the queue.
		go func() {
			for range r.Events() {
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Run(); err != nil {
				log.Error().Err(err).Msg("robot failed")
			}
		}()
	}
	wg.Wait()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: fleetbot [options]

Fleetbot - simulated robots for the robofleet hub.

Options:
%s
Environment variables:
  FLEETBOT_URL          Hub WebSocket URL (default: ws://localhost:4000/ws)
  FLEETBOT_ROBOT_ID     Robot id (default: hostname)
  FLEETBOT_TOKEN        Token from POST /api/login (optional)
  FLEETBOT_INTERVAL     Telemetry interval in seconds (default: 1)
  FLEETBOT_LOG_LEVEL    Log level: debug, info, warn, error
`, flag.CommandLine.FlagUsages())
}
