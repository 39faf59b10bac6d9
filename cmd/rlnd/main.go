package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jrick/logrotate/rotator"
	"github.com/rgb-ln/rlnd/internal/config"
	nodeservice "github.com/rgb-ln/rlnd/internal/interface/node"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	logFolder      = "logs"
	logFilename    = "rlnd.log"
	logMaxSizeKB   = 10 * 1024
	logMaxRotation = 3
)

var datadirFlag = &cli.StringFlag{
	Name:    "datadir",
	Usage:   "data directory of the node",
	EnvVars: []string{"RLN_DATADIR"},
}

func main() {
	app := cli.NewApp()

	app.Version = fmt.Sprintf("%s (%s, %s)", version, commit, date)
	app.Name = "rlnd"
	app.Usage = "lightning node with support for RGB assets"
	app.Commands = append(
		app.Commands,
		startCmd,
		initCmd,
		addPeerCmd,
		paymentsCmd,
		swapsCmd,
		channelIDsCmd,
	)
	app.Flags = []cli.Flag{datadirFlag}
	app.Action = startAction
	app.Before = func(ctx *cli.Context) error {
		if datadir := ctx.String(datadirFlag.Name); datadir != "" {
			viper.Set(config.Datadir, datadir)
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(fmt.Errorf("error: %v", err))
		os.Exit(1)
	}
}

func startAction(_ *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	logRotator, err := setupLogging(cfg.Datadir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logRotator.Close()

	log.Debugf("loaded config: %s", cfg)

	svc, err := nodeservice.NewService(cfg)
	if err != nil {
		return err
	}

	log.RegisterExitHandler(svc.Stop)

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		log.Fatal(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
	return nil
}

// setupLogging sends logs both to stdout and to a rotated file in the
// datadir.
func setupLogging(datadir string, level int) (*rotator.Rotator, error) {
	logDir := filepath.Join(datadir, logFolder)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %s", err)
	}

	r, err := rotator.New(
		filepath.Join(logDir, logFilename), logMaxSizeKB, false, logMaxRotation,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create log rotator: %s", err)
	}

	log.SetLevel(log.Level(level))
	log.SetOutput(io.MultiWriter(os.Stdout, r))
	return r, nil
}
