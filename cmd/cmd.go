package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pc-m/asterisk-scale-poc/config"
)

const ServiceName = "wazo-applicationd"

func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Telephony application dispatcher for the Wazo platform",
		Commands: []*cli.Command{
			serverCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the dispatcher",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			level := new(slog.LevelVar)

			cfg, err := config.LoadConfig(c.String("config_file"), func(fresh *config.Config) {
				setLevel(level, fresh.LogLevel)
			})
			if err != nil {
				return err
			}
			setLevel(level, cfg.LogLevel)

			app := NewApp(cfg, level)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			return app.Stop(context.Background())
		},
	}
}

func setLevel(level *slog.LevelVar, name string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return
	}
	level.Set(l)
}
