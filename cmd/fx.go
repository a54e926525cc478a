package cmd

import (
	"log/slog"
	"os"

	capi "github.com/hashicorp/consul/api"
	"go.uber.org/fx"

	"github.com/pc-m/asterisk-scale-poc/config"
	httpsrv "github.com/pc-m/asterisk-scale-poc/infra/server/http"
	"github.com/pc-m/asterisk-scale-poc/internal/bus"
	"github.com/pc-m/asterisk-scale-poc/internal/discovery"
)

func NewApp(cfg *config.Config, level *slog.LevelVar) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			func() *slog.Logger {
				return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			},
			ProvideConsul,
		),

		bus.Module,
		discovery.Module,
		httpsrv.Module,
	)
}

func ProvideConsul(cfg *config.Config) (*capi.Client, error) {
	return capi.NewClient(&capi.Config{Address: cfg.Consul.Address()})
}
