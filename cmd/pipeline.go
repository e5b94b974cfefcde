package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/crc-mirror/crc-mirror/internal/acquire"
	"github.com/crc-mirror/crc-mirror/internal/artifact"
	"github.com/crc-mirror/crc-mirror/internal/config"
	"github.com/crc-mirror/crc-mirror/internal/logging"
	"github.com/crc-mirror/crc-mirror/internal/mirror"
	"github.com/crc-mirror/crc-mirror/internal/resolver"
	"github.com/crc-mirror/crc-mirror/internal/unit"
	"github.com/crc-mirror/crc-mirror/internal/upstream"
	"github.com/crc-mirror/crc-mirror/internal/validate"
)

// pipeline wires the core collaborators for one CLI invocation.
type pipeline struct {
	cfg       *config.Config
	log       *logrus.Logger
	resolver  *resolver.Resolver
	prober    *mirror.Prober
	acquirer  *acquire.Acquirer
	store     unit.Store
	builder   *unit.Builder
	validator *validate.Validator
}

func newPipeline(cmd *cobra.Command) (*pipeline, error) {
	cfg, err := config.NewLoader().LoadForCommand(cmd)
	if err != nil {
		return nil, err
	}

	log, err := logging.Init(cfg)
	if err != nil {
		return nil, err
	}

	client := upstream.NewClient(cfg, log)
	res := resolver.New(cfg, client, log)
	prober := mirror.NewProber(mirror.DefaultLayouts(cfg), client, log)

	acq, err := acquire.New(cfg.CacheDir, client, log)
	if err != nil {
		return nil, err
	}

	store, err := unit.NewDirStore(cfg.StoreDir)
	if err != nil {
		acq.Close()
		return nil, err
	}

	return &pipeline{
		cfg:       cfg,
		log:       log,
		resolver:  res,
		prober:    prober,
		acquirer:  acq,
		store:     store,
		builder:   unit.NewBuilder(cfg, res, prober, acq, store, log),
		validator: validate.New(store, cfg, log),
	}, nil
}

func (p *pipeline) Close() error {
	return p.acquirer.Close()
}

// signalContext returns a context cancelled on interrupt, so an in-flight
// acquisition discards its temporary file instead of promoting it.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// targetPlatforms returns the platforms from the --platform flag, falling
// back to the configured set.
func targetPlatforms(cmd *cobra.Command, cfg *config.Config) ([]artifact.Platform, error) {
	flagged, err := cmd.Flags().GetStringSlice("platform")
	if err != nil || len(flagged) == 0 {
		return cfg.TargetPlatforms()
	}

	platforms := make([]artifact.Platform, 0, len(flagged))
	for _, f := range flagged {
		p, err := artifact.ParsePlatform(f)
		if err != nil {
			return nil, err
		}

		platforms = append(platforms, p)
	}

	return platforms, nil
}
