// deliveryd is the audience delivery orchestration daemon. It wires the
// document store, secret store, notification bus and batch-compute dispatcher
// from configuration, exposes the delivery coordinator to the REST layer, and
// runs the event-driven trigger control loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog"

	"github.com/marketops/delivery-engine/pkg/config"
	"github.com/marketops/delivery-engine/pkg/credentials"
	"github.com/marketops/delivery-engine/pkg/delivery"
	"github.com/marketops/delivery-engine/pkg/dispatch"
	"github.com/marketops/delivery-engine/pkg/logging"
	"github.com/marketops/delivery-engine/pkg/notify"
	"github.com/marketops/delivery-engine/pkg/schedule"
	"github.com/marketops/delivery-engine/pkg/secrets"
	"github.com/marketops/delivery-engine/pkg/sizing"
	"github.com/marketops/delivery-engine/pkg/store"
)

// engine bundles the operations the REST layer calls into.
type engine struct {
	Coordinator *delivery.Coordinator
	Estimator   *sizing.Estimator
	Controller  *schedule.Controller
}

func main() {
	configPath := flag.String("config", "deliveryd.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	logger.Info().Str("provider", cfg.Provider).Str("store", cfg.Store.Backend).Msg("starting deliveryd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("deliveryd failed")
	}
	logger.Info().Msg("deliveryd stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	st, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	secretStore, err := buildSecretStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	resolver := credentials.NewResolver(secretStore)

	notifier, err := buildNotifier(ctx, cfg, st, logger)
	if err != nil {
		return err
	}

	registry := dispatch.NewRegistry(logger)
	registry.Register("cloudrun", func() (dispatch.Dispatcher, error) {
		return dispatch.NewCloudRunDispatcher(ctx, cfg.GCP.ProjectID, cfg.GCP.Region, cfg.Job.Image, logger)
	})
	registry.Register("awsbatch", func() (dispatch.Dispatcher, error) {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return dispatch.NewAWSBatchDispatcher(awsCfg, cfg.AWS.JobQueue, cfg.Job.Image, logger), nil
	})

	dispatcher, err := registry.Dispatcher(cfg.Provider)
	if err != nil {
		return err
	}

	limits := dispatch.ResourceLimits{
		CPU:            cfg.Job.CPU,
		Memory:         cfg.Job.Memory,
		TimeoutMinutes: cfg.Job.TimeoutMinutes,
	}

	// The engine surface consumed by the REST layer, which is wired outside
	// this process core.
	eng := engine{
		Coordinator: delivery.NewCoordinator(st, resolver, dispatcher, notifier, cfg.Identity, limits, logger),
		Estimator:   sizing.NewEstimator(cfg.Sizing.BaseURL, cfg.SizingTimeout(), logger),
		Controller:  schedule.NewController(st, logger),
	}

	return runTriggerLoop(ctx, eng.Controller, cfg.TriggerInterval(), logger)
}

// runTriggerLoop re-evaluates the event-driven trigger decision on every tick
// and logs transitions. The external scheduler consumes the decision.
func runTriggerLoop(ctx context.Context, controller *schedule.Controller, interval time.Duration, logger zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	enabled := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			enable, err := controller.EvaluateTrigger(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("trigger evaluation failed")
				continue
			}
			if enable != enabled {
				logger.Info().Bool("enabled", enable).Msg("event-driven trigger state changed")
				enabled = enable
			}
		}
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "mongo":
		st, err := store.NewMongoStore(ctx, cfg.Store.MongoURI, cfg.Store.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close(context.Background()) }, nil
	default:
		st, err := store.NewFirestoreStore(ctx, cfg.GCP.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	}
}

func buildSecretStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (secrets.Store, error) {
	if cfg.GCP.ProjectID == "" {
		logger.Warn().Msg("no GCP project configured, using in-memory secret store")
		return secrets.NewMemory(), nil
	}
	return secrets.NewSecretManager(ctx, cfg.GCP.ProjectID)
}

func buildNotifier(ctx context.Context, cfg *config.Config, st store.Store, logger zerolog.Logger) (notify.Notifier, error) {
	if cfg.GCP.ProjectID == "" {
		return &notify.LogNotifier{Logger: logger}, nil
	}
	return notify.NewPubSubNotifier(ctx, cfg.GCP.ProjectID, cfg.Notify.Topic, st)
}
