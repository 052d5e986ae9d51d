package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/bootstrap"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/config"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/influx"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/logger"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/notify"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/services/alerting"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/simulator"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/store"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/tracing"
	"github.com/LeonardoBeccarini/irrigation_alerts/pkg/dedup"
	"github.com/LeonardoBeccarini/irrigation_alerts/pkg/rabbitmq"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:          "alerting",
		Short:        "irrigation alert sweeps and event watchers",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", os.Getenv("ALERTS_CONFIG"), "YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "run the scheduler, the bus consumer and the HTTP endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:       "sweep <soil|water|reminders>",
		Short:     "run one sweep and print its report",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{alerting.SweepSoil, alerting.SweepWater, alerting.SweepReminders},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return sweepOnce(cmd.Context(), cfg, args[0])
		},
	})

	var simEvery time.Duration
	simCmd := &cobra.Command{
		Use:   "simulate",
		Short: "write synthetic readings for every registered sensor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return simulate(cmd.Context(), cfg, simEvery)
		},
	}
	simCmd.Flags().DurationVar(&simEvery, "every", time.Minute, "interval between readings")
	root.AddCommand(simCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type deps struct {
	svc     *alerting.Service
	store   bootstrap.Backend
	mqtt    mqtt.Client
	sink    *influx.Sink
	closers []func() error
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.Logger.Warn().Err(err).Msg("close failed")
		}
	}
}

func wire(ctx context.Context, cfg *config.Config, withBus bool) (*deps, error) {
	logger.Init(cfg.Log, cfg.Service+"-alerting")
	d := &deps{}

	shutdownTracing, err := tracing.Init(cfg.Tracing, cfg.Service+"-alerting")
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, func() error { return shutdownTracing(context.Background()) })

	st, closeStore, err := bootstrap.OpenStore(cfg.Database)
	if err != nil {
		d.close()
		return nil, err
	}
	d.closers = append(d.closers, closeStore)
	d.store = st

	locker, closeLocker, err := bootstrap.OpenLocker(ctx, cfg.Redis)
	if err != nil {
		d.close()
		return nil, err
	}
	d.closers = append(d.closers, closeLocker)

	var readings store.ReadingSource = st
	var sink alerting.AlertSink
	if cfg.Influx.URL != "" {
		ic := influxdb2.NewClient(cfg.Influx.URL, cfg.Influx.Token)
		d.closers = append(d.closers, func() error { ic.Close(); return nil })
		d.sink = influx.NewSink(ic.WriteAPI(cfg.Influx.Org, cfg.Influx.AlertsBucket))
		d.closers = append(d.closers, func() error { d.sink.Flush(); return nil })
		sink = d.sink
		if cfg.Readings.Source == "influx" {
			readings = influx.NewSource(ic, influx.SourceConfig{
				Org:         cfg.Influx.Org,
				Bucket:      cfg.Influx.Bucket,
				Measurement: cfg.Influx.Measurement,
				Field:       cfg.Influx.Field,
				Lookback:    cfg.Influx.Lookback,
			})
		}
	}

	var bus alerting.AlertPublisher
	if withBus && cfg.MQTT.Enabled {
		client, err := rabbitmq.NewRabbitMQConn(&rabbitmq.RabbitMQConfig{
			Host:     cfg.MQTT.Host,
			Port:     cfg.MQTT.Port,
			User:     cfg.MQTT.User,
			Password: cfg.MQTT.Password,
			ClientID: cfg.MQTT.ClientID,
		}, ctx)
		if err != nil {
			d.close()
			return nil, err
		}
		d.mqtt = client
		d.closers = append(d.closers, func() error { rabbitmq.CloseRabbitMQConn(client); return nil })
		bus = rabbitmq.NewPublisher(client, "", 1)
	}

	d.svc = alerting.NewService(alerting.Options{
		Store:      st,
		Readings:   readings,
		Locker:     locker,
		Notifier:   notify.NewNotifier(st, bootstrap.NewFCMGateway(cfg.Push)),
		Mailer:     bootstrap.NewMailer(cfg.Mail),
		Sink:       sink,
		Bus:        bus,
		AlertTopic: cfg.MQTT.AlertTopicTmpl,
		Policy:     cfg.Policy.ToPolicy(),
		Mail: alerting.MailSettings{
			From:        cfg.Mail.From,
			Admins:      cfg.Mail.Admins,
			ApprovalURL: cfg.Approval.BaseURL,
		},
		Concurrency:   cfg.Schedule.Concurrency,
		EntityTimeout: cfg.Schedule.EntityTimeout,
	})
	return d, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	d, err := wire(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer d.close()
	log := logger.WithComponent("main")

	sched := alerting.NewScheduler(d.svc, map[string]time.Duration{
		alerting.SweepSoil:      cfg.Schedule.SoilEvery,
		alerting.SweepWater:     cfg.Schedule.WaterEvery,
		alerting.SweepReminders: cfg.Schedule.RemindersEvery,
	})

	healthSrv, err := bootstrap.StartHealth(cfg.GRPC.HealthPort, "alerting")
	if err != nil {
		return err
	}
	defer healthSrv.Stop()

	httpDeps := alerting.HTTPDeps{
		Sweeper:     sched,
		JWTSecret:   []byte(cfg.Approval.JWTSecret),
		MinErrorAge: 2 * time.Second,
	}
	if d.mqtt != nil {
		httpDeps.Bus = d.mqtt
	}
	if d.sink != nil {
		httpDeps.Sink = d.sink
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return bootstrap.ServeHTTP(gctx, cfg.HTTP.Port, alerting.NewHTTPHandler(httpDeps), cfg.HTTP)
	})
	if d.mqtt != nil {
		router, err := alerting.NewRouter(d.svc, sched, alerting.Topics{
			Status:       cfg.MQTT.StatusTopic,
			Advisory:     cfg.MQTT.AdvisoryTopic,
			Verification: cfg.MQTT.VerificationTopic,
			Trigger:      cfg.MQTT.TriggerTopic,
		}, dedup.New(10*time.Minute, 20000))
		if err != nil {
			return err
		}
		consumer := rabbitmq.NewMultiConsumer(d.mqtt, router.Subscriptions(), router.Handle)
		g.Go(func() error {
			consumer.ConsumeMessage(gctx)
			return nil
		})
	}

	log.Info().Msg("alerting service started")
	err = g.Wait()
	log.Info().Msg("shutting down...")
	return err
}

func sweepOnce(ctx context.Context, cfg *config.Config, name string) error {
	d, err := wire(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer d.close()

	rep, sweepErr := d.svc.Sweep(ctx, name)
	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return sweepErr
}

func simulate(ctx context.Context, cfg *config.Config, every time.Duration) error {
	d, err := wire(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer d.close()

	sim := simulator.New(d.store, d.store, simulator.DefaultConfig())
	if _, err := sim.Tick(ctx); err != nil {
		logger.Logger.Warn().Err(err).Msg("first simulation tick")
	}
	sim.Start(ctx, every)
	return nil
}
