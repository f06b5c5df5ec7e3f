// Command greenhouse-sensor samples humidity and temperature sensors, keeps a
// rotating CSV log and answers status requests over TCP and HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/sweeney/greenhouse-sensor/internal/camera"
	"github.com/sweeney/greenhouse-sensor/internal/config"
	"github.com/sweeney/greenhouse-sensor/internal/controller"
	"github.com/sweeney/greenhouse-sensor/internal/counter"
	"github.com/sweeney/greenhouse-sensor/internal/csvlog"
	"github.com/sweeney/greenhouse-sensor/internal/endpoint"
	"github.com/sweeney/greenhouse-sensor/internal/gpio"
	"github.com/sweeney/greenhouse-sensor/internal/history"
	"github.com/sweeney/greenhouse-sensor/internal/logger"
	"github.com/sweeney/greenhouse-sensor/internal/metrics"
	"github.com/sweeney/greenhouse-sensor/internal/mqtt"
	"github.com/sweeney/greenhouse-sensor/internal/nvm"
	"github.com/sweeney/greenhouse-sensor/internal/sensor"
	"github.com/sweeney/greenhouse-sensor/internal/status"
	"github.com/sweeney/greenhouse-sensor/internal/web"
)

const shutdownTimeout = 5 * time.Second

// simulatedRaw is what a simulated sensor always reads.
var simulatedRaw = sensor.Raw{Humidity: 55, Celsius: 21.5}

func main() {
	cfg, err := config.Load(os.Args[0], os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		logger.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	log := logger.For("main")
	if cfg.ConfigFile != "" {
		log.Info().Str("file", cfg.ConfigFile).Msg("loaded config")
	}

	store, err := nvm.Open(cfg.NVM.Backend, cfg.NVM.Path, cfg.NVM.Size)
	if err != nil {
		return fmt.Errorf("open counter storage: %w", err)
	}
	defer store.Close()
	ctr := counter.New(store)

	if cfg.PrintCounter || cfg.ResetCounter {
		return counterCommand(os.Stdout, ctr, cfg)
	}

	iter, err := ctr.CurrentIteration()
	if err != nil {
		return fmt.Errorf("read counter: %w", err)
	}
	metrics.SetIteration(iter)

	clk := clock.RealClock{}
	samplers, err := buildSamplers(cfg, clk)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range samplers {
			s.Close()
		}
	}()

	tracker := status.NewTracker(clk, status.Config{
		UpdateInterval: cfg.UpdateInterval,
		ImageInterval:  cfg.ImageInterval,
		ReadsPerSample: cfg.ReadsPerSample,
		Unit:           cfg.Unit(),
		Endpoint:       cfg.Endpoint.Addr,
		Broker:         cfg.MQTT.Broker,
		HTTPAddr:       cfg.HTTP.Addr,
	})

	inbox, err := endpoint.Listen(cfg.Endpoint.Addr)
	if err != nil {
		return fmt.Errorf("status endpoint: %w", err)
	}
	defer inbox.Close()
	log.Info().Str("addr", inbox.Addr().String()).Msg("status endpoint listening")

	var sinks []controller.Sink

	var publisher mqtt.Publisher
	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			BufferSize: cfg.MQTT.BufferSize,
			Logger:     logger.For("mqtt"),
			OnStatus:   tracker.SetMQTTConnected,
		})
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer pub.Close()
		tracker.SetMQTTConnected(pub.IsConnected())
		publisher = pub
		sinks = append(sinks, mqtt.Sink{Publisher: pub})
		publishSystem(publisher, tracker, "STARTUP", "", log)
	}

	var hist web.HistorySource
	if cfg.History.Enabled {
		repo, err := history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		defer repo.Close()
		hist = repo
		sinks = append(sinks, repo)
	}

	deps := controller.Deps{
		Inbox:   inbox,
		Counter: ctr,
		Log:     csvlog.NewWriter(),
		Sinks:   sinks,
		Tracker: tracker,
		Clock:   clk,
		Logger:  logger.For("controller"),
	}
	for _, s := range samplers {
		deps.Samplers = append(deps.Samplers, s)
	}
	if cam := camera.NewCommand(cfg.Camera.Command, cfg.Camera.Dir); cam != nil {
		deps.Camera = cam
	}

	ctrl, err := controller.New(controller.Config{
		ReadsPerSample: cfg.ReadsPerSample,
		UpdateInterval: cfg.UpdateInterval,
		ImageInterval:  cfg.ImageInterval,
		PollDelay:      cfg.PollDelay,
		LogDir:         cfg.Log.Dir,
		LogPrefix:      cfg.Log.Prefix,
		RequestRate:    cfg.Endpoint.Rate,
		RequestBurst:   cfg.Endpoint.Burst,
	}, deps)
	if err != nil {
		return err
	}

	var srv httpServer
	if cfg.HTTP.Addr != "" {
		srv = web.New(cfg.HTTP.Addr, tracker, hist, logger.For("web"))
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
	}

	log.Info().
		Int("sensors", len(samplers)).
		Uint64("iteration", iter).
		Str("log_dir", cfg.Log.Dir).
		Str("unit", string(cfg.Unit())).
		Msg("started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	reason, err := supervise(context.Background(), ctrl, srv, sig, log)

	if publisher != nil {
		publishSystem(publisher, tracker, "SHUTDOWN", reason, log)
	}
	return err
}

// buildSamplers opens every configured sensor with its power line.
func buildSamplers(cfg *config.Config, clk clock.Clock) ([]*sensor.Sampler, error) {
	opts := sensor.Options{
		StabilizationDelay: cfg.StabilizationDelay,
		Unit:               cfg.Unit(),
		Logger:             logger.For("sensor"),
	}

	var out []*sensor.Sampler
	fail := func(err error) ([]*sensor.Sampler, error) {
		for _, s := range out {
			s.Close()
		}
		return nil, err
	}

	for _, sc := range cfg.Sensors {
		if sc.Simulated {
			out = append(out, sensor.NewSampler(sc.Name, gpio.NewFakeLine(), sensor.NewFakeDevice(simulatedRaw), clk, opts))
			continue
		}

		line, err := gpio.NewRealLine(sc.PowerChip, sc.PowerLine)
		if err != nil {
			return fail(fmt.Errorf("sensor %s power line: %w", sc.Name, err))
		}
		dev, err := sensor.OpenPeriph(sc.Bus, sc.Address)
		if err != nil {
			line.Close()
			return fail(fmt.Errorf("sensor %s: %w", sc.Name, err))
		}
		out = append(out, sensor.NewSampler(sc.Name, line, dev, clk, opts))
	}
	return out, nil
}

// counterCommand handles the one-shot counter modes.
func counterCommand(w io.Writer, ctr *counter.Counter, cfg *config.Config) error {
	if cfg.ResetCounter {
		if err := ctr.Store(counter.Record{Marker: counter.Magic}); err != nil {
			return fmt.Errorf("reset counter: %w", err)
		}
		fmt.Fprintln(w, "counter reset")
	}

	iter, err := ctr.CurrentIteration()
	if err != nil {
		return fmt.Errorf("read counter: %w", err)
	}
	name, err := ctr.FileName(cfg.Log.Dir, cfg.Log.Prefix)
	if err != nil {
		return fmt.Errorf("read counter: %w", err)
	}
	fmt.Fprintf(w, "iteration: %d\nlog file: %s\n", iter, name)
	return nil
}

func publishSystem(pub mqtt.Publisher, tracker *status.Tracker, event, reason string, log zerolog.Logger) {
	snap := tracker.Snapshot()
	err := pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	log.Info().Str("event", event).Msg("published system event")
}

type loop interface {
	Run(ctx context.Context) error
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// supervise runs the control loop and the optional HTTP server until a
// signal arrives or either of them fails. It returns the signal name, if any.
func supervise(parent context.Context, ctrl loop, srv httpServer, sig <-chan os.Signal, log zerolog.Logger) (string, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var reason string
	g.Go(func() error {
		select {
		case s := <-sig:
			reason = signalName(s)
			log.Info().Str("signal", reason).Msg("shutting down")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		defer cancel()
		return ctrl.Run(gctx)
	})

	if srv != nil {
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			return srv.Shutdown(sctx)
		})
	}

	err := g.Wait()
	return reason, err
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
