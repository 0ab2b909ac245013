package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/saira-network/saira/internal/api"
	"github.com/saira-network/saira/internal/app/audio"
	"github.com/saira-network/saira/internal/app/inference"
	"github.com/saira-network/saira/internal/domain"
	"github.com/saira-network/saira/internal/infra/fake"
	"github.com/saira-network/saira/internal/infra/miniaudio"
	"github.com/saira-network/saira/internal/infra/observability"
	"github.com/saira-network/saira/internal/infra/openaicompat"
	"github.com/saira-network/saira/internal/infra/provider"
	"github.com/saira-network/saira/internal/infra/sqlite"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server and engine.
const shutdownTimeout = 30 * time.Second

// Options selects which subsystems New starts. One-shot CLI commands skip
// the ones they do not need.
type Options struct {
	Audio   bool
	Journal bool
}

// Daemon owns every long-lived component of the process.
type Daemon struct {
	cfg    Config
	home   string
	log    zerolog.Logger
	tracer *observability.Tracer

	Registry *provider.Registry
	Engine   *inference.Engine
	Bridge   *audio.Bridge // nil when audio is disabled or unavailable
	DB       *sqlite.DB    // nil when the journal is disabled

	native *miniaudio.Device

	closeOnce sync.Once
	closeErr  error
}

// New builds the component graph from cfg. Nothing is listening yet.
func New(cfg Config, home string, opts Options, log zerolog.Logger) (*Daemon, error) {
	d := &Daemon{
		cfg:  cfg,
		home: home,
		log:  log.With().Str("component", "daemon").Logger(),
		tracer: observability.NewTracer(observability.TracerConfig{
			Enabled:  cfg.Metrics.Enabled,
			MaxSpans: cfg.Metrics.MaxSpans,
		}),
	}

	reg, err := newRegistry(cfg, os.Getenv)
	if err != nil {
		return nil, err
	}
	d.Registry = reg

	ecfg := inference.DefaultConfig()
	ecfg.Logger = log
	ecfg.Tracer = d.tracer
	for _, kind := range domain.ModelKinds {
		lane := cfg.Lane(kind)
		ecfg.Lanes[kind] = inference.LaneConfig{Workers: lane.Workers, QueueLimit: lane.QueueLimit}
	}
	if opts.Journal && cfg.Journal.Enabled {
		db, err := sqlite.Open(home)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		d.DB = db
		ecfg.Journal = db
	}
	d.Engine = inference.New(reg, ecfg)

	if opts.Audio {
		device, err := d.openAudio()
		if err != nil {
			// Headless hosts still serve inference.
			d.log.Warn().Err(err).Str("backend", cfg.Audio.Backend).Msg("audio unavailable")
		} else {
			d.Bridge = audio.NewBridge(device, audio.Config{
				MaxSessions: cfg.Audio.MaxSessions,
				Logger:      log,
			})
		}
	}
	return d, nil
}

// newRegistry installs the configured provider for each model kind.
func newRegistry(cfg Config, getenv func(string) string) (*provider.Registry, error) {
	reg := provider.New()
	fakes := fake.NewBackends(fake.Config{EmbeddingDim: cfg.LLM.EmbeddingDim})

	for _, kind := range domain.ModelKinds {
		lane := cfg.Lane(kind)
		switch lane.Provider {
		case ProviderFake:
			if kind == domain.ModelLLM {
				reg.RegisterText(ProviderFake, fakes.NewText)
			} else {
				reg.RegisterSpeech(ProviderFake, fakes.NewSpeech)
			}
		case ProviderOpenAI:
			timeout, err := lane.timeout()
			if err != nil {
				return nil, fmt.Errorf("%s.timeout: %w", kind, err)
			}
			ocfg := openaicompat.DefaultConfig()
			ocfg.BaseURL = lane.BaseURL
			ocfg.APIKey = lane.apiKey(getenv)
			if timeout > 0 {
				ocfg.Timeout = timeout
			}
			if kind == domain.ModelLLM {
				reg.RegisterText(ProviderOpenAI, openaicompat.NewTextFactory(ocfg))
			} else {
				reg.RegisterSpeech(ProviderOpenAI, openaicompat.NewSpeechFactory(ocfg))
			}
		default:
			return nil, fmt.Errorf("%s.provider %q: unknown provider", kind, lane.Provider)
		}
	}
	return reg, nil
}

func (d *Daemon) openAudio() (domain.AudioDevice, error) {
	if d.cfg.Audio.Backend == AudioFake {
		// Silence every 10 ms, like a muted microphone.
		return fake.NewAudio(fake.AudioConfig{Interval: 10 * time.Millisecond}), nil
	}
	native, err := miniaudio.Open(d.log)
	if err != nil {
		return nil, err
	}
	d.native = native
	return native, nil
}

// Config returns the configuration the daemon was built from.
func (d *Daemon) Config() Config { return d.cfg }

// Tracer returns the span recorder.
func (d *Daemon) Tracer() *observability.Tracer { return d.tracer }

// Restore loads the models resident at the previous shutdown, then any
// model named in config that is not loaded yet. Failures are logged and
// skipped.
func (d *Daemon) Restore(ctx context.Context) {
	if d.DB != nil && d.cfg.Journal.RestoreOnStart {
		resident, err := d.DB.ResidentModels()
		if err != nil {
			d.log.Warn().Err(err).Msg("read resident models")
		}
		for _, ev := range resident {
			d.load(ctx, ev.Kind, ev.Path, "restore")
		}
	}
	for _, kind := range domain.ModelKinds {
		path := d.cfg.Lane(kind).Model
		if path == "" {
			continue
		}
		if info, err := d.Engine.Slot(kind); err == nil && info.State != domain.StateUnloaded {
			continue
		}
		d.load(ctx, kind, path, "config")
	}
}

func (d *Daemon) load(ctx context.Context, kind domain.ModelKind, path, source string) {
	start := time.Now()
	if _, err := d.Engine.LoadModel(ctx, kind, path); err != nil {
		d.log.Warn().Err(err).Str("kind", kind.String()).Str("path", path).Str("source", source).Msg("load failed")
		return
	}
	d.log.Info().Str("kind", kind.String()).Str("path", path).Str("source", source).
		Dur("took", time.Since(start)).Msg("model loaded")
}

// Handler builds the HTTP API for this daemon.
func (d *Daemon) Handler() http.Handler {
	srv := api.NewServer(d.Engine, d.Bridge)
	srv.SetTracer(d.tracer)
	srv.SetLogger(d.log)
	if d.DB != nil {
		srv.SetHistory(d.DB)
	}
	if d.cfg.Metrics.Enabled {
		srv.EnableMetrics()
	}
	return srv.Handler()
}

// Serve runs the HTTP API on ln until ctx is cancelled, then shuts down
// every component.
func (d *Daemon) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		d.Restore(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	err := g.Wait()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return multierr.Append(err, d.Close(sctx))
}

// Close stops audio, drains the engine and closes the journal, in that
// order. Safe to call more than once.
func (d *Daemon) Close(ctx context.Context) error {
	d.closeOnce.Do(func() { d.closeErr = d.close(ctx) })
	return d.closeErr
}

func (d *Daemon) close(ctx context.Context) error {
	var err error
	if d.Bridge != nil {
		d.Bridge.Close()
	}
	if d.native != nil {
		err = multierr.Append(err, d.native.Close())
	}
	err = multierr.Append(err, d.Engine.Close(ctx))
	if d.DB != nil {
		err = multierr.Append(err, d.DB.Close())
	}
	if err != nil {
		d.log.Error().Err(err).Msg("shutdown")
	} else {
		d.log.Info().Msg("shutdown complete")
	}
	return err
}
