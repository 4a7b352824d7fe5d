// Package supervisor drives the peer engine's observable lifecycle: startup
// sequencing, event-to-log translation, optional instrumentation export,
// transport health sampling and ordered shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/holepunchto/blind-peer-cli/internal/logger"
	"github.com/holepunchto/blind-peer-cli/pkg/config"
	"github.com/holepunchto/blind-peer-cli/pkg/engine"
)

// ErrEngineConstruction marks a fatal failure to construct or initialize
// the peer engine. No partial engine is left running behind it.
var ErrEngineConstruction = errors.New("engine construction failed")

// closeStepTimeout bounds each mandatory shutdown step. Generous on
// purpose: a hanging step is logged and abandoned only after this long,
// and the next mandatory step still runs.
const closeStepTimeout = time.Minute

// Exporter is the instrumentation handle as seen by the supervisor. It is
// created at most once, after the engine is listening, and must be closed
// strictly before the engine during shutdown.
type Exporter interface {
	Ready(ctx context.Context) error
	Close(ctx context.Context) error
	RegisterLogger(log *slog.Logger)
	RegisterEngine(eng engine.Engine)
}

// Options carries the supervisor's injected dependencies. Logger and
// NewEngine are required; the rest default to real process facilities.
type Options struct {
	// Logger receives every log record the supervisor produces.
	Logger *slog.Logger

	// NewEngine constructs the peer engine from the resolved
	// configuration.
	NewEngine func(ctx context.Context, cfg *config.Config, log *slog.Logger) (engine.Engine, error)

	// NewExporter constructs the instrumentation exporter. Only called
	// when scraper credentials are configured. alias is the resolved
	// scraper alias (operator-supplied or derived from the node key).
	NewExporter func(cfg *config.Config, eng engine.Engine, alias string, log *slog.Logger) (Exporter, error)

	// NewConsole starts the remote debug console. Only called when a
	// REPL seed is configured.
	NewConsole func(peer ConsolePeer, cfg *config.Config, log *slog.Logger) (io.Closer, error)

	// Notify registers c for shutdown signals. Defaults to signal.Notify
	// with SIGINT and SIGTERM.
	Notify func(c chan<- os.Signal)

	// Jitter returns a uniform random value in [0, 1) for the
	// auto-shutdown timer. Defaults to math/rand.
	Jitter func() float64
}

// ConsolePeer is the supervisor surface exposed to the debug console.
type ConsolePeer interface {
	State() State
	Digest() engine.Digest
	Trusted() engine.TrustSet
	Shutdown(reason string)
}

// Supervisor owns the engine handle for its process lifetime and runs the
// lifecycle state machine.
type Supervisor struct {
	cfg  *config.Config
	opts Options
	log  *slog.Logger

	state atomic.Int32

	eng      engine.Engine
	exporter Exporter
	bridge   *EventLogBridge
	health   *StreamHealthMonitor
	console  io.Closer

	// requests carries externally requested shutdowns (debug console)
	// into the same wait/teardown path signals use.
	requests chan string
}

// New builds a supervisor for cfg. The configuration must already be
// resolved and is treated as immutable.
func New(cfg *config.Config, opts Options) (*Supervisor, error) {
	if opts.Logger == nil {
		return nil, errors.New("supervisor: Options.Logger is required")
	}
	if opts.NewEngine == nil {
		return nil, errors.New("supervisor: Options.NewEngine is required")
	}
	if opts.Notify == nil {
		opts.Notify = func(c chan<- os.Signal) {
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		}
	}
	if opts.Jitter == nil {
		opts.Jitter = rand.Float64
	}
	return &Supervisor{
		cfg:      cfg,
		opts:     opts,
		log:      opts.Logger.With(logger.KeyComponent, "supervisor"),
		requests: make(chan string, 1),
	}, nil
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	s.log.Debug("state changed", "state", st.String())
}

// Digest reports the engine's storage accounting, or the zero digest before
// the engine exists.
func (s *Supervisor) Digest() engine.Digest {
	if s.eng == nil {
		return engine.Digest{}
	}
	return s.eng.Digest()
}

// Trusted reports the engine's trusted peer set.
func (s *Supervisor) Trusted() engine.TrustSet {
	if s.eng == nil {
		return engine.TrustSet{}
	}
	return s.eng.Trusted()
}

// Shutdown requests an orderly shutdown through the same path termination
// signals use. Safe to call from any goroutine; only the first request is
// acted on.
func (s *Supervisor) Shutdown(reason string) {
	select {
	case s.requests <- reason:
	default:
	}
}

// Run drives the full lifecycle and blocks until the peer has stopped.
//
// Any error during construction or supervisor-owned setup is returned and
// the caller should exit nonzero; the engine never outlives such an error.
// Once running, Run returns nil after an orderly shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setState(StateConstructing)

	eng, err := s.opts.NewEngine(ctx, s.cfg, s.opts.Logger)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineConstruction, err)
	}
	s.eng = eng

	// Listeners attach before ready so no early event is lost.
	s.bridge = AttachEventLog(eng, s.opts.Logger)

	if err := eng.Ready(ctx); err != nil {
		s.bridge.Close()
		// No partial engine may be left behind a construction failure.
		closeCtx, cancel := context.WithTimeout(context.Background(), closeStepTimeout)
		defer cancel()
		if cerr := eng.Close(closeCtx); cerr != nil {
			s.log.Warn("closing half-initialized engine", logger.KeyError, cerr.Error())
		}
		return fmt.Errorf("%w: %v", ErrEngineConstruction, err)
	}
	s.setState(StateReady)
	s.log.Info("peer ready",
		"public_key", eng.PublicKey().String(),
		"encryption_public_key", eng.EncryptionPublicKey().String(),
		"trusted_peers", eng.Trusted().Len(),
		logger.KeyBudget, s.cfg.MaxBytes)

	// Teardown is armed before any blocking operation starts, so a
	// failure during or after listen still reaches the shutdown path.
	sigCh := make(chan os.Signal, 1)
	s.opts.Notify(sigCh)

	if err := eng.Listen(ctx); err != nil {
		s.log.Error("listen failed", logger.KeyError, err.Error())
		s.shutdown()
		return fmt.Errorf("listen: %w", err)
	}
	s.setState(StateListening)
	s.log.Info("peer listening", "addrs", eng.Swarm().LocalAddrs())

	if err := s.setupInstrumentation(ctx); err != nil {
		s.log.Error("instrumentation setup failed", logger.KeyError, err.Error())
		s.shutdown()
		return fmt.Errorf("instrumentation: %w", err)
	}

	if err := s.setupConsole(); err != nil {
		s.log.Error("debug console setup failed", logger.KeyError, err.Error())
		s.shutdown()
		return fmt.Errorf("debug console: %w", err)
	}

	if s.cfg.StreamLogging {
		s.health = NewStreamHealthMonitor(eng.Swarm(), s.opts.Logger)
		s.health.Start()
	}

	var timerC <-chan time.Time
	if s.cfg.AutoShutdown > 0 {
		delay := jitterDelay(s.cfg.AutoShutdown, s.opts.Jitter())
		timer := time.NewTimer(delay)
		defer timer.Stop()
		timerC = timer.C
		s.log.Info("auto-shutdown armed", "fires_in", delay.String())
	}

	s.setState(StateRunning)
	s.log.Info("blind peer running")

	reason := s.awaitShutdown(ctx, sigCh, timerC)
	s.log.Info("shutdown requested", "reason", reason)
	s.shutdown()
	return nil
}

// awaitShutdown blocks until any shutdown trigger fires. All triggers
// converge here so there is exactly one teardown code path.
func (s *Supervisor) awaitShutdown(ctx context.Context, sigCh <-chan os.Signal, timerC <-chan time.Time) string {
	select {
	case sig := <-sigCh:
		return "signal " + sig.String()
	case <-timerC:
		return "auto-shutdown timer fired"
	case reason := <-s.requests:
		return reason
	case <-ctx.Done():
		return "context canceled"
	}
}

// setupInstrumentation wires the exporter once the engine is listening.
// When no scraper credentials are configured the exporter does not exist at
// all; nothing is allocated.
func (s *Supervisor) setupInstrumentation(ctx context.Context) error {
	if s.cfg.Scraper == nil {
		return nil
	}
	if s.opts.NewExporter == nil {
		return errors.New("scraper configured but no exporter factory supplied")
	}

	alias := s.cfg.Scraper.Alias
	if alias == "" {
		alias = config.DefaultAlias(s.eng.PublicKey())
	}

	exporter, err := s.opts.NewExporter(s.cfg, s.eng, alias, s.opts.Logger)
	if err != nil {
		return err
	}
	exporter.RegisterLogger(s.opts.Logger)
	exporter.RegisterEngine(s.eng)
	if err := exporter.Ready(ctx); err != nil {
		// The exporter never became usable; close it on a best-effort
		// basis before failing startup.
		closeCtx, cancel := context.WithTimeout(context.Background(), closeStepTimeout)
		defer cancel()
		if cerr := exporter.Close(closeCtx); cerr != nil {
			s.log.Warn("closing failed exporter", logger.KeyError, cerr.Error())
		}
		return err
	}

	s.exporter = exporter
	s.setState(StateInstrumented)
	s.log.Info("instrumentation exporter ready", "alias", alias)
	return nil
}

// setupConsole starts the remote debug console when a seed is configured.
// The console is insecure and exists only behind this explicit operator
// opt-in.
func (s *Supervisor) setupConsole() error {
	if s.cfg.ReplSeed == nil {
		return nil
	}
	if s.opts.NewConsole == nil {
		return errors.New("repl seed configured but no console factory supplied")
	}
	console, err := s.opts.NewConsole(s, s.cfg, s.opts.Logger)
	if err != nil {
		return err
	}
	s.console = console
	s.log.Warn("remote debug console enabled; this is insecure and for debugging only")
	return nil
}

// shutdown tears everything down in the mandatory order: debug console and
// health sampler first (pure observers), then the instrumentation exporter,
// then the engine. Each step's failure is logged and the next step still
// runs; no step is ever skipped.
func (s *Supervisor) shutdown() {
	s.setState(StateShuttingDown)

	if s.console != nil {
		if err := s.console.Close(); err != nil {
			s.log.Warn("debug console close failed", logger.KeyError, err.Error())
		}
		s.console = nil
	}
	if s.health != nil {
		s.health.Stop()
		s.health = nil
	}

	if s.exporter != nil {
		// The exporter references the engine's swarm and storage, so its
		// close must fully complete before the engine goes away.
		ctx, cancel := context.WithTimeout(context.Background(), closeStepTimeout)
		if err := s.exporter.Close(ctx); err != nil {
			s.log.Error("instrumentation close failed", logger.KeyError, err.Error())
		}
		cancel()
		s.exporter = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeStepTimeout)
	if err := s.eng.Close(ctx); err != nil {
		s.log.Error("engine close failed", logger.KeyError, err.Error())
	}
	cancel()

	if s.bridge != nil {
		s.bridge.Close()
		s.bridge = nil
	}

	s.setState(StateStopped)
	s.log.Info("blind peer stopped")
}

// jitterDelay spreads the auto-shutdown of a fleet: the configured base
// interval plus up to 20% uniform jitter, so peers restarted together do
// not all exit together. u must be in [0, 1).
func jitterDelay(base time.Duration, u float64) time.Duration {
	return time.Duration(float64(base) * (1 + 0.2*u))
}
