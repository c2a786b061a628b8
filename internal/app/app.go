// Package app wires all fnx subsystems into a running dictation daemon.
//
// The App struct owns the full lifecycle: New opens the state store, builds
// the usage gate, rule manager, overlay, capture, injector and pipeline
// coordinator, Run drives the hotkey and the optional metrics endpoint, and
// Shutdown tears everything down in order.
//
// Anything that touches hardware or the OS (microphone, global hotkey,
// keystrokes) arrives through [Platform], so tests can run the whole
// application against fakes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/fnx/internal/config"
	"github.com/MrWong99/fnx/internal/health"
	"github.com/MrWong99/fnx/internal/journal"
	"github.com/MrWong99/fnx/internal/notify"
	"github.com/MrWong99/fnx/internal/observe"
	"github.com/MrWong99/fnx/internal/overlay"
	"github.com/MrWong99/fnx/internal/pipeline"
	"github.com/MrWong99/fnx/internal/resilience"
	"github.com/MrWong99/fnx/internal/rules"
	"github.com/MrWong99/fnx/internal/store"
	"github.com/MrWong99/fnx/internal/transform"
	"github.com/MrWong99/fnx/internal/usage"
	"github.com/MrWong99/fnx/pkg/audio"
	"github.com/MrWong99/fnx/pkg/hotkey"
	"github.com/MrWong99/fnx/pkg/inject"
	"github.com/MrWong99/fnx/pkg/provider/llm"
	"github.com/MrWong99/fnx/pkg/provider/stt"
)

// shutdownTimeout bounds the HTTP server drain in Run.
const shutdownTimeout = 5 * time.Second

// Providers holds the instantiated backends. Populated by main.go via the
// config registry. STT is required; the rest may be nil.
type Providers struct {
	STT             stt.Provider
	STTName         string
	STTFallback     stt.Provider
	STTFallbackName string
	LLM             llm.Provider
	LLMName         string
}

// Platform holds the OS integrations. Microphone, Hotkey and Keyboard are
// required.
type Platform struct {
	Microphone audio.Device
	Hotkey     hotkey.Source
	Keyboard   inject.Sender

	// Permission defaults to probing the microphone's input format.
	Permission pipeline.PermissionChecker
}

// App owns all subsystem lifetimes.
type App struct {
	// cfg is the startup config; Reload does not replace it.
	cfg       *config.Config
	providers *Providers
	platform  Platform

	levels   *slog.LevelVar
	metrics  *observe.Metrics
	notifier *notify.Notifier

	store     *store.Store
	gate      *usage.Gate
	rules     *rules.Manager
	presenter *overlay.Presenter
	capture   *audio.Capture
	stt       *resilience.STTFallback
	journal   *journal.FileStore
	coord     *pipeline.Coordinator
	hotkeys   *hotkey.Watcher
	server    *http.Server
	health    *health.Handler

	// observers receive every session result after the journal.
	observers []func(pipeline.Result)

	// reloadMu serialises Reload calls.
	reloadMu sync.Mutex

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLevelVar lets Reload change the log level of the handler built on lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levels = lv }
}

// WithMetrics replaces observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithNotifier replaces the beeep-backed notifier.
func WithNotifier(n *notify.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithObserver adds a callback invoked once per finished session.
func WithObserver(fn func(pipeline.Result)) Option {
	return func(a *App) { a.observers = append(a.observers, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Providers and
// platform integrations come from main.go.
func New(ctx context.Context, cfg *config.Config, providers *Providers, platform Platform, opts ...Option) (*App, error) {
	if err := validate(providers, platform); err != nil {
		return nil, err
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		platform:  platform,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.notifier == nil {
		a.notifier = notify.New()
	}
	if a.platform.Permission == nil {
		a.platform.Permission = devicePermission{dev: platform.Microphone}
	}

	// ── 1. State store ───────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Usage gate ────────────────────────────────────────────────────
	if err := a.initUsage(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init usage: %w", err)
	}

	// ── 3. Rules ─────────────────────────────────────────────────────────
	if err := a.initRules(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init rules: %w", err)
	}

	// ── 4. Overlay ───────────────────────────────────────────────────────
	a.presenter = overlay.New(
		overlay.WithDelays(cfg.Overlay.DoneDelay, cfg.Overlay.BlockedDelay),
		overlay.WithRenderer(overlay.RendererFunc(func(s overlay.State) {
			overlay.LogRenderer{}.Render(s)
			a.notifier.Render(s)
		})),
	)
	a.closers = append(a.closers, func() error { a.presenter.Close(); return nil })

	// ── 5. Coordinator ───────────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 6. Hotkey + HTTP ─────────────────────────────────────────────────
	a.hotkeys = hotkey.NewWatcher(platform.Hotkey)
	a.health = health.New(
		health.Ping("store", a.store),
		health.Flag("transcriber", a.stt.Ready),
	)
	if cfg.Server.ListenAddr != "" {
		a.server = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	snap := a.gate.Snapshot()
	slog.Info("app initialised",
		"tier", snap.Tier,
		"remaining_today", snap.Remaining,
		"stt", providers.STTName,
		"stt_fallback", providers.STTFallbackName,
		"llm", providers.LLMName,
		"journal", cfg.Journal.Path,
	)
	return a, nil
}

func validate(p *Providers, pl Platform) error {
	var errs []error
	if p == nil || p.STT == nil {
		errs = append(errs, errors.New("app: an STT provider is required"))
	}
	if pl.Microphone == nil {
		errs = append(errs, errors.New("app: a microphone device is required"))
	}
	if pl.Hotkey == nil {
		errs = append(errs, errors.New("app: a hotkey source is required"))
	}
	if pl.Keyboard == nil {
		errs = append(errs, errors.New("app: a keyboard sender is required"))
	}
	return errors.Join(errs...)
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStore(ctx context.Context) error {
	s, err := store.Open(ctx, a.cfg.Store.Path)
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	return nil
}

func (a *App) initUsage(ctx context.Context) error {
	g, err := usage.New(ctx, a.store, usage.WithDailyLimit(a.cfg.Usage.DailyLimit))
	if err != nil {
		return err
	}
	if t := a.cfg.Usage.Tier; t != "" && t != g.Tier() {
		if err := g.SetTier(ctx, t); err != nil {
			return fmt.Errorf("apply configured tier: %w", err)
		}
		slog.Info("license tier set from config", "tier", t)
	}
	a.gate = g
	return nil
}

// initRules loads the rule set, upserts configured custom rules and applies
// the startup selection.
func (a *App) initRules(ctx context.Context) error {
	m, err := rules.New(ctx, a.store)
	if err != nil {
		return err
	}
	for _, rc := range a.cfg.Rules.Custom {
		r, err := m.Upsert(ctx, rules.Rule{
			Name:           rc.Name,
			Prompt:         rc.Prompt,
			UseTranslation: rc.UseTranslation,
		})
		if errors.Is(err, rules.ErrBuiltin) {
			slog.Warn("custom rule shadows a built-in rule and was skipped", "rule", rc.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("upsert rule %q: %w", rc.Name, err)
		}
		slog.Debug("custom rule loaded", "rule", r.Name, "id", r.ID)
	}
	if ref := a.cfg.Rules.Active; ref != "" {
		if err := m.SetActive(ctx, ref); err != nil {
			return fmt.Errorf("select rule %q: %w", ref, err)
		}
	}
	if r, ok, err := m.Active(ctx); err == nil && ok {
		slog.Info("active rule", "rule", r.Name)
	}
	a.rules = m
	return nil
}

func (a *App) initPipeline() error {
	p := a.providers

	a.stt = resilience.NewSTTFallback(p.STT, nameOr(p.STTName, "stt"), resilience.FallbackConfig{})
	if p.STTFallback != nil {
		a.stt.AddFallback(nameOr(p.STTFallbackName, "stt_fallback"), p.STTFallback)
	}
	for _, v := range []any{p.STT, p.STTFallback, p.LLM} {
		if c, ok := v.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	var tf pipeline.Transformer
	if p.LLM != nil {
		tf = transform.New(resilience.NewLLMFallback(p.LLM, nameOr(p.LLMName, "llm"), resilience.FallbackConfig{}))
	}

	a.capture = audio.NewCapture(a.platform.Microphone, audio.WithTempDir(a.cfg.Audio.TempDir))
	if c, ok := a.platform.Microphone.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	if path := a.cfg.Journal.Path; path != "" {
		a.journal = journal.NewFileStore(path)
		a.observers = append([]func(pipeline.Result){a.journal.Observer()}, a.observers...)
	}

	coord, err := pipeline.New(pipeline.Config{
		Recorder:    a.capture,
		Transcriber: a.stt,
		Transformer: tf,
		Injector: inject.New(a.platform.Keyboard,
			inject.WithChunkSize(a.cfg.Inject.ChunkSize),
			inject.WithChunkDelay(a.cfg.Inject.ChunkDelay),
		),
		Gate:       a.gate,
		Rules:      a.rules,
		Overlay:    a.presenter,
		Permission: a.platform.Permission,
		Prompter:   a.notifier,
		Policy:     policyFrom(a.cfg.Usage),
		Metrics:    a.metrics,
		STTName:    p.STTName,
		LLMName:    p.LLMName,
		Observer:   a.observe,
	})
	if err != nil {
		return err
	}
	a.coord = coord
	return nil
}

func (a *App) observe(r pipeline.Result) {
	for _, fn := range a.observers {
		fn(r)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run registers the hotkey, serves the metrics endpoint when configured, and
// blocks until ctx is cancelled or a component fails. A cancelled ctx is a
// clean exit and yields nil.
func (a *App) Run(ctx context.Context) error {
	// Bind before anything starts so a taken port fails fast with nothing to
	// unwind.
	var ln net.Listener
	if a.server != nil {
		var err error
		if ln, err = net.Listen("tcp", a.server.Addr); err != nil {
			return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
		}
	}
	if err := a.hotkeys.Start(); err != nil {
		if ln != nil {
			_ = ln.Close()
		}
		return fmt.Errorf("app: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The hook is released once the coordinator has finished, including
		// the session a held key was driving.
		defer func() {
			if err := a.hotkeys.Stop(); err != nil {
				slog.Warn("hotkey stop error", "err", err)
			}
		}()
		return a.coord.Run(gctx, a.hotkeys.Edges())
	})

	if ln != nil {
		slog.Info("metrics endpoint listening", "addr", ln.Addr().String())
		g.Go(func() error {
			if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return a.server.Shutdown(sctx)
		})
	}

	slog.Info("fnx ready, hold the hotkey to dictate", "key", a.cfg.Hotkey.Key, "backend", a.cfg.Hotkey.Backend)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handler returns the HTTP handler serving /metrics, /healthz and /readyz.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	a.health.Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable differences between old and new. It has
// the signature config.Watcher expects.
func (a *App) Reload(old, new *config.Config) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	d := config.Diff(old, new)
	if d.LogLevelChanged && a.levels != nil {
		a.levels.Set(LogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.UsageChanged {
		a.gate.SetDailyLimit(d.NewUsage.DailyLimit)
		a.coord.SetPolicy(policyFrom(d.NewUsage))
		slog.Info("usage policy changed",
			"daily_limit", d.NewUsage.DailyLimit,
			"rules_require_pro", d.NewUsage.RulesRequirePro,
			"pro_required_counts_usage", d.NewUsage.ProRequiredCountsUsage,
		)
	}
	if d.OverlayChanged {
		a.presenter.SetDelays(d.NewDoneDelay, d.NewBlockedDelay)
		slog.Info("overlay delays changed", "done", d.NewDoneDelay, "blocked", d.NewBlockedDelay)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned. Call it after Run has returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what New managed to open before failing.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Coordinator exposes the pipeline, mainly for state inspection in tests.
func (a *App) Coordinator() *pipeline.Coordinator { return a.coord }

// Gate exposes the usage gate.
func (a *App) Gate() *usage.Gate { return a.gate }

// Rules exposes the rule manager.
func (a *App) Rules() *rules.Manager { return a.rules }

// ─── Helpers ─────────────────────────────────────────────────────────────────

// LogLevel converts a config level to its slog equivalent.
func LogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func policyFrom(u config.UsageConfig) pipeline.Policy {
	return pipeline.Policy{
		RulesRequirePro:        u.RulesRequirePro,
		ProRequiredCountsUsage: u.ProRequiredCountsUsage,
	}
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// devicePermission treats a microphone that cannot report its input format
// as not granted.
type devicePermission struct {
	dev audio.Device
}

func (p devicePermission) MicrophoneGranted() bool {
	_, err := p.dev.InputFormat()
	if err != nil {
		slog.Debug("microphone probe failed", "err", err)
	}
	return err == nil
}
