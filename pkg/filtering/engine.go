package filtering

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"urlfilter/pkg/browser"
	"urlfilter/pkg/dispatch"
	"urlfilter/pkg/metrics"
)

// DefaultLockLabel is the first text element of the accessibility entry in
// the settings app on the devices this filter was built for.
const DefaultLockLabel = "ユーザー補助"

// Engine turns UI events into redirect and settings-lock commands. Handle must
// be called from a single goroutine.
type Engine struct {
	registry    *browser.Registry
	config      *Store
	memory      *Memory
	gate        *Gate
	dispatcher  dispatch.Dispatcher
	extractor   Extractor
	settingsApp string
	lockLabel   string
	metrics     *metrics.Metrics
	log         *slog.Logger
	redirectLog *redirectLogger
	panicLog    rate.Sometimes
}

// Options configures an Engine.
type Options struct {
	Registry        *browser.Registry
	Config          *Store
	Memory          *Memory
	Dispatcher      dispatch.Dispatcher
	Extractor       Extractor
	SettingsApp     string
	LockLabel       string
	Window          time.Duration
	RedirectLogPath string
	Metrics         *metrics.Metrics
	Log             *slog.Logger
}

// NewEngine constructs an Engine. Registry, Config and Dispatcher are required.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Registry == nil || opts.Config == nil || opts.Dispatcher == nil {
		return nil, errors.New("engine requires registry, config and dispatcher")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	memory := opts.Memory
	if memory == nil {
		var err error
		if memory, err = NewMemory(DefaultMemoryCapacity); err != nil {
			return nil, err
		}
	}
	extractor := opts.Extractor
	if extractor == nil {
		extractor = NodeExtractor{}
	}
	settingsApp := opts.SettingsApp
	if settingsApp == "" {
		settingsApp = browser.DefaultSettingsApp
	}
	lockLabel := opts.LockLabel
	if lockLabel == "" {
		lockLabel = DefaultLockLabel
	}

	return &Engine{
		registry:    opts.Registry,
		config:      opts.Config,
		memory:      memory,
		gate:        NewGate(memory, opts.Window),
		dispatcher:  opts.Dispatcher,
		extractor:   extractor,
		settingsApp: settingsApp,
		lockLabel:   lockLabel,
		metrics:     opts.Metrics,
		log:         log,
		redirectLog: newRedirectLogger(opts.RedirectLogPath, log),
		panicLog:    rate.Sometimes{Interval: time.Second},
	}, nil
}

// Handle processes one event. It never fails: anything that goes wrong,
// including a panic, yields an ignored decision so later events still flow.
func (e *Engine) Handle(ctx context.Context, ev Event) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = ignored(ReasonPanic)
			e.panicLog.Do(func() {
				e.log.Error("event processing panicked", "app", ev.AppID, "panic", r)
			})
		}
		e.metrics.ObserveDecision(string(d.Outcome), string(d.Reason))
	}()

	cfg := e.config.Load()

	if e.lockSettings(ctx, cfg, ev) {
		return Decision{Outcome: OutcomeLocked, AppID: ev.AppID}
	}

	browserCfg, ok := e.registry.Lookup(ev.AppID)
	if !ok {
		return ignored(ReasonUnsupportedApp)
	}

	url, ok := e.extractor.Extract(ev, browserCfg.AddressElementID)
	if !ok {
		return ignored(ReasonNoAddress)
	}

	if !Qualifies(ev.ChangeTypes) {
		return ignored(ReasonNoChange)
	}
	allowed := e.gate.Allow(ev.ChangeTypes, ev.EventTime, DetectionKey(ev.AppID, url))
	e.metrics.SetDetectionEntries(e.memory.Len())
	if !allowed {
		return ignored(ReasonThrottled)
	}

	return e.decide(ctx, cfg, url, browserCfg.AppID)
}

func (e *Engine) lockSettings(ctx context.Context, cfg *FilterConfig, ev Event) bool {
	if !cfg.LockAccessibilityService || ev.AppID != e.settingsApp {
		return false
	}
	if len(ev.Text) == 0 || ev.Text[0] != e.lockLabel {
		return false
	}
	if err := e.dispatcher.SettingsRoot(ctx); err != nil {
		e.log.Error("failed to open settings root", "error", err)
		return true
	}
	e.log.Debug("settings root opened")
	return true
}

func (e *Engine) decide(ctx context.Context, cfg *FilterConfig, url, appID string) Decision {
	e.log.Debug("check url", "app", appID, "url", url)

	entry, ok := Match(url, cfg.RestrictedAddress)
	if !ok {
		return ignored(ReasonNoMatch)
	}

	target := NormalizeRedirect(cfg.RedirectTo)
	if target == "" {
		e.log.Debug("restricted url matched but no redirect target configured", "url", url, "entry", entry)
		return ignored(ReasonEmptyTarget)
	}

	fallback, err := e.redirect(ctx, target, appID)
	if err != nil {
		e.log.Error("redirect failed", "app", appID, "url", url, "error", err)
		return ignored(ReasonDispatchFailed)
	}

	d := Decision{
		Outcome:  OutcomeRedirected,
		URL:      url,
		Target:   target,
		AppID:    appID,
		Entry:    entry,
		Fallback: fallback,
	}
	e.log.Info("redirected", "app", appID, "url", url, "target", target, "fallback", fallback)
	e.metrics.ObserveRedirect(appID, fallback)
	e.redirectLog.Log(d)
	return d
}

// Close releases the redirect log.
func (e *Engine) Close() error {
	return e.redirectLog.Close()
}
