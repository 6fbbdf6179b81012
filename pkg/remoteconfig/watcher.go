package remoteconfig

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"urlfilter/pkg/filtering"
	"urlfilter/pkg/metrics"
)

// DefaultUpdateInterval is the refresh period used when none is configured.
const DefaultUpdateInterval = 60 * time.Second

// Update status labels.
const (
	StatusApplied   = "applied"
	StatusUnchanged = "unchanged"
	StatusFailed    = "failed"
)

// Watcher keeps a filtering.Store in sync with a configuration source.
type Watcher struct {
	source         Source
	cacheDir       string
	updateInterval time.Duration
	store          *filtering.Store
	metrics        *metrics.Metrics
	log            *slog.Logger
	onUpdate       func(keys []string)
	trigger        chan struct{}
}

// Options configures a Watcher.
type Options struct {
	Source         Source
	CacheDir       string
	UpdateInterval time.Duration
	Store          *filtering.Store
	Metrics        *metrics.Metrics
	Log            *slog.Logger
	// OnUpdate is called with the changed keys after an update is applied.
	OnUpdate func(keys []string)
}

// NewWatcher constructs a Watcher. A zero UpdateInterval selects the default;
// a negative one disables periodic refreshes.
func NewWatcher(opts Options) *Watcher {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	interval := opts.UpdateInterval
	if interval == 0 {
		interval = DefaultUpdateInterval
	}
	return &Watcher{
		source:         opts.Source,
		cacheDir:       EnsureCacheDir(opts.CacheDir, log),
		updateInterval: interval,
		store:          opts.Store,
		metrics:        opts.Metrics,
		log:            log,
		onUpdate:       opts.OnUpdate,
		trigger:        make(chan struct{}, 1),
	}
}

// Refresh fetches the document once and applies it to the store.
func (w *Watcher) Refresh(ctx context.Context) error {
	data, fromCache, err := fetch(ctx, w.source, w.cacheDir, w.log)
	if err != nil {
		w.metrics.ObserveConfigUpdate(StatusFailed)
		return fmt.Errorf("fetch config: %w", err)
	}
	doc, err := parseDocument(data)
	if err != nil {
		w.metrics.ObserveConfigUpdate(StatusFailed)
		return err
	}

	next, changed := apply(*w.store.Load(), doc, w.log)
	if len(changed) == 0 {
		w.metrics.ObserveConfigUpdate(StatusUnchanged)
		w.log.Debug("remote config unchanged", "location", w.source.Location)
		return nil
	}

	w.store.Swap(next)
	w.metrics.ObserveConfigUpdate(StatusApplied)
	w.log.Info("remote config updated",
		"keys", changed,
		"from_cache", fromCache,
		"restricted", len(next.RestrictedAddress),
		"redirect_to", next.RedirectTo,
		"lock_accessibility_service", next.LockAccessibilityService,
	)
	if w.onUpdate != nil {
		w.onUpdate(changed)
	}
	return nil
}

// Trigger requests an immediate refresh from Run. It never blocks.
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes once, then on every tick, trigger and, for file sources, file
// change, until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if w.source.Location == "" {
		w.log.Info("no remote config location configured, using defaults")
		<-ctx.Done()
		return nil
	}
	w.refreshAndLog(ctx)

	var tick <-chan time.Time
	if w.updateInterval > 0 {
		ticker := time.NewTicker(w.updateInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var fileEvents <-chan fsnotify.Event
	var fileErrors <-chan error
	if !w.source.IsURL() {
		fw, err := w.watchFile()
		if err != nil {
			w.log.Warn("file watch unavailable, relying on periodic refresh", "error", err)
		} else {
			defer func() {
				if err := fw.Close(); err != nil {
					w.log.Warn("failed to close file watcher", "error", err)
				}
			}()
			fileEvents = fw.Events
			fileErrors = fw.Errors
		}
	}

	target := filepath.Clean(w.source.Location)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			w.refreshAndLog(ctx)
		case <-w.trigger:
			w.refreshAndLog(ctx)
		case ev, ok := <-fileEvents:
			if !ok {
				fileEvents = nil
				continue
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			w.refreshAndLog(ctx)
		case err, ok := <-fileErrors:
			if !ok {
				fileErrors = nil
				continue
			}
			w.log.Warn("file watch error", "error", err)
		}
	}
}

// watchFile watches the directory so replacing the file is noticed too.
func (w *Watcher) watchFile() (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(w.source.Location)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return fw, nil
}

func (w *Watcher) refreshAndLog(ctx context.Context) {
	if err := w.Refresh(ctx); err != nil {
		w.log.Error("failed to refresh remote config", "location", w.source.Location, "error", err)
	}
}
