// Package testutil provides helpers for deterministic filtering tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"urlfilter/pkg/dispatch"
)

// Recorder is a dispatch.Dispatcher that records every command.
type Recorder struct {
	mu           sync.Mutex
	navigations  []dispatch.Navigate
	settingsRoot int
	// Unavailable lists app ids that reject targeted navigation.
	Unavailable map[string]bool
	// Err, when set, is returned by every call.
	Err error
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Unavailable: map[string]bool{}}
}

// Navigate implements dispatch.Dispatcher.
func (r *Recorder) Navigate(_ context.Context, cmd dispatch.Navigate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if cmd.AppID != "" && r.Unavailable[cmd.AppID] {
		return fmt.Errorf("%s: %w", cmd.AppID, dispatch.ErrAppUnavailable)
	}
	r.navigations = append(r.navigations, cmd)
	return nil
}

// SettingsRoot implements dispatch.Dispatcher.
func (r *Recorder) SettingsRoot(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.settingsRoot++
	return nil
}

// Navigations returns the successful navigations in order.
func (r *Recorder) Navigations() []dispatch.Navigate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dispatch.Navigate(nil), r.navigations...)
}

// SettingsRootCount returns how often the settings root was opened.
func (r *Recorder) SettingsRootCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settingsRoot
}
