package filtering

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"urlfilter/pkg/dispatch"
)

const secureScheme = "https://"

// NormalizeRedirect returns raw with an https scheme. Plain http is upgraded.
// It returns "" when raw names no destination.
func NormalizeRedirect(raw string) string {
	target := strings.TrimSpace(raw)
	lower := strings.ToLower(target)
	switch {
	case strings.HasPrefix(lower, secureScheme):
		target = target[len(secureScheme):]
	case strings.HasPrefix(lower, "http://"):
		target = target[len("http://"):]
	}
	if target == "" {
		return ""
	}
	return secureScheme + target
}

// redirect sends the browser to target. It retries without a target app when
// the browser cannot take the navigation and reports whether it did.
func (e *Engine) redirect(ctx context.Context, target, appID string) (bool, error) {
	err := e.dispatcher.Navigate(ctx, dispatch.Navigate{URL: target, AppID: appID})
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, dispatch.ErrAppUnavailable) {
		return false, fmt.Errorf("redirect to %s: %w", appID, err)
	}

	e.log.Warn("browser cannot open redirect, retrying without target app", "app", appID, "error", err)
	if err := e.dispatcher.Navigate(ctx, dispatch.Navigate{URL: target}); err != nil {
		return true, fmt.Errorf("untargeted redirect: %w", err)
	}
	return true, nil
}
