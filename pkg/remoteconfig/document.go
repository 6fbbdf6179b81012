package remoteconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/miekg/dns"
	"gopkg.in/yaml.v3"

	"urlfilter/pkg/filtering"
)

// Keys of the configuration document.
const (
	KeyRestrictedAddress        = "restricted_address"
	KeyRedirectTo               = "redirect_to"
	KeyLockAccessibilityService = "lock_accessibility_service"
)

// values mirrors the configuration document. restricted_address may be a
// comma separated string or a list of such strings.
type values struct {
	RestrictedAddress        []string `mapstructure:"restricted_address"`
	RedirectTo               string   `mapstructure:"redirect_to"`
	LockAccessibilityService bool     `mapstructure:"lock_accessibility_service"`
}

// document is a parsed configuration document together with the keys it set.
type document struct {
	values  values
	present map[string]bool
}

// parseDocument decodes a YAML or JSON document.
func parseDocument(data []byte) (document, error) {
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return document{}, fmt.Errorf("parse config document: %w", err)
	}

	var doc document
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &doc.values,
	})
	if err != nil {
		return document{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return document{}, fmt.Errorf("decode config document: %w", err)
	}

	doc.present = make(map[string]bool, len(raw))
	for key := range raw {
		doc.present[strings.ToLower(key)] = true
	}
	return doc, nil
}

// apply overlays doc onto prev. Keys missing from the document keep their
// previous value. It returns the new snapshot and the keys that changed.
func apply(prev filtering.FilterConfig, doc document, log *slog.Logger) (filtering.FilterConfig, []string) {
	next := prev
	if doc.present[KeyRestrictedAddress] {
		// Empty entries are dropped, so an empty list matches nothing rather
		// than every url.
		next.RestrictedAddress = filtering.ParseRestricted(strings.Join(doc.values.RestrictedAddress, ","))
	}
	if doc.present[KeyRedirectTo] {
		next.RedirectTo = strings.TrimSpace(doc.values.RedirectTo)
		checkRedirectHost(next.RedirectTo, log)
	}
	if doc.present[KeyLockAccessibilityService] {
		next.LockAccessibilityService = doc.values.LockAccessibilityService
	}

	var changed []string
	if !slices.Equal(prev.RestrictedAddress, next.RestrictedAddress) {
		changed = append(changed, KeyRestrictedAddress)
	}
	if prev.RedirectTo != next.RedirectTo {
		changed = append(changed, KeyRedirectTo)
	}
	if prev.LockAccessibilityService != next.LockAccessibilityService {
		changed = append(changed, KeyLockAccessibilityService)
	}
	return next, changed
}

func checkRedirectHost(redirectTo string, log *slog.Logger) {
	target := filtering.NormalizeRedirect(redirectTo)
	if target == "" {
		log.Warn("redirect target is empty, restricted urls will not be redirected")
		return
	}
	parsed, err := url.Parse(target)
	if err != nil {
		log.Warn("redirect target is not a valid url", "redirect_to", redirectTo, "error", err)
		return
	}
	host := parsed.Hostname()
	if net.ParseIP(host) != nil {
		return
	}
	if _, ok := dns.IsDomainName(host); !ok || host == "" {
		log.Warn("redirect target host is not a valid domain name", "redirect_to", redirectTo, "host", host)
	}
}
