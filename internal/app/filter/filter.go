// Package filter provides the track filter pipeline applied to aggregated results.
package filter

import (
	"context"

	"github.com/osa030/19dig/internal/domain/preference"
	"github.com/osa030/19dig/internal/domain/track"
)

// Context carries the per-run state shared by the filters of one pipeline run.
type Context struct {
	// Prefs is nil for non-personalized runs.
	Prefs *preference.UserPreferences

	seen     map[string]struct{}
	disliked map[string]struct{}
}

// NewContext creates the state for one pipeline run.
func NewContext(prefs *preference.UserPreferences) *Context {
	fc := &Context{
		Prefs: prefs,
		seen:  make(map[string]struct{}),
	}
	if prefs != nil {
		fc.disliked = prefs.DislikedIDs()
	}
	return fc
}

// Personalized reports whether user preferences are available.
func (c *Context) Personalized() bool {
	return c.Prefs != nil
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duplicate_track", "disliked", "duration_limit_exceeded"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for track filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should run for the given run.
	AppliesTo(fc *Context) bool
	// Check performs the filter check.
	Check(ctx context.Context, t track.Track, fc *Context) Result
}

// registry holds registered filter factories for optional filters.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}
