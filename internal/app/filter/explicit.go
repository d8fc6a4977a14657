package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/19dig/internal/domain/track"
)

// Explicit filter modes.
const (
	ExplicitModeUser   = "user"   // drop explicit tracks when the user opted out
	ExplicitModeAlways = "always" // drop every explicit track
)

// ExplicitConfig represents the configuration for ExplicitFilter.
type ExplicitConfig struct {
	Mode string `yaml:"mode" mapstructure:"mode" default:"user" validate:"oneof=user always"`
}

// ExplicitFilter drops explicit tracks. It only runs when enabled in config.
type ExplicitFilter struct {
	config ExplicitConfig
}

func (f *ExplicitFilter) Name() string {
	return "explicit_filter"
}

func (f *ExplicitFilter) Description() string {
	return "Drops explicit tracks for users who disabled explicit content"
}

func (f *ExplicitFilter) ReturnCodes() []string {
	return []string{"explicit_content"}
}

func (f *ExplicitFilter) ValidateConfig(settings map[string]any) error {
	var config ExplicitConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	f.config = config
	return nil
}

func (f *ExplicitFilter) AppliesTo(fc *Context) bool {
	if f.config.Mode == ExplicitModeAlways {
		return true
	}
	return fc.Personalized() && !fc.Prefs.RecommendationSettings.IncludeExplicit
}

func (f *ExplicitFilter) Check(_ context.Context, t track.Track, _ *Context) Result {
	if t.Explicit {
		return Reject("explicit_content")
	}
	return Accept()
}

func init() {
	Register("explicit_filter", func() Filter {
		return &ExplicitFilter{config: ExplicitConfig{Mode: ExplicitModeUser}}
	})
}
