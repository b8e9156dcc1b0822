// Package settings loads and validates the engine's environment-driven
// configuration into a single struct, validated with go-playground's
// validator and English translations
package settings

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"powerpositions/internal/platform/config"
	perr "powerpositions/internal/platform/errors"
	"powerpositions/internal/platform/logger"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Settings is the full set of knobs the extraction engine reads at startup
type Settings struct {
	IntervalMinutes   int    `validate:"required,min=1"`
	OutputDirectory   string `validate:"required"`
	AuditDirectory    string `validate:"required"`
	DlqDirectory      string `validate:"required"`
	TimeZoneID        string `validate:"required"`
	RunTime           string `validate:"omitempty"`
	RetryAttempts     int    `validate:"min=1"`
	RetryDelaySeconds int    `validate:"min=1"`
	OpsListenAddr     string `validate:"omitempty,hostname_port"`
}

// Load reads every setting from the environment under the ENGINE_ prefix.
// Required string fields default to empty so validation (not a config-layer
// panic) reports the missing key
func Load() Settings {
	c := config.New().Prefix("ENGINE_")
	return Settings{
		IntervalMinutes:   c.MayInt("INTERVAL_MINUTES", 5),
		OutputDirectory:   c.MayString("OUTPUT_DIRECTORY", ""),
		AuditDirectory:    c.MayString("AUDIT_DIRECTORY", ""),
		DlqDirectory:      c.MayString("DLQ_DIRECTORY", ""),
		TimeZoneID:        c.MayString("TIME_ZONE_ID", "Europe/London"),
		RunTime:           c.MayString("RUN_TIME", ""),
		RetryAttempts:     c.MayInt("RETRY_ATTEMPTS", 3),
		RetryDelaySeconds: c.MayInt("RETRY_DELAY_SECONDS", 10),
		OpsListenAddr:     c.MayString("OPS_LISTEN_ADDR", ""),
	}
}

// RetryDelay is RetryDelaySeconds as a time.Duration
func (s Settings) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySeconds) * time.Second
}

// Interval is IntervalMinutes as a time.Duration
func (s Settings) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

type validatorSvc struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	vOnce sync.Once
	vSvc  *validatorSvc
)

func getValidator() *validatorSvc {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			return strings.ToLower(fld.Name)
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		vSvc = &validatorSvc{validate: v, translator: trans}
	})
	return vSvc
}

// Validate checks every required field and returns an InvalidConfiguration
// error naming the first offending field, if any
func (s Settings) Validate() error {
	svc := getValidator()
	err := svc.validate.Struct(s)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		msg := fe.Translate(svc.translator)
		return perr.WithField(perr.InvalidConfigurationf("%s", msg), fe.Field())
	}
	return perr.Wrapf(err, perr.ErrorCodeInvalidConfiguration, "validating settings")
}

// ResolveLocation loads the IANA zone named by TimeZoneID
func (s Settings) ResolveLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(s.TimeZoneID)
	if err != nil {
		logger.Get().Error().Err(err).Str("zone", s.TimeZoneID).Msg("failed to load time zone")
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidConfiguration, "loading time zone %q", s.TimeZoneID)
	}
	return loc, nil
}
