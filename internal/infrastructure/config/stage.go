package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMissingSetting is returned when a stage needs a credential that is not configured.
	ErrMissingSetting = errors.New("config: missing setting")
	// ErrInvalidSetting is returned when a setting has an unusable value.
	ErrInvalidSetting = errors.New("config: invalid setting")
)

var validate = newValidator()

// newValidator reports fields by their env key so messages name what to set.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("env"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

// APIConfig is what every stage needs to reach the commerce API.
type APIConfig struct {
	URL         string `env:"API_URL" validate:"required,url"`
	OpsToken    string `env:"OPS_TOKEN" validate:"required"`
	VendorToken string `env:"VENDOR_TOKEN" validate:"required"`
}

// TunnelConfig reaches the vendor platform maintenance endpoint.
type TunnelConfig struct {
	URL   string `env:"CSP_URL_TUNNEL" validate:"required,url"`
	Token string `env:"CSP_TOKEN" validate:"required"`
}

// StageConfig is the configuration shape of dump, reprice, terminate, audit
// and worksheet-mode create.
type StageConfig struct {
	API APIConfig
}

// SyncStageConfig is the configuration shape of platform-sync create.
type SyncStageConfig struct {
	API    APIConfig
	Tunnel TunnelConfig
}

// Stage returns the validated configuration of a regular stage.
func (c *Config) Stage() (StageConfig, error) {
	sc := StageConfig{API: c.api()}
	if err := c.check(sc); err != nil {
		return StageConfig{}, err
	}
	return sc, nil
}

// SyncStage returns the validated configuration of a platform-sync create.
func (c *Config) SyncStage() (SyncStageConfig, error) {
	sc := SyncStageConfig{
		API: c.api(),
		Tunnel: TunnelConfig{
			URL:   c.Credentials.TunnelURL,
			Token: c.Credentials.TunnelToken,
		},
	}
	if err := c.check(sc); err != nil {
		return SyncStageConfig{}, err
	}
	return sc, nil
}

func (c *Config) api() APIConfig {
	return APIConfig{
		URL:         c.Credentials.APIURL,
		OpsToken:    c.Credentials.OpsToken,
		VendorToken: c.Credentials.VendorToken,
	}
}

// check reports every missing key at once, then any malformed one.
func (c *Config) check(shape any) error {
	err := validate.Struct(shape)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}

	var missing, invalid []string
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fe.Field())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s (set in %s or the environment)", ErrMissingSetting, strings.Join(missing, ", "), c.EnvFile)
	}
	return fmt.Errorf("%w: %s", ErrInvalidSetting, strings.Join(invalid, ", "))
}

// describe renders validation errors as "field: message" pairs.
func describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fe.Namespace()+": "+message(fe))
	}
	return strings.Join(parts, "; ")
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "url":
		return "invalid URL format"
	default:
		return "invalid value"
	}
}
