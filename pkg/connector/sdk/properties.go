package sdk

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
)

// PropertyValidator reads typed properties from an entity definition. The
// first failure is kept and returned by Err, so a constructor can read all of
// its settings and check once.
type PropertyValidator struct {
	def models.EntityDefinition
	err error
}

// NewPropertyValidator creates a validator for def
func NewPropertyValidator(def models.EntityDefinition) *PropertyValidator {
	return &PropertyValidator{def: def}
}

// Err returns the first validation failure as a config error
func (v *PropertyValidator) Err() error {
	return v.err
}

func (v *PropertyValidator) fail(format string, args ...interface{}) {
	if v.err == nil {
		v.err = errors.New(errors.ErrorTypeConfig, fmt.Sprintf(format, args...)).
			WithDetail("type", v.def.Type)
	}
}

// Required returns a property that must be present
func (v *PropertyValidator) Required(name string) string {
	val := strings.TrimSpace(v.def.Get(name))
	if val == "" {
		v.fail("required property '%s' is missing", name)
	}
	return val
}

// String returns an optional property or its default
func (v *PropertyValidator) String(name, def string) string {
	return strings.TrimSpace(v.def.GetOr(name, def))
}

// Int returns an optional integer property bounded by min and, when max > 0, max
func (v *PropertyValidator) Int(name string, def, min, max int) int {
	raw := strings.TrimSpace(v.def.Get(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		v.fail("property '%s' must be an integer", name)
		return def
	}
	if n < min {
		v.fail("property '%s' must be at least %d", name, min)
	}
	if max > 0 && n > max {
		v.fail("property '%s' must be at most %d", name, max)
	}
	return n
}

// Bool returns an optional boolean property
func (v *PropertyValidator) Bool(name string, def bool) bool {
	raw := strings.TrimSpace(v.def.Get(name))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		v.fail("property '%s' must be a boolean", name)
		return def
	}
	return b
}

// Duration returns an optional Go duration property
func (v *PropertyValidator) Duration(name string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(v.def.Get(name))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		v.fail("property '%s' must be a duration", name)
		return def
	}
	return d
}

// Enum returns an optional property restricted to validValues
func (v *PropertyValidator) Enum(name, def string, validValues ...string) string {
	val := v.String(name, def)
	for _, valid := range validValues {
		if strings.EqualFold(val, valid) {
			return valid
		}
	}
	v.fail("property '%s' must be one of: %s", name, strings.Join(validValues, ", "))
	return def
}
