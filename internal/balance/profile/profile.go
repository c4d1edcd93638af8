// Package profile loads the consolidation profile: entity roster, adjusting
// entries, synthetic lines, investment links and manual input sheets.
package profile

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/esgari/balance360/internal/balance"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrInvalidProfile wraps validation failures.
var ErrInvalidProfile = errors.New("profile: invalid")

// Default returns the built-in profile.
func Default() (balance.Profile, error) {
	return Load("")
}

// Load reads a YAML, JSON or TOML profile from path. An empty path loads the
// built-in profile.
func Load(path string) (balance.Profile, error) {
	v := viper.New()
	if strings.TrimSpace(path) == "" {
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
			return balance.Profile{}, fmt.Errorf("profile: read default: %w", err)
		}
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return balance.Profile{}, fmt.Errorf("profile: read %s: %w", path, err)
		}
	}
	return decode(v)
}

// FromViper decodes a profile from an already loaded viper instance, such as
// the one a CLI reads its config file into.
func FromViper(v *viper.Viper) (balance.Profile, error) {
	if v == nil {
		return Default()
	}
	return decode(v)
}

func decode(v *viper.Viper) (balance.Profile, error) {
	v.SetDefault("vat_rate", balance.DefaultVATRate.InexactFloat64())
	var p balance.Profile
	if err := v.Unmarshal(&p); err != nil {
		return balance.Profile{}, fmt.Errorf("profile: decode: %w", err)
	}
	for i := range p.Entities {
		p.Entities[i] = strings.ToUpper(strings.TrimSpace(p.Entities[i]))
	}
	if err := Validate(p); err != nil {
		return balance.Profile{}, err
	}
	return p, nil
}

var validate = validator.New()

// Validate checks required fields and enumerations, and that rule names are
// unique.
func Validate(p balance.Profile) error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidProfile, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	seen := make(map[string]bool, len(p.Rules))
	for _, r := range p.Rules {
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate rule name %q", ErrInvalidProfile, r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}
