package balance

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrConfiguration marks a source whose structure prevents processing.
	ErrConfiguration = errors.New("balance: configuration error")
	// ErrNoEntities is returned when no entity produced any mapped line.
	ErrNoEntities = errors.New("balance: no entity data available for consolidation")
	// ErrSourceNotConfigured is returned when a required source URL is empty.
	ErrSourceNotConfigured = errors.New("balance: source not configured")
	// ErrOverridesDisabled is returned when no override store is wired.
	ErrOverridesDisabled = errors.New("balance: override store not configured")
	// ErrInvalidLineID is returned for line IDs that are not CLASSIFICATION|CATEGORY.
	ErrInvalidLineID = errors.New("balance: invalid line id")
)

// ConfigurationError reports a structural problem in one source, such as a
// required column that none of the aliases could resolve.
type ConfigurationError struct {
	Source  string
	Entity  string
	Missing []string
	Detail  string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("balance: ")
	if e.Source != "" {
		b.WriteString(e.Source)
	} else {
		b.WriteString("source")
	}
	if e.Entity != "" {
		fmt.Fprintf(&b, " [%s]", e.Entity)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing column(s) %s", strings.Join(e.Missing, ", "))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Is lets errors.Is(err, ErrConfiguration) match.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// WarningKind classifies a non-fatal finding.
type WarningKind string

const (
	ParseWarning         WarningKind = "parse"
	UnmappedAccount      WarningKind = "unmapped_account"
	ImbalanceWarning     WarningKind = "imbalance"
	ConfigurationWarning WarningKind = "configuration"
	FetchWarning         WarningKind = "fetch"
	InvestmentWarning    WarningKind = "investment"
	MissingScalarWarning WarningKind = "missing_scalar"
)

// Warning is a non-fatal finding surfaced next to the statement.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Entity  string      `json:"entity,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	if w.Entity != "" {
		return fmt.Sprintf("%s: %s: %s", w.Kind, w.Entity, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

func newWarning(kind WarningKind, entity, format string, args ...any) Warning {
	return Warning{Kind: kind, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

func sortWarnings(ws []Warning) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].Kind != ws[j].Kind {
			return ws[i].Kind < ws[j].Kind
		}
		if ws[i].Entity != ws[j].Entity {
			return ws[i].Entity < ws[j].Entity
		}
		return ws[i].Message < ws[j].Message
	})
}
