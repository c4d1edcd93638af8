package balance

import (
	"github.com/shopspring/decimal"
)

// Context keys published by the investment elimination.
const (
	ScalarTotalInvestments       = "total_inversiones"
	ScalarTotalSocial            = "total_social"
	ScalarGoodwill               = "goodwill"
	ScalarCapitalSocialEliminado = "capital_social_eliminado"
)

// InvestmentLink names the account in which one entity carries its shares in
// another. Social, when set, replaces the default social capital of -amount.
type InvestmentLink struct {
	Name    string   `mapstructure:"name" json:"name" validate:"required"`
	Entity  string   `mapstructure:"entity" json:"entity" validate:"required"`
	Account string   `mapstructure:"account" json:"account" validate:"required"`
	Social  *float64 `mapstructure:"social" json:"social,omitempty"`
}

// InvestmentLine is the elimination of one link.
type InvestmentLine struct {
	Name        string          `json:"name"`
	Entity      string          `json:"entity"`
	Account     AccountKey      `json:"account"`
	Amount      decimal.Decimal `json:"activo"`
	Social      decimal.Decimal `json:"social"`
	SocialFixed bool            `json:"social_fixed,omitempty"`
}

// InvestmentSummary aggregates the eliminations into goodwill.
type InvestmentSummary struct {
	Lines                  []InvestmentLine `json:"lines"`
	TotalInvestments       decimal.Decimal  `json:"total_inversiones"`
	TotalSocial            decimal.Decimal  `json:"total_social"`
	Goodwill               decimal.Decimal  `json:"goodwill"`
	CapitalSocialEliminado decimal.Decimal  `json:"capital_social_eliminado"`
	Warnings               []Warning        `json:"warnings,omitempty"`
}

// ComputeInvestments reads each link's account balance from the entity
// ledgers. goodwill = -(total investments + total social). Links whose
// entity has no ledger, or whose account is absent or zero, are skipped with
// a warning.
func ComputeInvestments(links []InvestmentLink, ledgers map[string][]LedgerRow) InvestmentSummary {
	summary := InvestmentSummary{
		TotalInvestments: decimal.Zero,
		TotalSocial:      decimal.Zero,
	}
	for _, link := range links {
		rows, ok := ledgers[link.Entity]
		if !ok {
			summary.Warnings = append(summary.Warnings, newWarning(InvestmentWarning, link.Entity, "%s: no ledger loaded for entity", link.Name))
			continue
		}
		key, ok := Normalize(link.Account)
		if !ok {
			summary.Warnings = append(summary.Warnings, newWarning(InvestmentWarning, link.Entity, "%s: invalid account %q", link.Name, link.Account))
			continue
		}
		amount, found := AccountAmount(rows, key)
		if !found || amount.IsZero() {
			summary.Warnings = append(summary.Warnings, newWarning(InvestmentWarning, link.Entity, "%s: account %s has no balance", link.Name, key))
			continue
		}
		line := InvestmentLine{
			Name:    link.Name,
			Entity:  link.Entity,
			Account: key,
			Amount:  amount,
			Social:  amount.Neg(),
		}
		if link.Social != nil {
			line.Social = decimal.NewFromFloat(*link.Social)
			line.SocialFixed = true
		}
		summary.Lines = append(summary.Lines, line)
		summary.TotalInvestments = summary.TotalInvestments.Add(line.Amount)
		summary.TotalSocial = summary.TotalSocial.Add(line.Social)
	}
	summary.Goodwill = summary.TotalInvestments.Add(summary.TotalSocial).Neg()
	summary.CapitalSocialEliminado = summary.TotalSocial.Neg()
	return summary
}

// Scalars publishes the summary for the adjustment context.
func (s InvestmentSummary) Scalars() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		ScalarTotalInvestments:       s.TotalInvestments,
		ScalarTotalSocial:            s.TotalSocial,
		ScalarGoodwill:               s.Goodwill,
		ScalarCapitalSocialEliminado: s.CapitalSocialEliminado,
	}
}
