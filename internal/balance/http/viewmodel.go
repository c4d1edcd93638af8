package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/esgari/balance360/internal/balance"
)

type consolidatedView struct {
	RunID    string                  `json:"run_id"`
	BuiltAt  time.Time               `json:"built_at"`
	Entities []string                `json:"entities"`
	Lines    []balance.AdjustedLine  `json:"lines"`
	Totals   balance.StatementTotals `json:"totals"`
}

type entitySummary struct {
	Entity   string                  `json:"entity"`
	Loaded   bool                    `json:"loaded"`
	Lines    int                     `json:"lines"`
	Unmapped int                     `json:"unmapped"`
	Totals   balance.StatementTotals `json:"totals"`
}

type summaryView struct {
	RunID         string                  `json:"run_id"`
	BuiltAt       time.Time               `json:"built_at"`
	Entities      []string                `json:"entities"`
	Totals        balance.StatementTotals `json:"totals"`
	PerEntity     []entitySummary         `json:"per_entity"`
	MappingSize   int                     `json:"mapping_size"`
	Unmapped      int                     `json:"unmapped"`
	UnmappedTotal decimal.Decimal         `json:"unmapped_total"`
	Warnings      []balance.Warning       `json:"warnings"`
}

func newSummaryView(stmt balance.Statement) summaryView {
	per := make([]entitySummary, 0, len(stmt.PerEntity))
	for _, e := range stmt.PerEntity {
		per = append(per, entitySummary{
			Entity:   e.Entity,
			Loaded:   e.Loaded,
			Lines:    len(e.Lines),
			Unmapped: e.Unmapped,
			Totals:   e.Totals,
		})
	}
	warnings := stmt.Warnings
	if warnings == nil {
		warnings = []balance.Warning{}
	}
	return summaryView{
		RunID:         stmt.RunID,
		BuiltAt:       stmt.BuiltAt,
		Entities:      stmt.Entities,
		Totals:        stmt.Totals,
		PerEntity:     per,
		MappingSize:   stmt.MappingSize,
		Unmapped:      len(stmt.Unmapped),
		UnmappedTotal: balance.UnmappedTotal(stmt.Unmapped),
		Warnings:      warnings,
	}
}
