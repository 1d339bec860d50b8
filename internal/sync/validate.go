// Package sync validates the staging store and promotes its clean
// contents into the master store.
package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oasis4/Crawly/internal/database"
)

// QualityReader exposes the integrity census the validator interprets.
type QualityReader interface {
	QualityStats(ctx context.Context) (*database.QualityStats, error)
}

// Report is the outcome of one validation pass. Criticals block the
// sync; warnings are informational only.
type Report struct {
	Criticals []string
	Warnings  []string
	Stats     database.QualityStats
}

func (r *Report) Passed() bool {
	return len(r.Criticals) == 0
}

// Validator checks staging data quality without mutating anything.
type Validator struct {
	reader QualityReader
	logger *slog.Logger
}

func NewValidator(reader QualityReader, logger *slog.Logger) *Validator {
	return &Validator{
		reader: reader,
		logger: logger.With("component", "validator"),
	}
}

// Validate classifies every integrity finding as critical or warning.
// An empty staging store is critical: syncing it would wipe master.
func (v *Validator) Validate(ctx context.Context) (*Report, error) {
	stats, err := v.reader.QualityStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read quality stats: %w", err)
	}

	report := &Report{Stats: *stats}

	if stats.TotalProducts == 0 {
		report.Criticals = append(report.Criticals, "staging store is empty")
	}
	if stats.MissingPrice > 0 {
		report.Criticals = append(report.Criticals,
			fmt.Sprintf("%d products with missing or invalid price", stats.MissingPrice))
	}
	if stats.MissingSKU > 0 {
		report.Criticals = append(report.Criticals,
			fmt.Sprintf("%d products without sku", stats.MissingSKU))
	}
	if stats.NegativePrices > 0 {
		report.Criticals = append(report.Criticals,
			fmt.Sprintf("%d products with negative price", stats.NegativePrices))
	}

	if stats.MissingName > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d products without name", stats.MissingName))
	}
	if stats.MissingLidlID > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d products without site-native id", stats.MissingLidlID))
	}
	if stats.DuplicateSKUs > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d skus appear more than once", stats.DuplicateSKUs))
	}
	if stats.OrphanedHistory > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d orphaned history rows", stats.OrphanedHistory))
	}

	for _, w := range report.Warnings {
		v.logger.Warn("validation warning", "finding", w)
	}
	for _, c := range report.Criticals {
		v.logger.Error("validation critical", "finding", c)
	}

	v.logger.Info("validation finished",
		"products", stats.TotalProducts,
		"criticals", len(report.Criticals),
		"warnings", len(report.Warnings),
		"passed", report.Passed())

	return report, nil
}
