package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasis4/Crawly/internal/database"
)

type fakeQualityReader struct {
	stats database.QualityStats
	err   error
}

func (f *fakeQualityReader) QualityStats(context.Context) (*database.QualityStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &f.stats, nil
}

func newTestValidator(stats database.QualityStats) *Validator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewValidator(&fakeQualityReader{stats: stats}, logger)
}

func TestValidateCleanStorePasses(t *testing.T) {
	v := newTestValidator(database.QualityStats{TotalProducts: 120})

	report, err := v.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Passed())
	assert.Empty(t, report.Criticals)
	assert.Empty(t, report.Warnings)
}

func TestValidateEmptyStoreIsCritical(t *testing.T) {
	v := newTestValidator(database.QualityStats{})

	report, err := v.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Passed())
	require.Len(t, report.Criticals, 1)
	assert.Contains(t, report.Criticals[0], "empty")
}

func TestValidateCriticalFindings(t *testing.T) {
	v := newTestValidator(database.QualityStats{
		TotalProducts:  50,
		MissingPrice:   3,
		MissingSKU:     1,
		NegativePrices: 2,
	})

	report, err := v.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Passed())
	assert.Len(t, report.Criticals, 3)
}

func TestValidateWarningsDoNotBlock(t *testing.T) {
	v := newTestValidator(database.QualityStats{
		TotalProducts:   50,
		MissingName:     2,
		MissingLidlID:   10,
		DuplicateSKUs:   1,
		OrphanedHistory: 4,
	})

	report, err := v.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Passed())
	assert.Len(t, report.Warnings, 4)
}

func TestValidatePropagatesReaderError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := NewValidator(&fakeQualityReader{err: errors.New("connection refused")}, logger)

	_, err := v.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
