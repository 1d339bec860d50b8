package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oasis4/Crawly/internal/extractor"
)

func rec(sku string, price float64) extractor.Record {
	return extractor.Record{SKU: sku, Name: "Produkt " + sku, Price: price, Currency: "EUR"}
}

func TestDedupRecordsKeepsFirstOccurrence(t *testing.T) {
	kept, skipped, duplicates := DedupRecords([]extractor.Record{
		rec("LIDL-1", 9.99),
		rec("LIDL-2", 4.49),
		rec("LIDL-1", 1.99),
		rec("LIDL-2", 2.99),
	})

	assert.Equal(t, 0, skipped)
	assert.Equal(t, 2, duplicates)
	if assert.Len(t, kept, 2) {
		assert.Equal(t, "LIDL-1", kept[0].SKU)
		assert.InDelta(t, 9.99, kept[0].Price, 0.001)
		assert.Equal(t, "LIDL-2", kept[1].SKU)
	}
}

func TestDedupRecordsSkipsMissingSKU(t *testing.T) {
	kept, skipped, duplicates := DedupRecords([]extractor.Record{
		rec("", 9.99),
		rec("LIDL-1", 4.49),
		rec("", 1.99),
	})

	assert.Equal(t, 2, skipped)
	assert.Equal(t, 0, duplicates)
	assert.Len(t, kept, 1)
}

func TestDedupRecordsEmptyBatch(t *testing.T) {
	kept, skipped, duplicates := DedupRecords(nil)

	assert.Empty(t, kept)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, 0, duplicates)
}

func TestSaveStatsAdd(t *testing.T) {
	total := SaveStats{New: 1, Updated: 2}.Add(SaveStats{New: 3, Skipped: 1, Duplicates: 2})
	assert.Equal(t, SaveStats{New: 4, Updated: 2, Skipped: 1, Duplicates: 2}, total)
}
