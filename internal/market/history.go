package market

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// The replay source: a fixed daily close series, pre-sorted by date,
// compiled into the binary so the engine has no runtime file dependency.
//
//go:embed data/aapl_daily.csv
var historyCSV string

// HistoryRow is one record of the historical close series.
type HistoryRow struct {
	Date  string
	Close float64
}

// Point converts the row into a stream point, using the row date as the
// time label. Historical closes are final; no MA50 is attached.
func (r HistoryRow) Point() Point {
	return Point{Time: r.Date, Price: r.Close}
}

// LoadHistory parses the embedded close series. The result is read-only and
// loaded once at startup.
func LoadHistory() ([]HistoryRow, error) {
	reader := csv.NewReader(strings.NewReader(historyCSV))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse historical data: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("historical data is empty")
	}

	rows := make([]HistoryRow, 0, len(records)-1)
	for i, rec := range records[1:] { // skip header
		if len(rec) != 2 {
			return nil, fmt.Errorf("historical data row %d: expected 2 columns, got %d", i+1, len(rec))
		}
		closePrice, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("historical data row %d: bad close %q: %w", i+1, rec[1], err)
		}
		rows = append(rows, HistoryRow{Date: rec[0], Close: closePrice})
	}
	return rows, nil
}
