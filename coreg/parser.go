package coreg

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// UnitScale returns the meters-per-unit factor for a length unit. An empty
// unit defaults to meters.
func UnitScale(unit string) (float64, error) {
	switch strings.TrimSpace(unit) {
	case "", "m":
		return 1, nil
	case "cm":
		return 1e-2, nil
	case "mm":
		return 1e-3, nil
	case "um", "µm":
		return 1e-6, nil
	case "nm":
		return 1e-9, nil
	default:
		return 0, fmt.Errorf("unknown length unit %q", unit)
	}
}

// ParsePositionKey parses a raw position string of the form "x,y" or
// "(x, y)" into its two coordinates.
func ParsePositionKey(s string) (x, y float64, err error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "(")
	trimmed = strings.TrimSuffix(trimmed, ")")

	parts := strings.Split(trimmed, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("position %q: expected two comma-separated coordinates", s)
	}
	x, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("position %q: %w", s, err)
	}
	y, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("position %q: %w", s, err)
	}
	return x, y, nil
}

// NormalizeRow converts a row's coordinates to meters and fills missing
// numeric coordinates from the raw position string when it parses. Rows that
// end up without any usable position are returned unchanged; the merge step
// skips them with a warning rather than failing the batch.
func NormalizeRow(row MeasurementRow, unit string) (MeasurementRow, error) {
	scale, err := UnitScale(unit)
	if err != nil {
		return row, err
	}

	if row.X != nil && row.Y != nil {
		x := *row.X * scale
		y := *row.Y * scale
		row.X, row.Y = &x, &y
		return row, nil
	}

	if row.PositionKey != "" {
		if x, y, err := ParsePositionKey(row.PositionKey); err == nil {
			x *= scale
			y *= scale
			row.X, row.Y = &x, &y
		}
	}
	return row, nil
}

// NormalizeBatch converts every row of a batch to meters using the batch's
// declared unit.
func NormalizeBatch(batch *RowBatch) error {
	for i, row := range batch.Rows {
		normalized, err := NormalizeRow(row, batch.Unit)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		batch.Rows[i] = normalized
	}
	return nil
}

// DecodeRowBatch parses a JSON row batch payload
func DecodeRowBatch(data []byte) (*RowBatch, error) {
	var batch RowBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("parsing row batch JSON: %w", err)
	}
	if batch.Entry == "" {
		return nil, fmt.Errorf("row batch has no entry id")
	}
	return &batch, nil
}

// ParseRowBatchFile reads and parses a row batch JSON file
func ParseRowBatchFile(path string) (*RowBatch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return DecodeRowBatch(data)
}
