package coreg

import (
	"fmt"
	"log"
	"strconv"
)

// NameStyle selects the display-name convention for merged results.
type NameStyle string

const (
	// NameStyleParen formats names as "(x.x, y.y)" in millimeters, from the
	// relative position when available, else the absolute one.
	NameStyleParen NameStyle = "paren"
	// NameStyleSample formats names as "Sample x = x.x mm, y = y.y mm" from
	// the relative position, or "Stage x = ..." from the absolute one.
	NameStyleSample NameStyle = "sample"
)

// Keyer derives the reconciliation key under which freshly parsed rows are
// matched to previously stored results. The second return value is false
// when no usable key exists; such rows are skipped, such results never
// match.
type Keyer interface {
	RowKey(row MeasurementRow) (string, bool)
	ResultKey(res *PositionedResult) (string, bool)
}

// StringKeyer matches by the raw position string exactly as it appeared in
// the source file.
type StringKeyer struct{}

// RowKey returns the row's raw position string
func (StringKeyer) RowKey(row MeasurementRow) (string, bool) {
	return row.PositionKey, row.PositionKey != ""
}

// ResultKey returns the result's remembered position string
func (StringKeyer) ResultKey(res *PositionedResult) (string, bool) {
	return res.PositionKey, res.PositionKey != ""
}

// CoordinateKeyer matches by the exact absolute coordinate pair. Equality is
// bit-exact on the unit-normalized magnitudes, so a re-import must reproduce
// identical coordinates to match. Substitute QuantizingKeyer for
// tolerance-based matching.
type CoordinateKeyer struct{}

// RowKey returns the exact coordinate key for the row
func (CoordinateKeyer) RowKey(row MeasurementRow) (string, bool) {
	if row.X == nil || row.Y == nil {
		return "", false
	}
	return coordinateKey(*row.X, *row.Y), true
}

// ResultKey returns the exact coordinate key for the result
func (CoordinateKeyer) ResultKey(res *PositionedResult) (string, bool) {
	if res.XAbsolute == nil || res.YAbsolute == nil {
		return "", false
	}
	return coordinateKey(*res.XAbsolute, *res.YAbsolute), true
}

// QuantizingKeyer matches coordinates after snapping them to a grid of the
// given step (in meters), so coordinates within half a step of each other
// share a key. A step of 1e-6 gives 1 um tolerance.
type QuantizingKeyer struct {
	Step float64
}

// RowKey returns the quantized coordinate key for the row
func (k QuantizingKeyer) RowKey(row MeasurementRow) (string, bool) {
	if row.X == nil || row.Y == nil {
		return "", false
	}
	return coordinateKey(k.snap(*row.X), k.snap(*row.Y)), true
}

// ResultKey returns the quantized coordinate key for the result
func (k QuantizingKeyer) ResultKey(res *PositionedResult) (string, bool) {
	if res.XAbsolute == nil || res.YAbsolute == nil {
		return "", false
	}
	return coordinateKey(k.snap(*res.XAbsolute), k.snap(*res.YAbsolute)), true
}

func (k QuantizingKeyer) snap(v float64) float64 {
	if k.Step <= 0 {
		return v
	}
	steps := v / k.Step
	if steps < 0 {
		return float64(int64(steps-0.5)) * k.Step
	}
	return float64(int64(steps+0.5)) * k.Step
}

// coordinateKey encodes a coordinate pair losslessly. The 'b' format is an
// exact representation, so two keys are equal iff the float64 pairs are.
func coordinateKey(x, y float64) string {
	return strconv.FormatFloat(x, 'b', -1, 64) + "," + strconv.FormatFloat(y, 'b', -1, 64)
}

// SkippedRow records a row that could not be reconciled and was dropped.
type SkippedRow struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// MergeReport summarizes one reconciliation pass.
type MergeReport struct {
	Created    int          `json:"created"`
	Updated    int          `json:"updated"`
	Skipped    []SkippedRow `json:"skipped,omitempty"`
	Collisions []string     `json:"collisions,omitempty"` // duplicate keys found in prior results
}

// Merger reconciles freshly parsed measurement rows against previously
// stored results by position key, so repeated re-imports of the same source
// file update existing records instead of duplicating them.
type Merger struct {
	// Keyer selects the matching policy. Nil defaults to CoordinateKeyer.
	Keyer Keyer
	// Style selects the display-name convention. Empty defaults to
	// NameStyleParen.
	Style NameStyle
	// IDPrefix, when set, assigns each newly created result a record id
	// unique within the entry (prefix, prefix_2, ...). Existing records
	// keep the id they were created with across re-imports.
	IDPrefix string
}

func (m *Merger) keyer() Keyer {
	if m.Keyer == nil {
		return CoordinateKeyer{}
	}
	return m.Keyer
}

// Merge produces the reconciled result sequence for the given rows. Rows
// whose key matches a prior result reuse and update that instance in place;
// unmatched rows create new results. Output order follows the row order, and
// prior results absent from the rows are dropped. Rows without a usable key
// are skipped with a warning; duplicate keys among the prior results are
// resolved last-wins and reported.
func (m *Merger) Merge(old []*PositionedResult, rows []MeasurementRow) ([]*PositionedResult, MergeReport) {
	keyer := m.keyer()
	var report MergeReport

	var alloc IDAllocator
	usedIDs := make(map[string]bool, len(old))
	if m.IDPrefix != "" {
		for _, res := range old {
			if res.RecordID != "" {
				usedIDs[res.RecordID] = true
			}
		}
		alloc = &SequentialAllocator{Exists: func(id string) bool { return usedIDs[id] }}
	}

	index := make(map[string]*PositionedResult, len(old))
	for _, res := range old {
		key, ok := keyer.ResultKey(res)
		if !ok {
			continue
		}
		if _, dup := index[key]; dup {
			report.Collisions = append(report.Collisions, key)
			log.Printf("Warning: duplicate position key %q in prior results, keeping the later record", key)
		}
		index[key] = res
	}

	merged := make([]*PositionedResult, 0, len(rows))
	for i, row := range rows {
		key, ok := keyer.RowKey(row)
		if !ok {
			report.Skipped = append(report.Skipped, SkippedRow{
				Index:  i,
				Reason: "no usable position key",
			})
			log.Printf("Warning: skipping row %d: no usable position key", i)
			continue
		}

		res, found := index[key]
		if found {
			report.Updated++
		} else {
			res = &PositionedResult{}
			report.Created++
			if alloc != nil {
				if id, err := alloc.NextID(m.IDPrefix); err == nil {
					res.RecordID = id
					usedIDs[id] = true
				} else {
					log.Printf("Warning: allocating record id for row %d: %v", i, err)
				}
			}
		}

		res.PositionKey = row.PositionKey
		res.XAbsolute = cloneFloat(row.X)
		res.YAbsolute = cloneFloat(row.Y)
		res.XRelative = cloneFloat(row.XRelative)
		res.YRelative = cloneFloat(row.YRelative)
		res.Values = cloneFloatMap(row.Values)
		res.Attributes = cloneStringMap(row.Attributes)
		res.Name = m.formatName(res)

		merged = append(merged, res)
	}

	return merged, report
}

// formatName derives the display label from the relative (preferred) or
// absolute position, in millimeters to one decimal place.
func (m *Merger) formatName(res *PositionedResult) string {
	style := m.Style
	if style == "" {
		style = NameStyleParen
	}

	switch {
	case res.XRelative != nil && res.YRelative != nil:
		x, y := *res.XRelative*1e3, *res.YRelative*1e3
		if style == NameStyleSample {
			return fmt.Sprintf("Sample x = %.1f mm, y = %.1f mm", x, y)
		}
		return fmt.Sprintf("(%.1f, %.1f)", x, y)
	case res.XAbsolute != nil && res.YAbsolute != nil:
		x, y := *res.XAbsolute*1e3, *res.YAbsolute*1e3
		if style == NameStyleSample {
			return fmt.Sprintf("Stage x = %.1f mm, y = %.1f mm", x, y)
		}
		return fmt.Sprintf("(%.1f, %.1f)", x, y)
	default:
		// String-keyed rows without numeric coordinates keep the raw key.
		return res.PositionKey
	}
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloatMap(src map[string]float64) map[string]float64 {
	if src == nil {
		return nil
	}
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneStringMap(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
