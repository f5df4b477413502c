package coreg

import (
	"fmt"
	"log"
)

// ProcessBatch runs the align-and-merge pipeline for one measurement entry:
// rows are normalized to meters, converted to sample-relative coordinates
// when an alignment is available, and reconciled against the prior result
// set.
//
// A failing alignment (degenerate geometry or a singular correspondence)
// does not abort the batch: the rows are merged with absolute coordinates
// only and the geometry error is returned alongside the merged results so
// the caller can surface it for this entry without affecting others.
func ProcessBatch(alignment *RectangularAlignment, merger *Merger, old []*PositionedResult, batch *RowBatch) ([]*PositionedResult, MergeReport, error) {
	if err := NormalizeBatch(batch); err != nil {
		return nil, MergeReport{}, fmt.Errorf("normalizing batch for %s: %w", batch.Entry, err)
	}

	var alignErr error
	if alignment != nil {
		transform, err := alignment.Transform()
		if err != nil {
			alignErr = fmt.Errorf("alignment for %s: %w", batch.Entry, err)
			log.Printf("Warning: %v; merging with absolute coordinates only", alignErr)
		} else {
			points := make([]Point, 0, len(batch.Rows))
			idx := make([]int, 0, len(batch.Rows))
			for i, row := range batch.Rows {
				if row.X == nil || row.Y == nil {
					continue
				}
				points = append(points, Point{X: *row.X, Y: *row.Y})
				idx = append(idx, i)
			}
			for j, rel := range TransformPoints(points, transform) {
				r := rel
				batch.Rows[idx[j]].XRelative = &r.X
				batch.Rows[idx[j]].YRelative = &r.Y
			}
		}
	}

	merged, report := merger.Merge(old, batch.Rows)
	return merged, report, alignErr
}

// MergerForEntry builds the merger configured for a measurement entry.
func MergerForEntry(entry *EntryConfig) *Merger {
	m := &Merger{IDPrefix: entry.ID}
	switch entry.KeyMode {
	case "string":
		m.Keyer = StringKeyer{}
	default:
		m.Keyer = CoordinateKeyer{}
	}
	if entry.Display == string(NameStyleSample) {
		m.Style = NameStyleSample
	} else {
		m.Style = NameStyleParen
	}
	return m
}

// AlignmentForEntry builds the rectangular alignment configured for a
// measurement entry, converting the configured unit to meters. Entries
// without an alignment section return nil.
func AlignmentForEntry(entry *EntryConfig) (*RectangularAlignment, error) {
	ac := entry.Alignment
	if ac == nil {
		return nil, nil
	}
	scale, err := UnitScale(ac.Unit)
	if err != nil {
		return nil, fmt.Errorf("alignment for %s: %w", entry.ID, err)
	}
	a, err := NewRectangularAlignment(
		ac.Width*scale,
		ac.Height*scale,
		Point{X: ac.XUpperLeft * scale, Y: ac.YUpperLeft * scale},
		Point{X: ac.XLowerRight * scale, Y: ac.YLowerRight * scale},
	)
	if err != nil {
		return nil, err
	}
	// Prime the cached transform so shared alignments are read-only afterwards.
	a.Transform()
	return a, nil
}
