// Package validator checks ingested edge batches against the append contract
// of the configured graph.
package validator

import (
	"fmt"

	"github.com/jittakal/edgeshuffle/internal/errors"
	"github.com/jittakal/edgeshuffle/pkg/edge"
)

// BatchValidator validates edge batches for a graph with fixed attributes.
type BatchValidator struct {
	attrs edge.Attributes
}

// NewBatchValidator creates a validator for graphs carrying attrs.
func NewBatchValidator(attrs edge.Attributes) *BatchValidator {
	return &BatchValidator{attrs: attrs}
}

// Validate reports whether batch can be appended: both endpoint columns are
// present, every optional column is present iff enabled, and all columns have
// the same length.
func (v *BatchValidator) Validate(batch *edge.ConsumedBatch) error {
	id := BatchID(batch.Metadata)
	cols := batch.Columns

	if cols.Src == nil {
		return &errors.ValidationError{BatchID: id, Field: "src", Reason: "required column is missing"}
	}
	if cols.Dst == nil {
		return &errors.ValidationError{BatchID: id, Field: "dst", Reason: "required column is missing"}
	}

	n := len(cols.Src)
	if len(cols.Dst) != n {
		return &errors.ValidationError{
			BatchID: id,
			Field:   "dst",
			Reason:  fmt.Sprintf("length %d does not match %d sources", len(cols.Dst), n),
		}
	}

	checks := []struct {
		field   string
		enabled bool
		present bool
		length  int
	}{
		{"weights", v.attrs.Weight, cols.Weights != nil, len(cols.Weights)},
		{"edge_ids", v.attrs.EdgeID, cols.EdgeIDs != nil, len(cols.EdgeIDs)},
		{"edge_types", v.attrs.EdgeType, cols.EdgeTypes != nil, len(cols.EdgeTypes)},
	}

	for _, c := range checks {
		switch {
		case c.enabled && !c.present:
			return &errors.ValidationError{BatchID: id, Field: c.field, Reason: "column is required by the graph attributes"}
		case !c.enabled && c.present:
			return &errors.ValidationError{BatchID: id, Field: c.field, Reason: "column is not enabled for the graph"}
		case c.present && c.length != n:
			return &errors.ValidationError{
				BatchID: id,
				Field:   c.field,
				Reason:  fmt.Sprintf("length %d does not match %d endpoints", c.length, n),
			}
		}
	}

	return nil
}

// BatchID identifies a batch in errors and dead letters: the event id when
// known, otherwise its source position.
func BatchID(meta edge.SourceMetadata) string {
	if meta.EventID != "" {
		return meta.EventID
	}
	if meta.Topic != "" {
		return fmt.Sprintf("%s/%d/%d", meta.Topic, meta.Partition, meta.Offset)
	}
	return fmt.Sprintf("%s@%d", meta.Source, meta.Offset)
}
