package engine

import "parcelwatch/server/internal/models"

// Detect compares an observation's tracked fields against current property
// state and returns one delta per field whose value differs, in canonical
// field order. Fields the observation does not carry are skipped entirely:
// partial observations never overwrite known state with unknowns.
func Detect(current *models.Property, incoming *models.TrackedFields) []models.FieldDelta {
	var deltas []models.FieldDelta
	for i := range trackedFields {
		spec := &trackedFields[i]

		in := spec.incoming(incoming)
		if in == nil {
			continue
		}

		cur := spec.current(current)
		if cur != nil && *cur == *in {
			continue
		}

		deltas = append(deltas, models.FieldDelta{
			Field:    spec.name,
			Previous: cur,
			New:      *in,
		})
	}
	return deltas
}
