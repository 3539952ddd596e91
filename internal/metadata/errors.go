package metadata

import "fmt"

// InvalidMetadataError reports a field value that was rejected. It is never
// fatal: the offending value is dropped and lower layers fill the field.
type InvalidMetadataError struct {
	Layer  string // "defaults", "template", "overrides"
	Field  string
	Reason string
}

func (e *InvalidMetadataError) Error() string {
	if e.Layer == "" {
		return fmt.Sprintf("invalid metadata field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid metadata field %q in %s: %s", e.Field, e.Layer, e.Reason)
}

func invalid(layer, field, format string, args ...any) *InvalidMetadataError {
	return &InvalidMetadataError{Layer: layer, Field: field, Reason: fmt.Sprintf(format, args...)}
}
