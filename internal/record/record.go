// Package record defines the canonical representation of one external data
// row and the field comparison semantics used by the reconciler.
package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is a flat mapping of canonical field names to typed values.
// Allowed value types are string, int64, decimal.Decimal, time.Time and nil.
// A record is built once by the normalizer and never mutated afterwards.
type Record map[string]any

// systemFields are storage-owned fields excluded from reconciliation
// comparison.
var systemFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// IsSystemField reports whether the named field is storage-owned.
func IsSystemField(name string) bool {
	return systemFields[name]
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// CanonicalValue renders a field value into its canonical string form.
// Decimal fields compare by this rendered form; String trims trailing
// fractional zeros, so rescalings of the same value canonicalize alike.
//
// Values loaded back from JSON storage arrive as string, float64 or nil, so
// those types must canonicalize to the same form as their typed originals.
func CanonicalValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case decimal.Decimal:
		return t.String()
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Equal compares two records field by field over the union of their keys,
// excluding system fields. Dates compare by instant (via their canonical UTC
// rendering), decimals by their trimmed string rendering, everything else by
// strict string equality of the canonical form.
func Equal(a, b Record) bool {
	for k := range a {
		if IsSystemField(k) {
			continue
		}
		if CanonicalValue(a[k]) != CanonicalValue(b[k]) {
			return false
		}
	}
	for k := range b {
		if IsSystemField(k) {
			continue
		}
		if _, ok := a[k]; ok {
			continue
		}
		if CanonicalValue(b[k]) != "" {
			return false
		}
	}
	return true
}

// KeyValue builds the natural key of the record from the named fields.
// Multi-field keys join the canonical field values with "|". An error is
// returned when any component is missing or empty; such rows must be skipped
// by the caller, never inserted.
func (r Record) KeyValue(fields ...string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("no natural key fields specified")
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := r[f]
		if !ok {
			return "", fmt.Errorf("natural key field %q is missing", f)
		}
		cv := CanonicalValue(v)
		if cv == "" {
			return "", fmt.Errorf("natural key field %q is empty", f)
		}
		parts = append(parts, cv)
	}
	return strings.Join(parts, "|"), nil
}

// String returns the string form of the named field, or "" when absent.
// Useful for logging identifying fields of skipped rows.
func (r Record) String(field string) string {
	return CanonicalValue(r[field])
}
