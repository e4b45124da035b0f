// Package normalize turns raw delimited exports from the document registry
// into canonical records: header labels are mapped through a declarative
// synonym table and cell values are coerced into typed fields. Parsing is
// deliberately permissive; malformed values clear the field instead of
// failing the row, and the package never touches storage.
package normalize

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/notluquis/bioalergia-sub006/internal/record"
)

// fieldKind drives per-field value coercion.
type fieldKind int

const (
	kindString fieldKind = iota
	kindInt
	kindDate
	kindDecimal
)

// fieldKinds assigns a coercion to every canonical field. Fields absent from
// this table (unmapped labels passed through by the header table) coerce to
// trimmed strings.
var fieldKinds = map[string]fieldKind{
	"folio":             kindString,
	"document_type":     kindInt,
	"counterparty_rut":  kindString,
	"counterparty_name": kindString,
	"doc_status":        kindString,
	"issue_date":        kindDate,
	"receipt_date":      kindDate,
	"net_amount":        kindDecimal,
	"iva_amount":        kindDecimal,
	"exempt_amount":     kindDecimal,
	"total_amount":      kindDecimal,
}

// defaultDocumentType is the DTE code assumed when the export omits the
// document type column. 33 is the electronic invoice.
const defaultDocumentType int64 = 33

// candidateDelimiters in preference order; semicolon is what the registry
// emits today, the rest cover historical exports.
var candidateDelimiters = []rune{';', ',', '\t', '|'}

// DetectDelimiter picks the delimiter of a raw payload by counting candidate
// occurrences in the header line, preferring semicolon on ties.
func DetectDelimiter(payload []byte) rune {
	header := payload
	if idx := bytes.IndexByte(payload, '\n'); idx >= 0 {
		header = payload[:idx]
	}

	best := candidateDelimiters[0]
	bestCount := 0
	for _, d := range candidateDelimiters {
		count := bytes.Count(header, []byte(string(d)))
		if count > bestCount {
			best = d
			bestCount = count
		}
	}
	return best
}

// Parse splits a raw delimited payload into canonical headers and data rows.
// The first row is the header row; its labels are mapped through the synonym
// table. Rows shorter than the header are padded with empty cells.
func Parse(payload []byte) ([]string, [][]string, error) {
	payload = bytes.TrimPrefix(payload, []byte{0xEF, 0xBB, 0xBF}) // UTF-8 BOM
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, nil, fmt.Errorf("payload is empty")
	}

	reader := csv.NewReader(bytes.NewReader(payload))
	reader.Comma = DetectDelimiter(payload)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parsing delimited payload: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("payload has no header row")
	}

	headers := make([]string, len(rows[0]))
	for i, label := range rows[0] {
		headers[i] = CanonicalHeader(label)
	}

	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		for len(row) < len(headers) {
			row = append(row, "")
		}
		data = append(data, row)
	}
	return headers, data, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Row builds one canonical record from a data row under the given canonical
// headers. Every cell is coerced per its field kind; dates and decimals that
// fail to parse become explicit nulls. Defaults are applied afterwards.
func Row(headers []string, row []string) record.Record {
	rec := make(record.Record, len(headers))
	for i, field := range headers {
		if field == "" {
			continue
		}
		raw := ""
		if i < len(row) {
			raw = row[i]
		}
		rec[field] = coerce(field, raw)
	}

	if _, ok := rec["document_type"]; !ok {
		rec["document_type"] = defaultDocumentType
	}
	return rec
}

func coerce(field, raw string) any {
	switch fieldKinds[field] {
	case kindInt:
		return ParseInt(raw, defaultDocumentType)
	case kindDate:
		if t, ok := ParseDate(raw); ok {
			return t
		}
		return nil
	case kindDecimal:
		if d, ok := ParseAmount(raw); ok {
			return d
		}
		return nil
	default:
		return strings.TrimSpace(raw)
	}
}

// Records parses a raw payload and normalizes every data row. The period the
// payload was fetched for is stamped on each record here so records leave
// the normalizer complete and are never mutated afterwards.
func Records(payload []byte, period string) ([]record.Record, error) {
	headers, rows, err := Parse(payload)
	if err != nil {
		return nil, err
	}
	records := make([]record.Record, 0, len(rows))
	for _, row := range rows {
		rec := Row(headers, row)
		if period != "" {
			rec["period"] = period
		}
		records = append(records, rec)
	}
	return records, nil
}
