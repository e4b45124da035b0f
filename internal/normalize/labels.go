package normalize

import "strings"

// labelTable maps observed raw column labels, after case-folding and
// trimming, onto canonical field names. The registry export has changed
// spelling, language and punctuation over the years; every observed variant
// is listed here rather than branched on. Unmapped labels pass through
// unchanged.
var labelTable = map[string]string{
	// folio
	"folio":            "folio",
	"n° documento":     "folio",
	"nº documento":     "folio",
	"n documento":      "folio",
	"nro documento":    "folio",
	"nro. documento":   "folio",
	"numero documento": "folio",
	"número documento": "folio",
	"num documento":    "folio",
	"n° doc":           "folio",
	"nro doc":          "folio",
	"numero doc":       "folio",

	// document type
	"tipo doc":            "document_type",
	"tipo doc.":           "document_type",
	"tipo documento":      "document_type",
	"tipo de documento":   "document_type",
	"tipo dte":            "document_type",
	"codigo tipo doc":     "document_type",
	"código tipo doc":     "document_type",
	"cod tipo documento":  "document_type",
	"cod. tipo documento": "document_type",

	// counterparty RUT
	"rut proveedor":    "counterparty_rut",
	"rut cliente":      "counterparty_rut",
	"rut emisor":       "counterparty_rut",
	"rut receptor":     "counterparty_rut",
	"rut contraparte":  "counterparty_rut",
	"rut":              "counterparty_rut",
	"rut. proveedor":   "counterparty_rut",
	"rut del proveedor": "counterparty_rut",

	// counterparty name
	"razon social":           "counterparty_name",
	"razón social":           "counterparty_name",
	"razon social proveedor": "counterparty_name",
	"razon social cliente":   "counterparty_name",
	"nombre proveedor":       "counterparty_name",
	"nombre cliente":         "counterparty_name",
	"nombre contraparte":     "counterparty_name",

	// issue date
	"fecha docto":          "issue_date",
	"fecha docto.":         "issue_date",
	"fecha documento":      "issue_date",
	"fecha emision":        "issue_date",
	"fecha emisión":        "issue_date",
	"fecha de emision":     "issue_date",
	"fecha de emisión":     "issue_date",
	"fecha":                "issue_date",

	// receipt date
	"fecha recepcion":    "receipt_date",
	"fecha recepción":    "receipt_date",
	"fecha de recepcion": "receipt_date",
	"fecha de recepción": "receipt_date",
	"fecha acuse":        "receipt_date",
	"fecha acuse recibo": "receipt_date",

	// net amount
	"monto neto": "net_amount",
	"neto":       "net_amount",
	"mnt neto":   "net_amount",
	"valor neto": "net_amount",

	// IVA amount
	"monto iva":            "iva_amount",
	"iva":                  "iva_amount",
	"mnt iva":              "iva_amount",
	"monto iva recuperable": "iva_amount",
	"iva recuperable":      "iva_amount",

	// exempt amount
	"monto exento": "exempt_amount",
	"exento":       "exempt_amount",
	"mnt exento":   "exempt_amount",
	"valor exento": "exempt_amount",

	// total amount
	"monto total": "total_amount",
	"total":       "total_amount",
	"mnt total":   "total_amount",
	"valor total": "total_amount",
	"monto total documento": "total_amount",

	// document state
	"estado":           "doc_status",
	"estado documento": "doc_status",
	"estado dte":       "doc_status",
}

// CanonicalHeader maps a raw column label onto its canonical field name.
// Lookup is case-folded and whitespace-trimmed; labels not in the table are
// returned trimmed but otherwise unchanged.
func CanonicalHeader(label string) string {
	trimmed := strings.TrimSpace(label)
	folded := strings.ToLower(trimmed)
	// Interior runs of whitespace collapse to a single space before lookup.
	folded = strings.Join(strings.Fields(folded), " ")
	if canonical, ok := labelTable[folded]; ok {
		return canonical
	}
	return trimmed
}
