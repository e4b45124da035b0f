package record

import (
	"time"

	"github.com/google/uuid"
)

// Record families. The family determines which fields form the natural key.
const (
	// FamilyIssuedDocument is a tax document issued by the tenant.
	// Natural key: folio.
	FamilyIssuedDocument = "document_issued"

	// FamilyReceivedDocument is a tax document received from a counterparty.
	// Natural key: folio + counterparty RUT.
	FamilyReceivedDocument = "document_received"
)

// KeyFields returns the natural key field names for a record family.
func KeyFields(family string) []string {
	if family == FamilyReceivedDocument {
		return []string{"folio", "counterparty_rut"}
	}
	return []string{"folio"}
}

// Stored is a canonical record as persisted by a record store, including the
// storage-owned identity and timestamps that are excluded from comparison.
type Stored struct {
	ID         uuid.UUID
	Family     string
	NaturalKey string
	Fields     Record
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
