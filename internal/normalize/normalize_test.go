package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDelimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    rune
	}{
		{name: "semicolon", payload: "a;b;c\n1;2;3", want: ';'},
		{name: "comma", payload: "a,b,c\n1,2,3", want: ','},
		{name: "tab", payload: "a\tb\tc", want: '\t'},
		{name: "pipe", payload: "a|b|c", want: '|'},
		{name: "semicolon wins ties", payload: "a;b,c;d,e", want: ';'},
		{name: "no delimiter defaults to semicolon", payload: "single"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			want := tt.want
			if want == 0 {
				want = ';'
			}
			assert.Equal(t, want, DetectDelimiter([]byte(tt.payload)))
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("maps headers and pads short rows", func(t *testing.T) {
		t.Parallel()

		payload := "Folio;Monto Neto;Estado\n101;30.000;OK\n102;15.500\n"
		headers, rows, err := Parse([]byte(payload))
		require.NoError(t, err)

		assert.Equal(t, []string{"folio", "net_amount", "doc_status"}, headers)
		require.Len(t, rows, 2)
		assert.Equal(t, []string{"101", "30.000", "OK"}, rows[0])
		assert.Equal(t, []string{"102", "15.500", ""}, rows[1])
	})

	t.Run("strips UTF-8 BOM", func(t *testing.T) {
		t.Parallel()

		payload := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Folio\n1\n")...)
		headers, rows, err := Parse(payload)
		require.NoError(t, err)
		assert.Equal(t, []string{"folio"}, headers)
		assert.Len(t, rows, 1)
	})

	t.Run("skips blank rows", func(t *testing.T) {
		t.Parallel()

		payload := "Folio;Estado\n1;OK\n;\n2;OK\n"
		_, rows, err := Parse([]byte(payload))
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("empty payload is an error", func(t *testing.T) {
		t.Parallel()

		_, _, err := Parse([]byte("   \n"))
		assert.Error(t, err)
	})
}

func TestRow(t *testing.T) {
	t.Parallel()

	t.Run("coerces values per field kind", func(t *testing.T) {
		t.Parallel()

		headers := []string{"folio", "document_type", "issue_date", "net_amount", "doc_status"}
		rec := Row(headers, []string{" 101 ", "34", "15/03/2024", "30.000", "OK"})

		assert.Equal(t, "101", rec["folio"])
		assert.Equal(t, int64(34), rec["document_type"])
		assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), rec["issue_date"])
		assert.True(t, rec["net_amount"].(decimal.Decimal).Equal(decimal.NewFromInt(30000)))
		assert.Equal(t, "OK", rec["doc_status"])
	})

	t.Run("malformed values become nulls", func(t *testing.T) {
		t.Parallel()

		headers := []string{"folio", "issue_date", "net_amount"}
		rec := Row(headers, []string{"101", "-/-/-", "garbage"})

		assert.Nil(t, rec["issue_date"])
		assert.Nil(t, rec["net_amount"])
	})

	t.Run("missing document type defaults to electronic invoice", func(t *testing.T) {
		t.Parallel()

		rec := Row([]string{"folio"}, []string{"101"})
		assert.Equal(t, int64(33), rec["document_type"])
	})
}

func TestRecords(t *testing.T) {
	t.Parallel()

	payload := `"N° Documento";"Monto Neto";"Monto IVA"
"A1";"30.000";"5.700"
"A2";"100.000,50";"19.000"
`
	records, err := Records([]byte(payload), "202403")
	require.NoError(t, err)
	require.Len(t, records, 2)

	// The fetch period is part of the record from birth.
	assert.Equal(t, "202403", records[0]["period"])
	assert.Equal(t, "202403", records[1]["period"])

	assert.Equal(t, "A1", records[0]["folio"])
	assert.True(t, records[0]["net_amount"].(decimal.Decimal).Equal(decimal.NewFromInt(30000)))
	assert.Equal(t, "A2", records[1]["folio"])
	assert.Equal(t, "100000.5", records[1]["net_amount"].(decimal.Decimal).String())
	assert.Equal(t, int64(33), records[0]["document_type"])
}
