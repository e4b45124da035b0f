package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/notluquis/bioalergia-sub006/internal/reconcile"
	"github.com/notluquis/bioalergia-sub006/internal/record"
	"github.com/notluquis/bioalergia-sub006/internal/remote"
	"github.com/notluquis/bioalergia-sub006/internal/runs"
	"github.com/notluquis/bioalergia-sub006/internal/sii"
	"github.com/notluquis/bioalergia-sub006/internal/store/inmemory"
	"github.com/notluquis/bioalergia-sub006/internal/syncer/mocks"
)

type stubCreds struct {
	err error
}

func (s *stubCreds) Token(_ context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "tok", nil
}

const issuedCSV = `"N° Documento";"Monto Neto";"Monto IVA"
101;30000;5700
102;45000;8550
`

func newEngine(t *testing.T, fetcher Fetcher, creds CredentialSource, opts ...Option) (*Engine, *inmemory.RecordStore) {
	t.Helper()
	records := inmemory.NewRecordStore()
	tracker := runs.NewTracker(inmemory.NewRunStore())
	return New(fetcher, creds, records, tracker, opts...), records
}

func TestRunSyncInsertsNewDocuments(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().FetchDocumentCSV(gomock.Any(), sii.UnitIssued, "202403").
		Return([]byte(issuedCSV), nil)

	engine, records := newEngine(t, fetcher, &stubCreds{})
	scope := runs.Scope{Period: "202403", Units: []string{"emitidos"}}

	run, err := engine.RunSync(t.Context(), scope, runs.TriggerScheduled, "")
	require.NoError(t, err)

	assert.Equal(t, runs.StatusSuccess, run.Status)
	result := run.Units["emitidos"]
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Counters.Processed)
	assert.Equal(t, 2, result.Counters.Inserted)
	assert.Equal(t, 0, result.Counters.Skipped)
	assert.Equal(t, 2, records.Count())

	stored, err := records.FindByKey(t.Context(), record.FamilyIssuedDocument, "101")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "202403", stored.Fields.String("period"))
	assert.Equal(t, "30000", stored.Fields.String("net_amount"))
}

func TestRunSyncIsIdempotent(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().FetchDocumentCSV(gomock.Any(), sii.UnitIssued, "202403").
		Return([]byte(issuedCSV), nil).Times(2)

	engine, records := newEngine(t, fetcher, &stubCreds{})
	scope := runs.Scope{Period: "202403", Units: []string{"emitidos"}}

	_, err := engine.RunSync(t.Context(), scope, runs.TriggerScheduled, "")
	require.NoError(t, err)

	// Identical payload on the second run produces only skips.
	run, err := engine.RunSync(t.Context(), scope, runs.TriggerScheduled, "")
	require.NoError(t, err)

	result := run.Units["emitidos"]
	assert.Equal(t, 2, result.Counters.Processed)
	assert.Equal(t, 0, result.Counters.Inserted)
	assert.Equal(t, 0, result.Counters.Updated)
	assert.Equal(t, 2, result.Counters.Skipped)
	assert.Equal(t, 2, records.Count())
}

func TestRunSyncUpdatesChangedDocuments(t *testing.T) {
	t.Parallel()

	changed := `"N° Documento";"Monto Neto";"Monto IVA"
101;30000;5700
102;50000;9500
`
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	first := fetcher.EXPECT().FetchDocumentCSV(gomock.Any(), sii.UnitIssued, "202403").
		Return([]byte(issuedCSV), nil)
	fetcher.EXPECT().FetchDocumentCSV(gomock.Any(), sii.UnitIssued, "202403").
		Return([]byte(changed), nil).After(first)

	engine, _ := newEngine(t, fetcher, &stubCreds{})
	scope := runs.Scope{Period: "202403", Units: []string{"emitidos"}}

	_, err := engine.RunSync(t.Context(), scope, runs.TriggerScheduled, "")
	require.NoError(t, err)

	run, err := engine.RunSync(t.Context(), scope, runs.TriggerScheduled, "")
	require.NoError(t, err)

	result := run.Units["emitidos"]
	assert.Equal(t, 1, result.Counters.Updated)
	assert.Equal(t, 1, result.Counters.Skipped)
}

func TestRunSyncPartialWhenOneUnitFails(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().FetchDocumentCSV(gomock.Any(), sii.UnitIssued, "202403").
		Return([]byte(issuedCSV), nil)
	fetcher.EXPECT().FetchDocumentCSV(gomock.Any(), sii.UnitReceived, "202403").
		Return(nil, &remote.TransportError{Status: 503})

	engine, _ := newEngine(t, fetcher, &stubCreds{})
	scope := runs.Scope{Period: "202403", Units: []string{"emitidos", "recibidos"}}

	run, err := engine.RunSync(t.Context(), scope, runs.TriggerManual, "operator")
	require.NoError(t, err)

	assert.Equal(t, runs.StatusPartial, run.Status)
	assert.Empty(t, run.Units["emitidos"].Error)
	assert.Contains(t, run.Units["recibidos"].Error, "fetch failed")
}

func TestRunSyncNotFoundIsEmptySuccess(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().FetchDocumentCSV(gomock.Any(), sii.UnitIssued, "202403").
		Return(nil, &remote.NotFoundError{Resource: "emitidos/202403"})

	engine, records := newEngine(t, fetcher, &stubCreds{})
	scope := runs.Scope{Period: "202403", Units: []string{"emitidos"}}

	run, err := engine.RunSync(t.Context(), scope, runs.TriggerScheduled, "")
	require.NoError(t, err)

	assert.Equal(t, runs.StatusSuccess, run.Status)
	assert.Equal(t, 0, run.Units["emitidos"].Counters.Processed)
	assert.Equal(t, 0, records.Count())
}

func TestRunSyncFailsWithoutCredential(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)

	engine, _ := newEngine(t, fetcher, &stubCreds{err: errors.New("identity endpoint down")})
	scope := runs.Scope{Period: "202403", Units: []string{"emitidos"}}

	run, err := engine.RunSync(t.Context(), scope, runs.TriggerScheduled, "")
	require.NoError(t, err)

	assert.Equal(t, runs.StatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "credential could not be obtained")
	assert.Empty(t, run.Units)
}

func TestRunSyncUnknownUnitFailsThatUnit(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)

	engine, _ := newEngine(t, fetcher, &stubCreds{})
	scope := runs.Scope{Period: "202403", Units: []string{"facturas"}}

	run, err := engine.RunSync(t.Context(), scope, runs.TriggerScheduled, "")
	require.NoError(t, err)

	assert.Equal(t, runs.StatusFailed, run.Status)
	assert.Contains(t, run.Units["facturas"].Error, "unknown document unit")
}

func TestRunSyncInsertOnlyMode(t *testing.T) {
	t.Parallel()

	changed := `"N° Documento";"Monto Neto";"Monto IVA"
101;99999;0
`
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	first := fetcher.EXPECT().FetchDocumentCSV(gomock.Any(), sii.UnitIssued, "202403").
		Return([]byte(issuedCSV), nil)
	fetcher.EXPECT().FetchDocumentCSV(gomock.Any(), sii.UnitIssued, "202403").
		Return([]byte(changed), nil).After(first)

	engine, records := newEngine(t, fetcher, &stubCreds{}, WithMode(reconcile.ModeInsertOnly))
	scope := runs.Scope{Period: "202403", Units: []string{"emitidos"}}

	_, err := engine.RunSync(t.Context(), scope, runs.TriggerScheduled, "")
	require.NoError(t, err)

	run, err := engine.RunSync(t.Context(), scope, runs.TriggerScheduled, "")
	require.NoError(t, err)

	// The changed amount is not written back; the stored row keeps its
	// original value.
	result := run.Units["emitidos"]
	assert.Equal(t, 0, result.Counters.Updated)
	assert.Equal(t, 1, result.Counters.Skipped)

	stored, err := records.FindByKey(t.Context(), record.FamilyIssuedDocument, "101")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "30000", stored.Fields.String("net_amount"))
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().FetchDocumentCSV(gomock.Any(), sii.UnitIssued, gomock.Any()).
		Return([]byte(issuedCSV), nil).Times(2)

	engine, _ := newEngine(t, fetcher, &stubCreds{})

	_, err := engine.RunSync(t.Context(), runs.Scope{Period: "202402", Units: []string{"emitidos"}}, runs.TriggerScheduled, "")
	require.NoError(t, err)
	_, err = engine.RunSync(t.Context(), runs.Scope{Period: "202403", Units: []string{"emitidos"}}, runs.TriggerManual, "operator")
	require.NoError(t, err)

	items, err := engine.ListRuns(t.Context(), 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	// Newest first.
	assert.Equal(t, "202403", items[0].Scope.Period)
	assert.Equal(t, "202402", items[1].Scope.Period)
}
