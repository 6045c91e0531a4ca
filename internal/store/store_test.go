package store

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qcio "github.com/KyungWonPark/MementoQC/internal/io"
	"github.com/KyungWonPark/MementoQC/internal/monitoring"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	path := filepath.Join(t.TempDir(), "qc.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestOpenMigratesToLatest(t *testing.T) {
	s, path := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	require.NoError(t, s.Close())

	// reopening an up-to-date ledger is a no-op
	again, err := Open(path)
	require.NoError(t, err)
	defer again.Close()
	version, _, err = again.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestRecordLagsUpserts(t *testing.T) {
	s, _ := openTestStore(t)

	first := []qcio.LagRow{
		{Subject: "0002", Session: "M000", Centre: "LYON", Machine: "PRISMA", Path: "/b.nii.gz", Lag: 0.1},
		{Subject: "0001", Session: "M024", Centre: "NICE", Path: "/a.nii.gz", Lag: -0.5},
	}
	require.NoError(t, s.RecordLags(first, 10))

	require.NoError(t, s.RecordLags([]qcio.LagRow{
		{Subject: "0002", Session: "M000", Centre: "LYON", Machine: "PRISMA", Path: "/b.nii.gz", Lag: 0.3},
	}, 20))

	got, err := s.Lags()
	require.NoError(t, err)

	want := []qcio.LagRow{
		{Subject: "0001", Session: "M024", Centre: "NICE", Path: "/a.nii.gz", Lag: -0.5},
		{Subject: "0002", Session: "M000", Centre: "LYON", Machine: "PRISMA", Path: "/b.nii.gz", Lag: 0.3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Lags mismatch (-want +got):\n%s", diff)
	}
}

func TestRepairRun(t *testing.T) {
	s, _ := openTestStore(t)

	id, err := s.BeginRun("permuted_brains.csv", false)
	require.NoError(t, err)
	assert.Len(t, id, 36)

	records := []RepairRecord{
		{Subject: "0071", Session: "M000", Source: "/bids/a.nii.gz", Destination: "/tmp/a.nii.gz", Status: StatusRepaired},
		{Subject: "0102", Session: "M024", Status: StatusSkipped, Reason: "lookup miss", Error: "bids: no matching file"},
	}
	for _, rec := range records {
		require.NoError(t, s.RecordRepair(id, rec))
	}
	require.NoError(t, s.FinishRun(id, 1, 1))

	got, err := s.Repairs(id)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	run, err := s.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, "permuted_brains.csv", run.Manifest)
	assert.False(t, run.Overwrite)
	assert.Equal(t, 1, run.Repaired)
	assert.Equal(t, 1, run.Skipped)
	assert.NotEmpty(t, run.Finished)
}

func TestUnknownRun(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.GetRun("missing")
	assert.ErrorIs(t, err, ErrUnknownRun)

	assert.ErrorIs(t, s.FinishRun("missing", 0, 0), ErrUnknownRun)

	// records must reference an existing run
	assert.Error(t, s.RecordRepair("missing", RepairRecord{Subject: "1", Session: "M000", Status: StatusSkipped}))
}
