package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qcio "github.com/KyungWonPark/MementoQC/internal/io"
	"github.com/KyungWonPark/MementoQC/internal/monitoring"
	"github.com/KyungWonPark/MementoQC/internal/store"
)

func TestRecordLagsClosesLedger(t *testing.T) {
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	path := filepath.Join(t.TempDir(), "qc.db")
	rows := []qcio.LagRow{
		{Subject: "0001", Session: "M000", Centre: "NICE", Path: "/a.nii.gz", Lag: -0.5},
	}

	require.NoError(t, recordLags(path, rows, 10))
	// the second call reopens the ledger and upserts the same rows
	require.NoError(t, recordLags(path, rows, 10))

	db, err := store.Open(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Lags()
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestRecordLagsMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "qc.db")
	assert.Error(t, recordLags(path, nil, 10))
}
