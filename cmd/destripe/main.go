package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/KyungWonPark/MementoQC/internal/bids"
	"github.com/KyungWonPark/MementoQC/internal/config"
	qcio "github.com/KyungWonPark/MementoQC/internal/io"
	"github.com/KyungWonPark/MementoQC/internal/nii"
	"github.com/KyungWonPark/MementoQC/internal/repair"
	"github.com/KyungWonPark/MementoQC/internal/report"
	"github.com/KyungWonPark/MementoQC/internal/store"
	"github.com/KyungWonPark/MementoQC/internal/volume"
)

// ledger forwards driver outcomes to one run of the QC ledger.
type ledger struct {
	db    *store.Store
	runID string
}

func (l ledger) RecordOutcome(o repair.Outcome) error {
	rec := store.RepairRecord{
		Subject:     o.Row.Subject(),
		Session:     o.Row.Session,
		Source:      o.Source,
		Destination: o.Destination,
		Status:      store.StatusRepaired,
	}
	if o.Reason != "" {
		rec.Status = store.StatusSkipped
		rec.Reason = string(o.Reason)
		if o.Err != nil {
			rec.Error = o.Err.Error()
		}
	}
	return l.db.RecordRepair(l.runID, rec)
}

// openLedger opens the ledger at path and registers a run. The ledger is
// closed again when the run cannot be registered.
func openLedger(path, manifest string, overwrite bool) (*store.Store, string, error) {
	db, err := store.Open(path)
	if err != nil {
		return nil, "", err
	}

	runID, err := db.BeginRun(manifest, overwrite)
	if err != nil {
		db.Close()
		return nil, "", fmt.Errorf("register run: %w", err)
	}

	return db, runID, nil
}

// qcPlots draws the global signal and periodogram of each repaired scan.
type qcPlots struct {
	dir string
}

func (q qcPlots) Report(path string, vol *volume.Volume) error {
	info, err := nii.Describe(path)
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), ".nii.gz")
	name = strings.TrimSuffix(name, ".nii")
	_, err = report.RepairQC(q.dir, name, vol, info.TR)
	return err
}

func main() {
	configPath := flag.String("config", "qc.yaml", "YAML configuration file")
	bidsRoot := flag.String("bids", "", "BIDS dataset root")
	manifestPath := flag.String("manifest", "", "Outlier manifest (CSV)")
	overwrite := flag.Bool("overwrite", false, "Replace the scans inside the BIDS dataset")
	stagingDir := flag.String("staging", "", "Directory receiving repaired scans when not overwriting")
	reportDir := flag.String("report", "", "Directory for per-scan QC plots")
	dbPath := flag.String("db", "", "QC ledger (SQLite); \"-\" disables it")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bids":
			cfg.Dataset.Root = *bidsRoot
		case "manifest":
			cfg.Destripe.Manifest = *manifestPath
		case "overwrite":
			cfg.Destripe.Overwrite = *overwrite
		case "staging":
			cfg.Destripe.StagingDir = *stagingDir
		case "report":
			cfg.Destripe.ReportDir = *reportDir
		case "db":
			cfg.Store.Path = *dbPath
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	rows, err := qcio.ReadManifest(cfg.Destripe.Manifest)
	if err != nil {
		log.Fatalf("Failed to read manifest: %v", err)
	}
	fmt.Printf("Read %d flagged scans from %s\n", len(rows), cfg.Destripe.Manifest)

	layout, err := bids.Index(cfg.Dataset.Root)
	if err != nil {
		log.Fatalf("Failed to index BIDS dataset: %v", err)
	}
	fmt.Printf("Indexed %d files under %s\n", len(layout.Files()), cfg.Dataset.Root)

	driver, err := repair.New(layout, nii.Store{}, repair.Options{
		Overwrite:  cfg.Destripe.Overwrite,
		StagingDir: cfg.Destripe.StagingDir,
		Suffix:     cfg.Destripe.Suffix,
		Extension:  cfg.Destripe.Extension,
	})
	if err != nil {
		log.Fatalf("Failed to set up repair: %v", err)
	}

	if cfg.Destripe.ReportDir != "" {
		driver.Reporter = qcPlots{dir: cfg.Destripe.ReportDir}
	}

	var (
		db    *store.Store
		runID string
	)
	if cfg.Store.Path != "" && cfg.Store.Path != "-" {
		db, runID, err = openLedger(cfg.Store.Path, cfg.Destripe.Manifest, cfg.Destripe.Overwrite)
		if err != nil {
			log.Fatalf("Failed to open ledger: %v", err)
		}
		defer db.Close()
		driver.Recorder = ledger{db: db, runID: runID}
		fmt.Printf("Repair run %s\n", runID)
	}

	startTime := time.Now()
	summary := driver.Run(rows)

	if db != nil {
		if err := db.FinishRun(runID, len(summary.Repaired), len(summary.Skipped)); err != nil {
			log.Printf("Failed to close run %s: %v", runID, err)
		}
	}

	fmt.Printf("Done in %.1fs: %s\n", time.Since(startTime).Seconds(), summary)
	for _, s := range summary.Skipped {
		fmt.Printf("  skipped %s ses-%s: %s (%v)\n", s.Row.ParticipantID, s.Row.Session, s.Reason, s.Err)
	}
}
