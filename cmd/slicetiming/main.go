package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/KyungWonPark/MementoQC/internal/bids"
	"github.com/KyungWonPark/MementoQC/internal/config"
	qcio "github.com/KyungWonPark/MementoQC/internal/io"
	"github.com/KyungWonPark/MementoQC/internal/nii"
	"github.com/KyungWonPark/MementoQC/internal/slicetiming"
	"github.com/KyungWonPark/MementoQC/internal/store"
)

// loadLags reads the lag report at path, or the ledger at dbPath when path
// is empty.
func loadLags(path, dbPath string) (rows []qcio.LagRow, err error) {
	if path != "" {
		return qcio.ReadLagReport(path)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
	}()

	return db.Lags()
}

func main() {
	configPath := flag.String("config", "qc.yaml", "YAML configuration file")
	lagsPath := flag.String("lags", "", "Lag report (CSV); defaults to the ledger when empty")
	threshold := flag.Float64("threshold", 0, "|median lag| in TR above which a group is interleaved")
	output := flag.String("o", "interleaved.csv", "Scans judged interleaved (CSV)")
	apply := flag.Bool("apply", false, "Write SliceTiming into the sidecars of interleaved scans")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "threshold" {
			cfg.SliceTiming.Threshold = *threshold
		}
	})

	rows, err := loadLags(*lagsPath, cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to load lags: %v", err)
	}

	for _, g := range slicetiming.Groups(rows) {
		fmt.Printf("%-40s n=%-4d median lag %+.2f TR\n", g.Key, g.Count, g.Median)
	}

	var interleaved []qcio.LagRow
	for _, d := range slicetiming.Classify(rows, cfg.SliceTiming.Threshold) {
		if d.Interleaved {
			interleaved = append(interleaved, d.Row)
		}
	}
	if err := qcio.WriteLagReport(*output, interleaved); err != nil {
		log.Fatalf("Failed to write %s: %v", *output, err)
	}
	fmt.Printf("%d of %d scans judged interleaved, written to %s\n", len(interleaved), len(rows), *output)

	if !*apply {
		return
	}

	// This writes into the BIDS dataset itself.
	for _, row := range interleaved {
		f, ok := bids.ParseFilename(filepath.Base(row.Path))
		if !ok {
			log.Printf("skip %s: not a BIDS file name", row.Path)
			continue
		}
		f.Path = row.Path

		info, err := nii.Describe(row.Path)
		if err != nil {
			log.Printf("skip %s: %v", row.Path, err)
			continue
		}

		sidecar := bids.SidecarPath(f)
		if _, err := slicetiming.ApplyToSidecar(sidecar, info.Z, info.TR, cfg.SliceTiming.Backup); err != nil {
			log.Printf("skip %s: %v", sidecar, err)
			continue
		}
		fmt.Printf("SliceTiming written to %s\n", sidecar)
	}
}
