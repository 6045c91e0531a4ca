package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/KyungWonPark/MementoQC/internal/bids"
	"github.com/KyungWonPark/MementoQC/internal/config"
	qcio "github.com/KyungWonPark/MementoQC/internal/io"
	"github.com/KyungWonPark/MementoQC/internal/monitoring"
	"github.com/KyungWonPark/MementoQC/internal/nii"
	"github.com/KyungWonPark/MementoQC/internal/slicetiming"
)

// acquisitions describes every 4D scan in files. The header TR wins over the
// sidecar one.
func acquisitions(files []bids.File, participants map[string]bids.Participant) []slicetiming.Acquisition {
	var acqs []slicetiming.Acquisition
	for _, f := range files {
		info, err := nii.Describe(f.Path)
		if err != nil {
			monitoring.Logf("skip %s: %v", f.Filename, err)
			continue
		}
		if !info.Is4D {
			continue
		}

		tr := info.TR
		if tr <= 0 {
			if sidecar, err := bids.LoadSidecar(bids.SidecarPath(f)); err == nil {
				if sidecarTR, ok := sidecar.RepetitionTime(); ok {
					tr = sidecarTR
				}
			}
		}

		acqs = append(acqs, slicetiming.Acquisition{
			Subject: f.Subject,
			Session: f.Session,
			Centre:  participants[f.Subject].Centre,
			Slices:  info.Z,
			Path:    f.Path,
			TR:      tr,
		})
	}
	return acqs
}

// complete writes each inferred TR into its scan and sidecar and returns the
// number of scans updated.
func complete(rows []qcio.TRRow, backup bool) int {
	done := 0
	for _, row := range rows {
		if row.TR <= 0 {
			log.Printf("skip %s: nothing to infer from", row.Path)
			continue
		}

		f, ok := bids.ParseFilename(filepath.Base(row.Path))
		if !ok {
			log.Printf("skip %s: not a BIDS file name", row.Path)
			continue
		}
		f.Path = row.Path

		if err := slicetiming.CompleteTR(row.Path, bids.SidecarPath(f), row.TR, backup); err != nil {
			log.Printf("skip %s: %v", row.Path, err)
			continue
		}
		fmt.Printf("RepetitionTime %.3gs written to %s\n", row.TR, row.Path)
		done++
	}
	return done
}

func main() {
	configPath := flag.String("config", "qc.yaml", "YAML configuration file")
	bidsRoot := flag.String("bids", "", "BIDS dataset root")
	output := flag.String("o", "", "Inferred repetition times (CSV)")
	from := flag.String("from", "", "Apply a reviewed report instead of inferring again")
	apply := flag.Bool("apply", false, "Write the inferred TRs into the scans and their sidecars")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bids":
			cfg.Dataset.Root = *bidsRoot
		case "o":
			cfg.SliceTiming.TRReport = *output
		}
	})

	var rows []qcio.TRRow
	if *from != "" {
		rows, err = qcio.ReadTRReport(*from)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", *from, err)
		}
	} else {
		layout, err := bids.Index(cfg.Dataset.Root)
		if err != nil {
			log.Fatalf("Failed to index BIDS dataset: %v", err)
		}
		files := layout.Get(bids.Query{Suffix: cfg.Destripe.Suffix, Extension: cfg.Destripe.Extension})

		participants, err := bids.ReadParticipants(cfg.ParticipantsPath())
		if err != nil {
			log.Printf("No participant metadata (%v); centre left empty", err)
			participants = map[string]bids.Participant{}
		}

		rows = slicetiming.InferTRs(acquisitions(files, participants))
		if err := qcio.WriteTRReport(cfg.SliceTiming.TRReport, rows); err != nil {
			log.Fatalf("Failed to write %s: %v", cfg.SliceTiming.TRReport, err)
		}
		fmt.Printf("%d scans without TR, written to %s\n", len(rows), cfg.SliceTiming.TRReport)
	}

	if !*apply {
		return
	}

	// This writes into the BIDS dataset itself.
	n := complete(rows, cfg.SliceTiming.Backup)
	fmt.Printf("%d of %d scans completed\n", n, len(rows))
}
