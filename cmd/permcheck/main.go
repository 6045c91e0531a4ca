package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/KyungWonPark/MementoQC/internal/bids"
	"github.com/KyungWonPark/MementoQC/internal/config"
	qcio "github.com/KyungWonPark/MementoQC/internal/io"
	"github.com/KyungWonPark/MementoQC/internal/monitoring"
	"github.com/KyungWonPark/MementoQC/internal/nii"
	"github.com/KyungWonPark/MementoQC/internal/qc"
)

func main() {
	configPath := flag.String("config", "qc.yaml", "YAML configuration file")
	bidsRoot := flag.String("bids", "", "BIDS dataset root")
	threshold := flag.Float64("threshold", 0, "Sagittal gradient score under which a scan is flagged")
	output := flag.String("o", "", "Outlier manifest (CSV)")
	scores := flag.String("scores", "", "Optional CSV with the scores of every scan")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bids":
			cfg.Dataset.Root = *bidsRoot
		case "threshold":
			cfg.QC.GradientThreshold = *threshold
		case "o":
			cfg.QC.Output = *output
		}
	})

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

	var rows []qcio.ManifestRow
	for i, f := range files {
		fmt.Printf("%s %d/%d\n", f.Filename, i+1, len(files))

		vol, err := nii.Store{}.Read(f.Path)
		if err != nil {
			monitoring.Logf("skip %s: %v", f.Filename, err)
			continue
		}

		row, err := qc.Assess(qcio.ManifestRow{
			ParticipantID: "sub-" + f.Subject,
			Session:       f.Session,
			Centre:        participants[f.Subject].Centre,
			Path:          f.Path,
		}, vol)
		if err != nil {
			monitoring.Logf("skip %s: %v", f.Filename, err)
			continue
		}
		rows = append(rows, row)
	}

	if *scores != "" {
		if err := qcio.WriteManifest(*scores, rows); err != nil {
			log.Fatalf("Failed to write scores: %v", err)
		}
	}

	flagged := qc.Flag(rows, cfg.QC.GradientThreshold)
	if err := qcio.WriteManifest(cfg.QC.Output, flagged); err != nil {
		log.Fatalf("Failed to write manifest: %v", err)
	}

	perCentre := make(map[string]int)
	for _, r := range flagged {
		perCentre[r.Centre]++
	}
	fmt.Printf("%d of %d scans below %.0f, manifest written to %s\n",
		len(flagged), len(rows), cfg.QC.GradientThreshold, cfg.QC.Output)
	for centre, n := range perCentre {
		fmt.Printf("  %s: %d\n", centre, n)
	}
}
