package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gonum/matrix/mat64"

	"github.com/KyungWonPark/MementoQC/internal/bids"
	"github.com/KyungWonPark/MementoQC/internal/calc"
	"github.com/KyungWonPark/MementoQC/internal/config"
	qcio "github.com/KyungWonPark/MementoQC/internal/io"
	"github.com/KyungWonPark/MementoQC/internal/lag"
	"github.com/KyungWonPark/MementoQC/internal/monitoring"
	"github.com/KyungWonPark/MementoQC/internal/nii"
	"github.com/KyungWonPark/MementoQC/internal/report"
	"github.com/KyungWonPark/MementoQC/internal/store"
)

type settings struct {
	k       int
	dumpDir string
	plotDir string
}

func scanName(f bids.File) string {
	return strings.TrimSuffix(f.Filename, "."+f.Extension)
}

// estimate computes the lag and slice correlation map of one scan, writing
// optional dumps and plots.
func estimate(f bids.File, s settings) (float64, *mat64.Dense, error) {
	vol, err := nii.Store{}.Read(f.Path)
	if err != nil {
		return 0, nil, err
	}

	pl := calc.Init(1)
	signals, corrMap, err := pl.SliceMatrix(vol)
	if err != nil {
		return 0, nil, err
	}

	res, err := lag.Estimate(signals, s.k)
	if err != nil {
		return 0, nil, err
	}

	name := scanName(f)
	if len(res.Skipped) > 0 {
		monitoring.Logf("%s: left out non-finite slices %v", name, res.Skipped)
	}
	if s.dumpDir != "" {
		if err := qcio.Mat64toNpy(filepath.Join(s.dumpDir, name+"_signals.npy"), signals); err != nil {
			return 0, nil, err
		}
		if err := qcio.Mat64toNpy(filepath.Join(s.dumpDir, name+"_corr.npy"), corrMap); err != nil {
			return 0, nil, err
		}
	}
	if s.plotDir != "" {
		if _, err := report.LagDiagnostics(s.plotDir, name, signals, res); err != nil {
			monitoring.Logf("plot %s: %v", name, err)
		}
	}

	return res.Lag, corrMap, nil
}

func worker(files []bids.File, lags []float64, maps []*mat64.Dense, s settings, order <-chan int, wg *sync.WaitGroup) {
	for {
		index, ok := <-order
		if ok {
			value, corrMap, err := estimate(files[index], s)
			if err != nil {
				monitoring.Logf("skip %s: %v", files[index].Filename, err)
				value = math.NaN()
			}
			lags[index] = value
			maps[index] = corrMap

			wg.Done()
		} else {
			break
		}
	}
}

// dumpMeanMap averages the correlation maps of one centre that share the
// slice count of the first one.
func dumpMeanMap(dir, centre string, maps []*mat64.Dense) error {
	if centre == "" {
		centre = "unknown"
	}

	n, _ := maps[0].Dims()
	pl := calc.Init(0)
	sum := mat64.NewDense(n, n, nil)
	count := 0
	for _, m := range maps {
		if r, _ := m.Dims(); r != n {
			continue
		}
		if err := pl.Acc(m, sum); err != nil {
			return err
		}
		count++
	}

	mean := mat64.NewDense(n, n, nil)
	if err := pl.Avg(sum, mean, count); err != nil {
		return err
	}

	return qcio.Mat64toNpy(filepath.Join(dir, centre+"_mean_corr.npy"), mean)
}

// recordLags stores rows in the ledger at path and closes it before
// returning.
func recordLags(path string, rows []qcio.LagRow, k int) (err error) {
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
	}()

	return db.RecordLags(rows, k)
}

func main() {
	configPath := flag.String("config", "qc.yaml", "YAML configuration file")
	bidsRoot := flag.String("bids", "", "BIDS dataset root")
	participantsPath := flag.String("participants", "", "participants.tsv (defaults to <bids>/participants.tsv)")
	numWorkers := flag.Int("workers", 0, "Scans processed concurrently")
	k := flag.Int("k", 0, "Oversampling factor")
	output := flag.String("o", "", "Lag report (CSV)")
	dumpDir := flag.String("dump", "", "Directory for .npy slice signals and correlation maps")
	plotDir := flag.String("plots", "", "Directory for per-scan diagnostic plots")
	chart := flag.String("chart", "", "HTML chart of lags per centre")
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
		case "participants":
			cfg.Dataset.Participants = *participantsPath
		case "workers":
			cfg.Lag.Workers = *numWorkers
		case "k":
			cfg.Lag.Oversampling = *k
		case "o":
			cfg.Lag.Output = *output
		case "dump":
			cfg.Lag.DumpDir = *dumpDir
		case "plots":
			cfg.Lag.PlotDir = *plotDir
		case "chart":
			cfg.Lag.Chart = *chart
		case "db":
			cfg.Store.Path = *dbPath
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	layout, err := bids.Index(cfg.Dataset.Root)
	if err != nil {
		log.Fatalf("Failed to index BIDS dataset: %v", err)
	}
	files := layout.Get(bids.Query{Suffix: "bold", Extension: "nii.gz"})
	fmt.Printf("Found %d rs-fMRI scans under %s\n", len(files), cfg.Dataset.Root)

	participants, err := bids.ReadParticipants(cfg.ParticipantsPath())
	if err != nil {
		log.Printf("No participant metadata (%v); centre and machine left empty", err)
		participants = map[string]bids.Participant{}
	}

	numWorker := cfg.Lag.Workers
	if numWorker <= 0 {
		numWorker = 1
	}
	s := settings{k: cfg.Lag.Oversampling, dumpDir: cfg.Lag.DumpDir, plotDir: cfg.Lag.PlotDir}

	startTime := time.Now()
	lags := make([]float64, len(files))
	maps := make([]*mat64.Dense, len(files))
	order := make(chan int, numWorker)
	var wg sync.WaitGroup
	for i := 0; i < numWorker; i++ {
		go worker(files, lags, maps, s, order, &wg)
	}
	for i := range files {
		wg.Add(1)
		order <- i
	}
	wg.Wait()
	close(order)

	var rows []qcio.LagRow
	centreMaps := make(map[string][]*mat64.Dense)
	for i, f := range files {
		if math.IsNaN(lags[i]) {
			continue
		}
		p := participants[f.Subject]
		centreMaps[p.Centre] = append(centreMaps[p.Centre], maps[i])
		rows = append(rows, qcio.LagRow{
			Subject: f.Subject,
			Session: f.Session,
			Centre:  p.Centre,
			Machine: p.Machine,
			Path:    f.Path,
			Lag:     lags[i],
		})
	}
	fmt.Printf("Estimated %d/%d lags in %.1fs\n", len(rows), len(files), time.Since(startTime).Seconds())

	if cfg.Lag.DumpDir != "" {
		for centre, ms := range centreMaps {
			if err := dumpMeanMap(cfg.Lag.DumpDir, centre, ms); err != nil {
				log.Printf("Mean correlation map of %q: %v", centre, err)
			}
		}
	}

	if err := qcio.WriteLagReport(cfg.Lag.Output, rows); err != nil {
		log.Fatalf("Failed to write lag report: %v", err)
	}
	fmt.Printf("Lag report written to %s\n", cfg.Lag.Output)

	if cfg.Store.Path != "" && cfg.Store.Path != "-" {
		if err := recordLags(cfg.Store.Path, rows, cfg.Lag.Oversampling); err != nil {
			log.Fatalf("Failed to record lags: %v", err)
		}
		fmt.Printf("Ledger updated at %s\n", cfg.Store.Path)
	}

	if cfg.Lag.Chart != "" {
		if err := report.WriteLagChart(cfg.Lag.Chart, rows); err != nil {
			log.Fatalf("Failed to write chart: %v", err)
		}
		fmt.Printf("Chart written to %s\n", cfg.Lag.Chart)
	}
}
