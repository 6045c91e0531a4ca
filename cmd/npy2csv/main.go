package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/KyungWonPark/MementoQC/internal/io"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s file.npy [file.npy ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	for _, fileName := range flag.Args() {
		npyFile, err := io.NpytoMat64(fileName)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", fileName, err)
		}
		fmt.Printf("Reading %s complete\n", fileName)

		out := strings.TrimSuffix(fileName, ".npy") + ".csv"
		if err := io.Mat64toCSV(out, npyFile); err != nil {
			log.Fatalf("Failed to write %s: %v", out, err)
		}
	}
}
