package bids

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// Participant is one row of participants.tsv.
type Participant struct {
	ID      string // "sub-0071"
	Centre  string
	Machine string
	Fields  map[string]string
}

// Subject returns the id without its "sub-" prefix.
func (p Participant) Subject() string {
	return strings.TrimPrefix(p.ID, "sub-")
}

// ReadParticipants reads participants.tsv keyed by subject label.
func ReadParticipants(path string) (map[string]Participant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s has no header", path)
	}

	header := records[0]
	idCol := -1
	for i, name := range header {
		if strings.TrimSpace(name) == "participant_id" {
			idCol = i
		}
	}
	if idCol < 0 {
		return nil, fmt.Errorf("%s: missing column %q", path, "participant_id")
	}

	out := make(map[string]Participant, len(records)-1)
	for _, record := range records[1:] {
		if idCol >= len(record) {
			continue
		}
		p := Participant{ID: strings.TrimSpace(record[idCol]), Fields: make(map[string]string)}
		for i, name := range header {
			if i < len(record) {
				p.Fields[strings.TrimSpace(name)] = strings.TrimSpace(record[i])
			}
		}
		p.Centre = p.Fields["centre"]
		p.Machine = p.Fields["machine"]
		out[p.Subject()] = p
	}

	return out, nil
}
