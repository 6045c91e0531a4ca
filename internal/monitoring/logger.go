// Package monitoring holds the logger shared by the QC packages.
package monitoring

import (
	"fmt"
	"log"
	"sync"
)

// Logf receives skip notices and progress lines. It is log.Printf unless
// replaced through SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps Logf. A nil f silences logging.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Recorder collects formatted log lines; its Logf is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Logf appends one formatted line.
func (r *Recorder) Logf(format string, v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
}

// Lines returns a copy of everything logged so far.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}
