package report

import (
	"fmt"
	"sync"

	"github.com/fatih/color"
)

// Reporter is the progress/warning sink threaded through every generation
// stage. It is safe for concurrent use by the enrichment and fetch workers.
type Reporter struct {
	verbose bool
	silent  bool

	mu       sync.Mutex
	warnings []string
}

func New(verbose bool) *Reporter {
	return &Reporter{verbose: verbose}
}

// Discard returns a reporter that prints nothing. Used from tests.
func Discard() *Reporter {
	return &Reporter{silent: true}
}

func (r *Reporter) Stepf(format string, args ...interface{}) {
	if r.silent {
		return
	}
	color.Cyan(format, args...)
}

func (r *Reporter) Successf(format string, args ...interface{}) {
	if r.silent {
		return
	}
	color.Green(format, args...)
}

func (r *Reporter) Warnf(format string, args ...interface{}) {
	r.mu.Lock()
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
	r.mu.Unlock()
	if r.silent {
		return
	}
	color.Yellow("⚠️  "+format, args...)
}

func (r *Reporter) Debugf(format string, args ...interface{}) {
	if r.silent || !r.verbose {
		return
	}
	fmt.Printf(format+"\n", args...)
}

// Warnings returns every warning recorded so far, in order.
func (r *Reporter) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.warnings))
	copy(out, r.warnings)
	return out
}
