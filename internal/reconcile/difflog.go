package reconcile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// Diff records one disagreement between the two extractions of an attempt.
type Diff struct {
	Image       string
	Attempt     int
	MaxAttempts int
	First       []Key
	Second      []Key
}

// newDiff builds a Diff from two normalized row sets.
func newDiff(image string, attempt, maxAttempts int, first, second []Key) Diff {
	return Diff{Image: image, Attempt: attempt, MaxAttempts: maxAttempts, First: first, Second: second}
}

// Rows returns the 1-based positions that differ, index-aligned, plus any
// rows past the end of the shorter set.
func (d Diff) Rows() []int {
	var out []int
	n := max(len(d.First), len(d.Second))
	for i := 0; i < n; i++ {
		if i >= len(d.First) || i >= len(d.Second) || d.First[i] != d.Second[i] {
			out = append(out, i+1)
		}
	}
	return out
}

// WriteTo writes the operator-readable form of d.
func (d Diff) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Differences in %s (attempt %d/%d):\n", filepath.Base(d.Image), d.Attempt, d.MaxAttempts)
	common := min(len(d.First), len(d.Second))
	for i := 0; i < common; i++ {
		if d.First[i] == d.Second[i] {
			continue
		}
		fmt.Fprintf(&b, "  Row %d:\n    Iteration 1: %s\n    Iteration 2: %s\n", i+1, d.First[i], d.Second[i])
	}
	for n, extra := range [][]Key{d.First[common:], d.Second[common:]} {
		if len(extra) == 0 {
			continue
		}
		fmt.Fprintf(&b, "  Additional rows in iteration %d:\n", n+1)
		for i, k := range extra {
			fmt.Fprintf(&b, "    Row %d: %s\n", common+i+1, k)
		}
	}
	b.WriteString("\n" + strings.Repeat("-", 80) + "\n")

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// DiffSink receives disagreements.
type DiffSink interface {
	Record(d Diff) error
}

// FileDiffLog appends disagreements to a text file.
type FileDiffLog struct {
	path string
	mu   sync.Mutex
}

// NewFileDiffLog appends to path, creating it and its directory on demand.
func NewFileDiffLog(path string) *FileDiffLog {
	return &FileDiffLog{path: path}
}

// Path returns the log file location.
func (l *FileDiffLog) Path() string { return l.path }

// Record implements DiffSink.
func (l *FileDiffLog) Record(d Diff) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return eris.Wrap(err, "reconcile: create diff log dir")
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrap(err, "reconcile: open diff log")
	}
	if _, err := d.WriteTo(f); err != nil {
		f.Close()
		return eris.Wrap(err, "reconcile: write diff log")
	}
	return eris.Wrap(f.Close(), "reconcile: close diff log")
}

type discardDiffs struct{}

func (discardDiffs) Record(Diff) error { return nil }
