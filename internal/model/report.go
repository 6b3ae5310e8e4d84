package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ProcessStatus is the extraction state of a report as stored in website_data.
type ProcessStatus string

const (
	ProcessPending ProcessStatus = "N"
	ProcessDone    ProcessStatus = "Y"
	ProcessReview  ProcessStatus = "R" // extraction never reached agreement; needs manual review
)

// Report is one published situation report and its pipeline statuses.
type Report struct {
	ID           int64         `json:"id"`
	NewName      string        `json:"new_name"`
	Year         string        `json:"year"` // two-digit canonical form, e.g. "24"
	Week         int           `json:"week"`
	Link         string        `json:"link,omitempty"`
	Compatible   bool          `json:"compatible"`
	Downloaded   bool          `json:"downloaded"`
	Enhanced     bool          `json:"enhanced"`
	EnhancedName string        `json:"enhanced_name,omitempty"`
	Processed    ProcessStatus `json:"processed"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// BaseName is the standardized filename without its .pdf extension.
func (r Report) BaseName() string {
	return strings.TrimSuffix(r.NewName, ".pdf")
}

// FullYear expands the two-digit year (e.g. "21" -> 2021).
func (r Report) FullYear() int {
	yy, err := strconv.Atoi(r.Year)
	if err != nil {
		return 0
	}
	if yy < 100 {
		return 2000 + yy
	}
	return yy
}

// Label identifies the report in log lines.
func (r Report) Label() string {
	return fmt.Sprintf("%s (year %s, week %d)", r.NewName, r.Year, r.Week)
}

// NormalizeYear reduces "2021", "21" or " 21 " to the two-digit form.
func NormalizeYear(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 4 {
		return s[2:]
	}
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// ReportFilter narrows report listings.
type ReportFilter struct {
	Year       string
	Compatible *bool
	Downloaded *bool
	Enhanced   *bool
	Processed  *ProcessStatus
	Limit      int
}

// Bool returns a pointer to b, for building filters.
func Bool(b bool) *bool { return &b }

// Status returns a pointer to s, for building filters.
func Status(s ProcessStatus) *ProcessStatus { return &s }
