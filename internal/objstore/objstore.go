// Package objstore mirrors pipeline artifacts (source PDFs, enhanced images,
// per-report CSVs) to an object store.
package objstore

import (
	"context"
	"path"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sitrep-cli/internal/model"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = eris.New("objstore: not found")

// Store is an artifact mirror addressed by slash-separated keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Kind is an artifact family.
type Kind string

const (
	KindPDF      Kind = "pdfs"
	KindEnhanced Kind = "enhanced"
	KindCSV      Kind = "csv"
)

// Keys builds mirror keys under a common prefix.
type Keys struct {
	Prefix string
}

// Dir is the key prefix holding one kind of artifact for a year.
func (k Keys) Dir(year string, kind Kind) string {
	return join(k.Prefix, model.NormalizeYear(year), string(kind)) + "/"
}

// PDF is the key of a report's source PDF.
func (k Keys) PDF(r model.Report) string {
	return join(k.Prefix, model.NormalizeYear(r.Year), string(KindPDF), r.NewName)
}

// Enhanced is the key of a report's enhanced image.
func (k Keys) Enhanced(r model.Report, name string) string {
	return join(k.Prefix, model.NormalizeYear(r.Year), string(KindEnhanced), name)
}

// CSV is the key of a report's accepted rows.
func (k Keys) CSV(r model.Report) string {
	return join(k.Prefix, model.NormalizeYear(r.Year), string(KindCSV), r.BaseName()+".csv")
}

func join(parts ...string) string {
	var keep []string
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			keep = append(keep, p)
		}
	}
	return path.Join(keep...)
}

// ContentType guesses the MIME type of an artifact from its key.
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
