package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sitrep-cli/internal/config"
	"github.com/sells-group/sitrep-cli/internal/enhance"
	"github.com/sells-group/sitrep-cli/internal/fetcher"
	"github.com/sells-group/sitrep-cli/internal/model"
	"github.com/sells-group/sitrep-cli/internal/store"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cmd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seed(t *testing.T, st store.Store) []model.Report {
	t.Helper()
	ctx := context.Background()
	_, err := st.UpsertReports(ctx, []model.Report{
		{NewName: "Nigeria_situation_report_2024_W05.pdf", Year: "24", Week: 5, Downloaded: true},
		{NewName: "Nigeria_situation_report_2024_W06.pdf", Year: "24", Week: 6},
		{NewName: "Nigeria_situation_report_2023_W52.pdf", Year: "23", Week: 52, Downloaded: true},
	})
	require.NoError(t, err)
	reports, err := st.ListReports(ctx, model.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, reports, 3)
	return reports
}

func TestSelection_FiltersByYearAndLimit(t *testing.T) {
	st := newTestStore(t)
	seed(t, st)

	sel := selection{year: "2024"}
	got, err := sel.reports(context.Background(), st, model.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, r := range got {
		assert.Equal(t, "24", r.Year)
	}

	sel = selection{limit: 1}
	got, err = sel.reports(context.Background(), st, model.ReportFilter{Downloaded: model.Bool(true)})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSelection_IDsBypassFilter(t *testing.T) {
	st := newTestStore(t)
	reports := seed(t, st)
	ctx := context.Background()
	require.NoError(t, st.MarkReview(ctx, reports[0].ID))

	sel := selection{ids: []int64{reports[0].ID}}
	got, err := sel.reports(ctx, st, model.ReportFilter{Processed: model.Status(model.ProcessPending)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.ProcessReview, got[0].Processed)
}

func TestSelection_UnknownID(t *testing.T) {
	st := newTestStore(t)
	sel := selection{ids: []int64{999}}
	_, err := sel.reports(context.Background(), st, model.ReportFilter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkIncompatible_ByName(t *testing.T) {
	st := newTestStore(t)
	seed(t, st)
	ctx := context.Background()

	n, err := markIncompatible(ctx, st, []fetcher.Entry{
		{Report: model.Report{NewName: "Nigeria_situation_report_2024_W06.pdf"}, Incompatible: true},
		{Report: model.Report{NewName: "Nigeria_situation_report_2024_W05.pdf"}},
		{Report: model.Report{NewName: "not_in_db.pdf"}, Incompatible: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	left, err := st.ListReports(ctx, model.ReportFilter{Compatible: model.Bool(false)})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "Nigeria_situation_report_2024_W06.pdf", left[0].NewName)

	n, err = markIncompatible(ctx, st, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSummarizeReports(t *testing.T) {
	rows := summarizeReports([]model.Report{
		{Year: "24", Downloaded: true, Compatible: true, Enhanced: true, Processed: model.ProcessDone},
		{Year: "24", Downloaded: true, Compatible: true, Enhanced: true, Processed: model.ProcessReview},
		{Year: "24", Compatible: false, Processed: model.ProcessPending},
		{Year: "23", Downloaded: true, Compatible: true, Processed: model.ProcessPending},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, yearStatus{Year: "23", Total: 1, Downloaded: 1}, rows[0])
	assert.Equal(t, yearStatus{Year: "24", Total: 3, Downloaded: 2, Incompatible: 1, Enhanced: 2, Processed: 1, Review: 1}, rows[1])

	var buf bytes.Buffer
	formatStatus(&buf, rows)
	out := buf.String()
	assert.Contains(t, out, "YEAR")
	assert.Contains(t, out, "REVIEW")
	assert.Contains(t, out, "24")
}

func TestFormatReports(t *testing.T) {
	var buf bytes.Buffer
	formatReports(&buf, []model.Report{
		{ID: 7, Year: "24", Week: 5, NewName: "Nigeria_situation_report_2024_W05.pdf", Downloaded: true, Compatible: true, Processed: model.ProcessPending},
	})
	out := buf.String()
	assert.Contains(t, out, "PROCESSED")
	assert.Contains(t, out, "Nigeria_situation_report_2024_W05.pdf")
	assert.Regexp(t, `7\s+24\s+5\s+Nigeria_situation_report_2024_W05\.pdf\s+Y\s+Y\s+N\s+N`, out)
}

func TestEnhanceParamsFromConfig(t *testing.T) {
	withConfig(t, &config.Config{Enhance: config.EnhanceConfig{
		HSVLower:     []int{35, 5, 200},
		HSVUpper:     []int{55, 40, 255},
		RowThreshold: 1000,
		Vertical:     config.LineConfig{Threshold: 900, MinLength: 60, MaxGap: 40},
		Tolerance:    3,
	}})

	c := colorParams()
	assert.Equal(t, enhance.HSV{H: 35, S: 5, V: 200}, c.Lower)
	assert.Equal(t, enhance.HSV{H: 55, S: 40, V: 255}, c.Upper)
	assert.Equal(t, 1000, c.RowThreshold)
	assert.Equal(t, enhance.DefaultColorParams().FallbackTop, c.FallbackTop)

	l := lineParams()
	assert.Equal(t, enhance.HoughParams{Threshold: 900, MinLineLength: 60, MaxLineGap: 40}, l.Vertical)
	assert.Equal(t, enhance.DefaultLineParams().Horizontal, l.Horizontal)
	assert.Equal(t, 3, l.Tolerance)
}

func TestEnhanceParams_BadHSVFallsBack(t *testing.T) {
	withConfig(t, &config.Config{Enhance: config.EnhanceConfig{HSVLower: []int{1, 2}}})
	assert.Equal(t, enhance.DefaultColorParams().Lower, colorParams().Lower)
}

func TestInitMirror(t *testing.T) {
	ctx := context.Background()

	withConfig(t, &config.Config{ObjStore: config.ObjStoreConfig{Provider: "none"}})
	m, err := initMirror(ctx)
	require.NoError(t, err)
	assert.Nil(t, m)

	cfg.ObjStore = config.ObjStoreConfig{Provider: "local"}
	_, err = initMirror(ctx)
	require.Error(t, err)

	cfg.ObjStore = config.ObjStoreConfig{Provider: "local", LocalDir: t.TempDir()}
	m, err = initMirror(ctx)
	require.NoError(t, err)
	assert.NotNil(t, m)

	cfg.ObjStore = config.ObjStoreConfig{Provider: "gcs"}
	_, err = initMirror(ctx)
	require.Error(t, err)
}

func TestInitLocker(t *testing.T) {
	ctx := context.Background()

	withConfig(t, &config.Config{Lock: config.LockConfig{Provider: "local"}})
	l, closeFn, err := initLocker(ctx)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.NoError(t, closeFn())

	cfg.Lock = config.LockConfig{Provider: "redis"}
	_, _, err = initLocker(ctx)
	require.Error(t, err)

	cfg.Lock = config.LockConfig{Provider: "etcd"}
	_, _, err = initLocker(ctx)
	require.Error(t, err)
}

func TestInitPipeline_SyncNeedsMirror(t *testing.T) {
	withConfig(t, &config.Config{
		Store:    config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "p.db")},
		ObjStore: config.ObjStoreConfig{Provider: "none"},
	})
	_, err := initPipeline(context.Background(), "sync")
	require.Error(t, err)
}

func TestInitPipeline_Check(t *testing.T) {
	root := t.TempDir()
	withConfig(t, &config.Config{
		Store:    config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(root, "p.db")},
		Data:     config.DataConfig{Root: root},
		ObjStore: config.ObjStoreConfig{Provider: "local", LocalDir: filepath.Join(root, "mirror")},
		Lock:     config.LockConfig{Provider: "local"},
		Enhance:  config.EnhanceConfig{PageIndex: 3, DPI: 600},
		Extract:  config.ExtractConfig{DiffLog: "differing_outputs.txt"},
		Batch:    config.BatchConfig{Concurrency: 2},
	})
	env, err := initPipeline(context.Background(), "check")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Pipeline)
	assert.NotNil(t, env.Mirror)
	assert.Equal(t, root, env.Pipeline.Paths().Root)
	assert.Equal(t, 3, env.Pipeline.Paths().TablePage)
}
