package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/enhance"
	"github.com/sells-group/sitrep-cli/internal/extract"
	"github.com/sells-group/sitrep-cli/internal/model"
	"github.com/sells-group/sitrep-cli/internal/objstore"
	"github.com/sells-group/sitrep-cli/internal/reconcile"
	"github.com/sells-group/sitrep-cli/internal/store"
	"github.com/sells-group/sitrep-cli/internal/validate"
)

type fakeEnhancer struct {
	mu    sync.Mutex
	calls []enhance.Request
	err   error
}

func (f *fakeEnhancer) Enhance(_ context.Context, req enhance.Request) (*enhance.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return nil, err
	}
	return &enhance.Result{}, os.WriteFile(req.OutputPath, []byte("png"), 0o644)
}

func (f *fakeEnhancer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func tableRows() []model.Row {
	return []model.Row{
		{State: "edo", Suspected: model.Int(10), Confirmed: model.Int(5), Probable: model.Int(0), HCW: model.Int(0), Deaths: model.Int(1)},
		{State: "Plateu", Suspected: model.Int(4), Confirmed: model.Int(2), Probable: model.Int(0), HCW: model.Int(1), Deaths: model.Int(0)},
		{State: "Total", Suspected: model.Int(14), Confirmed: model.Int(7), Probable: model.Int(0), HCW: model.Int(1), Deaths: model.Int(1)},
	}
}

func agreeingClient(calls *atomic.Int64) extract.Client {
	return extract.ClientFunc(func(context.Context, string, string) extract.Result {
		calls.Add(1)
		return extract.Result{Rows: tableRows()}
	})
}

func disagreeingClient(calls *atomic.Int64) extract.Client {
	return extract.ClientFunc(func(context.Context, string, string) extract.Result {
		n := calls.Add(1)
		rows := tableRows()
		rows[0].Suspected = model.Int(10 + int(n))
		return extract.Result{Rows: rows}
	})
}

type fixture struct {
	st      store.Store
	paths   Paths
	enh     *fakeEnhancer
	reports []model.Report
}

func newFixture(t *testing.T, client extract.Client, opts ...Option) (*Pipeline, *fixture) {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()

	st, err := store.NewSQLite(filepath.Join(root, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	_, err = st.UpsertReports(ctx, []model.Report{
		{NewName: "Nigeria_LF_SitRep_2024_W05.pdf", Year: "2024", Week: 5, Downloaded: true},
		{NewName: "Nigeria_LF_SitRep_2024_W06.pdf", Year: "2024", Week: 6, Downloaded: true},
	})
	require.NoError(t, err)
	reports, err := st.ListReports(ctx, model.ReportFilter{})
	require.NoError(t, err)

	f := &fixture{
		st:      st,
		paths:   Paths{Root: filepath.Join(root, "data"), TablePage: 3},
		enh:     &fakeEnhancer{},
		reports: reports,
	}
	for _, r := range reports {
		require.NoError(t, os.MkdirAll(f.paths.PDFDir(r.Year), 0o755))
		require.NoError(t, os.WriteFile(f.paths.PDF(r), []byte("%PDF-1.4"), 0o644))
	}

	rec := reconcile.New(client, validate.New(validate.Raise), reconcile.Config{MaxAttempts: 2}, nil, zap.NewNop())
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	p := New(Config{Paths: f.paths, Model: "test-model", DPI: 600, Concurrency: 2}, st, f.enh, rec, opts...)
	return p, f
}

func (f *fixture) reload(t *testing.T, id int64) model.Report {
	t.Helper()
	r, err := f.st.GetReport(context.Background(), id)
	require.NoError(t, err)
	return *r
}

func TestPaths(t *testing.T) {
	p := Paths{Root: "/data", TablePage: 3}
	r := model.Report{NewName: "Nigeria_LF_SitRep_2021_W07.pdf", Year: "2021", Week: 7}

	assert.Equal(t, "/data/PDFs_21/Nigeria_LF_SitRep_2021_W07.pdf", p.PDF(r))
	assert.Equal(t, "/data/PDFs_Lines_21/Lines_Nigeria_LF_SitRep_2021_W07_page3.png", p.Enhanced(r))
	assert.Equal(t, "/data/CSV_LF_21_Sorted/Nigeria_LF_SitRep_2021_W07.csv", p.CSV(r))
	assert.Equal(t, "/data/CSV_LF_21_Sorted/differing_outputs.txt", p.DiffLogPath("21"))

	r.EnhancedName = "custom.png"
	assert.Equal(t, "/data/PDFs_Lines_21/custom.png", p.Enhanced(r))
}

func TestEnhanceReport_WritesAndMirrors(t *testing.T) {
	var calls atomic.Int64
	mirror, err := objstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	keys := objstore.Keys{Prefix: "lassa"}
	p, f := newFixture(t, agreeingClient(&calls), WithMirror(mirror, keys))
	ctx := context.Background()
	r := f.reports[0]

	status, err := p.EnhanceReport(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, StatusEnhanced, status)
	require.Equal(t, 1, f.enh.count())
	req := f.enh.calls[0]
	assert.Equal(t, f.paths.PDF(r), req.SourcePath)
	assert.Equal(t, f.paths.Enhanced(r), req.OutputPath)
	assert.Equal(t, "24", req.Year)
	assert.Equal(t, 5, req.Week)
	assert.Equal(t, 3, req.PageIndex)

	got := f.reload(t, r.ID)
	assert.True(t, got.Enhanced)
	assert.Equal(t, "Lines_Nigeria_LF_SitRep_2024_W05_page3.png", got.EnhancedName)

	ok, err := mirror.Exists(ctx, "lassa/24/enhanced/Lines_Nigeria_LF_SitRep_2024_W05_page3.png")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnhanceReport_ExistingOutputIsNotRegenerated(t *testing.T) {
	var calls atomic.Int64
	p, f := newFixture(t, agreeingClient(&calls))
	r := f.reports[0]
	out := f.paths.Enhanced(r)
	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0o755))
	require.NoError(t, os.WriteFile(out, []byte("old"), 0o644))

	status, err := p.EnhanceReport(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status)
	assert.Zero(t, f.enh.count())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	assert.True(t, f.reload(t, r.ID).Enhanced)
}

func TestEnhanceReport_RenderFailureFlagsIncompatible(t *testing.T) {
	var calls atomic.Int64
	p, f := newFixture(t, agreeingClient(&calls))
	f.enh.err = &enhance.RenderError{Path: "x.pdf", Err: errors.New("corrupt xref")}
	r := f.reports[0]

	status, err := p.EnhanceReport(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, StatusIncompatible, status)

	got := f.reload(t, r.ID)
	assert.False(t, got.Compatible)
	assert.False(t, got.Enhanced)
	_, statErr := os.Stat(f.paths.Enhanced(r))
	assert.True(t, os.IsNotExist(statErr))

	status, err = p.EnhanceReport(context.Background(), got)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status)
	assert.Equal(t, 1, f.enh.count())
}

func TestEnhanceReport_OtherFailure(t *testing.T) {
	var calls atomic.Int64
	p, f := newFixture(t, agreeingClient(&calls))
	f.enh.err = errors.New("disk full")

	status, err := p.EnhanceReport(context.Background(), f.reports[0])
	require.Error(t, err)
	assert.Equal(t, StatusFailed, status)
	assert.True(t, f.reload(t, f.reports[0].ID).Compatible)
}

func TestEnhanceReport_MissingSource(t *testing.T) {
	var calls atomic.Int64
	p, f := newFixture(t, agreeingClient(&calls))
	r := f.reports[0]
	require.NoError(t, os.Remove(f.paths.PDF(r)))

	status, err := p.EnhanceReport(context.Background(), r)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, status)
	assert.Zero(t, f.enh.count())
}

func enhanced(t *testing.T, p *Pipeline, f *fixture, r model.Report) model.Report {
	t.Helper()
	_, err := p.EnhanceReport(context.Background(), r)
	require.NoError(t, err)
	return f.reload(t, r.ID)
}

func TestExtractReport_Accepted(t *testing.T) {
	var calls atomic.Int64
	mirror, err := objstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	p, f := newFixture(t, agreeingClient(&calls), WithMirror(mirror, objstore.Keys{}))
	ctx := context.Background()
	r := enhanced(t, p, f, f.reports[0])

	status, err := p.ExtractReport(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, StatusExtracted, status)
	assert.Equal(t, int64(2), calls.Load())

	file, err := os.Open(f.paths.CSV(r))
	require.NoError(t, err)
	defer file.Close()
	recs, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, []string{"2024", "5", "Edo", "10", "5", "0", "0", "1"}, recs[1])
	assert.Equal(t, "Plateau", recs[2][2])
	assert.Equal(t, "Total", recs[3][2])

	assert.Equal(t, model.ProcessDone, f.reload(t, r.ID).Processed)
	cases, err := f.st.ListCases(ctx, model.CaseFilter{Year: 2024, Week: 5})
	require.NoError(t, err)
	require.Len(t, cases, 3)
	assert.Equal(t, "Edo", cases[0].State)

	ok, err := mirror.Exists(ctx, "24/csv/Nigeria_LF_SitRep_2024_W05.csv")
	require.NoError(t, err)
	assert.True(t, ok)

	status, err = p.ExtractReport(ctx, f.reload(t, r.ID))
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status)
	assert.Equal(t, int64(2), calls.Load())
}

func TestExtractReport_ExhaustedFlagsReview(t *testing.T) {
	var calls atomic.Int64
	p, f := newFixture(t, disagreeingClient(&calls))
	r := enhanced(t, p, f, f.reports[0])

	status, err := p.ExtractReport(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, StatusReview, status)
	assert.Equal(t, int64(4), calls.Load())

	assert.Equal(t, model.ProcessReview, f.reload(t, r.ID).Processed)
	_, statErr := os.Stat(f.paths.CSV(r))
	assert.True(t, os.IsNotExist(statErr))

	diffs, err := os.ReadFile(f.paths.DiffLogPath("24"))
	require.NoError(t, err)
	assert.Contains(t, string(diffs), "Differences in")
}

type failingSave struct {
	store.Store
}

func (failingSave) SaveExtraction(context.Context, model.Report, []model.Row) error {
	return errors.New("database is locked")
}

func TestExtractReport_SaveFailureRemovesCSV(t *testing.T) {
	var calls atomic.Int64
	p, f := newFixture(t, agreeingClient(&calls))
	r := enhanced(t, p, f, f.reports[0])
	p.store = failingSave{Store: f.st}

	status, err := p.ExtractReport(context.Background(), r)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, status)
	_, statErr := os.Stat(f.paths.CSV(r))
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, model.ProcessPending, f.reload(t, r.ID).Processed)
}

func TestExtractReport_RestoresImageFromMirror(t *testing.T) {
	var calls atomic.Int64
	ctx := context.Background()
	mirror, err := objstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	keys := objstore.Keys{Prefix: "lassa"}
	p, f := newFixture(t, agreeingClient(&calls), WithMirror(mirror, keys))
	r := enhanced(t, p, f, f.reports[0])
	require.NoError(t, os.Remove(f.paths.Enhanced(r)))

	status, err := p.ExtractReport(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, StatusExtracted, status)
	_, statErr := os.Stat(f.paths.Enhanced(r))
	assert.NoError(t, statErr)
}

func TestExtractReport_MissingImage(t *testing.T) {
	var calls atomic.Int64
	p, f := newFixture(t, agreeingClient(&calls))
	r := enhanced(t, p, f, f.reports[0])
	require.NoError(t, os.Remove(f.paths.Enhanced(r)))

	status, err := p.ExtractReport(context.Background(), r)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, status)
	assert.Zero(t, calls.Load())
}

func TestExtractReport_SkipsUnenhanced(t *testing.T) {
	var calls atomic.Int64
	p, f := newFixture(t, agreeingClient(&calls))

	status, err := p.ExtractReport(context.Background(), f.reports[0])
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status)
	assert.Zero(t, calls.Load())
}

func TestCanonicalRows(t *testing.T) {
	in := []model.Row{{State: " fct "}, {State: "Akwa-Ibom"}, {State: "Atlantis"}, {State: ""}}
	out := canonicalRows(in, zap.NewNop())
	assert.Equal(t, "FCT", out[0].State)
	assert.Equal(t, "Akwa Ibom", out[1].State)
	assert.Equal(t, "Atlantis", out[2].State)
	assert.Equal(t, "", out[3].State)
	assert.Equal(t, " fct ", in[0].State, "input must not be modified")
}

func TestFinalRows(t *testing.T) {
	in := []model.Row{
		{State: "Total", Suspected: model.Int(9), Deaths: model.Count{Raw: "n/a"}},
		{State: "Edo", Suspected: model.Int(5)},
		{State: "", Suspected: model.Int(1)},
		{State: "Ondo", Suspected: model.Int(4)},
		{State: "Edo", Suspected: model.Int(7)},
	}
	out := finalRows(in, zap.NewNop())
	require.Len(t, out, 3)
	assert.Equal(t, []string{"Edo", "Ondo", "Total"}, []string{out[0].State, out[1].State, out[2].State})
	assert.Equal(t, model.Int(5), out[0].Suspected)
	assert.True(t, out[2].Deaths.Blank())
	assert.Equal(t, "n/a", in[0].Deaths.Raw, "input must not be modified")
}

func TestExtractReport_CSVMatchesStoredCases(t *testing.T) {
	var calls atomic.Int64
	client := extract.ClientFunc(func(context.Context, string, string) extract.Result {
		calls.Add(1)
		return extract.Result{Rows: []model.Row{
			{State: "Total", Suspected: model.Int(9), Confirmed: model.Int(3), Probable: model.Int(0), HCW: model.Int(0), Deaths: model.Count{Raw: "-"}},
			{State: "Edo", Suspected: model.Int(5), Confirmed: model.Int(2), Probable: model.Int(0), HCW: model.Int(0), Deaths: model.Int(1)},
			{State: "", Suspected: model.Int(0), Confirmed: model.Int(0), Probable: model.Int(0), HCW: model.Int(0), Deaths: model.Int(0)},
			{State: "Ondo", Suspected: model.Int(4), Confirmed: model.Int(1), Probable: model.Int(0), HCW: model.Int(0), Deaths: model.Int(0)},
		}}
	})
	p, f := newFixture(t, client)
	ctx := context.Background()
	r := enhanced(t, p, f, f.reports[0])

	status, err := p.ExtractReport(ctx, r)
	require.NoError(t, err)
	require.Equal(t, StatusExtracted, status)

	file, err := os.Open(f.paths.CSV(r))
	require.NoError(t, err)
	defer file.Close()
	recs, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	cases, err := f.st.ListCases(ctx, model.CaseFilter{Year: 2024, Week: 5})
	require.NoError(t, err)

	require.Len(t, recs, len(cases)+1)
	for i, c := range cases {
		rec := recs[i+1]
		assert.Equal(t, c.State, rec[2], "row %d", i)
		assert.Equal(t, c.Suspected.String(), rec[3], "row %d", i)
		assert.Equal(t, c.Deaths.String(), rec[7], "row %d", i)
	}
	assert.Equal(t, []string{"Edo", "Ondo", "Total"}, []string{cases[0].State, cases[1].State, cases[2].State})
	assert.Equal(t, "", recs[3][7], "non-numeric Total cell is blank in the CSV")
	assert.True(t, cases[2].Deaths.Blank())
}
