package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/KI7MT/swx-archive/internal/archive"
	"github.com/KI7MT/swx-archive/internal/common"
	"github.com/KI7MT/swx-archive/internal/solar"
)

const (
	kp1mBody = `[{"time_tag":"2025-06-01T00:01:00","kp_index":2,"estimated_kp":2.33},
 {"time_tag":"2025-06-01T00:00:00","kp_index":2,"estimated_kp":2.0},
 {"time_tag":"bogus","kp_index":1,"estimated_kp":1.0}]`

	aceBody = `[{"time_tag":"2025-06-01T00:00:00","bt":4.1},{"time_tag":"2025-06-01T01:00:00","bt":3.9}]`

	aceNoTimeBody = `[{"dsflag":0,"bt":4.1}]`

	nmdbBody = `start_date_time   RCORR_E;RUNCORR;RCORR_P
2025-06-01 00:00:00;   106.5;   104.1;   106.2
2025-06-01 00:01:00;   106.4;   104.0;   106.1
`

	nodataBody = `<!DOCTYPE html><html><body>No data available</body></html>`
)

type fakeMirror struct {
	writes map[string]int
	tables map[string][]*archive.Table
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{writes: map[string]int{}, tables: map[string][]*archive.Table{}}
}

func (m *fakeMirror) Write(_ context.Context, source string, t *archive.Table, _ archive.Key) (int, error) {
	m.writes[source] += t.Len()
	m.tables[source] = append(m.tables[source], t)
	return t.Len(), nil
}

func (m *fakeMirror) Count(_ context.Context, source string) (uint64, error) {
	return uint64(m.writes[source]), nil
}

func (m *fakeMirror) Close() error { return nil }

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/kp1m", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(kp1mBody)) })
	mux.HandleFunc("/kp3h", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	mux.HandleFunc("/ace", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(aceBody)) })
	mux.HandleFunc("/ace-notime", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(aceNoTimeBody)) })
	mux.HandleFunc("/nmdb", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("stations[]") == "OULU" {
			w.Write([]byte(nmdbBody))
			return
		}
		w.Write([]byte(nodataBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, srv *httptest.Server) *common.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := common.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.PlotDir = filepath.Join(dir, "plots")
	cfg.Format = archive.FormatCSV
	cfg.Start = common.Date{Time: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	cfg.End = cfg.Start
	cfg.HTTPTimeout = 5 * time.Second
	cfg.Stations = []string{"OULU", "APT"}
	cfg.Sources = []string{"station", "kp-1m", "kp-3h", "ace-mag", "ace-sis"}
	cfg.Endpoints = map[string]string{
		"station": srv.URL + "/nmdb",
		"kp-1m":   srv.URL + "/kp1m",
		"kp-3h":   srv.URL + "/kp3h",
		"ace-mag": srv.URL + "/ace",
		"ace-sis": srv.URL + "/ace-notime",
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRunIsolatesFailingSource(t *testing.T) {
	srv := newServer(t)
	cfg := testConfig(t, srv)

	// pre-existing archive of the failing source must survive untouched
	kp3hPath := cfg.ArchivePath(solar.DirKp, "kp_index_3h")
	require.NoError(t, os.MkdirAll(filepath.Dir(kp3hPath), 0755))
	prior := []byte("time_tag,Kp\n2025-05-31 21:00:00,1.67\n")
	require.NoError(t, os.WriteFile(kp3hPath, prior, 0644))

	mirror := newFakeMirror()
	r, err := New(cfg, zaptest.NewLogger(t).Sugar(), mirror)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	stats := r.Stats()
	assert.EqualValues(t, 3, stats.SourcesOK, "station/OULU, kp-1m, ace-mag")
	assert.EqualValues(t, 2, stats.SourcesSkipped, "station/APT no data, ace-sis no time column")
	assert.EqualValues(t, 1, stats.Failed())
	assert.EqualValues(t, 1, stats.RowsInvalid)

	got, err := os.ReadFile(kp3hPath)
	require.NoError(t, err)
	assert.Equal(t, prior, got)

	store := archive.NewStore("")
	kp, err := store.Load(cfg.ArchivePath(solar.DirKp, "kp_index_1min"))
	require.NoError(t, err)
	require.Equal(t, 2, kp.Len())
	assert.Equal(t, "2025-06-01 00:00:00", kp.Rows[0][0])
	assert.Equal(t, "2025-06-01 00:01:00", kp.Rows[1][0])

	ace, err := store.Load(cfg.ArchivePath(solar.DirACE, "ace_mag_1h"))
	require.NoError(t, err)
	assert.Equal(t, 2, ace.Len())

	_, err = os.Stat(cfg.ArchivePath(solar.DirACE, "ace_sis_5m"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(cfg.ArchivePath(solar.DirStation, "APT"))
	assert.True(t, os.IsNotExist(err))

	oulu, err := store.Load(cfg.ArchivePath(solar.DirStation, "OULU"))
	require.NoError(t, err)
	assert.Equal(t, 2, oulu.Len())

	cmp, err := store.Load(filepath.Join(cfg.PlotDir, "stations_RCORR_E.csv"))
	require.NoError(t, err)
	require.NotNil(t, cmp)
	assert.Equal(t, []string{"datetime", "OULU"}, cmp.Columns)
	assert.Equal(t, []string{"2025-06-01 00:00:00", "106.5"}, cmp.Rows[0])

	assert.Equal(t, 2, mirror.writes["kp-1m"], "the unparseable row is not mirrored")
	assert.Equal(t, 2, mirror.writes["station/OULU"])
	assert.NotContains(t, mirror.writes, "kp-3h")
}

func TestRunMirrorsArchivedValueOnCollision(t *testing.T) {
	srv := newServer(t)
	cfg := testConfig(t, srv)
	cfg.Sources = []string{"kp-1m"}

	path := cfg.ArchivePath(solar.DirKp, "kp_index_1min")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path,
		[]byte("time_tag,kp_index,estimated_kp\n2025-06-01 00:00:00,5,5.33\n"), 0644))

	mirror := newFakeMirror()
	r, err := New(cfg, zaptest.NewLogger(t).Sugar(), mirror)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	kp, err := archive.NewStore("").Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, kp.Len())
	assert.Equal(t, "5.33", kp.Value(0, "estimated_kp"))

	require.Len(t, mirror.tables["kp-1m"], 1)
	sent := mirror.tables["kp-1m"][0]
	require.Equal(t, 1, sent.Len(), "only the new key is mirrored")
	assert.Equal(t, "2025-06-01 00:01:00", sent.Value(0, "time_tag"))
	assert.Equal(t, "2.33", sent.Value(0, "estimated_kp"))

	// a second run adds nothing new
	r, err = New(cfg, zaptest.NewLogger(t).Sugar(), mirror)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))
	assert.Len(t, mirror.tables["kp-1m"], 1)
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	srv := newServer(t)
	cfg := testConfig(t, srv)
	cfg.Sources = []string{"kp-1m"}

	path := cfg.ArchivePath(solar.DirKp, "kp_index_1min")
	for i := 0; i < 2; i++ {
		r, err := New(cfg, zaptest.NewLogger(t).Sugar(), nil)
		require.NoError(t, err)
		require.NoError(t, r.Run(context.Background()))
	}
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	r, err := New(cfg, zaptest.NewLogger(t).Sugar(), nil)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunCancelled(t *testing.T) {
	srv := newServer(t)
	cfg := testConfig(t, srv)

	r, err := New(cfg, zaptest.NewLogger(t).Sugar(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
}

func TestPlan(t *testing.T) {
	cfg := common.DefaultConfig()
	cfg.Sources = []string{"KP-GFZ", "goes-protons"}
	cfg.Collision = map[string]string{"kp-gfz": "prefer-incoming"}

	sources, err := Plan(cfg)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	// registry order, not selection order
	assert.Equal(t, "goes-protons", sources[0].ID)
	assert.Equal(t, archive.KeepExisting, sources[0].Collision)
	assert.Equal(t, "kp-gfz", sources[1].ID)
	assert.Equal(t, archive.PreferIncoming, sources[1].Collision)

	cfg.Sources = []string{"nope"}
	_, err = Plan(cfg)
	assert.Error(t, err)

	cfg.Sources = nil
	cfg.Endpoints = map[string]string{"nope": "http://x"}
	_, err = Plan(cfg)
	assert.Error(t, err)
}

func TestPurge(t *testing.T) {
	cfg := common.DefaultConfig()
	dir := t.TempDir()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.PlotDir = filepath.Join(dir, "plots")
	require.NoError(t, common.EnsureDirs(cfg.DataDir, cfg.PlotDir))

	r, err := New(cfg, zaptest.NewLogger(t).Sugar(), nil)
	require.NoError(t, err)

	var asked []string
	r.Confirm = func(d string) bool {
		asked = append(asked, d)
		return d == cfg.DataDir
	}
	r.Purge()

	assert.Equal(t, []string{cfg.DataDir, cfg.PlotDir}, asked)
	_, err = os.Stat(cfg.DataDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(cfg.PlotDir)
	assert.NoError(t, err)

	cfg.AssumeYes = true
	r.Confirm = nil
	r.Purge()
	_, err = os.Stat(cfg.PlotDir)
	assert.True(t, os.IsNotExist(err))
}
