// Package pipeline runs the configured sources one after another: fetch,
// resolve the key, merge into the archive, then mirror.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/KI7MT/swx-archive/internal/archive"
	"github.com/KI7MT/swx-archive/internal/common"
	"github.com/KI7MT/swx-archive/internal/sink"
	"github.com/KI7MT/swx-archive/internal/solar"
)

// Runner executes one archiver run.
type Runner struct {
	cfg     *common.Config
	client  *solar.Client
	store   *archive.Store
	mirror  sink.Mirror
	log     *zap.SugaredLogger
	stats   *common.Stats
	sources []solar.Source

	// Confirm is asked before each directory is purged unless the config
	// sets AssumeYes. Nil declines every purge.
	Confirm func(dir string) bool
}

// New builds a runner from a validated config. mirror may be nil.
func New(cfg *common.Config, log *zap.SugaredLogger, mirror sink.Mirror) (*Runner, error) {
	sources, err := Plan(cfg)
	if err != nil {
		return nil, err
	}

	stats := common.NewStats()
	client := solar.NewClient(cfg.HTTPTimeout)
	client.OnBytes = stats.AddBytes

	return &Runner{
		cfg:     cfg,
		client:  client,
		store:   archive.NewStore(""),
		mirror:  mirror,
		log:     log,
		stats:   stats,
		sources: sources,
	}, nil
}

// Plan resolves the sources selected by cfg, in run order, with endpoint
// and collision overrides applied. Unknown ids are an error.
func Plan(cfg *common.Config) ([]solar.Source, error) {
	known := make(map[string]bool)
	for _, id := range solar.IDs() {
		known[id] = true
	}
	for _, id := range cfg.Sources {
		if !known[strings.ToLower(id)] {
			return nil, fmt.Errorf("unknown source %q (known: %s)", id, strings.Join(solar.IDs(), ", "))
		}
	}
	for id := range cfg.Endpoints {
		if !known[id] {
			return nil, fmt.Errorf("endpoints: unknown source %q", id)
		}
	}

	var out []solar.Source
	for _, src := range solar.Registry() {
		if !cfg.Selected(src.ID) {
			continue
		}
		if u, ok := cfg.Endpoints[src.ID]; ok && u != "" {
			src = src.WithURL(u)
		}
		src.Collision = cfg.CollisionFor(src.ID, src.Collision)
		out = append(out, src)
	}
	return out, nil
}

// Stats returns the run counters.
func (r *Runner) Stats() *common.Stats {
	return r.stats
}

// Sources returns the planned sources.
func (r *Runner) Sources() []solar.Source {
	return r.sources
}

// Run purges (if configured), creates the output directories and processes
// every planned source. A failing source is logged and counted; the run
// continues with the next one. Only cancellation and directory setup
// errors abort the run.
func (r *Runner) Run(ctx context.Context) error {
	if r.cfg.Purge {
		r.Purge()
	}

	dirs := []string{r.cfg.PlotDir}
	for _, src := range r.sources {
		dirs = append(dirs, filepath.Join(r.cfg.DataDir, src.Dir))
	}
	if err := common.EnsureDirs(dirs...); err != nil {
		return err
	}

	req := solar.Request{
		Start:     r.cfg.Start.Time,
		End:       r.cfg.End.Time,
		GOESDays:  r.cfg.GOESDays,
		GFZIndex:  r.cfg.GFZIndex,
		GFZStatus: r.cfg.GFZStatus,
	}

	for _, src := range r.sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !src.PerStation {
			r.runOne(ctx, src, req, src.ID)
			continue
		}

		merged := make(map[string]bool)
		for _, station := range r.cfg.Stations {
			if err := ctx.Err(); err != nil {
				return err
			}
			sreq := req
			sreq.Station = station
			if r.runOne(ctx, src, sreq, src.ID+"/"+station) {
				merged[station] = true
			}
		}
		if src.ID == solar.StationSourceID {
			r.exportComparison(src, req, merged)
		}
	}
	return ctx.Err()
}

// runOne fetches and merges one archive. It reports whether the archive
// was updated.
func (r *Runner) runOne(ctx context.Context, src solar.Source, req solar.Request, label string) bool {
	r.log.Infof("[%s] Fetching %s", label, src.Desc)

	batch, err := src.Fetch(ctx, r.client, req)
	if err != nil {
		r.fail(label, err)
		return false
	}
	if src.AutoKey && batch.Len() == 0 {
		r.log.Infof("[%s] Skipped: empty response", label)
		r.stats.AddSkipped()
		return false
	}

	key, err := src.Key(batch)
	if err != nil {
		r.fail(label, err)
		return false
	}

	path := r.cfg.ArchivePath(src.Dir, src.ArchiveName(req))
	res, err := r.store.Merge(path, batch, key)
	if err != nil {
		r.fail(label, err)
		return false
	}
	r.stats.AddOK()
	r.stats.AddRows(res.Fetched, res.Invalid)
	if res.Invalid > 0 {
		r.log.Infof("[%s] Parsed/merged %d new records (%d invalid dropped, %d total) -> %s",
			label, res.Fetched, res.Invalid, res.Total, path)
	} else {
		r.log.Infof("[%s] Parsed/merged %d new records (%d total) -> %s", label, res.Fetched, res.Total, path)
	}

	if r.mirror != nil && res.Kept.Len() > 0 {
		r.mirrorBatch(ctx, label, res.Kept, key)
	}
	return true
}

func (r *Runner) mirrorBatch(ctx context.Context, label string, batch *archive.Table, key archive.Key) {
	n, err := r.mirror.Write(ctx, label, batch, key)
	if err != nil {
		r.log.Warnf("[%s] ClickHouse mirror: %v", label, err)
		return
	}
	count, err := r.mirror.Count(ctx, label)
	if err != nil {
		r.log.Warnf("[%s] ClickHouse verify: %v", label, err)
		return
	}
	r.log.Debugf("[%s] Mirrored %d rows (%d held)", label, n, count)
}

// fail classifies err as a skip (no data, no time column) or a failure.
func (r *Runner) fail(label string, err error) {
	switch {
	case errors.Is(err, solar.ErrNoData):
		r.log.Infof("[%s] Skipped: %v", label, err)
		r.stats.AddSkipped()
	case errors.Is(err, archive.ErrNoTimeColumn):
		r.log.Warnf("[%s] Skipped: %v", label, err)
		r.stats.AddSkipped()
	default:
		r.log.Errorf("[%s] ERROR: %v", label, err)
		r.stats.AddFailed()
	}
}

// exportComparison writes one joined station table per correction type.
func (r *Runner) exportComparison(src solar.Source, req solar.Request, merged map[string]bool) {
	if len(merged) == 0 {
		r.log.Info("No station archive loaded, skipping comparison export")
		return
	}

	tables := make(map[string]*archive.Table)
	var stations []string
	for _, station := range r.cfg.Stations {
		if !merged[station] {
			continue
		}
		sreq := req
		sreq.Station = station
		t, err := r.store.Load(r.cfg.ArchivePath(src.Dir, src.ArchiveName(sreq)))
		if err != nil || t == nil {
			r.log.Warnf("[%s/%s] Reload for comparison failed: %v", src.ID, station, err)
			continue
		}
		tables[station] = t
		stations = append(stations, station)
	}

	joined := solar.StationComparison(stations, tables)
	for _, column := range solar.StationColumns {
		t := joined[column]
		path := filepath.Join(r.cfg.PlotDir, "stations_"+column+".csv")
		if err := r.store.Save(path, t); err != nil {
			r.log.Errorf("Comparison export %s: %v", column, err)
			continue
		}
		r.log.Infof("Comparison %s: %d timestamps x %d stations -> %s", column, t.Len(), len(stations), path)
	}
}

// Purge removes the data and plot directories. Each existing directory is
// confirmed first unless AssumeYes is set.
func (r *Runner) Purge() {
	for _, dir := range r.cfg.OutputDirs() {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if !r.cfg.AssumeYes && (r.Confirm == nil || !r.Confirm(dir)) {
			r.log.Infof("Directory kept: %s", dir)
			continue
		}
		if err := common.RemoveAll(dir); err != nil {
			r.log.Warnf("Purge %s: %v", dir, err)
			continue
		}
		r.log.Infof("Directory removed: %s", dir)
	}
}
