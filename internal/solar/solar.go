// Package solar provides the space-weather source adapters.
// Each adapter fetches one public NOAA SWPC, GFZ Potsdam, NMDB or SIDC
// endpoint and hands back a flat record batch plus the key columns that
// identify a row in that source's archive.
package solar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/KI7MT/swx-archive/internal/archive"
)

// Request carries the per-run parameters an adapter may need.
type Request struct {
	Start     time.Time
	End       time.Time
	Station   string // NMDB station code, per-station sources only
	GOESDays  int    // GOES rolling window: 1, 3 or 7
	GFZIndex  string // GFZ index name, e.g. "Kp"
	GFZStatus string // "def" or "all"
}

// URLFunc builds the request URL from a source's base URL.
type URLFunc func(base string, req Request) (string, error)

// ParseFunc turns a response body into a record batch.
type ParseFunc func(body []byte, req Request) (*archive.Table, error)

// Source is one row of the declarative source table.
type Source struct {
	ID         string
	Desc       string
	URL        string
	Dir        string   // archive subdirectory under the data dir
	File       string   // archive base name; per-station sources use the station code
	Keys       []string // declared key columns, temporal key first
	AutoKey    bool     // detect the temporal key from the delivered columns
	Policy     archive.TimePolicy
	Collision  archive.CollisionPolicy
	PerStation bool

	buildURL URLFunc
	parse    ParseFunc
}

// ArchiveName returns the archive base name for a request.
func (s Source) ArchiveName(req Request) string {
	if s.PerStation {
		return req.Station
	}
	return s.File
}

// Endpoint returns the concrete URL for a request.
func (s Source) Endpoint(req Request) (string, error) {
	if s.buildURL == nil {
		return s.URL, nil
	}
	return s.buildURL(s.URL, req)
}

// Key resolves the archive key for a fetched batch. Auto-key sources take
// the first time-like column and fail with archive.ErrNoTimeColumn.
func (s Source) Key(t *archive.Table) (archive.Key, error) {
	key := archive.Key{Columns: s.Keys, Policy: s.Policy, Collision: s.Collision}
	if !s.AutoKey {
		return key, nil
	}
	col, ok := archive.DetectTimeColumn(t.Columns)
	if !ok {
		return key, fmt.Errorf("%w in %s (columns: %s)", archive.ErrNoTimeColumn, s.ID, strings.Join(t.Columns, ", "))
	}
	key.Columns = []string{col}
	return key, nil
}

// Fetch downloads and parses one batch.
func (s Source) Fetch(ctx context.Context, c *Client, req Request) (*archive.Table, error) {
	if s.PerStation && req.Station == "" {
		return nil, fmt.Errorf("%s: station code required", s.ID)
	}
	endpoint, err := s.Endpoint(req)
	if err != nil {
		return nil, err
	}
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	t, err := s.parse(body, req)
	if err != nil {
		return nil, err
	}
	return t, nil
}
