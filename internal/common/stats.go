package common

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Stats holds atomic counters for one archiver run.
type Stats struct {
	SourcesOK      uint64 // sources fetched and merged
	SourcesFailed  uint64 // fetch, parse or write failures
	SourcesSkipped uint64 // no data or no temporal key
	RowsFetched    uint64 // rows delivered by adapters, before dedup
	RowsInvalid    uint64 // rows dropped for an unparseable key
	BytesRead      uint64 // response bytes downloaded

	startTime time.Time
}

// NewStats creates a new Stats instance
func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

// AddOK records a successful source.
func (s *Stats) AddOK() { atomic.AddUint64(&s.SourcesOK, 1) }

// AddFailed records a failed source.
func (s *Stats) AddFailed() { atomic.AddUint64(&s.SourcesFailed, 1) }

// AddSkipped records a skipped source.
func (s *Stats) AddSkipped() { atomic.AddUint64(&s.SourcesSkipped, 1) }

// AddRows atomically increments the fetched and invalid row counters
func (s *Stats) AddRows(fetched, invalid int) {
	atomic.AddUint64(&s.RowsFetched, uint64(fetched))
	atomic.AddUint64(&s.RowsInvalid, uint64(invalid))
}

// AddBytes atomically increments the total bytes read counter
func (s *Stats) AddBytes(count int64) {
	if count > 0 {
		atomic.AddUint64(&s.BytesRead, uint64(count))
	}
}

// Failed atomically reads the failed source count
func (s *Stats) Failed() uint64 {
	return atomic.LoadUint64(&s.SourcesFailed)
}

// Elapsed returns the time since the run started.
func (s *Stats) Elapsed() time.Duration {
	return time.Since(s.startTime)
}

// PrintSummary logs the end-of-run banner.
func (s *Stats) PrintSummary(log *zap.SugaredLogger) {
	log.Info("=========================================================")
	log.Info("Run Summary")
	log.Info("=========================================================")
	log.Infof("Sources OK:      %d", atomic.LoadUint64(&s.SourcesOK))
	log.Infof("Sources skipped: %d", atomic.LoadUint64(&s.SourcesSkipped))
	log.Infof("Sources failed:  %d", atomic.LoadUint64(&s.SourcesFailed))
	log.Infof("Rows fetched:    %d (%d invalid)", atomic.LoadUint64(&s.RowsFetched), atomic.LoadUint64(&s.RowsInvalid))
	log.Infof("Downloaded:      %.2f KiB", float64(atomic.LoadUint64(&s.BytesRead))/1024)
	log.Infof("Elapsed:         %v", s.Elapsed().Round(time.Millisecond))
	log.Info("=========================================================")
}
