// Package sink mirrors merged source batches into ClickHouse.
//
// The on-disk archive stays the system of record. The mirror keeps one wide
// observations table keyed by (source, key_time, key); a ReplacingMergeTree
// collapses rows re-sent by overlapping fetches.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"
	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/KI7MT/swx-archive/internal/archive"
	"github.com/KI7MT/swx-archive/internal/common"
)

// Mirror receives every fetched batch after it has been merged to disk.
type Mirror interface {
	// Write inserts the rows of t whose temporal key parses and returns
	// how many were sent.
	Write(ctx context.Context, source string, t *archive.Table, key archive.Key) (int, error)
	// Count returns the deduplicated row count held for a source.
	Count(ctx context.Context, source string) (uint64, error)
	Close() error
}

// ObservationBatch holds column data for native insert
type ObservationBatch struct {
	Source     *proto.ColStr
	KeyTime    *proto.ColDateTime64
	Key        *proto.ColStr
	Payload    *proto.ColStr
	IngestedAt *proto.ColDateTime
}

// NewObservationBatch allocates empty columns.
func NewObservationBatch() *ObservationBatch {
	return &ObservationBatch{
		Source:     new(proto.ColStr),
		KeyTime:    new(proto.ColDateTime64).WithPrecision(proto.PrecisionMilli),
		Key:        new(proto.ColStr),
		Payload:    new(proto.ColStr),
		IngestedAt: new(proto.ColDateTime),
	}
}

func (b *ObservationBatch) Reset() {
	b.Source.Reset()
	b.KeyTime.Reset()
	b.Key.Reset()
	b.Payload.Reset()
	b.IngestedAt.Reset()
}

func (b *ObservationBatch) Len() int {
	return b.Source.Rows()
}

func (b *ObservationBatch) Input() proto.Input {
	return proto.Input{
		{Name: "source", Data: b.Source},
		{Name: "key_time", Data: b.KeyTime},
		{Name: "key", Data: b.Key},
		{Name: "payload", Data: b.Payload},
		{Name: "ingested_at", Data: b.IngestedAt},
	}
}

func (b *ObservationBatch) AddRecord(source string, keyTime time.Time, key, payload string, ingestedAt time.Time) {
	b.Source.Append(source)
	b.KeyTime.Append(keyTime)
	b.Key.Append(key)
	b.Payload.Append(payload)
	b.IngestedAt.Append(ingestedAt)
}

// BuildBatch converts a table into insert columns. The key column holds the
// normalized temporal key followed by the other key columns, joined with
// "|"; the payload is the full row as a JSON object. Rows whose temporal key
// does not parse are skipped and counted.
func BuildBatch(source string, t *archive.Table, key archive.Key, now time.Time) (*ObservationBatch, int, error) {
	batch := NewObservationBatch()
	if t.Len() == 0 {
		return batch, 0, nil
	}
	if len(key.Columns) == 0 {
		return nil, 0, fmt.Errorf("%w: no key columns", archive.ErrMissingKey)
	}
	idx := make([]int, len(key.Columns))
	for i, c := range key.Columns {
		idx[i] = t.Index(c)
		if idx[i] < 0 {
			return nil, 0, fmt.Errorf("%w: %s", archive.ErrMissingKey, c)
		}
	}

	now = now.UTC().Truncate(time.Second)
	skipped := 0
	parts := make([]string, len(idx))
	for _, row := range t.Rows {
		ts, ok := archive.ParseTime(cell(row, idx[0]), key.Policy)
		if !ok {
			skipped++
			continue
		}
		parts[0] = archive.FormatTime(ts)
		for i := 1; i < len(idx); i++ {
			parts[i] = strings.TrimSpace(cell(row, idx[i]))
		}

		obj := make(map[string]string, len(t.Columns))
		for i, c := range t.Columns {
			obj[c] = cell(row, i)
		}
		payload, err := json.Marshal(obj)
		if err != nil {
			return nil, 0, fmt.Errorf("encode payload: %w", err)
		}
		batch.AddRecord(source, ts, strings.Join(parts, "|"), string(payload), now)
	}
	return batch, skipped, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// CreateDatabaseSQL and CreateTableSQL bootstrap the mirror schema.
func CreateDatabaseSQL(database string) string {
	return fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database)
}

func CreateTableSQL(tableFQN string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    source      LowCardinality(String),
    key_time    DateTime64(3),
    key         String,
    payload     String,
    ingested_at DateTime
) ENGINE = ReplacingMergeTree(ingested_at)
PARTITION BY toYear(key_time)
ORDER BY (source, key_time, key)`, tableFQN)
}

// ClickHouse is the ClickHouse mirror. Inserts go over the native ch-go
// protocol; schema bootstrap and verification queries use clickhouse-go.
type ClickHouse struct {
	native   *ch.Client
	admin    driver.Conn
	tableFQN string
}

// Open connects both clients and creates the database and table if missing.
func Open(ctx context.Context, cfg common.ClickHouseConfig) (*ClickHouse, error) {
	admin, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Host},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("ClickHouse connection failed: %w", err)
	}
	if err := admin.Ping(ctx); err != nil {
		admin.Close()
		return nil, fmt.Errorf("ClickHouse ping failed: %w", err)
	}

	tableFQN := fmt.Sprintf("%s.%s", cfg.Database, cfg.Table)
	for _, ddl := range []string{CreateDatabaseSQL(cfg.Database), CreateTableSQL(tableFQN)} {
		if err := admin.Exec(ctx, ddl); err != nil {
			admin.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	native, err := ch.Dial(ctx, ch.Options{
		Address:     cfg.Host,
		Database:    cfg.Database,
		User:        cfg.User,
		Password:    cfg.Password,
		Compression: ch.CompressionLZ4,
	})
	if err != nil {
		admin.Close()
		return nil, fmt.Errorf("ClickHouse native connection failed: %w", err)
	}

	return &ClickHouse{native: native, admin: admin, tableFQN: tableFQN}, nil
}

// Table returns the fully qualified mirror table name.
func (c *ClickHouse) Table() string {
	return c.tableFQN
}

func (c *ClickHouse) Write(ctx context.Context, source string, t *archive.Table, key archive.Key) (int, error) {
	batch, _, err := BuildBatch(source, t, key, time.Now())
	if err != nil {
		return 0, err
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("INSERT INTO %s (source, key_time, key, payload, ingested_at) VALUES", c.tableFQN)
	if err := c.native.Do(ctx, ch.Query{
		Body:  query,
		Input: batch.Input(),
	}); err != nil {
		return 0, fmt.Errorf("insert %s: %w", source, err)
	}
	return batch.Len(), nil
}

func (c *ClickHouse) Count(ctx context.Context, source string) (uint64, error) {
	var n uint64
	query := fmt.Sprintf("SELECT count() FROM %s FINAL WHERE source = ?", c.tableFQN)
	if err := c.admin.QueryRow(ctx, query, source).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", source, err)
	}
	return n, nil
}

func (c *ClickHouse) Close() error {
	nativeErr := c.native.Close()
	if err := c.admin.Close(); err != nil {
		return err
	}
	return nativeErr
}
