package archive

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrMissingKey is returned when a declared key column is absent.
	ErrMissingKey = errors.New("key column missing")
	// ErrNoTimeColumn is returned when no temporal key column can be detected.
	ErrNoTimeColumn = errors.New("no temporal key column")
)

// CollisionPolicy decides which row survives when two rows share a key.
type CollisionPolicy int

const (
	// KeepExisting keeps the first occurrence after concatenating
	// existing-then-incoming rows, so archived values win.
	KeepExisting CollisionPolicy = iota
	// PreferIncoming lets a freshly fetched row replace the archived one.
	PreferIncoming
)

// String implements fmt.Stringer.
func (p CollisionPolicy) String() string {
	if p == PreferIncoming {
		return "prefer-incoming"
	}
	return "keep-existing"
}

// ParseCollisionPolicy maps a config value to a policy. Empty means KeepExisting.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep-existing":
		return KeepExisting, nil
	case "prefer-incoming":
		return PreferIncoming, nil
	}
	return KeepExisting, fmt.Errorf("unknown collision policy %q", s)
}

// Key declares row identity for one source. Columns[0] is the temporal key;
// any further columns are compared as trimmed text.
type Key struct {
	Columns   []string
	Policy    TimePolicy
	Collision CollisionPolicy
}

// MergeResult describes one merge.
type MergeResult struct {
	Fetched int // rows in the incoming batch, before dedup
	Invalid int // incoming rows dropped for an unparseable temporal key
	Total   int // rows in the archive after the merge

	// Kept holds the archive rows whose cells came from the incoming batch:
	// new keys, plus replaced rows under PreferIncoming. It shares the
	// merged table's columns and order.
	Kept *Table
}

type keyedRow struct {
	at       time.Time
	id       string
	cell     []string
	incoming bool
}

// MergeTables merges incoming into existing under key and returns the new
// archive table. existing may be nil. Neither input is modified.
func MergeTables(existing, incoming *Table, key Key) (*Table, MergeResult, error) {
	if incoming == nil {
		incoming = NewTable()
	}
	res := MergeResult{Fetched: incoming.Len()}
	if len(key.Columns) == 0 {
		return nil, res, fmt.Errorf("%w: no key columns declared", ErrMissingKey)
	}

	columns := incoming.Columns
	if existing != nil && len(existing.Columns) > 0 {
		columns = unionColumns(existing.Columns, incoming.Columns)
	}
	keyIdx := make([]int, len(key.Columns))
	for i, c := range key.Columns {
		keyIdx[i] = indexOf(columns, c)
		if keyIdx[i] < 0 {
			if existing.Len() == 0 && incoming.Len() == 0 {
				// Nothing to key; keep the declared schema.
				res.Kept = NewTable(columns...)
				return NewTable(columns...), res, nil
			}
			return nil, res, fmt.Errorf("%w: %q", ErrMissingKey, c)
		}
	}
	if existing.Len() > 0 {
		for _, c := range key.Columns {
			if !existing.HasColumn(c) {
				return nil, res, fmt.Errorf("%w: %q in archive", ErrMissingKey, c)
			}
		}
	}
	if incoming.Len() > 0 {
		for _, c := range key.Columns {
			if !incoming.HasColumn(c) {
				return nil, res, fmt.Errorf("%w: %q in batch", ErrMissingKey, c)
			}
		}
	}

	rows := make([]keyedRow, 0, existing.Len()+incoming.Len())
	if existing.Len() > 0 {
		rows, _ = appendKeyed(rows, existing.conform(columns), keyIdx, key.Policy, false)
	}
	var invalid int
	rows, invalid = appendKeyed(rows, incoming.conform(columns), keyIdx, key.Policy, true)
	res.Invalid = invalid

	rows = dedup(rows, key.Collision)

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].at.Before(rows[j].at)
	})

	out := NewTable(columns...)
	out.Rows = make([][]string, len(rows))
	res.Kept = NewTable(columns...)
	for i, r := range rows {
		out.Rows[i] = r.cell
		if r.incoming {
			res.Kept.Rows = append(res.Kept.Rows, r.cell)
		}
	}
	res.Total = out.Len()
	return out, res, nil
}

// appendKeyed normalizes key cells in place and drops rows whose temporal
// key does not parse. It returns the number of dropped rows.
func appendKeyed(dst []keyedRow, rows [][]string, keyIdx []int, policy TimePolicy, incoming bool) ([]keyedRow, int) {
	dropped := 0
	var sb strings.Builder
	for _, cell := range rows {
		at, ok := ParseTime(cell[keyIdx[0]], policy)
		if !ok {
			dropped++
			continue
		}
		cell[keyIdx[0]] = FormatTime(at)

		sb.Reset()
		sb.WriteString(cell[keyIdx[0]])
		for _, j := range keyIdx[1:] {
			cell[j] = strings.TrimSpace(cell[j])
			sb.WriteByte(0x1f)
			sb.WriteString(cell[j])
		}
		dst = append(dst, keyedRow{at: at, id: sb.String(), cell: cell, incoming: incoming})
	}
	return dst, dropped
}

// dedup removes rows with a repeated id. With KeepExisting the first
// occurrence survives in place; with PreferIncoming the last occurrence's
// cells replace it, still at the first occurrence's position.
func dedup(rows []keyedRow, policy CollisionPolicy) []keyedRow {
	pos := make(map[string]int, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		if i, ok := pos[r.id]; ok {
			if policy == PreferIncoming {
				out[i].cell = r.cell
				out[i].incoming = r.incoming
			}
			continue
		}
		pos[r.id] = len(out)
		out = append(out, r)
	}
	return out
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}
