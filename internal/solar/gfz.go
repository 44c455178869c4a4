package solar

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/KI7MT/swx-archive/internal/archive"
)

// 3-hour bucket start hours (UTC)
var bucketHours = [8]int{0, 3, 6, 9, 12, 15, 18, 21}

// gfzURL adds the date range and index selection to the GFZ JSON API.
// The range covers whole days: start 00:00:00Z to end 23:59:59Z.
func gfzURL(base string, req Request) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("gfz url: %w", err)
	}
	index := req.GFZIndex
	if index == "" {
		index = "Kp"
	}
	q := u.Query()
	q.Set("start", req.Start.Format("2006-01-02")+"T00:00:00Z")
	q.Set("end", req.End.Format("2006-01-02")+"T23:59:59Z")
	q.Set("index", index)
	if req.GFZStatus != "" {
		q.Set("status", req.GFZStatus)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseGFZJSON decodes the GFZ API's column arrays:
//
//	{"meta": {...}, "datetime": [...], "Kp": [...], "status": [...]}
//
// into rows of datetime, <index>, status.
func parseGFZJSON(body []byte, req Request) (*archive.Table, error) {
	index := req.GFZIndex
	if index == "" {
		index = "Kp"
	}

	var doc map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var times []string
	if err := decodeField(doc, "datetime", &times); err != nil {
		return nil, err
	}
	var values []json.Number
	if err := decodeField(doc, index, &values); err != nil {
		return nil, err
	}
	var status []string
	if _, ok := doc["status"]; ok {
		if err := decodeField(doc, "status", &status); err != nil {
			return nil, err
		}
	}

	if len(values) != len(times) || (status != nil && len(status) != len(times)) {
		return nil, fmt.Errorf("%w: column lengths differ (datetime=%d %s=%d status=%d)",
			ErrMalformed, len(times), index, len(values), len(status))
	}

	t := archive.NewTable("datetime", index, "status")
	for i := range times {
		st := ""
		if status != nil {
			st = status[i]
		}
		t.Append(times[i], values[i].String(), st)
	}
	return t, nil
}

func decodeField(doc map[string]json.RawMessage, name string, dst interface{}) error {
	raw, ok := doc[name]
	if !ok {
		return fmt.Errorf("%w: field %q missing", ErrMalformed, name)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: field %q: %v", ErrMalformed, name, err)
	}
	return nil
}

// GFZDay holds one parsed day from the GFZ Kp file.
type GFZDay struct {
	Date   time.Time
	Kp     [8]string // 3-hourly Kp (0-9 scale)
	Ap     [8]string // 3-hourly ap
	DayAp  string
	SSN    string
	SFIObs string // observed F10.7
	SFIAdj string // adjusted F10.7
}

// parseGFZLine parses one data line from the GFZ Kp file.
// Format (whitespace-delimited):
//
//	Col  0: Year
//	Col  1: Month
//	Col  2: Day
//	Col  3: Days (day of year)
//	Col  4: Days_m (modified Julian)
//	Col  5: Bsr (Bartels rotation)
//	Col  6: dB (day within rotation)
//	Col  7-14: Kp1..Kp8 (3-hourly, decimal 0.000-9.000)
//	Col 15-22: ap1..ap8 (3-hourly)
//	Col 23: Ap (daily)
//	Col 24: SN (sunspot number)
//	Col 25: F10.7obs
//	Col 26: F10.7adj
//
// Missing values are -1.000 or -1 and become empty cells.
func parseGFZLine(line string) (GFZDay, bool) {
	fields := strings.Fields(line)
	if len(fields) < 27 {
		return GFZDay{}, false
	}

	year, err := strconv.Atoi(fields[0])
	if err != nil || year < 1900 || year > 2100 {
		return GFZDay{}, false
	}
	month, _ := strconv.Atoi(fields[1])
	day, _ := strconv.Atoi(fields[2])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return GFZDay{}, false
	}

	d := GFZDay{
		Date: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC),
	}
	for i := 0; i < 8; i++ {
		d.Kp[i] = gfzValue(fields[7+i])
		d.Ap[i] = gfzValue(fields[15+i])
	}
	d.DayAp = gfzValue(fields[23])
	d.SSN = gfzValue(fields[24])
	d.SFIObs = gfzValue(fields[25])
	d.SFIAdj = gfzValue(fields[26])
	return d, true
}

func gfzValue(s string) string {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return ""
	}
	return s
}

// parseGFZHistory reads the since-1932 ASCII file and emits one row per
// 3-hour bucket for days within the request range. Daily values (Ap, SN,
// F10.7) repeat across a day's eight rows.
func parseGFZHistory(body []byte, req Request) (*archive.Table, error) {
	t := archive.NewTable("datetime", "Kp", "ap", "Ap", "SN", "F107obs", "F107adj")
	start := req.Start.Truncate(24 * time.Hour)
	end := req.End.Truncate(24 * time.Hour)

	scanner := bufio.NewScanner(bytes.NewReader(body))
	lines := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines++

		d, ok := parseGFZLine(line)
		if !ok {
			continue
		}
		if d.Date.Before(start) || d.Date.After(end) {
			continue
		}
		for i, hour := range bucketHours {
			ts := d.Date.Add(time.Duration(hour) * time.Hour)
			t.Append(archive.FormatTime(ts), d.Kp[i], d.Ap[i], d.DayAp, d.SSN, d.SFIObs, d.SFIAdj)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if lines == 0 {
		return nil, fmt.Errorf("%w: no data lines", ErrMalformed)
	}
	return t, nil
}
