package solar

import (
	"bufio"
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/KI7MT/swx-archive/internal/archive"
)

// NMDB column names, in file order after the timestamp.
const (
	ColRCorrE   = "RCORR_E" // corrected for efficiency
	ColRUncorr  = "RUNCORR" // uncorrected
	ColRCorrP   = "RCORR_P" // corrected for pressure
	nmdbHeader  = "start_date_time"
	nmdbTimeFmt = "2006-01-02 15:04:05"
)

// StationColumns are the per-station correction series.
var StationColumns = []string{ColRCorrE, ColRUncorr, ColRCorrP}

// nmdbURL builds the NEST draw_graph query for one station's ASCII table.
// The end date is inclusive.
func nmdbURL(base string, req Request) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("nmdb url: %w", err)
	}
	end := req.End.Truncate(24*time.Hour).Add(23*time.Hour + 59*time.Minute)

	q := u.Query()
	q.Set("formchk", "1")
	q.Set("stations[]", req.Station)
	q.Set("output", "ascii")
	q.Set("tabchoice", "revori")
	q["odtype[]"] = []string{"uncorrected", "corr_for_pressure", "corr_for_efficiency"}
	q.Set("date_choice", "bydate")
	setDateParams(q, "start", req.Start)
	setDateParams(q, "end", end)
	q.Set("yunits", "0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func setDateParams(q url.Values, prefix string, t time.Time) {
	q.Set(prefix+"_year", strconv.Itoa(t.Year()))
	q.Set(prefix+"_month", strconv.Itoa(int(t.Month())))
	q.Set(prefix+"_day", strconv.Itoa(t.Day()))
	q.Set(prefix+"_hour", strconv.Itoa(t.Hour()))
	q.Set(prefix+"_min", strconv.Itoa(t.Minute()))
}

// sniffNoData reports whether a body is an HTML page or an explicit
// "no data" answer rather than ASCII data.
func sniffNoData(body []byte) bool {
	return bytes.Contains(body, []byte("DOCTYPE html")) ||
		bytes.Contains(bytes.ToLower(body), []byte("no data available"))
}

// parseNMDB reads the NEST ASCII table. Data starts after the line holding
// the start_date_time header; each data line is
//
//	2025-06-01 00:00:00;  97.123;  95.456;  98.789
//
// Rows with a bad timestamp or a non-numeric count are dropped.
func parseNMDB(body []byte, _ Request) (*archive.Table, error) {
	if sniffNoData(body) {
		return nil, ErrNoData
	}

	t := archive.NewTable(append([]string{"datetime"}, StationColumns...)...)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	inData := false
	for scanner.Scan() {
		line := scanner.Text()
		if !inData {
			inData = strings.Contains(line, nmdbHeader)
			continue
		}
		if !strings.Contains(line, ";") {
			continue
		}

		fields := strings.Split(strings.TrimSpace(line), ";")
		if len(fields) < 4 {
			continue
		}
		row := make([]string, 4)
		for i := range row {
			row[i] = strings.TrimSpace(fields[i])
		}
		if _, err := time.Parse(nmdbTimeFmt, row[0]); err != nil {
			continue
		}
		if !allNumeric(row[1:]) {
			continue
		}
		t.Append(row...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !inData {
		return nil, fmt.Errorf("%w: header %q not found", ErrMalformed, nmdbHeader)
	}
	return t, nil
}

func allNumeric(values []string) bool {
	for _, v := range values {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return false
		}
	}
	return true
}
