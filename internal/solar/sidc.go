package solar

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/KI7MT/swx-archive/internal/archive"
)

// parseSIDC parses SIDC format: YYYY;MM;DD;decimal_year;SSN;std_dev;observations;flag
// Only days inside the request range are kept. A sunspot number of -1
// (no observation) becomes an empty cell.
func parseSIDC(body []byte, req Request) (*archive.Table, error) {
	t := archive.NewTable("date", "ssn", "ssn_std", "observations", "provisional")
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

		fields := strings.Split(line, ";")
		if len(fields) < 8 {
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		year, _ := strconv.Atoi(fields[0])
		month, _ := strconv.Atoi(fields[1])
		day, _ := strconv.Atoi(fields[2])
		if year < 1800 || year > 2100 || month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if date.Before(start) || date.After(end) {
			continue
		}

		ssn := fields[4]
		if v, err := strconv.ParseFloat(ssn, 64); err != nil || v < 0 {
			ssn = ""
		}
		std := fields[5]
		if v, err := strconv.ParseFloat(std, 64); err != nil || v < 0 {
			std = ""
		}
		provisional := "false"
		if fields[7] == "0" {
			provisional = "true"
		}
		t.Append(date.Format("2006-01-02"), ssn, std, fields[6], provisional)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if lines == 0 {
		return nil, fmt.Errorf("%w: empty SIDC file", ErrMalformed)
	}
	return t, nil
}
