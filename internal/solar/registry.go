package solar

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KI7MT/swx-archive/internal/archive"
)

// Archive subdirectories under the data dir.
const (
	DirStation = "data_station"
	DirGOES    = "data_goes"
	DirKp      = "data_kp"
	DirACE     = "data_ace"
	DirSIDC    = "data_sidc"
)

// StationSourceID is the per-station NMDB source.
const StationSourceID = "station"

// Registry returns the declarative source table in run order. NMDB
// stations run first so the comparison export sees fresh archives.
func Registry() []Source {
	return []Source{
		{
			ID:         StationSourceID,
			Desc:       "NMDB neutron monitor counts, one archive per station",
			URL:        "http://nest.nmdb.eu/draw_graph.php",
			Dir:        DirStation,
			Keys:       []string{"datetime"},
			Policy:     archive.TimeWall,
			PerStation: true,
			buildURL:   nmdbURL,
			parse:      parseNMDB,
		},
		{
			ID:       "goes-protons",
			Desc:     "GOES integral proton flux (rolling window)",
			URL:      "https://services.swpc.noaa.gov/json/goes/primary/integral-protons-{days}-day.json",
			Dir:      DirGOES,
			File:     "goes_protons",
			Keys:     []string{"time_tag", "satellite", "energy"},
			Policy:   archive.TimeUTC,
			buildURL: goesURL,
			parse:    projectColumns(parseNOAAJSON, "time_tag", "satellite", "energy", "flux"),
		},
		{
			ID:       "goes-xray",
			Desc:     "GOES X-ray flux (rolling window)",
			URL:      "https://services.swpc.noaa.gov/json/goes/primary/xrays-{days}-day.json",
			Dir:      DirGOES,
			File:     "goes_xray",
			Keys:     []string{"time_tag", "satellite", "energy"},
			Policy:   archive.TimeUTC,
			buildURL: goesURL,
			parse:    parseNOAAJSON,
		},
		aceSource("ace-epam", "ACE EPAM energetic particles (5 min)", "epam", "ace_epam_5m"),
		aceSource("ace-mag", "ACE magnetometer (1 hour)", "mag", "ace_mag_1h"),
		aceSource("ace-sis", "ACE SIS solar isotopes (5 min)", "sis", "ace_sis_5m"),
		aceSource("ace-swepam", "ACE SWEPAM solar wind plasma (1 hour)", "swepam", "ace_swepam_1h"),
		{
			ID:     "kp-1m",
			Desc:   "NOAA planetary K index, 1 minute",
			URL:    "https://services.swpc.noaa.gov/json/planetary_k_index_1m.json",
			Dir:    DirKp,
			File:   "kp_index_1min",
			Keys:   []string{"time_tag"},
			Policy: archive.TimeUTC,
			parse:  parseNOAAJSON,
		},
		{
			ID:     "kp-3h",
			Desc:   "NOAA planetary K index, 3 hour product",
			URL:    "https://services.swpc.noaa.gov/products/noaa-planetary-k-index.json",
			Dir:    DirKp,
			File:   "kp_index_3h",
			Keys:   []string{"time_tag"},
			Policy: archive.TimeUTC,
			parse:  parseNOAAJSON,
		},
		{
			ID:       "kp-gfz",
			Desc:     "GFZ Potsdam Kp index API, date range",
			URL:      "https://kp.gfz.de/app/json/",
			Dir:      DirKp,
			File:     "kp_gfz",
			Keys:     []string{"datetime"},
			Policy:   archive.TimeUTC,
			buildURL: gfzURL,
			parse:    parseGFZJSON,
		},
		{
			ID:     "kp-gfz-history",
			Desc:   "GFZ Kp/ap/Ap/SN/F10.7 since 1932, date range",
			URL:    "https://kp.gfz-potsdam.de/app/files/Kp_ap_Ap_SN_F107_since_1932.txt",
			Dir:    DirKp,
			File:   "kp_gfz_history",
			Keys:   []string{"datetime"},
			Policy: archive.TimeUTC,
			parse:  parseGFZHistory,
		},
		{
			ID:     "sidc-ssn-daily",
			Desc:   "SIDC daily total sunspot number, date range",
			URL:    "https://www.sidc.be/SILSO/DATA/SN_d_tot_V2.0.csv",
			Dir:    DirSIDC,
			File:   "sidc_ssn_daily",
			Keys:   []string{"date"},
			Policy: archive.TimeUTC,
			parse:  parseSIDC,
		},
	}
}

func aceSource(id, desc, instrument, file string) Source {
	return Source{
		ID:      id,
		Desc:    desc,
		URL:     "https://services.swpc.noaa.gov/json/ace/" + instrument + "/" + file + ".json",
		Dir:     DirACE,
		File:    file,
		AutoKey: true,
		Policy:  archive.TimeUTC,
		parse:   parseNOAAJSON,
	}
}

// goesURL fills the rolling window length into the endpoint.
func goesURL(base string, req Request) (string, error) {
	switch req.GOESDays {
	case 1, 3, 7:
	case 0:
		req.GOESDays = 3
	default:
		return "", fmt.Errorf("goes window must be 1, 3 or 7 days, got %d", req.GOESDays)
	}
	return strings.ReplaceAll(base, "{days}", strconv.Itoa(req.GOESDays)), nil
}

// Lookup finds a source by id, case-insensitively.
func Lookup(id string) (Source, bool) {
	for _, s := range Registry() {
		if strings.EqualFold(s.ID, id) {
			return s, true
		}
	}
	return Source{}, false
}

// IDs lists every source id in run order.
func IDs() []string {
	reg := Registry()
	ids := make([]string, len(reg))
	for i, s := range reg {
		ids[i] = s.ID
	}
	return ids
}

// WithURL returns a copy of s pointed at another base URL. Used for
// endpoint overrides and mirrors.
func (s Source) WithURL(base string) Source {
	s.URL = base
	return s
}
