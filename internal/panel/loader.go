package panel

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	closeSuffix  = "_Close"
	volumeSuffix = "_Volume"
)

// Loader reads a wide-format CSV into a cleaned Panel.
type Loader struct {
	log zerolog.Logger
}

// NewLoader creates a new panel loader.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{
		log: log.With().Str("component", "panel_loader").Logger(),
	}
}

// Load reads the CSV at path and returns a cleaned, date-sorted panel.
//
// The file must have a date column (first column, header "Date" or empty)
// and per-asset columns named <ASSET>_Close and <ASSET>_Volume. Adjusted
// close variants (any column containing "Adj") are excluded. Rows with any
// missing or unparseable value across tracked columns are dropped; this is
// the sole missing-data policy, no imputation is performed.
func (l *Loader) Load(path string) (*Panel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open panel file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse panel CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("panel file has no data rows")
	}

	header := records[0]
	if len(header) < 3 {
		return nil, fmt.Errorf("panel file needs a date column plus close/volume columns, got %d columns", len(header))
	}

	closeCols := make(map[string]int)
	volumeCols := make(map[string]int)
	var assetOrder []string

	for i, name := range header {
		if i == 0 {
			continue // Date column
		}
		// Exclude adjusted-close variants entirely
		if strings.Contains(name, "Adj") {
			continue
		}
		switch {
		case strings.HasSuffix(name, closeSuffix):
			asset := strings.TrimSuffix(name, closeSuffix)
			closeCols[asset] = i
			assetOrder = append(assetOrder, asset)
		case strings.HasSuffix(name, volumeSuffix):
			asset := strings.TrimSuffix(name, volumeSuffix)
			volumeCols[asset] = i
		}
	}

	if len(closeCols) == 0 {
		return nil, fmt.Errorf("no %s columns found in panel file", closeSuffix)
	}
	if len(closeCols) != len(volumeCols) {
		return nil, fmt.Errorf("asset count mismatch: %d close columns, %d volume columns", len(closeCols), len(volumeCols))
	}
	for _, asset := range assetOrder {
		if _, ok := volumeCols[asset]; !ok {
			return nil, fmt.Errorf("asset %s has a close column but no volume column", asset)
		}
	}

	type row struct {
		date   string
		close  []float64
		volume []float64
	}

	var rows []row
	dropped := 0

	for _, record := range records[1:] {
		if len(record) != len(header) {
			dropped++
			continue
		}

		date, err := parseDate(record[0])
		if err != nil {
			dropped++
			continue
		}

		r := row{
			date:   date,
			close:  make([]float64, len(assetOrder)),
			volume: make([]float64, len(assetOrder)),
		}

		complete := true
		for j, asset := range assetOrder {
			c, cerr := parseValue(record[closeCols[asset]])
			v, verr := parseValue(record[volumeCols[asset]])
			if cerr != nil || verr != nil {
				complete = false
				break
			}
			r.close[j] = c
			r.volume[j] = v
		}

		if !complete {
			dropped++
			continue
		}
		rows = append(rows, r)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("empty panel after cleaning (%d rows dropped)", dropped)
	}

	// Sort ascending by date
	sort.Slice(rows, func(i, j int) bool { return rows[i].date < rows[j].date })

	p := &Panel{
		Dates:  make([]string, len(rows)),
		Assets: assetOrder,
		Close:  make(map[string][]float64, len(assetOrder)),
		Volume: make(map[string][]float64, len(assetOrder)),
	}
	for _, asset := range assetOrder {
		p.Close[asset] = make([]float64, len(rows))
		p.Volume[asset] = make([]float64, len(rows))
	}
	for i, r := range rows {
		p.Dates[i] = r.date
		for j, asset := range assetOrder {
			p.Close[asset][i] = r.close[j]
			p.Volume[asset][i] = r.volume[j]
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	l.log.Info().
		Int("rows", len(rows)).
		Int("dropped", dropped).
		Int("assets", len(assetOrder)).
		Str("first_date", p.Dates[0]).
		Str("last_date", p.Dates[len(p.Dates)-1]).
		Msg("Loaded panel")

	return p, nil
}

// parseDate accepts YYYY-MM-DD or YYYY/MM/DD and normalizes to YYYY-MM-DD.
func parseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unparseable date %q", s)
}

// parseValue parses a numeric cell; empty cells and non-numeric markers are
// treated as missing.
func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return 0, fmt.Errorf("missing value")
	}
	return strconv.ParseFloat(s, 64)
}
