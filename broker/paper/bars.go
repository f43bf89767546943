package paper

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rustyeddy/tradeagent/broker"
)

// LoadBarsCSV reads date,open,high,low,close[,volume] rows. A header row
// starting with "date" is skipped.
func LoadBarsCSV(path string) ([]broker.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadBars(f)
}

func ReadBars(r io.Reader) ([]broker.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var bars []broker.Bar
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return bars, nil
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "date") {
			continue
		}
		b, err := parseBar(row)
		if err != nil {
			return nil, fmt.Errorf("bars line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
}

func parseBar(row []string) (broker.Bar, error) {
	if len(row) < 5 {
		return broker.Bar{}, fmt.Errorf("need at least 5 cols date,open,high,low,close: %v", row)
	}
	var v [5]float64
	for i := 1; i < len(row) && i <= 5; i++ {
		x, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			return broker.Bar{}, fmt.Errorf("bad number %q: %w", row[i], err)
		}
		v[i-1] = x
	}
	return broker.Bar{
		Date:   strings.TrimSpace(row[0]),
		Open:   v[0],
		High:   v[1],
		Low:    v[2],
		Close:  v[3],
		Volume: v[4],
	}, nil
}
