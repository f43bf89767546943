package journal

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
)

var (
	orderHeader = []string{"id", "cycle_id", "time", "order_id", "parent_id", "symbol", "action", "order_type", "quantity", "limit_price", "stop_price", "reason"}
	fillHeader  = []string{"id", "time", "order_id", "parent_id", "symbol", "kind", "quantity", "price"}
)

// CSVJournal appends to two CSV files. Existing files are extended, not
// truncated; the header is written only to an empty file.
type CSVJournal struct {
	mu     sync.Mutex
	orders *csv.Writer
	fills  *csv.Writer
	of, ff *os.File
}

func NewCSV(ordersPath, fillsPath string) (*CSVJournal, error) {
	of, ow, err := openCSV(ordersPath, orderHeader)
	if err != nil {
		return nil, err
	}
	ff, fw, err := openCSV(fillsPath, fillHeader)
	if err != nil {
		_ = of.Close()
		return nil, err
	}
	return &CSVJournal{orders: ow, fills: fw, of: of, ff: ff}, nil
}

func openCSV(path string, header []string) (*os.File, *csv.Writer, error) {
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	info, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		return nil, nil, err
	}

	w := csv.NewWriter(fh)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			_ = fh.Close()
			return nil, nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = fh.Close()
			return nil, nil, err
		}
	}
	return fh, w, nil
}

func (j *CSVJournal) RecordOrder(_ context.Context, o OrderRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.orders.Write([]string{
		o.ID,
		o.CycleID,
		o.Time.UTC().Format(time.RFC3339),
		i(o.OrderID),
		i(o.ParentID),
		o.Symbol,
		o.Action,
		o.OrderType,
		f(o.Quantity),
		f(o.LimitPrice),
		f(o.StopPrice),
		o.Reason,
	})
	if err != nil {
		return err
	}
	j.orders.Flush()
	return j.orders.Error()
}

func (j *CSVJournal) RecordFill(_ context.Context, r FillRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.fills.Write([]string{
		r.ID,
		r.Time.UTC().Format(time.RFC3339),
		i(r.OrderID),
		i(r.ParentID),
		r.Symbol,
		string(r.Kind),
		f(r.Quantity),
		f(r.Price),
	})
	if err != nil {
		return err
	}
	j.fills.Flush()
	return j.fills.Error()
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.orders.Flush()
	j.fills.Flush()
	return multierr.Combine(
		j.orders.Error(),
		j.fills.Error(),
		j.of.Close(),
		j.ff.Close(),
	)
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

func i(x int64) string {
	return strconv.FormatInt(x, 10)
}
