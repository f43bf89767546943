package journal

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordOrder(ctx context.Context, o OrderRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO orders
		(id, cycle_id, time, order_id, parent_id, symbol, action, order_type, quantity, limit_price, stop_price, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.CycleID, o.Time.UTC(), o.OrderID, o.ParentID, o.Symbol,
		o.Action, o.OrderType, o.Quantity, o.LimitPrice, o.StopPrice, o.Reason,
	)
	return err
}

func (j *SQLite) RecordFill(ctx context.Context, f FillRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO fills
		(id, time, order_id, parent_id, symbol, kind, quantity, price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Time.UTC(), f.OrderID, f.ParentID, f.Symbol, string(f.Kind), f.Quantity, f.Price,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
