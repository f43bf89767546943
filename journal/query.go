package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetOrder returns the record for a broker order id.
func (j *SQLite) GetOrder(ctx context.Context, orderID int64) (OrderRecord, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, cycle_id, time, order_id, parent_id, symbol, action, order_type, quantity, limit_price, stop_price, reason
		FROM orders
		WHERE order_id = ?
		ORDER BY time DESC LIMIT 1`, orderID)

	rec, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OrderRecord{}, fmt.Errorf("order %d not found", orderID)
		}
		return OrderRecord{}, err
	}
	return rec, nil
}

// ListOrders returns orders placed within [start, end), oldest first.
func (j *SQLite) ListOrders(ctx context.Context, start, end time.Time) ([]OrderRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, cycle_id, time, order_id, parent_id, symbol, action, order_type, quantity, limit_price, stop_price, reason
		FROM orders
		WHERE time >= ? AND time < ?
		ORDER BY time ASC, order_id ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListFills returns fills within [start, end), oldest first.
func (j *SQLite) ListFills(ctx context.Context, start, end time.Time) ([]FillRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, time, order_id, parent_id, symbol, kind, quantity, price
		FROM fills
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FillRecord
	for rows.Next() {
		var (
			rec  FillRecord
			kind string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Time,
			&rec.OrderID,
			&rec.ParentID,
			&rec.Symbol,
			&kind,
			&rec.Quantity,
			&rec.Price,
		); err != nil {
			return nil, err
		}
		rec.Kind = FillKind(kind)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (OrderRecord, error) {
	var rec OrderRecord
	err := s.Scan(
		&rec.ID,
		&rec.CycleID,
		&rec.Time,
		&rec.OrderID,
		&rec.ParentID,
		&rec.Symbol,
		&rec.Action,
		&rec.OrderType,
		&rec.Quantity,
		&rec.LimitPrice,
		&rec.StopPrice,
		&rec.Reason,
	)
	return rec, err
}
