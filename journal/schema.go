package journal

const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	cycle_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	order_id INTEGER NOT NULL,
	parent_id INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	order_type TEXT NOT NULL,
	quantity REAL NOT NULL,
	limit_price REAL NOT NULL,
	stop_price REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fills (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	order_id INTEGER NOT NULL,
	parent_id INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	kind TEXT NOT NULL,
	quantity REAL NOT NULL,
	price REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_time ON orders(time);
CREATE INDEX IF NOT EXISTS idx_fills_time ON fills(time);
`
