package sqlite

import (
	"tftrader/models"

	"github.com/jmoiron/sqlx"
)

// orders is an append-only journal: every observed status transition becomes
// one row, so the full lifecycle of an order can be replayed afterwards.
const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id INTEGER NOT NULL,
    client_id TEXT NOT NULL,
    group_id TEXT NOT NULL DEFAULT '',
    linked_client_id TEXT NOT NULL DEFAULT '',
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    type TEXT NOT NULL,
    quantity TEXT NOT NULL,
    price TEXT NOT NULL,
    stop_price TEXT NOT NULL,
    filled_quantity TEXT NOT NULL,
    status TEXT NOT NULL,
    update_id INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS orders_client_id ON orders (client_id);
CREATE INDEX IF NOT EXISTS orders_symbol ON orders (symbol);
`

type OrderRepository struct {
	conn *sqlx.DB
}

func NewOrderRepository(conn *sqlx.DB) *OrderRepository {
	return &OrderRepository{
		conn: conn,
	}
}

func (r *OrderRepository) EnsureSchema() error {
	_, err := r.conn.Exec(schema)
	return err
}

func (r *OrderRepository) SaveOrder(m *models.Order) error {
	if _, err := r.conn.NamedExec(
		"INSERT INTO orders (order_id,client_id,group_id,linked_client_id,symbol,side,type,quantity,price,stop_price,filled_quantity,status,update_id) "+
			"VALUES (:order_id,:client_id,:group_id,:linked_client_id,:symbol,:side,:type,:quantity,:price,:stop_price,:filled_quantity,:status,:update_id)",
		m,
	); err != nil {
		return err
	}

	return nil
}

// History returns every recorded transition of one order, oldest first.
func (r *OrderRepository) History(clientID string) ([]models.Order, error) {
	var orders []models.Order
	if err := r.conn.Select(&orders, "SELECT * FROM orders WHERE client_id = $1 ORDER BY id ASC", clientID); err != nil {
		return nil, err
	}

	return orders, nil
}

// GetLast returns the most recent transition recorded for a symbol.
func (r *OrderRepository) GetLast(symbol string) (*models.Order, error) {
	var order models.Order
	if err := r.conn.QueryRowx("SELECT * FROM orders WHERE symbol = $1 ORDER BY id DESC LIMIT 1", symbol).StructScan(&order); err != nil {
		return nil, err
	}

	return &order, nil
}
