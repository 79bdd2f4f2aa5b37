package sqlite_test

import (
	"testing"

	"tftrader/internal/repository/sqlite"
	"tftrader/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *sqlite.OrderRepository {
	t.Helper()

	conn, err := sqlx.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	repo := sqlite.NewOrderRepository(conn)
	require.NoError(t, repo.EnsureSchema())

	return repo
}

func order(status models.OrderStatus, filled string, updateID int64) *models.Order {
	return &models.Order{
		OrderID:        42,
		ClientID:       "c-1",
		Symbol:         "BTCUSDT",
		Side:           models.SideBuy,
		Type:           models.TypeLimit,
		Quantity:       decimal.NewFromInt(1),
		Price:          decimal.NewFromInt(100),
		StopPrice:      decimal.Zero,
		FilledQuantity: decimal.RequireFromString(filled),
		Status:         status,
		UpdateID:       updateID,
	}
}

func TestOrderJournal(t *testing.T) {
	repo := newRepo(t)

	require.NoError(t, repo.SaveOrder(order(models.StatusNew, "0", 1)))
	require.NoError(t, repo.SaveOrder(order(models.StatusPartiallyFilled, "0.5", 2)))
	require.NoError(t, repo.SaveOrder(order(models.StatusFilled, "1", 3)))

	history, err := repo.History("c-1")
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, models.StatusNew, history[0].Status)
	assert.Equal(t, models.StatusFilled, history[2].Status)
	assert.Equal(t, "1", history[2].FilledQuantity.String())

	last, err := repo.GetLast("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, last.Status)
	assert.Equal(t, int64(3), last.UpdateID)
}

func TestHistoryEmptyForUnknownOrder(t *testing.T) {
	repo := newRepo(t)

	history, err := repo.History("missing")
	require.NoError(t, err)
	assert.Empty(t, history)
}
