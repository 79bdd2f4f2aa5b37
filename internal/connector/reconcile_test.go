package connector_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"tftrader/internal/connector"
	"tftrader/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executionReportFrame(eventTime int64, clientID, status, cumQty string) string {
	return fmt.Sprintf(`{"e":"executionReport","E":%d,"s":"BTCUSDT","c":%q,"S":"BUY","o":"LIMIT","q":"1","p":"100","x":"TRADE","X":%q,"i":42,"z":%q,"L":"100.5","T":%d}`,
		eventTime, clientID, status, cumQty, eventTime)
}

func startConnector(t *testing.T) (*connector.Binance, *fakeClient, *fakeStream, <-chan connector.Event, context.CancelFunc) {
	t.Helper()

	client := newFakeClient()
	client.on(http.MethodGet, "/api/v3/account", func() ([]byte, error) {
		return []byte(`{"updateTime":100,"balances":[{"asset":"BTC","free":"1","locked":"0"},{"asset":"USDT","free":"500","locked":"100"}]}`), nil
	})
	client.on(http.MethodGet, "/api/v3/openOrders", func() ([]byte, error) {
		return []byte(`[{"symbol":"BTCUSDT","orderId":42,"clientOrderId":"open-1","price":"100","origQty":"1","executedQty":"0","status":"NEW","type":"LIMIT","side":"BUY","updateTime":90}]`), nil
	})

	stream := newFakeStream()
	b := newBinance(client, stream)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.Start(ctx))

	ch := b.Subscribe("BTCUSDT", "1m")

	return b, client, stream, ch, func() {
		cancel()
		b.Stop()
	}
}

func TestResyncDeliversSnapshotAndSetsAsOf(t *testing.T) {
	_, _, stream, ch, stop := startConnector(t)
	defer stop()

	stream.triggerResync()

	ev := recvEvent(t, ch)
	require.Equal(t, connector.EventResync, ev.Type)
	assert.Equal(t, int64(100), ev.UpdateID)
	require.Len(t, ev.SnapshotOrders, 1)
	assert.Equal(t, "open-1", ev.SnapshotOrders[0].ClientID)
	assert.Len(t, ev.Balances, 2)
}

func TestLateSubscriberReceivesSnapshot(t *testing.T) {
	b, _, stream, ch, stop := startConnector(t)
	defer stop()

	stream.triggerResync()
	require.Equal(t, connector.EventResync, recvEvent(t, ch).Type)

	// a consumer arriving after the snapshot still gets one without waiting
	// for the next reconnect
	late := b.Subscribe("ETHUSDT", "1m")

	ev := recvEvent(t, late)
	assert.Equal(t, connector.EventResync, ev.Type)
	assert.Equal(t, "ETHUSDT", ev.Symbol)
}

func TestStaleDeltasAfterResyncAreDropped(t *testing.T) {
	_, _, stream, ch, stop := startConnector(t)
	defer stop()

	stream.triggerResync()
	require.Equal(t, connector.EventResync, recvEvent(t, ch).Type)

	// covered by the snapshot, must not reach the consumer
	stream.push(executionReportFrame(90, "open-1", "NEW", "0"))
	stream.push(executionReportFrame(100, "open-1", "PARTIALLY_FILLED", "0.5"))

	// past the as-of id, must come through
	stream.push(executionReportFrame(150, "open-1", "FILLED", "1"))

	ev := recvEvent(t, ch)
	require.Equal(t, connector.EventOrderUpdate, ev.Type)
	assert.Equal(t, int64(150), ev.UpdateID)
	assert.Equal(t, models.StatusFilled, ev.Order.Status)
	assert.Equal(t, "100.5", ev.FillPrice.String())
}

func TestStaleBalanceDeltaDropped(t *testing.T) {
	_, _, stream, ch, stop := startConnector(t)
	defer stop()

	stream.triggerResync()
	require.Equal(t, connector.EventResync, recvEvent(t, ch).Type)

	stream.push(`{"e":"outboundAccountPosition","E":80,"u":80,"B":[{"a":"BTC","f":"2","l":"0"}]}`)
	stream.push(`{"e":"outboundAccountPosition","E":200,"u":200,"B":[{"a":"BTC","f":"3","l":"0"}]}`)

	ev := recvEvent(t, ch)
	require.Equal(t, connector.EventBalance, ev.Type)
	assert.Equal(t, int64(200), ev.UpdateID)
	require.Len(t, ev.Balances, 1)
	assert.Equal(t, "3", ev.Balances[0].Free.String())
}

func TestKlinesAlwaysForwarded(t *testing.T) {
	_, _, stream, ch, stop := startConnector(t)
	defer stop()

	stream.triggerResync()
	require.Equal(t, connector.EventResync, recvEvent(t, ch).Type)

	// klines carry no account state and are never reconciled away
	stream.push(`{"e":"kline","E":50,"s":"BTCUSDT","k":{"t":1660000000000,"T":1660000059999,"i":"1m","o":"100","c":"101","h":"102","l":"99","v":"10","x":true}}`)

	ev := recvEvent(t, ch)
	require.Equal(t, connector.EventKline, ev.Type)
	require.NotNil(t, ev.Kline)
	assert.Equal(t, 101.0, ev.Kline.ClosePrice)
	assert.True(t, ev.Kline.Closed)
}

func TestResyncRetriedUntilSnapshotSucceeds(t *testing.T) {
	client := newFakeClient()
	client.on(http.MethodGet, "/api/v3/account", func() ([]byte, error) {
		return nil, &models.ExchangeError{Code: models.CodeInternalError, Msg: "Internal error."}
	})
	client.on(http.MethodGet, "/api/v3/account", func() ([]byte, error) {
		return []byte(`{"updateTime":100,"balances":[]}`), nil
	})
	client.on(http.MethodGet, "/api/v3/openOrders", func() ([]byte, error) {
		return []byte(`[]`), nil
	})

	stream := newFakeStream()
	b := newBinance(client, stream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Start(ctx))
	defer b.Stop()

	ch := b.Subscribe("BTCUSDT", "1m")
	stream.triggerResync()

	select {
	case ev := <-ch:
		assert.Equal(t, connector.EventResync, ev.Type)
	case <-time.After(10 * time.Second):
		t.Fatal("snapshot never recovered")
	}

	assert.GreaterOrEqual(t, len(client.callsFor(http.MethodGet, "/api/v3/account")), 2)
}
