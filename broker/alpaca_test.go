package broker

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dryClient() *Client {
	return NewClient(ClientConfig{DryRun: true})
}

func TestDryRun_MarketOrderFillsInstantly(t *testing.T) {
	c := dryClient()

	order, err := c.SubmitOrder(context.Background(), OrderRequest{
		Symbol: "XYZ", Qty: 100, Side: SideBuy, Type: TypeMarket, TimeInForce: TIFDay,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFilled, order.Status)
	assert.Equal(t, int64(100), order.FilledQty)
	assert.True(t, order.FilledAvgPrice.IsPositive())

	fetched, err := c.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, fetched.ID)
	assert.True(t, fetched.Status.HasFill())
}

func TestDryRun_RestingLegsStayOpen(t *testing.T) {
	c := dryClient()
	limit := decimal.RequireFromString("13.00")

	order, err := c.SubmitOrder(context.Background(), OrderRequest{
		Symbol: "XYZ", Qty: 30, Side: SideSell, Type: TypeLimit, TimeInForce: TIFGTC, LimitPrice: &limit,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusAccepted, order.Status)
	assert.Equal(t, int64(0), order.FilledQty)
	assert.False(t, order.Status.Terminal())
}

func TestSubmitOrder_RejectsMissingPrices(t *testing.T) {
	c := dryClient()

	_, err := c.SubmitOrder(context.Background(), OrderRequest{
		Symbol: "XYZ", Qty: 30, Side: SideSell, Type: TypeLimit, TimeInForce: TIFGTC,
	})
	assert.Error(t, err, "limit order without a limit price")

	_, err = c.SubmitOrder(context.Background(), OrderRequest{
		Symbol: "XYZ", Qty: 30, Side: SideSell, Type: TypeStop, TimeInForce: TIFGTC,
	})
	assert.Error(t, err, "stop order without a stop price")
}

func TestCancelOrder_Idempotent(t *testing.T) {
	c := dryClient()
	stop := decimal.RequireFromString("8.00")

	order, err := c.SubmitOrder(context.Background(), OrderRequest{
		Symbol: "XYZ", Qty: 100, Side: SideSell, Type: TypeStop, TimeInForce: TIFGTC, StopPrice: &stop,
	})
	require.NoError(t, err)

	require.NoError(t, c.CancelOrder(context.Background(), order.ID))

	first, err := c.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, first.Status)

	// Second cancel is a no-op with the same terminal state.
	require.NoError(t, c.CancelOrder(context.Background(), order.ID))

	second, err := c.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)

	// Unknown ids cancel cleanly too.
	assert.NoError(t, c.CancelOrder(context.Background(), "no-such-order"))
}

func TestCancelAllOrders_LeavesFilledAlone(t *testing.T) {
	c := dryClient()
	limit := decimal.RequireFromString("13.00")

	filled, err := c.SubmitOrder(context.Background(), OrderRequest{
		Symbol: "XYZ", Qty: 100, Side: SideBuy, Type: TypeMarket, TimeInForce: TIFDay,
	})
	require.NoError(t, err)

	resting, err := c.SubmitOrder(context.Background(), OrderRequest{
		Symbol: "XYZ", Qty: 30, Side: SideSell, Type: TypeLimit, TimeInForce: TIFGTC, LimitPrice: &limit,
	})
	require.NoError(t, err)

	require.NoError(t, c.CancelAllOrders(context.Background()))

	f, err := c.GetOrder(context.Background(), filled.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, f.Status)

	r, err := c.GetOrder(context.Background(), resting.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, r.Status)
}

func TestOrderStatusPredicates(t *testing.T) {
	assert.True(t, StatusFilled.HasFill())
	assert.True(t, StatusPartiallyFilled.HasFill())
	assert.False(t, StatusAccepted.HasFill())

	assert.True(t, StatusFilled.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.True(t, StatusExpired.Terminal())
	assert.False(t, StatusNew.Terminal())
	assert.False(t, StatusPartiallyFilled.Terminal())
}
