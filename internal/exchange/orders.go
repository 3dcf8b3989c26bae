package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mselser95/gridbot/pkg/types"
	"go.uber.org/zap"
)

// PlaceLimitOrder submits a GTC limit order. Price and quantity are rounded
// down to the symbol filters. The request is sent once; a timeout leaves the
// outcome to be discovered by reconciliation.
func (c *Client) PlaceLimitOrder(
	ctx context.Context,
	side types.Side,
	price, quantity float64,
	clientOrderID string,
) (*types.Order, error) {
	filters, err := c.GetSymbolFilters(ctx)
	if err != nil {
		return nil, fmt.Errorf("load symbol filters: %w", err)
	}

	params := url.Values{}
	params.Set("symbol", c.symbol)
	params.Set("side", string(side))
	params.Set("type", string(types.OrderTypeLimit))
	params.Set("timeInForce", "GTC")
	params.Set("price", FormatPrice(price, filters))
	params.Set("quantity", FormatQuantity(quantity, filters))
	params.Set("newOrderRespType", "RESULT")
	if clientOrderID != "" {
		params.Set("newClientOrderId", clientOrderID)
	}

	return c.placeOrder(ctx, "place-limit-order", params)
}

// PlaceMarketOrder submits a market order for quantity of the base asset.
func (c *Client) PlaceMarketOrder(
	ctx context.Context,
	side types.Side,
	quantity float64,
	clientOrderID string,
) (*types.Order, error) {
	filters, err := c.GetSymbolFilters(ctx)
	if err != nil {
		return nil, fmt.Errorf("load symbol filters: %w", err)
	}

	params := url.Values{}
	params.Set("symbol", c.symbol)
	params.Set("side", string(side))
	params.Set("type", string(types.OrderTypeMarket))
	params.Set("quantity", FormatQuantity(quantity, filters))
	params.Set("newOrderRespType", "RESULT")
	if clientOrderID != "" {
		params.Set("newClientOrderId", clientOrderID)
	}

	return c.placeOrder(ctx, "place-market-order", params)
}

func (c *Client) placeOrder(ctx context.Context, op string, params url.Values) (*types.Order, error) {
	var resp wireOrder
	err := c.do(ctx, &request{
		op:     op,
		method: http.MethodPost,
		path:   "/api/v3/order",
		params: params,
		signed: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	order := resp.toOrder()
	c.logger.Info("exchange-order-placed",
		zap.Int64("order-id", order.ID),
		zap.String("client-order-id", order.ClientOrderID),
		zap.String("side", string(order.Side)),
		zap.String("type", string(order.Type)),
		zap.String("price", params.Get("price")),
		zap.String("quantity", params.Get("quantity")),
		zap.String("status", string(order.Status)))

	return &order, nil
}

// CancelOrder cancels an open order. The returned snapshot carries the
// executed quantity at cancel time. Callers should treat
// types.IsUnknownOrder(err) as success-equivalent.
func (c *Client) CancelOrder(ctx context.Context, orderID int64) (*types.Order, error) {
	params := url.Values{}
	params.Set("symbol", c.symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	var resp wireOrder
	err := c.do(ctx, &request{
		op:     "cancel-order",
		method: http.MethodDelete,
		path:   "/api/v3/order",
		params: params,
		signed: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	order := resp.toOrder()
	c.logger.Info("exchange-order-canceled",
		zap.Int64("order-id", order.ID),
		zap.Float64("executed-qty", order.ExecutedQty),
		zap.String("status", string(order.Status)))

	return &order, nil
}

// QueryOrder fetches one order by exchange id or, if that is zero, by client order id.
func (c *Client) QueryOrder(ctx context.Context, ref types.OrderRef) (*types.Order, error) {
	params := url.Values{}
	params.Set("symbol", c.symbol)
	switch {
	case ref.OrderID != 0:
		params.Set("orderId", strconv.FormatInt(ref.OrderID, 10))
	case ref.ClientOrderID != "":
		params.Set("origClientOrderId", ref.ClientOrderID)
	default:
		return nil, fmt.Errorf("query order: order id or client order id required")
	}

	var resp wireOrder
	err := c.do(ctx, &request{
		op:     "query-order",
		method: http.MethodGet,
		path:   "/api/v3/order",
		params: params,
		signed: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	order := resp.toOrder()
	return &order, nil
}

// GetOpenOrders returns all open orders on the symbol.
func (c *Client) GetOpenOrders(ctx context.Context) ([]types.Order, error) {
	params := url.Values{}
	params.Set("symbol", c.symbol)

	var resp []wireOrder
	err := c.do(ctx, &request{
		op:     "open-orders",
		method: http.MethodGet,
		path:   "/api/v3/openOrders",
		params: params,
		signed: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	orders := make([]types.Order, 0, len(resp))
	for i := range resp {
		orders = append(orders, resp[i].toOrder())
	}
	return orders, nil
}

// GetTradeHistory returns the most recent limit trades on the symbol.
func (c *Client) GetTradeHistory(ctx context.Context, limit int) ([]types.Trade, error) {
	params := url.Values{}
	params.Set("symbol", c.symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return c.trades(ctx, "trade-history", params)
}

// GetOrderTrades returns the fills of one order.
func (c *Client) GetOrderTrades(ctx context.Context, orderID int64) ([]types.Trade, error) {
	params := url.Values{}
	params.Set("symbol", c.symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))
	return c.trades(ctx, "order-trades", params)
}

func (c *Client) trades(ctx context.Context, op string, params url.Values) ([]types.Trade, error) {
	var resp []wireTrade
	err := c.do(ctx, &request{
		op:     op,
		method: http.MethodGet,
		path:   "/api/v3/myTrades",
		params: params,
		signed: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	trades := make([]types.Trade, 0, len(resp))
	for i := range resp {
		trades = append(trades, resp[i].toTrade())
	}
	return trades, nil
}
