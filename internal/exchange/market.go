package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mselser95/gridbot/pkg/types"
)

// GetBalances returns every non-empty asset balance on the account.
func (c *Client) GetBalances(ctx context.Context) (types.Balances, error) {
	params := url.Values{}
	params.Set("omitZeroBalances", "true")

	var resp wireAccount
	err := c.do(ctx, &request{
		op:     "account",
		method: http.MethodGet,
		path:   "/api/v3/account",
		params: params,
		signed: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	balances := make(types.Balances, len(resp.Balances))
	for _, b := range resp.Balances {
		balances[b.Asset] = types.Balance{Asset: b.Asset, Free: b.Free, Locked: b.Locked}
	}
	return balances, nil
}

// GetTickerPrice returns the last traded price, cached for the price TTL.
func (c *Client) GetTickerPrice(ctx context.Context) (float64, error) {
	key := "price:" + c.symbol
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			if price, isFloat := v.(float64); isFloat {
				return price, nil
			}
		}
	}

	params := url.Values{}
	params.Set("symbol", c.symbol)

	var resp wireTicker
	err := c.do(ctx, &request{
		op:     "ticker-price",
		method: http.MethodGet,
		path:   "/api/v3/ticker/price",
		params: params,
	}, &resp)
	if err != nil {
		return 0, err
	}

	if c.cache != nil && c.priceTTL > 0 {
		c.cache.Set(key, resp.Price, c.priceTTL)
	}
	return resp.Price, nil
}

// GetKlines returns up to limit candlesticks for interval (e.g. "1h").
func (c *Client) GetKlines(ctx context.Context, interval string, limit int) ([]types.Kline, error) {
	params := url.Values{}
	params.Set("symbol", c.symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var rows [][]interface{}
	err := c.do(ctx, &request{
		op:     "klines",
		method: http.MethodGet,
		path:   "/api/v3/klines",
		params: params,
	}, &rows)
	if err != nil {
		return nil, err
	}

	klines := make([]types.Kline, 0, len(rows))
	for _, row := range rows {
		k, parseErr := parseKline(row)
		if parseErr != nil {
			return nil, fmt.Errorf("klines: %w", parseErr)
		}
		klines = append(klines, k)
	}
	return klines, nil
}

// GetSymbolFilters returns the trading rules of the symbol, cached for the filter TTL.
func (c *Client) GetSymbolFilters(ctx context.Context) (*types.SymbolFilters, error) {
	key := "filters:" + c.symbol
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			if f, isFilters := v.(*types.SymbolFilters); isFilters {
				return f, nil
			}
		}
	}

	params := url.Values{}
	params.Set("symbol", c.symbol)

	var resp wireExchangeInfo
	err := c.do(ctx, &request{
		op:     "exchange-info",
		method: http.MethodGet,
		path:   "/api/v3/exchangeInfo",
		params: params,
	}, &resp)
	if err != nil {
		return nil, err
	}

	f, err := resp.filtersFor(c.symbol)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && c.filterTTL > 0 {
		c.cache.Set(key, f, c.filterTTL)
	}
	return f, nil
}

// Assets returns the base and quote asset symbols.
func (c *Client) Assets() (base, quote string) {
	return c.baseAsset, c.quoteAsset
}
