package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mselser95/gridbot/pkg/cache"
	"github.com/mselser95/gridbot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testAPIKey = "test-api-key"
	testSecret = "test-secret"
)

const exchangeInfoBody = `{"symbols":[{"symbol":"BTCUSDT","filters":[
	{"filterType":"PRICE_FILTER","minPrice":"0.01","maxPrice":"1000000.00","tickSize":"0.01"},
	{"filterType":"LOT_SIZE","minQty":"0.00001","maxQty":"9000.0","stepSize":"0.00001"},
	{"filterType":"NOTIONAL","minNotional":"5.00"}]}]}`

// fakeBinance routes by "METHOD path" and records every request it sees.
type fakeBinance struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests []*http.Request
	hits     map[string]*atomic.Int32
}

func newFakeBinance(t *testing.T) (*fakeBinance, *httptest.Server) {
	t.Helper()
	f := &fakeBinance{
		handlers: map[string]http.HandlerFunc{},
		hits:     map[string]*atomic.Int32{},
	}
	f.handle("GET /api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(exchangeInfoBody))
	})
	f.handle("GET /api/v3/time", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"serverTime":` + strconv.FormatInt(time.Now().UnixMilli(), 10) + `}`))
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.requests = append(f.requests, r)
		h, ok := f.handlers[key]
		counter := f.hits[key]
		f.mu.Unlock()

		if counter != nil {
			counter.Add(1)
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":-1,"msg":"no handler"}`))
			return
		}
		h(w, r)
	}))
	t.Cleanup(server.Close)

	return f, server
}

func (f *fakeBinance) handle(key string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[key] = h
	if f.hits[key] == nil {
		f.hits[key] = &atomic.Int32{}
	}
}

func (f *fakeBinance) count(key string) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.hits[key]; c != nil {
		return c.Load()
	}
	return 0
}

func (f *fakeBinance) last(key string) *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Method+" "+f.requests[i].URL.Path == key {
			return f.requests[i]
		}
	}
	return nil
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(&Config{
		BaseURL:        baseURL,
		APIKey:         testAPIKey,
		SecretKey:      testSecret,
		Symbol:         "BTCUSDT",
		BaseAsset:      "BTC",
		QuoteAsset:     "USDT",
		RequestTimeout: 2 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		cfg    *Config
		errMsg string
	}{
		{"nil-config", nil, "config cannot be nil"},
		{"nil-logger", &Config{BaseURL: "x", Symbol: "BTCUSDT"}, "logger cannot be nil"},
		{"empty-url", &Config{Symbol: "BTCUSDT", Logger: zap.NewNop()}, "base URL cannot be empty"},
		{"empty-symbol", &Config{BaseURL: "x", Logger: zap.NewNop()}, "symbol cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSignedRequest_SignatureOverQuery(t *testing.T) {
	fake, server := newFakeBinance(t)
	fake.handle("GET /api/v3/openOrders", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	c := newTestClient(t, server.URL)
	_, err := c.GetOpenOrders(context.Background())
	require.NoError(t, err)

	req := fake.last("GET /api/v3/openOrders")
	require.NotNil(t, req)
	assert.Equal(t, testAPIKey, req.Header.Get("X-MBX-APIKEY"))

	raw := req.URL.RawQuery
	idx := strings.LastIndex(raw, "&signature=")
	require.Positive(t, idx)
	payload := raw[:idx]
	signature := raw[idx+len("&signature="):]

	assert.Equal(t, sign(testSecret, payload), signature)
	assert.Contains(t, payload, "timestamp=")
	assert.Contains(t, payload, "recvWindow=5000")
	assert.Contains(t, payload, "symbol=BTCUSDT")
}

func TestNextTimestamp_StrictlyIncreasing(t *testing.T) {
	c := newTestClient(t, "http://unused")

	prev := c.nextTimestamp()
	for i := 0; i < 1000; i++ {
		ts := c.nextTimestamp()
		if ts <= prev {
			t.Fatalf("timestamp went backwards: %d after %d", ts, prev)
		}
		prev = ts
	}
}

func TestPlaceLimitOrder_RoundsToFilters(t *testing.T) {
	fake, server := newFakeBinance(t)
	fake.handle("POST /api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":12345,"clientOrderId":"gb-abc",
			"transactTime":1700000000000,"price":"95000.12000000","origQty":"0.02105000",
			"executedQty":"0.00000000","status":"NEW","type":"LIMIT","side":"BUY"}`))
	})

	c := newTestClient(t, server.URL)
	order, err := c.PlaceLimitOrder(context.Background(), types.SideBuy, 95000.123, 0.0210526315, "gb-abc")
	require.NoError(t, err)

	req := fake.last("POST /api/v3/order")
	require.NotNil(t, req)
	q := req.URL.Query()
	assert.Equal(t, "95000.12", q.Get("price"))
	assert.Equal(t, "0.02105", q.Get("quantity"))
	assert.Equal(t, "LIMIT", q.Get("type"))
	assert.Equal(t, "GTC", q.Get("timeInForce"))
	assert.Equal(t, "gb-abc", q.Get("newClientOrderId"))

	assert.Equal(t, int64(12345), order.ID)
	assert.Equal(t, "gb-abc", order.ClientOrderID)
	assert.Equal(t, types.OrderStatusNew, order.Status)
	assert.Equal(t, types.SideBuy, order.Side)
	assert.InDelta(t, 0.02105, order.Quantity, 1e-12)
	assert.Equal(t, int64(1700000000000), order.Time.UnixMilli())
}

func TestPlaceOrder_RejectionIsVerbatimAndNotRetried(t *testing.T) {
	fake, server := newFakeBinance(t)
	fake.handle("POST /api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	})

	c := newTestClient(t, server.URL)
	_, err := c.PlaceLimitOrder(context.Background(), types.SideBuy, 95000, 0.01, "")

	var rej *types.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, -2010, rej.Code)
	assert.Equal(t, "Account has insufficient balance for requested action.", rej.Message)
	assert.Equal(t, int32(1), fake.count("POST /api/v3/order"))
}

func TestPlaceOrder_ServerErrorNotRetried(t *testing.T) {
	fake, server := newFakeBinance(t)
	fake.handle("POST /api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	c := newTestClient(t, server.URL)
	_, err := c.PlaceMarketOrder(context.Background(), types.SideSell, 0.01, "")

	var transient *types.TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, int32(1), fake.count("POST /api/v3/order"))
}

func TestGet_TransientErrorsRetriedWithBackoff(t *testing.T) {
	fake, server := newFakeBinance(t)
	var attempts atomic.Int32
	fake.handle("GET /api/v3/openOrders", func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","orderId":7,"clientOrderId":"gs-x","price":"96000.00",
			"origQty":"0.01","executedQty":"0","status":"NEW","type":"LIMIT","side":"SELL","time":1700000000000}]`))
	})

	c := newTestClient(t, server.URL)
	orders, err := c.GetOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(7), orders[0].ID)
	assert.Equal(t, types.SideSell, orders[0].Side)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestGet_RetriesAreBounded(t *testing.T) {
	fake, server := newFakeBinance(t)
	fake.handle("GET /api/v3/account", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newTestClient(t, server.URL)
	_, err := c.GetBalances(context.Background())

	var transient *types.TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, int32(4), fake.count("GET /api/v3/account"))
}

func TestAuthFailure_ResyncsOnceThenSucceeds(t *testing.T) {
	fake, server := newFakeBinance(t)
	var attempts atomic.Int32
	fake.handle("GET /api/v3/account", func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1021,"msg":"Timestamp for this request is outside of the recvWindow."}`))
			return
		}
		_, _ = w.Write([]byte(`{"balances":[{"asset":"BTC","free":"0.5","locked":"0.1"},
			{"asset":"USDT","free":"1000","locked":"0"}]}`))
	})

	c := newTestClient(t, server.URL)
	balances, err := c.GetBalances(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), fake.count("GET /api/v3/time"))
	assert.InDelta(t, 0.6, balances.Get("BTC").Total(), 1e-12)
	assert.InDelta(t, 1000, balances.Get("USDT").Free, 1e-12)
}

func TestAuthFailure_SurfacesAfterSecondFailure(t *testing.T) {
	fake, server := newFakeBinance(t)
	fake.handle("POST /api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`))
	})

	c := newTestClient(t, server.URL)
	_, err := c.PlaceLimitOrder(context.Background(), types.SideBuy, 95000, 0.01, "")

	var authErr *types.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, -2015, authErr.Code)
	assert.Equal(t, int32(2), fake.count("POST /api/v3/order"))
	assert.Equal(t, int32(1), fake.count("GET /api/v3/time"))
}

func TestRateLimit_BacksOffWithoutHittingServer(t *testing.T) {
	fake, server := newFakeBinance(t)
	fake.handle("GET /api/v3/myTrades", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	c := newTestClient(t, server.URL)
	_, err := c.GetTradeHistory(context.Background(), 100)

	var rl *types.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 30*time.Second, rl.RetryAfter)

	_, err = c.GetOpenOrders(context.Background())
	require.ErrorAs(t, err, &rl)
	assert.Positive(t, rl.RetryAfter)
	assert.Equal(t, int32(0), fake.count("GET /api/v3/openOrders"))
	assert.Equal(t, int32(1), fake.count("GET /api/v3/myTrades"))
}

func TestCancelOrder_UnknownOrderIsRecognised(t *testing.T) {
	fake, server := newFakeBinance(t)
	fake.handle("DELETE /api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2011,"msg":"Unknown order sent."}`))
	})

	c := newTestClient(t, server.URL)
	_, err := c.CancelOrder(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, types.IsUnknownOrder(err))
}

func TestCancelOrder_ReturnsExecutedQuantity(t *testing.T) {
	fake, server := newFakeBinance(t)
	fake.handle("DELETE /api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","origClientOrderId":"gb-abc","orderId":99,
			"clientOrderId":"cancel-xyz","price":"95000.00","origQty":"0.02","executedQty":"0.005",
			"status":"CANCELED","type":"LIMIT","side":"BUY"}`))
	})

	c := newTestClient(t, server.URL)
	order, err := c.CancelOrder(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, "gb-abc", order.ClientOrderID)
	assert.Equal(t, types.OrderStatusCanceled, order.Status)
	assert.InDelta(t, 0.005, order.ExecutedQty, 1e-12)
	assert.Equal(t, "99", fake.last("DELETE /api/v3/order").URL.Query().Get("orderId"))
}

func TestQueryOrder_ByClientOrderID(t *testing.T) {
	fake, server := newFakeBinance(t)
	fake.handle("GET /api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":55,"clientOrderId":"gb-abc","price":"95000.00",
			"origQty":"0.02","executedQty":"0","status":"NEW","type":"LIMIT","side":"BUY","time":1700000000000}`))
	})

	c := newTestClient(t, server.URL)
	order, err := c.QueryOrder(context.Background(), types.OrderRef{ClientOrderID: "gb-abc"})
	require.NoError(t, err)
	assert.Equal(t, int64(55), order.ID)

	q := fake.last("GET /api/v3/order").URL.Query()
	assert.Equal(t, "gb-abc", q.Get("origClientOrderId"))
	assert.Empty(t, q.Get("orderId"))

	_, err = c.QueryOrder(context.Background(), types.OrderRef{})
	assert.Error(t, err)
}

func TestGetOrderTrades_Parses(t *testing.T) {
	fake, server := newFakeBinance(t)
	fake.handle("GET /api/v3/myTrades", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","id":28457,"orderId":100234,"price":"94000.00",
			"qty":"0.01","quoteQty":"940.00","commission":"0.00001","commissionAsset":"BTC",
			"time":1700000000000,"isBuyer":true,"isMaker":true,"isBestMatch":true}]`))
	})

	c := newTestClient(t, server.URL)
	trades, err := c.GetOrderTrades(context.Background(), 100234)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, int64(28457), tr.ID)
	assert.Equal(t, int64(100234), tr.OrderID)
	assert.Equal(t, types.SideBuy, tr.Side())
	assert.InDelta(t, 940.0, tr.QuoteQty, 1e-9)
	assert.Equal(t, "BTC", tr.CommissionAsset)
	assert.Equal(t, "100234", fake.last("GET /api/v3/myTrades").URL.Query().Get("orderId"))
}

func TestGetKlinesAndTicker(t *testing.T) {
	fake, server := newFakeBinance(t)
	fake.handle("GET /api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[1700000000000,"94000.00","95000.00","93500.00","94800.00","12.5",
			1700003599999,"1180000.0",100,"6.0","570000.0","0"]]`))
	})
	fake.handle("GET /api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"94850.10"}`))
	})

	c := newTestClient(t, server.URL)

	klines, err := c.GetKlines(context.Background(), "1h", 1)
	require.NoError(t, err)
	require.Len(t, klines, 1)
	assert.InDelta(t, 94800.0, klines[0].Close, 1e-9)
	assert.InDelta(t, 12.5, klines[0].Volume, 1e-9)
	assert.Equal(t, "1h", fake.last("GET /api/v3/klines").URL.Query().Get("interval"))

	price, err := c.GetTickerPrice(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 94850.10, price, 1e-9)
	assert.Empty(t, fake.last("GET /api/v3/ticker/price").URL.Query().Get("signature"))
}

func TestMutatingRequest_SurvivesCallerCancellation(t *testing.T) {
	fake, server := newFakeBinance(t)
	release := make(chan struct{})
	fake.handle("DELETE /api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"orderId":5,"status":"CANCELED","origQty":"1","executedQty":"0"}`))
	})

	c := newTestClient(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := c.CancelOrder(ctx, 5)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	close(release)

	err := <-done
	assert.NoError(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestGetSymbolFilters_ServedFromCache(t *testing.T) {
	fake, server := newFakeBinance(t)

	rc, err := cache.NewRistrettoCache(cache.DefaultRistrettoConfig(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(rc.Close)

	c, err := New(&Config{
		BaseURL:        server.URL,
		APIKey:         testAPIKey,
		SecretKey:      testSecret,
		Symbol:         "BTCUSDT",
		BaseAsset:      "BTC",
		QuoteAsset:     "USDT",
		RequestTimeout: 2 * time.Second,
		Logger:         zap.NewNop(),
		Cache:          rc,
		FilterTTL:      time.Hour,
	})
	require.NoError(t, err)

	first, err := c.GetSymbolFilters(context.Background())
	require.NoError(t, err)
	rc.Wait()

	second, err := c.GetSymbolFilters(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), fake.count("GET /api/v3/exchangeInfo"))
}
