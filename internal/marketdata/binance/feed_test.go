package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-engine/internal/model"
)

func klineEvent(openMs int64, close string, closed bool) string {
	return fmt.Sprintf(`{"e":"kline","E":%d,"s":"BTCUSDT","k":{"t":%d,"T":%d,"s":"BTCUSDT","i":"1m","f":100,"L":200,"o":"50000.10","c":"%s","h":"50100.00","l":"49900.00","v":"12.5","n":101,"x":%t,"q":"625000.00","V":"6.25","Q":"312500.00","B":"0"}}`,
		openMs+59999, openMs, openMs+59999, close, closed)
}

func TestDecodeKlineEvent(t *testing.T) {
	u, err := DecodeKlineEvent([]byte(klineEvent(1714521600000, "50050.5", true)))
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", u.Symbol)
	assert.True(t, u.Closed)
	assert.Equal(t, model.UnixMilli(1714521600000), u.Kline.OpenTime)
	assert.Equal(t, model.UnixMilli(1714521659999), u.Kline.CloseTime)
	assert.Equal(t, 50000.10, u.Kline.Open)
	assert.Equal(t, 50100.0, u.Kline.High)
	assert.Equal(t, 49900.0, u.Kline.Low)
	assert.Equal(t, 50050.5, u.Kline.Close)
	assert.Equal(t, 12.5, u.Kline.Volume)
	assert.Equal(t, int64(101), u.Kline.TradeCount)
	assert.Equal(t, 6.25, u.Kline.TakerBuyBaseVolume)
}

func TestDecodeKlineEvent_CombinedStream(t *testing.T) {
	msg := `{"stream":"btcusdt@kline_1m","data":` + klineEvent(1714521600000, "1", false) + `}`
	u, err := DecodeKlineEvent([]byte(msg))
	require.NoError(t, err)
	assert.False(t, u.Closed)
	assert.Equal(t, 1.0, u.Kline.Close)
}

func TestDecodeKlineEvent_Errors(t *testing.T) {
	_, err := DecodeKlineEvent([]byte(`{"result":null,"id":1}`))
	assert.ErrorIs(t, err, ErrNotKline)

	_, err = DecodeKlineEvent([]byte(`not json`))
	assert.Error(t, err)

	bad := strings.Replace(klineEvent(1, "1", true), `"o":"50000.10"`, `"o":"abc"`, 1)
	_, err = DecodeKlineEvent([]byte(bad))
	assert.ErrorContains(t, err, `"o"`)
}

func TestStreamURL(t *testing.T) {
	assert.Equal(t, "wss://stream.binance.com:9443/ws/btcusdt@kline_1m", StreamURL(DefaultBaseURL, "BTCUSDT", "1m"))
	assert.Equal(t, "ws://x/ws/ethusdt@kline_5m", StreamURL("ws://x/ws/", "ETHUSDT", "5m"))
}

// wsServer serves each connection the messages returned by script for that
// connection number, then closes it.
func wsServer(t *testing.T, script func(conn int) []string) (*httptest.Server, *atomic.Int32, *atomic.Value) {
	t.Helper()
	var conns atomic.Int32
	var path atomic.Value
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		n := int(conns.Add(1))
		for _, m := range script(n) {
			if err := c.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// keep the first connection open briefly so reads drain in order
		time.Sleep(20 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	return srv, &conns, &path
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestFeed_ForwardsClosedOnlyAndReconnects(t *testing.T) {
	srv, conns, path := wsServer(t, func(n int) []string {
		base := int64(1714521600000) + int64(n-1)*60000
		return []string{
			`{"result":null,"id":1}`,
			klineEvent(base, "1", false),
			`{"e":"kline","k":{"s":"BTCUSDT","o":"bad"}}`,
			klineEvent(base, "2", true),
		}
	})

	f := New(Config{BaseURL: wsURL(srv), Interval: "1m", InitialBackoff: 5 * time.Millisecond, MaxBackoff: 10 * time.Millisecond})
	var connected, decodeErrs atomic.Int32
	f.OnConnect = func(string) { connected.Add(1) }
	f.OnDecodeError = func(string, error) { decodeErrs.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.KlineUpdate, 10)
	errCh := make(chan error, 1)
	go func() { errCh <- f.Stream(ctx, "BTCUSDT", out) }()

	var got []model.KlineUpdate
	for len(got) < 2 {
		select {
		case u := <-out:
			got = append(got, u)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, got %d updates", len(got))
		}
	}
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stream did not return after cancel")
	}

	for _, u := range got {
		assert.True(t, u.Closed)
		assert.Equal(t, 2.0, u.Kline.Close)
	}
	assert.True(t, got[1].Kline.OpenTime.After(got[0].Kline.OpenTime))
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
	assert.GreaterOrEqual(t, connected.Load(), int32(2))
	assert.GreaterOrEqual(t, decodeErrs.Load(), int32(1))
	assert.Equal(t, "/ws/btcusdt@kline_1m", path.Load())
}

func TestFeed_ForwardForming(t *testing.T) {
	srv, _, _ := wsServer(t, func(int) []string {
		return []string{klineEvent(1714521600000, "1", false)}
	})

	f := New(Config{BaseURL: wsURL(srv), ForwardForming: true, InitialBackoff: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.KlineUpdate, 10)
	go f.Stream(ctx, "BTCUSDT", out)

	select {
	case u := <-out:
		assert.False(t, u.Closed)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for forming update")
	}
}
