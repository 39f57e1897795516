package livefeed

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rsi-engine/internal/logger"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Token string          `json:"token"`
	Data  json.RawMessage `json:"data"`
	TS    string          `json:"ts"`
	Seq   int64           `json:"seq"`
}

func startHub(t *testing.T) (*Hub, *goredis.Client, *httptest.Server) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := NewHub(rdb, "rsi-data", logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	select {
	case <-h.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not subscribe")
	}

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, rdb, srv
}

func dial(t *testing.T, h *Hub, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	before := h.ClientCount()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return h.ClientCount() == before+1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(msg, &env), "raw: %s", msg)
	return env
}

func TestHub_FansOutFilteredByToken(t *testing.T) {
	h, rdb, srv := startHub(t)
	all := dial(t, h, srv, "")
	onlyABC := dial(t, h, srv, "?tokens=abc")
	ctx := context.Background()

	require.NoError(t, rdb.Publish(ctx, "pub:rsi-data:xyz", `{"token_address":"xyz","rsi":10}`).Err())
	require.NoError(t, rdb.Publish(ctx, "pub:rsi-data:abc", `{"token_address":"abc","rsi":90}`).Err())

	first := read(t, all)
	second := read(t, all)
	assert.Equal(t, "xyz", first.Token)
	assert.Equal(t, "abc", second.Token)
	assert.Less(t, first.Seq, second.Seq)

	got := read(t, onlyABC)
	assert.Equal(t, "abc", got.Token)
	assert.JSONEq(t, `{"token_address":"abc","rsi":90}`, string(got.Data))
	_, err := time.Parse(time.RFC3339Nano, got.TS)
	assert.NoError(t, err)
}

func TestHub_NewClientGetsLatestPerToken(t *testing.T) {
	h, rdb, srv := startHub(t)
	watcher := dial(t, h, srv, "")
	ctx := context.Background()

	require.NoError(t, rdb.Publish(ctx, "pub:rsi-data:abc", `{"rsi":1}`).Err())
	require.NoError(t, rdb.Publish(ctx, "pub:rsi-data:abc", `{"rsi":2}`).Err())
	read(t, watcher)
	read(t, watcher)

	late := dial(t, h, srv, "?tokens=abc,def")
	env := read(t, late)
	assert.Equal(t, "abc", env.Token)
	assert.JSONEq(t, `{"rsi":2}`, string(env.Data))
}

func TestHub_ClientCountHook(t *testing.T) {
	h, _, srv := startHub(t)
	counts := make(chan int, 4)
	h.OnClientCount = func(n int) { counts <- n }

	conn := dial(t, h, srv, "")
	assert.Equal(t, 1, <-counts)

	conn.Close()
	select {
	case n := <-counts:
		assert.Equal(t, 0, n)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not observed")
	}
}

func TestParseTokens(t *testing.T) {
	assert.Nil(t, parseTokens(""))
	assert.Nil(t, parseTokens(" , "))
	assert.Equal(t, map[string]bool{"a": true, "b": true}, parseTokens("a, b,"))
}
