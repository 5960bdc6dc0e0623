package monitor

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

	"tokenwatch/internal/model"
	"tokenwatch/internal/source"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type countingAnalyzer struct {
	mu       sync.Mutex
	seen     []string
	inflight atomic.Int32
	peak     atomic.Int32
	fail     string
}

func (a *countingAnalyzer) AnalyzeAndAlert(_ context.Context, contract string) error {
	n := a.inflight.Add(1)
	defer a.inflight.Add(-1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	a.mu.Lock()
	a.seen = append(a.seen, contract)
	a.mu.Unlock()
	if contract == a.fail {
		return errors.New("rpc down")
	}
	return nil
}

func TestMonitor_RunRoundVisitsEveryContract(t *testing.T) {
	an := &countingAnalyzer{fail: "B"}
	m, err := New(Config{Contracts: []string{"A", "B", "C"}, Concurrency: 1}, an, nil)
	require.NoError(t, err)

	require.NoError(t, m.RunRound(context.Background()))
	assert.Equal(t, []string{"A", "B", "C"}, an.seen)
	assert.Equal(t, int32(1), an.peak.Load())
}

func TestMonitor_ConcurrencyBound(t *testing.T) {
	an := &countingAnalyzer{}
	m, err := New(Config{Contracts: []string{"A", "B", "C", "D", "E", "F"}, Concurrency: 2}, an, nil)
	require.NoError(t, err)

	require.NoError(t, m.RunRound(context.Background()))
	assert.Len(t, an.seen, 6)
	assert.LessOrEqual(t, an.peak.Load(), int32(2))
}

func TestMonitor_ContractDelayPacesStarts(t *testing.T) {
	an := &countingAnalyzer{}
	m, err := New(Config{Contracts: []string{"A", "B", "C"}, ContractDelay: 20 * time.Millisecond, Concurrency: 3}, an, nil)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, m.RunRound(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	an := &countingAnalyzer{}
	m, err := New(Config{Contracts: []string{"A"}, Interval: 10 * time.Millisecond}, an, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rounds := make(chan int, 16)
	m.OnRound = func(round int, _ time.Duration) {
		rounds <- round
		if round == 3 {
			cancel()
		}
	}

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.Len(t, rounds, 3)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, &countingAnalyzer{}, nil)
	assert.Error(t, err)
	_, err = New(Config{Contracts: []string{"A"}}, nil, nil)
	assert.Error(t, err)
}

type changes struct {
	mu   sync.Mutex
	seen []string
	ch   chan string
}

func newChanges() *changes { return &changes{ch: make(chan string, 16)} }

func (c *changes) handle(_ context.Context, contract string, _ []byte) {
	c.mu.Lock()
	c.seen = append(c.seen, contract)
	c.mu.Unlock()
	c.ch <- contract
}

func (c *changes) wait(t *testing.T) string {
	t.Helper()
	select {
	case v := <-c.ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
		return ""
	}
}

// solanaPubsub answers accountSubscribe with subscription ids 100+n and
// then pushes the given notification values for the first contract.
func solanaPubsub(t *testing.T, values []string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		req := gjson.ParseBytes(raw)
		assert.Equal(t, "accountSubscribe", req.Get("method").Str)
		assert.Equal(t, "jsonParsed", req.Get("params.1.encoding").Str)
		id := req.Get("id").Int()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","result":`+itoa(100+id)+`,"id":`+itoa(id)+`}`))

		for _, v := range values {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","method":"accountNotification","params":{"result":{"context":{"slot":5},"value":`+v+`},"subscription":`+itoa(100+id)+`}}`))
		}
		// unknown subscription is ignored
		conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","method":"accountNotification","params":{"result":{"value":{}},"subscription":999}}`))
		conn.ReadMessage()
	}))
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func TestWatcher_ReportsChanges(t *testing.T) {
	srv := solanaPubsub(t, []string{`{"lamports":1}`, `{"lamports":1}`, `{"lamports":2}`})
	defer srv.Close()

	c := newChanges()
	w, err := NewWatcher(WatcherConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, []string{"Acct1"}, c.handle, nil)
	require.NoError(t, err)
	var connected atomic.Bool
	w.OnConnected = func(v bool) { connected.Store(v) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	assert.Equal(t, "Acct1", c.wait(t))
	assert.Equal(t, "Acct1", c.wait(t))
	assert.True(t, connected.Load())

	cancel()
	require.NoError(t, <-done)
	c.mu.Lock()
	assert.Len(t, c.seen, 2)
	c.mu.Unlock()
}

func TestWatcher_ReconnectsAfterDialFailure(t *testing.T) {
	var reconnects atomic.Int32
	w, err := NewWatcher(WatcherConfig{URL: "ws://127.0.0.1:1", ReconnectDelay: time.Millisecond, MaxReconnectDelay: 2 * time.Millisecond},
		[]string{"A"}, nil, nil)
	require.NoError(t, err)
	w.OnReconnect = func() { reconnects.Add(1) }

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Start(ctx))
	assert.Greater(t, reconnects.Load(), int32(1))
}

func TestNewWatcher_Validation(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{URL: "http://x"}, []string{"A"}, nil, nil)
	assert.Error(t, err)
	_, err = NewWatcher(WatcherConfig{URL: "wss://x"}, nil, nil, nil)
	assert.Error(t, err)
}

type seqSource struct {
	mu    sync.Mutex
	steps []func() ([]model.RawRecord, error)
	i     int
}

func (s *seqSource) FetchRecords(context.Context, string) ([]model.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.steps[s.i]
	if s.i < len(s.steps)-1 {
		s.i++
	}
	return f()
}

func recs(v string) func() ([]model.RawRecord, error) {
	return func() ([]model.RawRecord, error) { return []model.RawRecord{model.RawRecord(v)}, nil }
}

func TestPoller_Poll(t *testing.T) {
	src := &seqSource{steps: []func() ([]model.RawRecord, error){
		recs(`{"a":1}`),
		recs(`{"a":1}`),
		func() ([]model.RawRecord, error) { return nil, source.ErrNoData },
		func() ([]model.RawRecord, error) { return nil, errors.New("timeout") },
		recs(`{"a":2}`),
	}}
	c := newChanges()
	p := NewPoller(src, []string{"X"}, time.Second, c.handle, nil)

	for i := 0; i < 5; i++ {
		p.Poll(context.Background())
	}
	assert.Equal(t, []string{"X", "X"}, c.seen)
}

func TestPoller_StartStops(t *testing.T) {
	src := &seqSource{steps: []func() ([]model.RawRecord, error){recs(`{}`)}}
	p := NewPoller(src, []string{"X"}, time.Millisecond, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, p.Start(ctx))
}
