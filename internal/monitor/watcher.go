package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// WatcherConfig holds the Solana websocket settings.
type WatcherConfig struct {
	// URL of the Solana pubsub endpoint, e.g. "wss://api.mainnet-beta.solana.com".
	URL string

	// Commitment level for accountSubscribe. Defaults to "confirmed".
	Commitment string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *WatcherConfig) defaults() {
	if c.Commitment == "" {
		c.Commitment = "confirmed"
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Watcher subscribes to account notifications for each contract and calls
// the handler when an account's data changes.
type Watcher struct {
	cfg       WatcherConfig
	contracts []string
	onChange  ChangeHandler
	changes   *changeSet
	log       *zap.Logger

	// Optional hooks.
	OnReconnect func()
	OnConnected func(bool)
}

// NewWatcher validates the URL and returns a Watcher.
func NewWatcher(cfg WatcherConfig, contracts []string, onChange ChangeHandler, log *zap.Logger) (*Watcher, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("watcher: unsupported scheme %q", u.Scheme)
	}
	if len(contracts) == 0 {
		return nil, errors.New("watcher: no contracts")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		cfg:       cfg,
		contracts: contracts,
		onChange:  onChange,
		changes:   newChangeSet(),
		log:       log,
	}, nil
}

// Start connects and streams notifications until ctx is cancelled,
// reconnecting with exponential backoff.
func (w *Watcher) Start(ctx context.Context) error {
	delay := w.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := w.runOnce(ctx)
		w.connected(false)
		if err == nil {
			return nil
		}

		w.log.Warn("watcher disconnected", zap.Error(err), zap.Duration("retry_in", delay))
		if w.OnReconnect != nil {
			w.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > w.cfg.MaxReconnectDelay {
			delay = w.cfg.MaxReconnectDelay
		}
	}
}

func (w *Watcher) connected(v bool) {
	if w.OnConnected != nil {
		w.OnConnected(v)
	}
}

type subscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel. It returns nil only on cancellation.
func (w *Watcher) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// request id -> contract, then subscription id -> contract
	pending := make(map[int64]string, len(w.contracts))
	subs := make(map[int64]string, len(w.contracts))
	for i, c := range w.contracts {
		req := subscribeRequest{
			JSONRPC: "2.0",
			ID:      i + 1,
			Method:  "accountSubscribe",
			Params: []interface{}{c, map[string]string{
				"encoding":   "jsonParsed",
				"commitment": w.cfg.Commitment,
			}},
		}
		if err := conn.WriteJSON(req); err != nil {
			return fmt.Errorf("watcher: subscribe %s: %w", c, err)
		}
		pending[int64(i+1)] = c
	}

	// Close the connection when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	w.log.Info("watcher connected", zap.String("url", w.cfg.URL), zap.Int("contracts", len(w.contracts)))
	w.connected(true)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		msg := gjson.ParseBytes(raw)

		switch {
		case msg.Get("method").Str == "accountNotification":
			sub := msg.Get("params.subscription").Int()
			contract, ok := subs[sub]
			if !ok {
				w.log.Debug("notification for unknown subscription", zap.Int64("subscription", sub))
				continue
			}
			state := []byte(msg.Get("params.result.value").Raw)
			if w.changes.observe(contract, state) && w.onChange != nil {
				w.onChange(ctx, contract, state)
			}

		case msg.Get("id").Exists():
			id := msg.Get("id").Int()
			contract, ok := pending[id]
			if !ok {
				continue
			}
			delete(pending, id)
			if e := msg.Get("error"); e.Exists() {
				w.log.Error("accountSubscribe rejected",
					zap.String("contract", contract),
					zap.String("error", e.Get("message").Str))
				continue
			}
			subs[msg.Get("result").Int()] = contract
			w.log.Debug("subscribed", zap.String("contract", contract), zap.Int64("subscription", msg.Get("result").Int()))
		}
	}
}
