// Package source fetches contract data from the Solana JSON-RPC API and
// historical prices from an HTTP price history service.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tokenwatch/internal/breaker"
	"tokenwatch/internal/model"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TokenProgramID is the SPL Token program owning all token accounts.
const TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// ErrNoData is returned when the upstream answered but carried no records.
var ErrNoData = errors.New("no data returned")

// Recorder observes upstream calls. metrics.Metrics satisfies it.
type Recorder interface {
	ObserveFetch(source string, took time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFetch(string, time.Duration, error) {}

// SolanaConfig configures the RPC client.
type SolanaConfig struct {
	URL string
	// Mint filters token accounts by mint. Empty filters by TokenProgramID.
	Mint    string
	Timeout time.Duration
	// RPS caps outgoing requests. Zero disables limiting.
	RPS float64
}

// Solana reads token accounts owned by a contract address.
type Solana struct {
	cfg     SolanaConfig
	client  *rpc.Client
	limiter *rate.Limiter
	cb      *breaker.Breaker
	rec     Recorder
	log     *zap.Logger
}

// NewSolana dials the RPC endpoint. cb and rec may be nil.
func NewSolana(ctx context.Context, cfg SolanaConfig, cb *breaker.Breaker, rec Recorder, log *zap.Logger) (*Solana, error) {
	if cfg.URL == "" {
		return nil, errors.New("solana: empty RPC url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("solana dial %s: %w", cfg.URL, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	s := &Solana{cfg: cfg, client: client, cb: cb, rec: rec, log: log}
	if cfg.RPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return s, nil
}

type tokenAccounts struct {
	Value []json.RawMessage `json:"value"`
}

// FetchRecords calls getTokenAccountsByOwner with jsonParsed encoding and
// returns result.value. An empty value yields ErrNoData.
func (s *Solana) FetchRecords(ctx context.Context, contract string) ([]model.RawRecord, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	filter := map[string]string{"programId": TokenProgramID}
	if s.cfg.Mint != "" {
		filter = map[string]string{"mint": s.cfg.Mint}
	}
	opts := map[string]string{"encoding": "jsonParsed"}

	var res tokenAccounts
	call := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		return s.client.CallContext(ctx, &res, "getTokenAccountsByOwner", contract, filter, opts)
	}

	start := time.Now()
	var err error
	if s.cb != nil {
		err = s.cb.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	s.rec.ObserveFetch("solana", time.Since(start), err)
	if err != nil {
		s.log.Error("solana fetch failed", zap.String("contract", contract), zap.Error(err))
		return nil, fmt.Errorf("solana getTokenAccountsByOwner %s: %w", contract, err)
	}
	if len(res.Value) == 0 {
		return nil, ErrNoData
	}

	out := make([]model.RawRecord, len(res.Value))
	for i, v := range res.Value {
		out[i] = model.RawRecord(v)
	}
	s.log.Debug("solana records fetched", zap.String("contract", contract), zap.Int("records", len(out)))
	return out, nil
}

// Close releases the RPC connection.
func (s *Solana) Close() error {
	s.client.Close()
	return nil
}
