package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tokenwatch/internal/model"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// DateLayout is the date format of the historical_data query parameters.
const DateLayout = "2006-01-02"

// History reads price series from the historical_data endpoint.
type History struct {
	base   string
	client *http.Client
	rec    Recorder
	log    *zap.Logger
}

// NewHistory creates a client for baseURL. A zero timeout defaults to 15s.
func NewHistory(baseURL string, timeout time.Duration, rec Recorder, log *zap.Logger) *History {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &History{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
		rec:    rec,
		log:    log,
	}
}

// FetchHistory returns the points served for contract between start and
// end, in response order. Entries without a numeric price are skipped.
func (h *History) FetchHistory(ctx context.Context, contract string, start, end time.Time) ([]model.PricePoint, error) {
	q := url.Values{}
	q.Set("contract_address", contract)
	q.Set("start_date", start.Format(DateLayout))
	q.Set("end_date", end.Format(DateLayout))
	u := h.base + "/historical_data?" + q.Encode()

	t0 := time.Now()
	points, err := h.get(ctx, u)
	h.rec.ObserveFetch("historical", time.Since(t0), err)
	if err != nil {
		h.log.Error("historical fetch failed", zap.String("contract", contract), zap.Error(err))
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrNoData
	}
	return points, nil
}

func (h *History) get(ctx context.Context, u string) ([]model.PricePoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("historical request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("historical read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("historical status %d: %s", resp.StatusCode, snippet)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("historical: invalid JSON body")
	}
	return ParseHistory(body), nil
}

// ParseHistory decodes a historical_data body: either a top-level array or
// an object with a "data" array. Each element carries "price" and one of
// "timestamp", "date" or "ts".
func ParseHistory(body []byte) []model.PricePoint {
	root := gjson.ParseBytes(body)
	if root.IsObject() {
		root = root.Get("data")
	}
	if !root.IsArray() {
		return nil
	}

	var out []model.PricePoint
	root.ForEach(func(_, item gjson.Result) bool {
		price := item.Get("price")
		var p float64
		switch price.Type {
		case gjson.Number:
			p = price.Float()
		case gjson.String:
			v := gjson.Parse(price.Str)
			if v.Type != gjson.Number {
				return true
			}
			p = v.Float()
		default:
			return true
		}
		out = append(out, model.PricePoint{TS: parseTS(item), Price: p})
		return true
	})
	return out
}

func parseTS(item gjson.Result) time.Time {
	for _, key := range []string{"timestamp", "date", "ts"} {
		v := item.Get(key)
		switch v.Type {
		case gjson.Number:
			n := v.Int()
			// millisecond epochs
			if n > 1e12 {
				return time.UnixMilli(n).UTC()
			}
			return time.Unix(n, 0).UTC()
		case gjson.String:
			for _, layout := range []string{time.RFC3339, DateLayout, "2006-01-02 15:04:05"} {
				if t, err := time.Parse(layout, v.Str); err == nil {
					return t.UTC()
				}
			}
		}
	}
	return time.Time{}
}
