package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "modwatch/pkg/logx"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultMaxBody      = 8 << 20
)

// Config controls the upstream feed fetcher.
type Config struct {
	URL          string
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
	Fields       Fields
}

// Fetcher performs the single GET per cycle against the mods endpoint.
type Fetcher struct {
	cfg    Config
	client *http.Client
	log    logx.Logger
}

func NewFetcher(cfg Config, client *http.Client, log logx.Logger) *Fetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = "modwatch/1"
	}
	cfg.Fields = cfg.Fields.WithDefaults()
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{cfg: cfg, client: client, log: log}
}

// Fetch returns the current item list.
//
// Transport errors, bad statuses and malformed bodies are logged here and
// come back as a nil list plus the error, so an upstream outage looks like
// "nothing new" rather than "everything deleted". Callers only need the
// error for accounting.
func (f *Fetcher) Fetch(ctx context.Context) ([]Item, error) {
	items, err := f.fetch(ctx)
	if err != nil {
		f.log.Error("fetch failed", logx.String("url", f.cfg.URL), logx.Err(err))
		return nil, err
	}
	f.log.Info("fetched mods", logx.Int("count", len(items)))
	return items, nil
}

func (f *Fetcher) fetch(ctx context.Context) ([]Item, error) {
	if strings.TrimSpace(f.cfg.URL) == "" {
		return nil, errors.New("feed url is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet(body))
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", f.cfg.MaxBodyBytes)
	}
	return f.decode(body)
}

func (f *Fetcher) decode(body []byte) ([]Item, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	items := make([]Item, 0, len(raws))
	for i, raw := range raws {
		it, err := f.cfg.Fields.Decode(raw)
		if err != nil {
			f.log.Debug("dropping non-object entry", logx.Int("index", i), logx.Err(err))
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
