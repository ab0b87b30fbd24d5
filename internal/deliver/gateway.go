package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "courtcast/pkg/logx"
)

// GatewayConfig points at the chat-gateway emulator.
type GatewayConfig struct {
	URL        string
	Token      string
	RatePerSec int
}

// Gateway posts messages to the external chat gateway and reports its
// {status, result} envelope back verbatim.
type Gateway struct {
	cfg  GatewayConfig
	http *http.Client
	lim  *rate.Limiter
	log  logx.Logger
}

func NewGateway(cfg GatewayConfig, log logx.Logger) *Gateway {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	return &Gateway{
		cfg: cfg,
		// No client-level timeout; each attempt is bounded by the retry
		// policy's per-attempt context.
		http: &http.Client{},
		lim:  rate.NewLimiter(rate.Limit(rps), rps),
		log:  log,
	}
}

func (g *Gateway) Send(ctx context.Context, m Message) (Response, error) {
	if err := g.lim.Wait(ctx); err != nil {
		return Response{}, err
	}

	b, err := json.Marshal(m)
	if err != nil {
		return Response{}, err
	}

	url := strings.TrimRight(g.cfg.URL, "/") + "/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	}

	start := time.Now()
	resp, err := g.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("gateway response decode (http=%d): %w", resp.StatusCode, err)
	}

	g.log.Debug("gateway send",
		logx.String("destination", m.Destination),
		logx.String("status", out.Status),
		logx.Int("http", resp.StatusCode),
		logx.Duration("dur", time.Since(start)),
	)
	return out, nil
}
