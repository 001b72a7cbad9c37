// Package djen implements monitor.FeedClient against the DJEN
// communication API at comunica.pje.jus.br.
package djen

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lexwatch/dje-monitor/internal/metrics"
	"github.com/lexwatch/dje-monitor/internal/monitor"
)

const defaultBaseURL = "https://comunica.pje.jus.br"

// Config controls client behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	PageSize  int
}

// Client queries the DJEN search endpoint page by page.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client with a pooled transport.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newHTTPTransport(),
		},
	}
}

func newHTTPTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
}

// searchResponse is the wire shape of the communication endpoint. The API
// has shipped both snake_case and camelCase field names over time, so each
// record keeps the alternates and coalesces on decode.
type searchResponse struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Count   int          `json:"count"`
	Items   []searchItem `json:"items"`
}

type searchItem struct {
	CourtAcronym      string `json:"siglaTribunal"`
	CourtAlt          string `json:"tribunal"`
	ProcessNumber     string `json:"numero_processo"`
	ProcessAlt        string `json:"processo"`
	AvailabilityDate  string `json:"data_disponibilizacao"`
	Body              string `json:"texto"`
	Organ             string `json:"nomeOrgao"`
	OrganAlt          string `json:"orgao"`
	CommunicationType string `json:"tipoComunicacao"`
	CommunicationAlt  string `json:"tipo_comunicacao"`
	Link              string `json:"link"`
}

func (it searchItem) toRecord() monitor.FeedRecord {
	return monitor.FeedRecord{
		Court:             coalesce(it.CourtAcronym, it.CourtAlt),
		ProcessNumber:     coalesce(it.ProcessNumber, it.ProcessAlt),
		AvailabilityDate:  it.AvailabilityDate,
		Body:              it.Body,
		Organ:             coalesce(it.Organ, it.OrganAlt),
		CommunicationType: coalesce(it.CommunicationType, it.CommunicationAlt),
		Link:              it.Link,
	}
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Search fetches one page of communications for a party name. Records come
// back in feed order. Transport failures and retryable statuses (429, 5xx)
// return a monitor.TransientFeedError; other non-2xx statuses are permanent.
func (c *Client) Search(ctx context.Context, name, court string, page int) ([]monitor.FeedRecord, error) {
	endpoint, err := c.searchURL(name, court, page)
	if err != nil {
		return nil, monitor.Permanent(0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, monitor.Permanent(0, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveFeedRequest("error", time.Since(start))
		return nil, monitor.Transient(fmt.Errorf("feed request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ObserveFeedRequest("error", time.Since(start))
		statusErr := fmt.Errorf("feed status %d", resp.StatusCode)
		if retryableStatus(resp.StatusCode) {
			return nil, monitor.Transient(statusErr)
		}
		return nil, monitor.Permanent(resp.StatusCode, statusErr)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.ObserveFeedRequest("error", time.Since(start))
		return nil, monitor.Transient(fmt.Errorf("decode feed response: %w", err))
	}
	metrics.ObserveFeedRequest("ok", time.Since(start))

	records := make([]monitor.FeedRecord, 0, len(body.Items))
	for _, it := range body.Items {
		records = append(records, it.toRecord())
	}
	return records, nil
}

func (c *Client) searchURL(name, court string, page int) (string, error) {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	base.Path = "/api/v1/comunicacao"

	q := url.Values{}
	q.Set("nomeParte", name)
	q.Set("pagina", strconv.Itoa(page))
	q.Set("itensPorPagina", strconv.Itoa(c.cfg.PageSize))
	if court != "" {
		q.Set("siglaTribunal", court)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
