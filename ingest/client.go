package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/barledger_backend/models"
)

// exportClient pulls a POS export file over HTTP. Download is deliberately
// decoupled from the transactional write phase: FetchExport returns the whole
// body and holds no storage resources.
type exportClient struct {
	url       string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

func newExportClient(conn *models.POSConnection) (*exportClient, error) {
	exportURL := strings.TrimSpace(conn.ExportURL)
	if exportURL == "" {
		return nil, errors.New("connection has no export url")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("POS_EXPORT_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	rateLimitPerMin := int64(10)
	if v := strings.TrimSpace(os.Getenv("POS_EXPORT_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &exportClient{
		url:       exportURL,
		apiKey:    strings.TrimSpace(conn.AuthSecretRef),
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 120 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

func (c *exportClient) FetchExport(ctx context.Context) ([]byte, error) {
	select {
	case <-c.limiter:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHdr, c.apiKey)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("export download error %d: %s", resp.StatusCode, strings.TrimSpace(truncate(string(body), 500)))
	}
	if len(body) == 0 {
		return nil, errors.New("export download returned empty body")
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
