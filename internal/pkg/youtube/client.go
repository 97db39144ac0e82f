package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/titlepulse/titlepulse-api/internal/domain/account"
	"github.com/titlepulse/titlepulse-api/internal/domain/quota"
	"github.com/titlepulse/titlepulse-api/internal/pkg/metrics"
	"github.com/titlepulse/titlepulse-api/internal/pkg/tokencipher"
)

const defaultTimeout = 15 * time.Second

// QuotaLedger is the admission-control surface the client consults before
// every remote call, and reports to after every successful one.
type QuotaLedger interface {
	CheckQuota(ctx context.Context, op quota.Operation) *quota.CheckResult
	RecordUsage(ctx context.Context, op quota.Operation) error
}

// AccountStore provides credential load/refresh persistence
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error)
	UpdateAccessToken(ctx context.Context, id uuid.UUID, encryptedToken string, expiry time.Time) error
	MarkConnectionInvalid(ctx context.Context, id uuid.UUID) error
}

// Config holds YouTube client configuration
type Config struct {
	APIBaseURL   string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client isolates all calls to the YouTube Data API. Every operation ensures
// a valid access token, passes a quota admission check, performs the remote
// call, and records usage only on success.
type Client struct {
	cfg      Config
	http     *http.Client
	cipher   *tokencipher.Cipher
	accounts AccountStore
	quota    QuotaLedger
	metrics  *metrics.Metrics

	now func() time.Time
}

// NewClient creates a new YouTube API client
func NewClient(cfg Config, cipher *tokencipher.Cipher, accounts AccountStore, ledger QuotaLedger, m *metrics.Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		cfg: Config{
			APIBaseURL:   strings.TrimRight(cfg.APIBaseURL, "/"),
			TokenURL:     cfg.TokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Timeout:      cfg.Timeout,
		},
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		cipher:   cipher,
		accounts: accounts,
		quota:    ledger,
		metrics:  m,
		now:      time.Now,
	}
}

// checkQuota wraps the admission check into an error when denied
func (c *Client) checkQuota(ctx context.Context, op quota.Operation) error {
	check := c.quota.CheckQuota(ctx, op)
	if !check.Allowed {
		return fmt.Errorf("%w: %d units remaining", quota.ErrQuotaExceeded, check.RemainingQuota)
	}
	return nil
}

// recordUsage mirrors the charge into the ledger. Best effort: the remote
// service already charged the units, so a failed record only under-counts.
func (c *Client) recordUsage(ctx context.Context, op quota.Operation) {
	if err := c.quota.RecordUsage(ctx, op); err != nil {
		log.Warn().Err(err).Str("operation", string(op)).Msg("Failed to record quota usage")
	}
	if c.metrics != nil {
		c.metrics.PlatformCallsTotal.WithLabelValues(string(op)).Inc()
	}
}

func (c *Client) countError(op quota.Operation) {
	if c.metrics != nil {
		c.metrics.PlatformErrorsTotal.WithLabelValues(string(op)).Inc()
	}
}

// doGet performs an authenticated GET against the Data API
func (c *Client) doGet(ctx context.Context, token, path string, query url.Values, out interface{}) error {
	endpoint := c.cfg.APIBaseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("youtube request error: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyRequestError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// doPut performs an authenticated PUT with a JSON body
func (c *Client) doPut(ctx context.Context, token, path string, query url.Values, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("youtube request error: %w", err)
	}

	endpoint := c.cfg.APIBaseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("youtube request error: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyRequestError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	// Drain so the connection can be reused
	io.Copy(io.Discard, resp.Body)
	return nil
}

func apiError(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if readErr != nil {
		return fmt.Errorf("youtube http error: status=%d body=<failed to read body: %v>", resp.StatusCode, readErr)
	}
	return fmt.Errorf("youtube http error: status=%d body=%s", resp.StatusCode, string(body))
}

func classifyRequestError(ctx context.Context, err error) error {
	if isTimeoutError(ctx, err) {
		return fmt.Errorf("youtube timeout: %w", err)
	}
	if isNetworkError(err) {
		return fmt.Errorf("youtube network error: %w", err)
	}
	return fmt.Errorf("youtube request error: %w", err)
}

func isTimeoutError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	return false
}
