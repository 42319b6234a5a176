package accounting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"autobook/internal/models"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

var (
	ErrNoRefreshToken     = errors.New("no refresh token")
	errRefreshAlreadyUsed = errors.New("token refresh already failed in this batch")
)

const maxResponseBytes = 4 << 20

// apiClient is a small JSON client for one provider's REST API. Every call
// refreshes the access token at most once on 401 and retries at most once.
type apiClient struct {
	provider   models.Provider
	baseURL    string
	httpClient *http.Client
	oauth      *oauth2.Config
	limiter    *rate.Limiter
	decorate   func(req *http.Request, creds *Credentials)
	logger     *zap.Logger
}

func newAPIClient(p models.Provider, opts ProviderOptions, authStyle oauth2.AuthStyle, logger *zap.Logger) *apiClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	var oauthCfg *oauth2.Config
	if opts.TokenURL != "" {
		oauthCfg = &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: authStyle,
			},
		}
	}

	return &apiClient{
		provider:   p,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		oauth:      oauthCfg,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// call performs one API call. On 401 it exchanges the refresh token once and
// retries once; if the refresh fails the original 401 is returned.
func (c *apiClient) call(ctx context.Context, creds *Credentials, method, path string, query url.Values, payload, ret any) error {
	err := c.do(ctx, creds, method, path, query, payload, ret)

	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return err
	}

	if rerr := c.refresh(ctx, creds); rerr != nil {
		c.logger.Warn("Token refresh failed",
			zap.String("provider", string(c.provider)),
			zap.String("path", path),
			zap.Error(rerr),
		)
		return err
	}

	return c.do(ctx, creds, method, path, query, payload, ret)
}

func (c *apiClient) do(ctx context.Context, creds *Credentials, method, path string, query url.Values, payload, ret any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.decorate != nil {
		c.decorate(req, creds)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Provider call failed",
			zap.String("provider", string(c.provider)),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return &apiError{Status: resp.StatusCode, Body: truncateBody(data)}
	}

	if ret != nil && len(data) > 0 {
		if err := json.Unmarshal(data, ret); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *apiClient) refresh(ctx context.Context, creds *Credentials) error {
	if creds.refreshFailed {
		return errRefreshAlreadyUsed
	}
	if c.oauth == nil || creds.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}).Token()
	if err != nil {
		creds.refreshFailed = true
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	creds.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		creds.RefreshToken = tok.RefreshToken
	}
	creds.Expiry = tok.Expiry

	c.logger.Info("Access token refreshed", zap.String("provider", string(c.provider)))
	return nil
}

func truncateBody(data []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		return strings.ToValidUTF8(s[:limit], "")
	}
	return s
}
