package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const DefaultEndpoint = "https://www.googleapis.com/"

// HTTPClient calls the oauth2/v2 userinfo endpoint with the caller's token.
type HTTPClient struct {
	endpoint string
	timeout  time.Duration
	base     *http.Client
}

func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{endpoint: endpoint, timeout: timeout, base: http.DefaultClient}
}

func (c *HTTPClient) Lookup(ctx context.Context, accessToken string) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// oauth2.NewClient picks the base transport up from the context.
	httpClient := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, c.base),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
	)
	httpClient.Timeout = c.timeout

	svc, err := oauth2api.NewService(ctx, option.WithHTTPClient(httpClient), option.WithEndpoint(c.endpoint))
	if err != nil {
		return Account{}, fmt.Errorf("create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Account{}, classify(err)
	}
	if info == nil || strings.TrimSpace(info.Email) == "" {
		return Account{}, fmt.Errorf("%w: email missing", ErrMalformed)
	}
	return Account{Email: info.Email, Name: info.Name, Picture: info.Picture}, nil
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= http.StatusInternalServerError {
			return fmt.Errorf("%w: status %d", ErrServer, apiErr.Code)
		}
		return fmt.Errorf("%w: status %d", ErrClient, apiErr.Code)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeoutOrUnreachable, err)
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", ErrTimeoutOrUnreachable, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}
