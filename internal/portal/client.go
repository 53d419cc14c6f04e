// Package portal is the HTTP boundary to the logistics portal: slot
// pages, booking edit forms and change submissions. The portal is
// rate-sensitive, so every call goes through a shared limiter.
package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"slotwatch/internal/config"
	"slotwatch/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Client struct {
	baseURL     string
	slotsPath   string
	editPath    string
	profilePath string

	cookieName  string
	cookieValue string

	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewClient constructs a portal client from config.
func NewClient(cfg config.PortalConfig, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		slotsPath:   cfg.SlotsPath,
		editPath:    cfg.EditFormPath,
		profilePath: cfg.ProfilePath,
		cookieName:  cfg.SessionCookie,
		cookieValue: cfg.SessionValue,
		httpClient:  &http.Client{Timeout: cfg.Timeout()},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst),
		logger:      logger,
	}
}

// FetchSlots returns the raw slot-availability page for a calendar date
// in "DD.MM.YYYY" form.
func (c *Client) FetchSlots(ctx context.Context, date string) (string, error) {
	endpoint := fmt.Sprintf("%s%s?date=%s", c.baseURL, c.slotsPath, url.QueryEscape(date))
	return c.getText(ctx, endpoint)
}

// FetchEditForm returns the edit-form HTML for a booking.
func (c *Client) FetchEditForm(ctx context.Context, tvAppID string) (string, error) {
	endpoint := fmt.Sprintf("%s%s?id=%s", c.baseURL, c.editPath, url.QueryEscape(tvAppID))
	return c.getText(ctx, endpoint)
}

// SubmitBooking resubmits the cached form payload to the item's
// submission endpoint and returns the raw response text. The caller
// checks the text for the portal's literal "error" marker.
func (c *Client) SubmitBooking(ctx context.Context, submitURL string, body models.SubmitBody) (string, error) {
	form := url.Values{}
	for k, v := range body.Form {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.doText(ctx, req, false)
}

// IsAuthenticated probes the profile page. Any failure counts as a lost
// session.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	_, err := c.getText(ctx, c.baseURL+c.profilePath)
	return err == nil
}

// CurrentUser extracts the account name from the profile page; empty
// when unavailable.
func (c *Client) CurrentUser(ctx context.Context) string {
	body, err := c.getText(ctx, c.baseURL+c.profilePath)
	if err != nil {
		return ""
	}
	return extractProfileUser(body)
}

func (c *Client) getText(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	return c.doText(ctx, req, true)
}

// doText runs one request through the limiter and normalizes HTTP-level
// failures into *Error values. checkContent additionally rejects
// login/error pages served with a 200.
func (c *Client) doText(ctx context.Context, req *http.Request, checkContent bool) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	if c.cookieName != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.cookieValue})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("portal request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read portal response: %w", err)
	}
	body := string(raw)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", &Error{Kind: KindClient, StatusCode: resp.StatusCode, Message: "unauthorized"}
	case resp.StatusCode >= 500:
		return "", &Error{Kind: KindServer, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	case resp.StatusCode >= 400:
		return "", &Error{Kind: KindClient, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if checkContent && IsErrorPage(body) {
		c.logger.Debug().Str("url", req.URL.String()).Msg("portal served an error/login page")
		return "", &Error{Kind: KindHTML, Message: "error page instead of content"}
	}

	return body, nil
}
