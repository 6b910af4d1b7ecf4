package request

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	userAgent       = "Mozilla/5.0 (compatible; market-telegram-bot/1.0)"
	maxResponseBody = 4 << 20
)

// secretParams are query parameters that carry credentials.
var secretParams = map[string]bool{
	"apikey": true, "api_key": true, "api_token": true, "token": true, "key": true,
}

// StatusError is returned for any non-200 response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Get performs a GET request and returns the body of a 200 response.
// The response body is always closed.
// Errors never contain the credentials of rawURL.
func Get(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Errorf("could not build request for %s", Redact(rawURL))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, errors.Wrapf(urlErr.Err, "%s %s failed", urlErr.Op, Redact(urlErr.URL))
		}
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.Wrap(err, "could not read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: Truncate(string(body), 200)}
	}
	return body, nil
}

// GetJSON performs a GET request and decodes a 200 response into out.
func GetJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	body, err := Get(ctx, client, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "malformed response: %s", Truncate(string(body), 200))
	}
	return nil
}

// Redact replaces the values of credential query parameters.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	for k := range q {
		if secretParams[strings.ToLower(k)] {
			q.Set(k, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Truncate cuts s to at most n bytes without splitting a character.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
