package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"evernote-syncd/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// ClientOptions configures the HTTP note store client. Zero values fall
// back to sensible defaults.
type ClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *log.Logger
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client talks JSON over HTTP to an Evernote-style note store. User-level
// calls go to <base>/edam/user; note-store calls go to
// <base>/edam/note/<shard>, where the shard is learned from Authenticate.
// 429 and 5xx responses are retried with capped exponential backoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	shardID    string
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://sandbox.evernote.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

func (c *Client) userURL(path string) string {
	return c.baseURL + "/edam/user" + path
}

func (c *Client) noteURL(path string) string {
	return c.baseURL + "/edam/note/" + c.shardID + path
}

func (c *Client) CheckVersion(ctx context.Context, clientName string) (bool, error) {
	var out struct {
		OK bool `json:"ok"`
	}
	payload := map[string]any{"client": clientName, "major": edamVersionMajor, "minor": edamVersionMinor}
	if err := c.do(ctx, http.MethodPost, c.userURL("/version"), "", payload, &out); err != nil {
		return false, err
	}
	return out.OK, nil
}

func (c *Client) Authenticate(ctx context.Context, creds domain.Credentials) (domain.AuthResult, error) {
	payload := map[string]any{
		"username":       creds.Username,
		"password":       creds.Password,
		"consumerKey":    creds.ConsumerKey,
		"consumerSecret": creds.ConsumerSecret,
	}
	var res domain.AuthResult
	if err := c.do(ctx, http.MethodPost, c.userURL("/auth"), "", payload, &res); err != nil {
		return domain.AuthResult{}, err
	}
	if res.Token == "" || res.ShardID == "" {
		return domain.AuthResult{}, newError(KindAuth, 0, "authentication response missing token or shard", nil)
	}
	c.shardID = res.ShardID
	if res.Expires == 0 {
		res.Expires = tokenExpiry(res.Token)
	}
	return res, nil
}

// tokenExpiry pulls the expiry claim out of a JWT-shaped session token
// without verifying it; the store signed it, we only schedule around it.
// Returns 0 for tokens that are not JWTs or carry no expiry.
func tokenExpiry(token string) int64 {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	return exp.UnixMilli()
}

func (c *Client) ListNotebooks(ctx context.Context, token string) ([]domain.Notebook, error) {
	var out []domain.Notebook
	if err := c.do(ctx, http.MethodGet, c.noteURL("/notebooks"), token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateNotebook(ctx context.Context, token string, nb domain.Notebook) (domain.Notebook, error) {
	var out domain.Notebook
	if err := c.do(ctx, http.MethodPost, c.noteURL("/notebooks"), token, nb, &out); err != nil {
		return domain.Notebook{}, err
	}
	return out, nil
}

func (c *Client) FindNotes(ctx context.Context, token, notebookGUID string, offset, max int) ([]domain.RemoteNote, error) {
	payload := map[string]any{"notebookGuid": notebookGUID, "offset": offset, "maxNotes": max}
	var out struct {
		Notes []domain.RemoteNote `json:"notes"`
	}
	if err := c.do(ctx, http.MethodPost, c.noteURL("/notes/find"), token, payload, &out); err != nil {
		return nil, err
	}
	return out.Notes, nil
}

func (c *Client) GetNoteContent(ctx context.Context, token, guid string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	if err := c.do(ctx, http.MethodGet, c.noteURL("/notes/"+guid+"/content"), token, nil, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

func (c *Client) CreateNote(ctx context.Context, token string, note domain.RemoteNote) (domain.RemoteNote, error) {
	var out domain.RemoteNote
	if err := c.do(ctx, http.MethodPost, c.noteURL("/notes"), token, note, &out); err != nil {
		return domain.RemoteNote{}, err
	}
	return out, nil
}

func (c *Client) UpdateNote(ctx context.Context, token string, note domain.RemoteNote) (domain.RemoteNote, error) {
	var out domain.RemoteNote
	if err := c.do(ctx, http.MethodPut, c.noteURL("/notes/"+note.GUID), token, note, &out); err != nil {
		return domain.RemoteNote{}, err
	}
	return out, nil
}

func (c *Client) GetSyncState(ctx context.Context, token string) (domain.SyncState, error) {
	var out domain.SyncState
	if err := c.do(ctx, http.MethodGet, c.noteURL("/sync/state"), token, nil, &out); err != nil {
		return domain.SyncState{}, err
	}
	return out, nil
}

func (c *Client) GetSyncChunk(ctx context.Context, token string, afterUSN, maxEntries int, fullContent bool) (domain.SyncChunk, error) {
	url := fmt.Sprintf("%s?afterUSN=%d&maxEntries=%d&fullContent=%t", c.noteURL("/sync/chunk"), afterUSN, maxEntries, fullContent)
	var out domain.SyncChunk
	if err := c.do(ctx, http.MethodGet, url, token, nil, &out); err != nil {
		return domain.SyncChunk{}, err
	}
	return out, nil
}

const (
	edamVersionMajor = 1
	edamVersionMinor = 25
)

func (c *Client) do(ctx context.Context, method, url, token string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return newError(KindTransport, 0, "encode request", err)
		}
	}

	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return newError(KindTransport, 0, "build request", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return newError(KindTransport, 0, "request cancelled", waitErr)
				}
				continue
			}
			return newError(KindTransport, 0, "request failed", err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return newError(KindTransport, 0, "read response", readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return newError(KindRemote, resp.StatusCode, "decode response", err)
			}
			return nil
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if retryable && attempt < c.maxRetries {
			c.logger.Printf("[remote] %s %s returned %d, retrying (attempt %d/%d)", method, url, resp.StatusCode, attempt+1, c.maxRetries)
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return newError(KindTransport, 0, "request cancelled", waitErr)
			}
			continue
		}

		return c.statusError(resp.StatusCode, respBody)
	}
}

func (c *Client) statusError(status int, body []byte) *Error {
	message := strings.TrimSpace(string(body))
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		message = parsed.Message
	}

	kind := KindRemote
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusUpgradeRequired:
		kind = KindVersion
	}
	return newError(kind, status, message, nil)
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
