package judge0

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
	"time"

	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"github.com/zeromicro/go-zero/core/breaker"
	"go.uber.org/zap"
)

const (
	defaultPollInterval    = time.Second
	defaultMaxPollAttempts = 30
	defaultRequestTimeout  = 10 * time.Second
	maxErrorBodyBytes      = 512
)

// Config configures the Judge0 client.
type Config struct {
	BaseURL string `yaml:"baseURL"`
	// AuthToken is sent as X-Auth-Token to self-hosted instances.
	AuthToken       string        `yaml:"authToken"`
	RapidAPIKey     string        `yaml:"rapidAPIKey"`
	RapidAPIHost    string        `yaml:"rapidAPIHost"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	PollInterval    time.Duration `yaml:"pollInterval"`
	MaxPollAttempts int           `yaml:"maxPollAttempts"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = defaultMaxPollAttempts
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Client talks to the Judge0 batch API. It never retries on its own.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker breaker.Breaker
}

// NewClient creates a client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	cfg.ApplyDefaults()
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("judge0 base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid judge0 base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		breaker: breaker.NewBreaker(breaker.WithName("judge0:" + cfg.BaseURL)),
	}, nil
}

// SubmitBatch creates one execution per item and returns the tokens in item order.
func (c *Client) SubmitBatch(ctx context.Context, items []BatchItem) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	req := batchRequest{Submissions: make([]submissionRequest, 0, len(items))}
	for _, item := range items {
		req.Submissions = append(req.Submissions, submissionRequest{
			SourceCode:     encodeBase64(item.SourceCode),
			LanguageID:     item.LanguageID,
			Stdin:          encodeBase64(item.Stdin),
			ExpectedOutput: encodeBase64(item.ExpectedOutput),
		})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "encode judge batch failed")
	}

	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/submissions/batch?base64_encoded=true", body, &raw); err != nil {
		return nil, err
	}
	if len(raw) != len(items) {
		return nil, appErr.New(appErr.JudgeUnavailable).
			WithMessagef("judge returned %d tokens for %d submissions", len(raw), len(items))
	}
	tokens := make([]string, 0, len(raw))
	for i, entry := range raw {
		var tr tokenResponse
		if err := json.Unmarshal(entry, &tr); err != nil || tr.Token == "" {
			return nil, appErr.New(appErr.JudgeUnavailable).
				WithMessagef("judge rejected submission %d", i).
				WithDetail("response", string(entry))
		}
		tokens = append(tokens, tr.Token)
	}
	logger.Debug(ctx, "judge batch submitted", zap.Int("count", len(tokens)))
	return tokens, nil
}

// AwaitResults polls until every token is terminal. Results follow the token order.
func (c *Client) AwaitResults(ctx context.Context, tokens []string) ([]Result, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	path := "/submissions/batch?tokens=" + url.QueryEscape(strings.Join(tokens, ",")) +
		"&base64_encoded=true&fields=*"

	timer := time.NewTimer(0)
	defer timer.Stop()
	for attempt := 1; attempt <= c.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, c.pollTimeout(ctx.Err(), tokens, attempt-1)
		case <-timer.C:
		}

		results, done, err := c.poll(ctx, path, tokens)
		if err != nil {
			if ctx.Err() != nil {
				return nil, c.pollTimeout(ctx.Err(), tokens, attempt)
			}
			return nil, err
		}
		if done {
			return results, nil
		}
		timer.Reset(c.cfg.PollInterval)
	}
	return nil, c.pollTimeout(nil, tokens, c.cfg.MaxPollAttempts)
}

func (c *Client) poll(ctx context.Context, path string, tokens []string) ([]Result, bool, error) {
	var resp batchResultResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, false, err
	}
	byToken := make(map[string]Result, len(resp.Submissions))
	for _, raw := range resp.Submissions {
		res, err := raw.decode()
		if err != nil {
			return nil, false, appErr.Wrapf(err, appErr.JudgeUnavailable, "decode judge result %s failed", raw.Token)
		}
		byToken[res.Token] = res
	}
	results := make([]Result, len(tokens))
	for i, token := range tokens {
		res, ok := byToken[token]
		if !ok || !res.Status.Terminal() {
			return nil, false, nil
		}
		results[i] = res
	}
	return results, true, nil
}

func (c *Client) pollTimeout(cause error, tokens []string, attempts int) error {
	e := appErr.New(appErr.JudgeTimeout).
		WithMessagef("judge did not finish %d submission(s) after %d poll(s)", len(tokens), attempts)
	e.Err = cause
	return e
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	err := c.breaker.DoWithAcceptable(func() error {
		return c.send(ctx, method, path, body, out)
	}, acceptable)
	if errors.Is(err, breaker.ErrServiceUnavailable) {
		return appErr.Wrapf(err, appErr.JudgeUnavailable, "judge circuit is open")
	}
	return err
}

// acceptable keeps caller cancellation from tripping the breaker.
func acceptable(err error) bool {
	return err == nil || appErr.Is(err, appErr.JudgeTimeout)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeUnavailable, "build judge request failed")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("X-Auth-Token", c.cfg.AuthToken)
	}
	if c.cfg.RapidAPIKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.cfg.RapidAPIKey)
		if c.cfg.RapidAPIHost != "" {
			req.Header.Set("X-RapidAPI-Host", c.cfg.RapidAPIHost)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return appErr.Wrapf(err, appErr.JudgeTimeout, "judge request cancelled")
		}
		return appErr.Wrapf(err, appErr.JudgeUnavailable, "judge request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeUnavailable, "read judge response failed")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(data)
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		return appErr.New(appErr.JudgeUnavailable).
			WithMessagef("judge responded with status %d", resp.StatusCode).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", snippet)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return appErr.Wrapf(err, appErr.JudgeUnavailable, "decode judge response failed")
	}
	return nil
}
