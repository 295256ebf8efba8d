// Package tts turns text into MP3 speech using the Google Translate speech
// endpoint. Long text is split into short tokens, each fetched separately,
// and the MP3 segments are concatenated in order.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Options selects the voice for one synthesis.
type Options struct {
	Lang string
	TLD  string
	Slow bool
}

// Synthesizer writes MP3 audio for text to w.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts Options, w io.Writer) error
}

// SynthesisError reports a failed call to the speech endpoint.
type SynthesisError struct {
	Status int
	Token  int
	Err    error
}

func (e *SynthesisError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("speech endpoint returned %d for part %d: %v", e.Status, e.Token, e.Err)
	}
	return fmt.Sprintf("speech request for part %d: %v", e.Token, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

const (
	defaultMaxRetries = 4
	userAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Client calls the speech endpoint.
type Client struct {
	HTTPClient *http.Client
	// BaseURL overrides https://translate.google.<tld>.
	BaseURL string
	// MaxRetries bounds retries on HTTP 429 and 5xx.
	MaxRetries int
	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration
	// Limiter paces outgoing requests; nil means unlimited.
	Limiter *rate.Limiter
}

// NewClient returns a client pacing itself to a few requests per second.
func NewClient() *Client {
	return &Client{
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
		MaxRetries:     defaultMaxRetries,
		RetryBaseDelay: time.Second,
		Limiter:        rate.NewLimiter(rate.Limit(8), 4),
	}
}

// Synthesize implements Synthesizer. Nothing is written to w unless every
// token was fetched.
func (c *Client) Synthesize(ctx context.Context, text string, opts Options, w io.Writer) error {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return &SynthesisError{Err: errors.New("no speakable text")}
	}

	var buf bytes.Buffer
	for i, tok := range tokens {
		data, err := c.fetch(ctx, tok, i, len(tokens), opts)
		if err != nil {
			return err
		}
		buf.Write(data)
	}
	slog.Debug("speech synthesized", "lang", opts.Lang, "tokens", len(tokens), "bytes", buf.Len())
	_, err := buf.WriteTo(w)
	return err
}

func (c *Client) endpoint(tld string) string {
	if c.BaseURL != "" {
		return c.BaseURL + "/translate_tts"
	}
	if tld == "" {
		tld = "com"
	}
	return "https://translate.google." + tld + "/translate_tts"
}

func (c *Client) fetch(ctx context.Context, token string, idx, total int, opts Options) ([]byte, error) {
	speed := "1"
	if opts.Slow {
		speed = "0.3"
	}
	q := url.Values{
		"ie":       {"UTF-8"},
		"q":        {token},
		"tl":       {opts.Lang},
		"total":    {strconv.Itoa(total)},
		"idx":      {strconv.Itoa(idx)},
		"textlen":  {strconv.Itoa(len([]rune(token)))},
		"client":   {"tw-ob"},
		"ttsspeed": {speed},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(opts.TLD)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &SynthesisError{Token: idx, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "https://translate.google.com/")

	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, &SynthesisError{Token: idx, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, &SynthesisError{Status: resp.StatusCode, Token: idx, Err: fmt.Errorf("%s", bytes.TrimSpace(snippet))}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SynthesisError{Token: idx, Err: err}
	}
	if len(data) == 0 {
		return nil, &SynthesisError{Status: resp.StatusCode, Token: idx, Err: errors.New("empty audio response")}
	}
	return data, nil
}

// doWithRetry retries 429 and 5xx responses with exponential backoff. After
// the last attempt the failing response is returned for the caller to report.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	for attempt := 0; ; attempt++ {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		resp, err := httpClient.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if !retryable || attempt >= c.MaxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := time.Duration(math.Pow(2, float64(attempt))) * c.RetryBaseDelay
		slog.Warn("speech endpoint busy, retrying", "status", resp.StatusCode, "backoff", backoff, "attempt", attempt+1)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}
