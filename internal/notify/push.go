// Package notify delivers push notifications to user devices and mail to
// administrators.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/policy"
)

// ErrTransport means the push service could not be reached. Nothing about
// individual tokens can be concluded from it.
var ErrTransport = errors.New("notify: push transport failure")

// TokenResult is the per-token outcome of a multicast.
type TokenResult struct {
	Token string
	// Status is the HTTP status returned for this token.
	Status int
	Err    error
	// Stale is set when the push service says the token itself is gone or
	// malformed. Only stale tokens may be pruned.
	Stale bool
}

func (r TokenResult) Success() bool { return r.Err == nil }

// BatchResponse mirrors the shape of an FCM multicast response.
type BatchResponse struct {
	SuccessCount int
	FailureCount int
	Responses    []TokenResult
}

// StaleTokens returns the tokens the push service reported as unregistered
// or invalid.
func (b BatchResponse) StaleTokens() []string {
	var out []string
	for _, r := range b.Responses {
		if r.Stale {
			out = append(out, r.Token)
		}
	}
	return out
}

type Gateway interface {
	SendMulticast(ctx context.Context, msg policy.Envelope, tokens []string) (BatchResponse, error)
}

type FCMConfig struct {
	Endpoint        string
	ProjectID       string
	AccessToken     string
	Timeout         time.Duration
	MaxRetries      int
	BreakerFailures int
	BreakerOpenFor  time.Duration
}

// FCMGateway talks to the FCM HTTP v1 API, one request per token.
type FCMGateway struct {
	cfg    FCMConfig
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

func NewFCMGateway(cfg FCMConfig) *FCMGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	fails := uint32(cfg.BreakerFailures)
	return &FCMGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "fcm",
			Interval: time.Minute,
			Timeout:  cfg.BreakerOpenFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= fails
			},
		}),
	}
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (g *FCMGateway) url() string {
	return fmt.Sprintf("%s/v1/projects/%s/messages:send", strings.TrimRight(g.cfg.Endpoint, "/"), g.cfg.ProjectID)
}

type fcmErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

type fcmReply struct {
	status int
	body   []byte
}

// stale reports whether an FCM answer condemns the token rather than the
// request or the sender.
func (r fcmReply) stale() bool {
	var e fcmErrorBody
	_ = json.Unmarshal(r.body, &e)
	for _, d := range e.Error.Details {
		if d.ErrorCode == "UNREGISTERED" {
			return true
		}
	}
	switch r.status {
	case http.StatusNotFound:
		return true
	case http.StatusBadRequest:
		return e.Error.Status == "INVALID_ARGUMENT" && strings.Contains(strings.ToLower(e.Error.Message), "registration token")
	}
	return false
}

// SendMulticast stops at the first transport failure and reports it as
// ErrTransport, together with the results gathered so far. Credential
// (401, 403) and quota (429) answers are transport failures too: they say
// nothing about the token.
func (g *FCMGateway) SendMulticast(ctx context.Context, msg policy.Envelope, tokens []string) (BatchResponse, error) {
	var br BatchResponse
	for _, tok := range tokens {
		reply, err := g.sendOne(ctx, msg, tok)
		if err != nil {
			return br, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		res := TokenResult{Token: tok, Status: reply.status}
		if reply.status >= 300 {
			res.Err = fmt.Errorf("fcm: token rejected with status %d", reply.status)
			res.Stale = reply.stale()
			br.FailureCount++
		} else {
			br.SuccessCount++
		}
		br.Responses = append(br.Responses, res)
	}
	return br, nil
}

func (g *FCMGateway) sendOne(ctx context.Context, msg policy.Envelope, token string) (fcmReply, error) {
	body, err := json.Marshal(fcmRequest{Message: fcmMessage{
		Token:        token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	}})
	if err != nil {
		return fcmReply{}, err
	}

	res, err := g.cb.Execute(func() (interface{}, error) {
		var reply fcmReply
		op := func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url(), bytes.NewReader(body))
			if err != nil {
				return backoff.Permanent(err)
			}
			req.Header.Set("Content-Type", "application/json")
			if g.cfg.AccessToken != "" {
				req.Header.Set("Authorization", "Bearer "+g.cfg.AccessToken)
			}
			resp, err := g.client.Do(req)
			if err != nil {
				return err
			}
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			_ = resp.Body.Close()
			switch {
			case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
				return fmt.Errorf("fcm: upstream status %d", resp.StatusCode)
			case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
				return backoff.Permanent(fmt.Errorf("fcm: credentials rejected with status %d", resp.StatusCode))
			}
			reply = fcmReply{status: resp.StatusCode, body: b}
			return nil
		}
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 100 * time.Millisecond
		bo.MaxElapsedTime = g.cfg.Timeout * 2
		retries := g.cfg.MaxRetries
		if retries < 1 {
			retries = 1
		}
		if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries-1)), ctx)); err != nil {
			return nil, err
		}
		return reply, nil
	})
	if err != nil {
		return fcmReply{}, err
	}
	return res.(fcmReply), nil
}
