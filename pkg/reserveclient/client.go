package reserveclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	adminToken string
	http       *http.Client
	rng        *rand.Rand
}

// New builds a client. adminToken may be empty for read/submit-only callers;
// approve/reject/delete will then fail with 401.
func New(baseURL, adminToken string, hc *http.Client) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		adminToken: adminToken,
		http:       hc,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ---- Wire format (matches the HTTP API) ----

type submitReq struct {
	Name string `json:"name"`
	Role string `json:"role"`
	Time string `json:"time"`
}

type errResp struct {
	Error string `json:"error"`
	Rule  string `json:"rule,omitempty"`
}

type decisionResp struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type listResp struct {
	Reservations []Reservation `json:"reservations"`
}

// ---- Operations ----

// Submit requests one slot. A 409 maps to *ConflictError, a 400 to a plain
// error carrying the server's message.
func (c *Client) Submit(ctx context.Context, name, role, rawTime string) (Reservation, error) {
	if name == "" || role == "" || rawTime == "" {
		return Reservation{}, fmt.Errorf("name, role and rawTime required")
	}

	path := c.baseURL + "/v1/reservations"
	var out Reservation
	var fail errResp
	code, raw, err := c.doJSON(ctx, http.MethodPost, path, submitReq{Name: name, Role: role, Time: rawTime}, &out, &fail)
	if err != nil {
		return Reservation{}, err
	}

	switch code {
	case http.StatusCreated:
		return out, nil
	case http.StatusConflict:
		return Reservation{}, &ConflictError{Rule: fail.Rule, Message: fail.Error}
	case http.StatusBadRequest:
		return Reservation{}, &RejectedError{Message: fail.Error}
	}
	return Reservation{}, &UnexpectedStatusError{Method: http.MethodPost, Path: path, Code: code, Body: raw}
}

// SubmitWithRetry retries Submit on transport failures and 5xx only. Domain
// rejections are returned immediately; retry policy for those belongs to a
// human picking a different slot.
func (c *Client) SubmitWithRetry(ctx context.Context, name, role, rawTime string, opt SubmitOptions) (Reservation, error) {
	if opt.MaxRetries <= 0 {
		opt.MaxRetries = 5
	}
	if opt.MinRetry <= 0 {
		opt.MinRetry = 25 * time.Millisecond
	}
	if opt.MaxRetry <= 0 {
		opt.MaxRetry = 1 * time.Second
	}
	if opt.JitterFrac <= 0 {
		opt.JitterFrac = 0.2
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= opt.MaxRetries; attempt++ {
		if opt.MaxTotalWait > 0 && time.Since(start) > opt.MaxTotalWait {
			break
		}

		rec, err := c.Submit(ctx, name, role, rawTime)
		if err == nil {
			return rec, nil
		}
		if !retryable(err) {
			return Reservation{}, err
		}
		lastErr = err

		sleep := time.Duration(float64(opt.MinRetry) * math.Pow(1.5, float64(attempt)))
		if sleep > opt.MaxRetry {
			sleep = opt.MaxRetry
		}
		sleep = addJitter(c.rng, sleep, opt.JitterFrac)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Reservation{}, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr != nil {
		return Reservation{}, lastErr
	}
	return Reservation{}, context.DeadlineExceeded
}

func retryable(err error) bool {
	var use *UnexpectedStatusError
	if errors.As(err, &use) {
		return use.Code >= 500
	}
	var ce *ConflictError
	var re *RejectedError
	if errors.As(err, &ce) || errors.As(err, &re) {
		return false
	}
	var ue *url.Error
	return errors.As(err, &ue) // transport-level failure
}

// Approve transitions a pending record. 404 and 409 map to *StaleError with
// the server's reason; the operator should refresh and reconsider.
func (c *Client) Approve(ctx context.Context, id string) error {
	return c.decide(ctx, id, "approve")
}

func (c *Client) Reject(ctx context.Context, id string) error {
	return c.decide(ctx, id, "reject")
}

func (c *Client) decide(ctx context.Context, id, action string) error {
	if id == "" {
		return fmt.Errorf("id required")
	}
	path := fmt.Sprintf("%s/v1/reservations/%s/%s", c.baseURL, url.PathEscape(id), action)
	var out decisionResp
	code, raw, err := c.doJSON(ctx, http.MethodPost, path, nil, &out, &out)
	if err != nil {
		return err
	}
	switch code {
	case http.StatusOK:
		return nil
	case http.StatusNotFound, http.StatusConflict:
		return &StaleError{ID: id, Reason: out.Reason}
	}
	return &UnexpectedStatusError{Method: http.MethodPost, Path: path, Code: code, Body: raw}
}

// Delete removes a record; idempotent on the server, so a repeat succeeds.
func (c *Client) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("id required")
	}
	path := fmt.Sprintf("%s/v1/reservations/%s", c.baseURL, url.PathEscape(id))
	code, raw, err := c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil)
	if err != nil {
		return err
	}
	if code == http.StatusOK {
		return nil
	}
	return &UnexpectedStatusError{Method: http.MethodDelete, Path: path, Code: code, Body: raw}
}

// My lists every reservation for name, slot time ascending.
func (c *Client) My(ctx context.Context, name string) ([]Reservation, error) {
	if name == "" {
		return nil, fmt.Errorf("name required")
	}
	path := c.baseURL + "/v1/reservations?name=" + url.QueryEscape(name)
	var out listResp
	code, raw, err := c.doJSON(ctx, http.MethodGet, path, nil, &out, nil)
	if err != nil {
		return nil, err
	}
	if code == http.StatusOK {
		return out.Reservations, nil
	}
	return nil, &UnexpectedStatusError{Method: http.MethodGet, Path: path, Code: code, Body: raw}
}

// Grid fetches the 48-slot day view. day is "2006-01-02" or empty for today.
func (c *Client) Grid(ctx context.Context, day string) (GridSnapshot, error) {
	path := c.baseURL + "/v1/grid"
	if day != "" {
		path += "?day=" + url.QueryEscape(day)
	}
	var out GridSnapshot
	code, raw, err := c.doJSON(ctx, http.MethodGet, path, nil, &out, nil)
	if err != nil {
		return GridSnapshot{}, err
	}
	if code == http.StatusOK {
		return out, nil
	}
	return GridSnapshot{}, &UnexpectedStatusError{Method: http.MethodGet, Path: path, Code: code, Body: raw}
}

// doJSON sends JSON and decodes into okDst; on non-2xx it also tries errDst.
// Returns status code and raw body (trimmed) for debugging.
func (c *Client) doJSON(ctx context.Context, method, url string, req any, okDst, errDst any) (int, string, error) {
	var body io.Reader
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			return 0, "", err
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, "", err
	}
	if req != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" {
		httpReq.Header.Set("X-Admin-Token", c.adminToken)
	}

	rsp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, "", err
	}
	defer rsp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(rsp.Body, 1<<20))
	trimmed := strings.TrimSpace(string(raw))

	if len(raw) > 0 {
		if rsp.StatusCode < 300 && okDst != nil {
			_ = json.Unmarshal(raw, okDst) // tolerate non-JSON error bodies
		} else if errDst != nil {
			_ = json.Unmarshal(raw, errDst)
		}
	}
	return rsp.StatusCode, trimmed, nil
}

func addJitter(r *rand.Rand, d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	// jitter range: [d*(1-frac), d*(1+frac)]
	j := (r.Float64()*2 - 1) * frac
	out := time.Duration(float64(d) * (1 + j))
	if out < 0 {
		return 0
	}
	return out
}
