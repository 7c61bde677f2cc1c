package harvest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"harvest-deck/internal/domain"
)

const (
	DefaultBaseURL = "https://api.harvestapp.com/v2"
	// Harvest allows 100 general API requests per 15 seconds per token.
	requestsPerWindow = 100
	requestWindow     = 15 * time.Second
	maxPages          = 20
)

// Client implements ports.TimeService using the Harvest API v2.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	log       *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewClient(baseURL, userAgent string, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = "harvest-deck"
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		log:      log,
		limiters: make(map[string]*rate.Limiter),
	}
}

// HTTPError reports a response whose status code was not the one expected.
type HTTPError struct {
	Op     string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("harvest: %s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

// StatusCode implements domain.StatusError.
func (e *HTTPError) StatusCode() int { return e.Status }

// NetworkError reports a request that never produced a response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("harvest: %s: %v", e.Op, e.Err) }

func (e *NetworkError) Unwrap() error { return e.Err }

// FetchRunning returns the entries currently running on the account.
// Harvest v2: GET /time_entries?is_running=true
func (c *Client) FetchRunning(ctx context.Context, acct domain.Account) ([]domain.TimeEntry, error) {
	q := url.Values{}
	q.Set("is_running", "true")
	page, err := c.listPage(ctx, "fetch running", acct, q)
	if err != nil {
		return nil, err
	}
	return mapEntries(page.TimeEntries), nil
}

// FetchWeek returns every entry of the account spent in [from, to], following pagination.
// A listing longer than maxPages fails with domain.ErrTruncated.
// Harvest v2: GET /time_entries?from=YYYYMMDD&to=YYYYMMDD&per_page=100&page=N
func (c *Client) FetchWeek(ctx context.Context, acct domain.Account, from, to time.Time) ([]domain.TimeEntry, error) {
	q := url.Values{}
	q.Set("from", from.Format("20060102"))
	q.Set("to", to.Format("20060102"))
	q.Set("per_page", "100")

	var out []domain.TimeEntry
	for n := 1; n <= maxPages; n++ {
		q.Set("page", strconv.Itoa(n))
		page, err := c.listPage(ctx, "fetch week", acct, q)
		if err != nil {
			return nil, err
		}
		out = append(out, mapEntries(page.TimeEntries)...)
		if page.NextPage == nil {
			return out, nil
		}
	}
	c.log.Warn("harvest: page limit reached", slog.String("account", acct.ID), slog.Int("pages", maxPages))
	return nil, fmt.Errorf("harvest: fetch week: more than %d pages: %w", maxPages, domain.ErrTruncated)
}

// StartTimer creates a running entry for the project/task on date and returns its id.
// Harvest v2: POST /time_entries
func (c *Client) StartTimer(ctx context.Context, acct domain.Account, projectID, taskID int64, date time.Time) (int64, error) {
	body, err := json.Marshal(rawCreate{
		ProjectID: projectID,
		TaskID:    taskID,
		SpentDate: date.Format(time.DateOnly),
	})
	if err != nil {
		return 0, err
	}
	resp, err := c.do(ctx, "start timer", acct, http.MethodPost, "/time_entries", nil, body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return 0, statusError("start timer", resp)
	}
	var created rawTimeEntry
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, fmt.Errorf("harvest: start timer: decode: %w", err)
	}
	if created.ID == 0 {
		return 0, fmt.Errorf("harvest: start timer: %w", domain.ErrEmptyResult)
	}
	return created.ID, nil
}

// StopTimer stops a running entry.
// Harvest v2: PATCH /time_entries/{id}/stop
func (c *Client) StopTimer(ctx context.Context, acct domain.Account, entryID int64) error {
	path := fmt.Sprintf("/time_entries/%d/stop", entryID)
	resp, err := c.do(ctx, "stop timer", acct, http.MethodPatch, path, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError("stop timer", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) listPage(ctx context.Context, op string, acct domain.Account, q url.Values) (*rawPage, error) {
	resp, err := c.do(ctx, op, acct, http.MethodGet, "/time_entries", q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(op, resp)
	}
	var page rawPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("harvest: %s: decode: %w", op, err)
	}
	return &page, nil
}

func (c *Client) do(ctx context.Context, op string, acct domain.Account, method, path string, q url.Values, body []byte) (*http.Response, error) {
	if !acct.Complete() {
		return nil, fmt.Errorf("harvest: %s: %w", op, domain.ErrConfigIncomplete)
	}
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, err
	}
	if q != nil {
		u.RawQuery = q.Encode()
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+acct.Token)
	req.Header.Set("Harvest-Account-ID", acct.ID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	if err := c.limiter(acct.ID).Wait(ctx); err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	c.log.Debug("harvest request", slog.String("method", method), slog.String("path", path), slog.String("account", acct.ID))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	return resp, nil
}

func (c *Client) limiter(accountID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[accountID]
	if !ok {
		l = rate.NewLimiter(rate.Every(requestWindow/requestsPerWindow), requestsPerWindow)
		c.limiters[accountID] = l
	}
	return l
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &HTTPError{Op: op, Status: resp.StatusCode, Body: string(body)}
}

func mapEntries(raw []rawTimeEntry) []domain.TimeEntry {
	out := make([]domain.TimeEntry, 0, len(raw))
	for _, r := range raw {
		out = append(out, domain.TimeEntry{
			ID:           r.ID,
			Project:      r.Project.ref(),
			Task:         r.Task.ref(),
			Client:       r.Client.ref(),
			SpentDate:    r.SpentDate,
			Hours:        r.Hours,
			RoundedHours: r.RoundedHours,
			IsRunning:    r.IsRunning,
		})
	}
	return out
}

// rawPage mirrors the list envelope from Harvest v2.
type rawPage struct {
	TimeEntries []rawTimeEntry `json:"time_entries"`
	NextPage    *int           `json:"next_page"`
}

// rawTimeEntry mirrors the JSON from Harvest v2.
type rawTimeEntry struct {
	ID           int64   `json:"id"`
	SpentDate    string  `json:"spent_date"`
	Hours        float64 `json:"hours"`
	RoundedHours float64 `json:"rounded_hours"`
	IsRunning    bool    `json:"is_running"`
	Project      *rawRef `json:"project"`
	Task         *rawRef `json:"task"`
	Client       *rawRef `json:"client"`
}

type rawRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (r *rawRef) ref() domain.Ref {
	if r == nil {
		return domain.Ref{}
	}
	return domain.Ref{ID: r.ID, Name: r.Name}
}

type rawCreate struct {
	ProjectID int64  `json:"project_id"`
	TaskID    int64  `json:"task_id"`
	SpentDate string `json:"spent_date"`
}
