package relayclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx answer from the REST API
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relay api: %d %s: %s", e.Status, e.Code, e.Message)
}

type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// REST fetches snapshots and performs fallbacks over the /api/v1 surface
type REST struct {
	http *resty.Client
}

// NewREST creates a REST client for baseURL, e.g. https://relay.example.com
func NewREST(baseURL, token string) *REST {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if !idempotent(r) {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if token != "" {
		c.SetAuthToken(token)
	}
	return &REST{http: c}
}

// idempotent reports whether replaying the request cannot duplicate a
// write. POSTs create messages and requests, so they are sent once.
func idempotent(r *resty.Response) bool {
	if r == nil || r.Request == nil {
		return false
	}
	switch r.Request.Method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// SetToken replaces the bearer token, e.g. after a refresh
func (r *REST) SetToken(token string) {
	r.http.SetAuthToken(token)
}

func do[T any](ctx context.Context, r *REST, method, path string, query url.Values, body interface{}) (T, error) {
	var out envelope[T]
	var failed envelope[struct{}]

	req := r.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&failed)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("relay api %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode()}
		if failed.Error != nil {
			apiErr.Code = failed.Error.Code
			apiErr.Message = failed.Error.Message
		}
		var zero T
		return zero, apiErr
	}
	return out.Data, nil
}

func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
		q.Set("page", strconv.Itoa(offset/limit+1))
	}
	return q
}

// Connections lists requests by role (sent, received or all) and optional status
func (r *REST) Connections(ctx context.Context, role, status string, limit, offset int) ([]Connection, error) {
	q := pageQuery(limit, offset)
	if role != "" {
		q.Set("role", role)
	}
	if status != "" {
		q.Set("status", status)
	}
	return do[[]Connection](ctx, r, http.MethodGet, "/api/v1/connections", q, nil)
}

func (r *REST) Connection(ctx context.Context, id string) (Connection, error) {
	return do[Connection](ctx, r, http.MethodGet, "/api/v1/connections/"+url.PathEscape(id), nil, nil)
}

func (r *REST) SendRequest(ctx context.Context, receiverID, postID, message string) (Connection, error) {
	body := map[string]string{"receiverId": receiverID, "postId": postID, "message": message}
	return do[Connection](ctx, r, http.MethodPost, "/api/v1/connections", nil, body)
}

// Respond accepts or rejects a received request
func (r *REST) Respond(ctx context.Context, id string, accept bool) (Connection, error) {
	status := StatusRejected
	if accept {
		status = StatusAccepted
	}
	return do[Connection](ctx, r, http.MethodPost, "/api/v1/connections/"+url.PathEscape(id)+"/respond", nil, map[string]string{"status": status})
}

func (r *REST) Cancel(ctx context.Context, id string) (Connection, error) {
	return do[Connection](ctx, r, http.MethodPost, "/api/v1/connections/"+url.PathEscape(id)+"/cancel", nil, nil)
}

func (r *REST) Messages(ctx context.Context, conversationID string, limit, offset int) ([]Message, error) {
	return do[[]Message](ctx, r, http.MethodGet, "/api/v1/conversations/"+url.PathEscape(conversationID)+"/messages", pageQuery(limit, offset), nil)
}

func (r *REST) SendMessage(ctx context.Context, conversationID, content string) (Message, error) {
	return do[Message](ctx, r, http.MethodPost, "/api/v1/conversations/"+url.PathEscape(conversationID)+"/messages", nil, map[string]string{"content": content})
}

func (r *REST) Notifications(ctx context.Context, unreadOnly bool, limit, offset int) ([]Notification, error) {
	q := pageQuery(limit, offset)
	if unreadOnly {
		q.Set("unread", "true")
	}
	return do[[]Notification](ctx, r, http.MethodGet, "/api/v1/notifications", q, nil)
}

func (r *REST) MarkRead(ctx context.Context, notificationID string) (Notification, error) {
	return do[Notification](ctx, r, http.MethodPost, "/api/v1/notifications/"+url.PathEscape(notificationID)+"/read", nil, nil)
}

func (r *REST) RegisterDeviceToken(ctx context.Context, token string) error {
	_, err := do[struct{}](ctx, r, http.MethodPut, "/api/v1/notifications/device-token", nil, map[string]string{"token": token})
	return err
}

// MutualStatus calls the bare status route, which has no envelope
func (r *REST) MutualStatus(ctx context.Context, userID1, userID2 string) (bool, error) {
	var out struct {
		IsConnected bool `json:"isConnected"`
	}
	path := "/connections/status/" + url.PathEscape(userID1) + "/" + url.PathEscape(userID2)
	resp, err := r.http.R().SetContext(ctx).SetResult(&out).Get(path)
	if err != nil {
		return false, fmt.Errorf("relay api GET %s: %w", path, err)
	}
	if resp.IsError() {
		return false, &APIError{Status: resp.StatusCode()}
	}
	return out.IsConnected, nil
}
