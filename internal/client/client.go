// Package client is the Go client of the ChainVerse API. It attaches the
// access token of the request's surface, refreshes it once on 401 and ends
// the surface session when that does not help.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Kyz7/chainverse/internal/role"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrSessionEnded means the surface session is gone and the caller has to
	// log in again. OnSessionEnded has already run.
	ErrSessionEnded = errors.New("session ended")
	ErrLoginFailed  = errors.New("login failed")
	// ErrRefreshFailed is a refresh that failed for a reason other than
	// authentication, such as a 5xx. The session is kept.
	ErrRefreshFailed = errors.New("refresh failed")
)

type Config struct {
	BaseURL string
	Timeout time.Duration
	// OnSessionEnded runs once per ended session with the surface's login
	// page, e.g. to redirect a UI.
	OnSessionEnded func(surface role.Surface, loginPage string)
}

type Client struct {
	http      *resty.Client
	session   *Session
	onEnded   func(role.Surface, string)
	refreshes singleflight.Group
}

// Request is one API call. Surface picks the bearer token and the refresh
// endpoint; it is never inferred from Path.
type Request struct {
	Surface role.Surface
	Method  string
	Path    string
	Body    interface{}
	// Result receives the decoded JSON body of a 2xx response.
	Result interface{}
}

func New(cfg Config, session *Session) *Client {
	if session == nil {
		session = NewSession()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	// resty.New installs a cookie jar, which carries the refresh cookies.
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:    rc,
		session: session,
		onEnded: cfg.OnSessionEnded,
	}
}

func (c *Client) Session() *Session { return c.session }

// Do sends req with the surface's access token. A 401 triggers one refresh and
// one replay; the replayed request is never refreshed again. A 401 that
// survives the replay, a failed refresh, a 401 from the refresh endpoint
// itself and any 403 end the surface session with ErrSessionEnded.
func (c *Client) Do(ctx context.Context, req Request) (*resty.Response, error) {
	if !req.Surface.Valid() {
		return nil, fmt.Errorf("client: invalid surface %q", req.Surface)
	}

	token := c.session.Token(req.Surface)
	resp, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		if req.Path == req.Surface.RefreshPath() {
			return resp, c.endSession(req.Surface)
		}
	case http.StatusForbidden:
		return resp, c.endSession(req.Surface)
	default:
		return resp, nil
	}

	fresh, err := c.refresh(ctx, req.Surface, token)
	if err != nil {
		return resp, err
	}

	resp, err = c.send(ctx, req, fresh)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return resp, c.endSession(req.Surface)
	}
	return resp, nil
}

// Login signs in on surface and keeps the access token. When account is not
// nil the returned identity is decoded into it.
func (c *Client) Login(ctx context.Context, surface role.Surface, email, password string, account interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		Post(surface.LoginPath())
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode())
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}

	var token string
	if err := json.Unmarshal(body["accessToken"], &token); err != nil || token == "" {
		return fmt.Errorf("%w: no access token in response", ErrLoginFailed)
	}
	if account != nil {
		if err := json.Unmarshal(body[surface.AccountKey()], account); err != nil {
			return fmt.Errorf("decode %s: %w", surface.AccountKey(), err)
		}
	}

	c.session.SetToken(surface, token)
	return nil
}

// Logout revokes the surface's refresh tokens on the server and forgets the
// access token. The local session is cleared even when the call fails.
func (c *Client) Logout(ctx context.Context, surface role.Surface) error {
	token := c.session.Token(surface)
	defer c.session.Clear(surface)

	if token == "" {
		return nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		Post(surface.LogoutPath())
	if err != nil {
		return fmt.Errorf("logout request: %w", err)
	}
	if !resp.IsSuccess() && resp.StatusCode() != http.StatusUnauthorized {
		return fmt.Errorf("logout: status %d", resp.StatusCode())
	}
	return nil
}

func (c *Client) send(ctx context.Context, req Request, token string) (*resty.Response, error) {
	r := c.http.R().SetContext(ctx)
	if token != "" {
		r.SetAuthToken(token)
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}
	if req.Result != nil {
		r.SetResult(req.Result)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	resp, err := r.Execute(method, req.Path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.Path, err)
	}
	return resp, nil
}

// refresh returns a usable access token for surface. Concurrent callers share
// one refresh call. A caller whose stale token was already replaced gets the
// current token without another round trip; one whose token was cleared by an
// ended session gets ErrSessionEnded without a second call or hook.
func (c *Client) refresh(ctx context.Context, surface role.Surface, stale string) (string, error) {
	v, err, _ := c.refreshes.Do(string(surface), func() (interface{}, error) {
		current := c.session.Token(surface)
		switch {
		case current == stale:
			return c.callRefresh(context.WithoutCancel(ctx), surface)
		case current == "":
			return "", ErrSessionEnded
		default:
			return current, nil
		}
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) callRefresh(ctx context.Context, surface role.Surface) (string, error) {
	var body struct {
		Success     bool   `json:"success"`
		AccessToken string `json:"accessToken"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Post(surface.RefreshPath())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return "", c.endSession(surface)
	case !resp.IsSuccess():
		return "", fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode())
	case body.AccessToken == "":
		return "", c.endSession(surface)
	}

	c.session.SetToken(surface, body.AccessToken)
	return body.AccessToken, nil
}

func (c *Client) endSession(surface role.Surface) error {
	c.session.Clear(surface)
	if c.onEnded != nil {
		c.onEnded(surface, surface.LoginPage())
	}
	return ErrSessionEnded
}
