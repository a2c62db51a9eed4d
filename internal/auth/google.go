package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Kyz7/chainverse/internal/config"
	"github.com/Kyz7/chainverse/internal/user"
	"github.com/Kyz7/chainverse/internal/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var errInvalidGoogleToken = errors.New("invalid google token")

// GoogleProfile is the part of a Google account ChainVerse signs users in
// with.
type GoogleProfile struct {
	Email         string
	Name          string
	EmailVerified bool
}

// GoogleVerifier turns a Google ID token posted by the frontend into a
// profile.
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (*GoogleProfile, error)
}

// IDTokenVerifier checks ID tokens against Google's published keys.
type IDTokenVerifier struct {
	ClientID string
}

func (v IDTokenVerifier) Verify(ctx context.Context, idToken string) (*GoogleProfile, error) {
	payload, err := idtoken.Validate(ctx, idToken, v.ClientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidGoogleToken, err)
	}

	email, _ := payload.Claims["email"].(string)
	name, _ := payload.Claims["name"].(string)
	verified, _ := payload.Claims["email_verified"].(bool)
	if email == "" {
		return nil, fmt.Errorf("%w: no email claim", errInvalidGoogleToken)
	}

	return &GoogleProfile{
		Email:         user.NormalizeEmail(email),
		Name:          name,
		EmailVerified: verified,
	}, nil
}

// GoogleOAuth runs the server-side authorization code flow. States are kept
// in memory for five minutes and are single use.
type GoogleOAuth struct {
	config      *oauth2.Config
	userInfoURL string

	mu     sync.Mutex
	states map[string]time.Time
}

func NewGoogleOAuth(cfg *config.Config) *GoogleOAuth {
	return &GoogleOAuth{
		config: &oauth2.Config{
			RedirectURL:  cfg.GoogleRedirectURL,
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
		states:      make(map[string]time.Time),
	}
}

// AuthCodeURL returns the Google consent URL with a fresh state.
func (g *GoogleOAuth) AuthCodeURL() (string, error) {
	state, err := utils.RandomState()
	if err != nil {
		return "", err
	}
	g.storeState(state)
	return g.config.AuthCodeURL(state), nil
}

// Exchange validates state, trades code for a token and fetches the profile.
func (g *GoogleOAuth) Exchange(ctx context.Context, state, code string) (*GoogleProfile, error) {
	if !g.validateState(state) {
		return nil, fmt.Errorf("%w: unknown or expired state", errInvalidGoogleToken)
	}

	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange: %v", errInvalidGoogleToken, err)
	}

	resp, err := g.config.Client(ctx, token).Get(g.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo status %d", errInvalidGoogleToken, resp.StatusCode)
	}

	var info struct {
		Email         string `json:"email"`
		Name          string `json:"name"`
		VerifiedEmail bool   `json:"verified_email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode google userinfo: %w", err)
	}

	return &GoogleProfile{
		Email:         user.NormalizeEmail(info.Email),
		Name:          info.Name,
		EmailVerified: info.VerifiedEmail,
	}, nil
}

func (g *GoogleOAuth) storeState(state string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	g.states[state] = now.Add(5 * time.Minute)

	for k, v := range g.states {
		if now.After(v) {
			delete(g.states, k)
		}
	}
}

func (g *GoogleOAuth) validateState(state string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	expiry, exists := g.states[state]
	if !exists || time.Now().After(expiry) {
		return false
	}
	delete(g.states, state)
	return true
}
