package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/Kyz7/chainverse/internal/auth"
	"github.com/Kyz7/chainverse/internal/config"
	"github.com/Kyz7/chainverse/internal/database"
	"github.com/Kyz7/chainverse/internal/mailer"
	"github.com/Kyz7/chainverse/internal/models"
	"github.com/Kyz7/chainverse/internal/otp"
	"github.com/Kyz7/chainverse/internal/role"
	"github.com/Kyz7/chainverse/internal/server"
	"github.com/Kyz7/chainverse/internal/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// TestDB is a private in-memory SQLite database with every table migrated.
// It holds a single connection so that all queries see the same database.
func TestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	require.NoError(t, err, "Failed to create test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(database.Models()...)
	require.NoError(t, err, "Failed to migrate test database")

	return db
}

// TestConfig returns a valid configuration for plain-HTTP tests: insecure
// cookies and rate limits high enough not to interfere.
func TestConfig() *config.Config {
	return &config.Config{
		UserSecrets: config.SurfaceSecrets{
			Access:  "user-access-secret-0123456789abcdefghij",
			Refresh: "user-refresh-secret-0123456789abcdefghij",
		},
		AdminSecrets: config.SurfaceSecrets{
			Access:  "admin-access-secret-0123456789abcdefghij",
			Refresh: "admin-refresh-secret-0123456789abcdefghij",
		},
		CommunityAdminSecrets: config.SurfaceSecrets{
			Access:  "community-access-secret-0123456789abcdefgh",
			Refresh: "community-refresh-secret-0123456789abcdefgh",
		},
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  7 * 24 * time.Hour,
		CookieSecure:     false,
		OTPTTL:           10 * time.Minute,
		OTPStore:         "database",
		MailTransport:    "log",
		CORSOrigins:      "http://localhost:3000",
		FrontendURL:      "http://localhost:3000",
		LoginRateLimit:   1000,
		RefreshRateLimit: 1000,
		OTPRateLimit:     1000,
		CleanupSchedule:  "@every 1h",
	}
}

// Clock is a settable time source shared by the token issuer and the OTP
// service of a test app.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var otpCodePattern = regexp.MustCompile(`letter-spacing: 8px;">(\d{6})<`)

// RecordingMailer keeps sent messages in memory. Setting Err makes Send fail.
type RecordingMailer struct {
	mu       sync.Mutex
	Messages []mailer.Message
	Err      error
}

func (m *RecordingMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, msg)
	return nil
}

func (m *RecordingMailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}

// LastCode returns the OTP of the most recent message sent to email.
func (m *RecordingMailer) LastCode(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.Messages) - 1; i >= 0; i-- {
		msg := m.Messages[i]
		if len(msg.To) == 0 || msg.To[0] != email {
			continue
		}
		match := otpCodePattern.FindStringSubmatch(msg.HTML)
		require.Len(t, match, 2, "no code in message to %s", email)
		return match[1]
	}
	t.Fatalf("no message sent to %s", email)
	return ""
}

// FakeGoogle accepts the ID tokens it was given profiles for.
type FakeGoogle map[string]*auth.GoogleProfile

func (f FakeGoogle) Verify(_ context.Context, idToken string) (*auth.GoogleProfile, error) {
	if p, ok := f[idToken]; ok {
		return p, nil
	}
	return nil, errors.New("unknown id token")
}

type TestApp struct {
	App    *fiber.App
	DB     *gorm.DB
	Config *config.Config
	Issuer *utils.TokenIssuer
	OTPs   *otp.Service
	Mailer *RecordingMailer
	Google FakeGoogle
	Clock  *Clock
}

func SetupTestApp(t *testing.T) *TestApp {
	db := TestDB(t)
	cfg := TestConfig()
	clock := NewClock()

	ta := &TestApp{
		DB:     db,
		Config: cfg,
		Issuer: utils.NewTokenIssuer(cfg).WithClock(clock.Now),
		OTPs:   otp.NewService(otp.NewGormStore(db), cfg.OTPTTL).WithClock(clock.Now),
		Mailer: &RecordingMailer{},
		Google: FakeGoogle{},
		Clock:  clock,
	}

	ta.App = server.New(server.Deps{
		Config: cfg,
		DB:     db,
		Issuer: ta.Issuer,
		OTPs:   ta.OTPs,
		Mailer: ta.Mailer,
		Google: ta.Google,
	})
	return ta
}

func CreateIdentity(t *testing.T, db *gorm.DB, surface role.Surface, email, password string) *models.Identity {
	hashedPassword, err := utils.HashPassword(password)
	require.NoError(t, err)

	identity := &models.Identity{
		Surface:  surface,
		Name:     "Test " + string(surface),
		Email:    email,
		Password: hashedPassword,
		Provider: models.ProviderLocal,
		Active:   true,
		Verified: true,
	}

	err = db.Create(identity).Error
	require.NoError(t, err, "Failed to create test identity")

	return identity
}

func GetAuthToken(t *testing.T, issuer *utils.TokenIssuer, identity *models.Identity) string {
	token, _, err := issuer.IssueAccess(identity.ID, identity.Surface)
	require.NoError(t, err, "Failed to generate test token")
	return token
}

func MakeRequest(app *fiber.App, method, url string, body interface{}, token string) (*httptest.ResponseRecorder, error) {
	return MakeRequestWithCookies(app, method, url, body, token)
}

// MakeRequestWithCookies sends cookies along with the request. Response
// headers are copied to the recorder so Set-Cookie can be inspected.
func MakeRequestWithCookies(app *fiber.App, method, url string, body interface{}, token string, cookies ...*http.Cookie) (*httptest.ResponseRecorder, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req := httptest.NewRequest(method, url, bodyReader)
	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()

	resp, err := app.Test(req, -1)
	if err != nil {
		return rec, err
	}

	rec.Code = resp.StatusCode
	for k, v := range resp.Header {
		for _, val := range v {
			rec.Header().Add(k, val)
		}
	}

	io.Copy(rec.Body, resp.Body)
	resp.Body.Close()

	return rec, nil
}

// ResponseCookie returns the named cookie set by the response, or nil.
func ResponseCookie(resp *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range (&http.Response{Header: resp.Header()}).Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func ParseResponse(t *testing.T, resp *httptest.ResponseRecorder, v interface{}) {
	if resp.Body.Len() == 0 {
		t.Log("Warning: Response body is empty")
		return
	}

	err := json.Unmarshal(resp.Body.Bytes(), v)
	if err != nil {
		t.Logf("Response body: %s", resp.Body.String())
		assert.NoError(t, err, "Failed to parse response")
	}
}

type StandardResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    interface{}  `json:"data"`
	Error   *ErrorDetail `json:"error"`
	Meta    *Meta        `json:"meta"`
}

// SessionResponse is the body of login, registration and refresh calls.
type SessionResponse struct {
	Success        bool                   `json:"success"`
	Message        string                 `json:"message"`
	AccessToken    string                 `json:"accessToken"`
	ExpiresIn      int                    `json:"expiresIn"`
	User           map[string]interface{} `json:"user"`
	Admin          map[string]interface{} `json:"admin"`
	CommunityAdmin map[string]interface{} `json:"communityAdmin"`
	Error          *ErrorDetail           `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

func AssertSuccess(t *testing.T, resp *httptest.ResponseRecorder) {
	var result StandardResponse
	ParseResponse(t, resp, &result)
	assert.True(t, result.Success, "Expected success response")
	assert.Empty(t, result.Error, "Expected no error")
}

func AssertError(t *testing.T, resp *httptest.ResponseRecorder, expectedCode string) {
	var result StandardResponse
	ParseResponse(t, resp, &result)
	assert.False(t, result.Success, "Expected error response")
	if assert.NotNil(t, result.Error, "Expected error object") {
		assert.Equal(t, expectedCode, result.Error.Code, "Error code mismatch")
	}
}
