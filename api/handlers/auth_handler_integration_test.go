// api/handlers/auth_handler_integration_test.go
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/dataspace-backend/api"
	"github.com/Annany2002/dataspace-backend/api/handlers"
	"github.com/Annany2002/dataspace-backend/api/models"
	"github.com/Annany2002/dataspace-backend/config"
	"github.com/Annany2002/dataspace-backend/internal/auth"
	"github.com/Annany2002/dataspace-backend/internal/catalog"
	"github.com/Annany2002/dataspace-backend/internal/connection"
	"github.com/Annany2002/dataspace-backend/internal/dialect"
	"github.com/Annany2002/dataspace-backend/internal/errs"
	"github.com/Annany2002/dataspace-backend/internal/mailer"
	"github.com/Annany2002/dataspace-backend/internal/otp"
	"github.com/Annany2002/dataspace-backend/internal/session"
	"github.com/Annany2002/dataspace-backend/internal/storage"
)

const (
	testPassword = "Str0ng!pass"
	testSecret   = "test_secret_key_for_integration_tests_1234567890"
)

// --- collaborators ---

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *captureMailer) SendOTP(_ context.Context, to, code string, _ mailer.Purpose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[to] = code
	return nil
}

func (m *captureMailer) code(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

type fakeProvisioner struct {
	mu    sync.Mutex
	names []string
}

func (p *fakeProvisioner) Ensure(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, name)
	return nil
}

// queueConnector hands out prepared engines in order, then fails.
type queueConnector struct {
	mu      sync.Mutex
	engines []*connection.Engine
	err     error
	calls   []dialect.Params
}

func (q *queueConnector) push(e *connection.Engine) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.engines = append(q.engines, e)
}

func (q *queueConnector) fail(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

func (q *queueConnector) lastCall() dialect.Params {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.calls) == 0 {
		return dialect.Params{}
	}
	return q.calls[len(q.calls)-1]
}

func (q *queueConnector) Connect(_ context.Context, p dialect.Params) (*connection.Engine, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, p)
	if q.err != nil {
		return nil, q.err
	}
	if len(q.engines) == 0 {
		return nil, errs.Connection(errs.ConnUnreachable, "Cannot reach database server. Check host/port.", nil)
	}
	e := q.engines[0]
	q.engines = q.engines[1:]
	return e, nil
}

// --- environment ---

type testEnv struct {
	router   *gin.Engine
	accounts *storage.AccountRepository
	mail     *captureMailer
	prov     *fakeProvisioner
	conn     *queueConnector
	sessions *session.Store
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ServerPort:      ":0",
		JWTSecret:       testSecret,
		JWTAlgorithm:    "HS256",
		JWTExpiration:   5 * time.Minute,
		MetadataDriver:  "sqlite3",
		MetadataDbDir:   t.TempDir(),
		MetadataDbFile:  "test_metadata.db",
		ResetMaxPerHour: 5,
		QueryTimeout:    5 * time.Second,
	}
}

// setupTestServer wires the real router to a temporary SQLite account store.
func setupTestServer(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.ConnectMetadataDB(context.Background(), cfg)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.JWTExpiration)
	require.NoError(t, err)

	env := &testEnv{
		accounts: storage.NewAccountRepository(db),
		mail:     &captureMailer{codes: make(map[string]string)},
		prov:     &fakeProvisioner{},
		conn:     &queueConnector{},
		sessions: session.NewStore(),
	}
	gate := otp.NewService(env.accounts, env.prov, env.mail, tokens, otp.Config{ResetMaxPerHour: cfg.ResetMaxPerHour})

	env.router = api.SetupRouter(cfg, &api.Services{
		OTP:      gate,
		Accounts: env.accounts,
		Tokens:   tokens,
		Sessions: env.sessions,
		Tenants: &handlers.TenantAccess{
			Connector: env.conn,
			Catalog:   catalog.New(nil, cfg.QueryTimeout).WithParallelism(1),
			Admin:     dialect.Params{Host: "localhost", Port: 3306, User: "root"},
		},
	})
	t.Cleanup(env.sessions.ClearAll)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[models.ErrorResponse](t, rec)
	assert.NotEmpty(t, body.Timestamp)
	return body.ErrorType
}

// registerUser runs the signup flow and returns the issued token.
func (e *testEnv) registerUser(t *testing.T, email, mobile string) string {
	t.Helper()
	res := e.do(t, http.MethodPost, "/signup/request_otp", models.SignupRequest{Email: email, Mobile: mobile, Password: testPassword}, "")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = e.do(t, http.MethodPost, "/signup/verify_otp", models.VerifyOTPRequest{OTPCode: e.mail.code(email)}, "")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	return decode[models.TokenResponse](t, res).AccessToken
}

func newMockEngine(t *testing.T) (*connection.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &connection.Engine{DB: db, Adapter: dialect.NewMySQL()}, mock
}

// --- tests ---

func TestPingAndMetrics(t *testing.T) {
	env := setupTestServer(t, testConfig(t))

	res := env.do(t, http.MethodGet, "/ping", nil, "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "pong", res.Body.String())

	res = env.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "dataspace_http_requests_total")
}

func TestSignupEndpoints(t *testing.T) {
	env := setupTestServer(t, testConfig(t))
	email := "ana@example.com"

	t.Run("Request Success", func(t *testing.T) {
		res := env.do(t, http.MethodPost, "/signup/request_otp", models.SignupRequest{Email: email, Mobile: "9876543210", Password: testPassword}, "")
		assert.Equal(t, http.StatusOK, res.Code, res.Body.String())
		assert.Len(t, env.mail.code(email), 6)
	})

	t.Run("Pending Email Conflicts", func(t *testing.T) {
		res := env.do(t, http.MethodPost, "/signup/request_otp", models.SignupRequest{Email: email, Mobile: "9876543211", Password: testPassword}, "")
		assert.Equal(t, http.StatusConflict, res.Code)
		assert.Equal(t, "EMAIL_EXISTS", errorType(t, res))
	})

	t.Run("Invalid Input", func(t *testing.T) {
		testCases := []struct {
			name string
			body models.SignupRequest
			tag  string
		}{
			{"email", models.SignupRequest{Email: "not-an-email", Mobile: "9876543212", Password: testPassword}, "INVALID_EMAIL"},
			{"mobile", models.SignupRequest{Email: "b@example.com", Mobile: "12345", Password: testPassword}, "INVALID_MOBILE"},
			{"password", models.SignupRequest{Email: "b@example.com", Mobile: "9876543212", Password: "short"}, "WEAK_PASSWORD"},
			{"missing field", models.SignupRequest{Email: "b@example.com", Password: testPassword}, "VALIDATION_ERROR"},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				res := env.do(t, http.MethodPost, "/signup/request_otp", tc.body, "")
				assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
				assert.Equal(t, tc.tag, errorType(t, res))
			})
		}
	})

	t.Run("Verify Bad Format", func(t *testing.T) {
		for _, code := range []string{"12ab", "abcdef", "12345678"} {
			res := env.do(t, http.MethodPost, "/signup/verify_otp", models.VerifyOTPRequest{OTPCode: code}, "")
			assert.Equal(t, http.StatusBadRequest, res.Code, code)
			assert.Equal(t, "INVALID_OTP_FORMAT", errorType(t, res), code)
		}
	})

	t.Run("Verify Success", func(t *testing.T) {
		res := env.do(t, http.MethodPost, "/signup/verify_otp", models.VerifyOTPRequest{OTPCode: env.mail.code(email)}, "")
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())

		body := decode[models.TokenResponse](t, res)
		assert.NotEmpty(t, body.AccessToken)
		assert.Equal(t, "bearer", body.TokenType)
		assert.Equal(t, email, body.Email)
		assert.Empty(t, body.Tables)
		assert.Equal(t, []string{"ana_at_example_dot_com_db"}, env.prov.names)

		acct, err := env.accounts.FindByEmail(context.Background(), email)
		require.NoError(t, err)
		assert.Equal(t, "ana", acct.Username)
		assert.Equal(t, "ana_at_example_dot_com_db", acct.TenantDB)
		assert.True(t, auth.CheckPasswordHash(testPassword, acct.PasswordHash))
	})

	t.Run("Code Is Single Use", func(t *testing.T) {
		res := env.do(t, http.MethodPost, "/signup/verify_otp", models.VerifyOTPRequest{OTPCode: env.mail.code(email)}, "")
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Equal(t, "INVALID_OTP", errorType(t, res))
	})

	t.Run("Registered Email Conflicts", func(t *testing.T) {
		res := env.do(t, http.MethodPost, "/signup/request_otp", models.SignupRequest{Email: email, Mobile: "9876543219", Password: testPassword}, "")
		assert.Equal(t, http.StatusConflict, res.Code)
	})
}

func TestLoginEndpoints(t *testing.T) {
	env := setupTestServer(t, testConfig(t))
	env.registerUser(t, "ana@example.com", "9876543210")

	t.Run("Wrong Password", func(t *testing.T) {
		res := env.do(t, http.MethodPost, "/login", models.LoginRequest{Username: "ana@example.com", Password: "Wr0ng!pass"}, "")
		assert.Equal(t, http.StatusUnauthorized, res.Code)
		assert.Equal(t, "INVALID_PASSWORD", errorType(t, res))
	})

	t.Run("Unknown User", func(t *testing.T) {
		res := env.do(t, http.MethodPost, "/login", models.LoginRequest{Username: "nobody@example.com", Password: testPassword}, "")
		assert.Equal(t, http.StatusUnauthorized, res.Code)
		assert.Equal(t, "USER_NOT_FOUND", errorType(t, res))
	})

	t.Run("Malformed Username", func(t *testing.T) {
		res := env.do(t, http.MethodPost, "/login", models.LoginRequest{Username: "12345", Password: testPassword}, "")
		assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
		assert.Equal(t, "INVALID_MOBILE", errorType(t, res))
	})

	t.Run("Success Preloads Tables", func(t *testing.T) {
		engine, mock := newMockEngine(t)
		mock.ExpectQuery(`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES`).
			WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("orders"))
		mock.ExpectQuery("SELECT \\* FROM `orders`").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
		env.conn.push(engine)

		res := env.do(t, http.MethodPost, "/login", models.LoginRequest{Username: "ANA@example.com", Password: testPassword}, "")
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())
		token := decode[models.TokenResponse](t, res).AccessToken

		var status models.PreloadStatusResponse
		assert.Eventually(t, func() bool {
			status = decode[models.PreloadStatusResponse](t, env.do(t, http.MethodGet, "/preload_status", nil, token))
			return status.Status == string(session.JobSucceeded)
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, []string{"orders"}, status.Tables)
		assert.Equal(t, "ana_at_example_dot_com_db", env.conn.lastCall().Database)
	})

	t.Run("Form Login By Mobile Survives Preload Failure", func(t *testing.T) {
		env.conn.fail(errs.Connection(errs.ConnUnreachable, "Cannot reach database server. Check host/port.", nil))
		defer env.conn.fail(nil)

		form := url.Values{"username": {"9876543210"}, "password": {testPassword}}
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		res := httptest.NewRecorder()
		env.router.ServeHTTP(res, req)
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())
		token := decode[models.TokenResponse](t, res).AccessToken

		assert.Eventually(t, func() bool {
			status := decode[models.PreloadStatusResponse](t, env.do(t, http.MethodGet, "/preload_status", nil, token))
			return status.Status == string(session.JobFailed) && status.Error != ""
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := setupTestServer(t, testConfig(t))

	res := env.do(t, http.MethodPost, "/logout", nil, "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "AUTH_HEADER_MISSING", errorType(t, res))

	res = env.do(t, http.MethodPost, "/logout", nil, "not.a.token")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "INVALID_TOKEN", errorType(t, res))

	token := env.registerUser(t, "ana@example.com", "9876543210")
	res = env.do(t, http.MethodGet, "/preload_status", nil, token)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "none", decode[models.PreloadStatusResponse](t, res).Status)

	res = env.do(t, http.MethodPost, "/logout", nil, token)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 0, env.sessions.Len())
}

func TestForgotPasswordEndpoints(t *testing.T) {
	env := setupTestServer(t, testConfig(t))
	email := "ana@example.com"
	env.registerUser(t, email, "9876543210")
	newPassword := "N3w!passw0rd"

	t.Run("Unknown Email", func(t *testing.T) {
		res := env.do(t, http.MethodPost, "/forgot/request_otp", models.ForgotPasswordRequest{Email: "nobody@example.com"}, "")
		assert.Equal(t, http.StatusNotFound, res.Code)
		assert.Equal(t, "EMAIL_NOT_REGISTERED", errorType(t, res))
	})

	t.Run("Verify Without Request", func(t *testing.T) {
		res := env.do(t, http.MethodPost, "/forgot/verify_otp", models.ResetPasswordRequest{Email: email, OTP: "123456", NewPassword: newPassword}, "")
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Equal(t, "OTP_MISSING", errorType(t, res))
	})

	res := env.do(t, http.MethodPost, "/forgot/request_otp", models.ForgotPasswordRequest{Email: email}, "")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	code := env.mail.code(email)

	t.Run("Wrong Code", func(t *testing.T) {
		wrong := "000000"
		if code == wrong {
			wrong = "111111"
		}
		res := env.do(t, http.MethodPost, "/forgot/verify_otp", models.ResetPasswordRequest{Email: email, OTP: wrong, NewPassword: newPassword}, "")
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Equal(t, "INVALID_OTP", errorType(t, res))
	})

	t.Run("Weak Password Keeps Code", func(t *testing.T) {
		res := env.do(t, http.MethodPost, "/forgot/verify_otp", models.ResetPasswordRequest{Email: email, OTP: code, NewPassword: "weak"}, "")
		assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	})

	t.Run("Success", func(t *testing.T) {
		res := env.do(t, http.MethodPost, "/forgot/verify_otp", models.ResetPasswordRequest{Email: email, OTP: code, NewPassword: newPassword}, "")
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())

		env.conn.fail(errs.Connection(errs.ConnUnreachable, "unreachable", nil))
		res = env.do(t, http.MethodPost, "/login", models.LoginRequest{Username: email, Password: newPassword}, "")
		assert.Equal(t, http.StatusOK, res.Code)
		res = env.do(t, http.MethodPost, "/login", models.LoginRequest{Username: email, Password: testPassword}, "")
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	})

	t.Run("Hourly Cap", func(t *testing.T) {
		// One request was already made above.
		for i := 0; i < 4; i++ {
			res := env.do(t, http.MethodPost, "/forgot/request_otp", models.ForgotPasswordRequest{Email: email}, "")
			require.Equal(t, http.StatusOK, res.Code)
		}
		res := env.do(t, http.MethodPost, "/forgot/request_otp", models.ForgotPasswordRequest{Email: email}, "")
		assert.Equal(t, http.StatusTooManyRequests, res.Code)
		assert.Equal(t, "RESET_OTP_LIMIT", errorType(t, res))
	})
}

func TestAuthRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.AuthRateLimitPerMinute = 2
	env := setupTestServer(t, cfg)

	body := models.LoginRequest{Username: "nobody@example.com", Password: testPassword}
	for i := 0; i < 2; i++ {
		res := env.do(t, http.MethodPost, "/login", body, "")
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	}
	res := env.do(t, http.MethodPost, "/login", body, "")
	assert.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", errorType(t, res))

	// Routes outside the auth group are not limited.
	res = env.do(t, http.MethodGet, "/ping", nil, "")
	assert.Equal(t, http.StatusOK, res.Code)
}
