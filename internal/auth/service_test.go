package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/veeduria/veeduria-api/internal/shared"
	"github.com/veeduria/veeduria-api/internal/users"
)

type stubRepo struct {
	accounts map[string]Account
	err      error
}

func (s stubRepo) FindByEmail(ctx context.Context, email string) (Account, error) {
	if s.err != nil {
		return Account{}, s.err
	}
	a, ok := s.accounts[email]
	if !ok {
		return Account{}, shared.NotFound("account", email)
	}
	return a, nil
}

type stubIssuer struct{ issued []int64 }

func (s *stubIssuer) Issue(userID int64, ttl time.Duration) (string, error) {
	s.issued = append(s.issued, userID)
	return "token-for-user", nil
}

type recordingSink struct{ records []shared.AuditRecord }

func (r *recordingSink) Record(ctx context.Context, rec shared.AuditRecord) error {
	r.records = append(r.records, rec)
	return nil
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newTestService(t *testing.T) (*Service, *stubIssuer, *recordingSink) {
	t.Helper()
	repo := stubRepo{accounts: map[string]Account{
		"ana@example.org":    {ID: 3, Email: "ana@example.org", PasswordHash: hash(t, "secreto123"), Status: users.StatusApproved},
		"luis@example.org":   {ID: 4, Email: "luis@example.org", PasswordHash: hash(t, "secreto123"), Status: users.StatusSuspended},
		"nuevo@example.org":  {ID: 5, Email: "nuevo@example.org", PasswordHash: hash(t, "secreto123"), Status: users.StatusPending},
		"negado@example.org": {ID: 6, Email: "negado@example.org", PasswordHash: hash(t, "secreto123"), Status: users.StatusRejected},
	}}
	issuer := &stubIssuer{}
	sink := &recordingSink{}
	return NewService(repo, issuer, 30*time.Minute, sink, nil), issuer, sink
}

func TestLoginIssuesToken(t *testing.T) {
	svc, issuer, sink := newTestService(t)

	token, err := svc.Login(context.Background(), Credentials{Email: " ANA@example.org ", Password: "secreto123"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, int64(1800), token.ExpiresIn)
	assert.Equal(t, []int64{3}, issuer.issued)
	require.Len(t, sink.records, 1)
	assert.Equal(t, shared.AuditLogin, sink.records[0].Action)
	assert.Equal(t, "3", sink.records[0].EntityID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, issuer, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, Credentials{Email: "ana@example.org", Password: "incorrecta"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, Credentials{Email: "nadie@example.org", Password: "secreto123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, Credentials{Email: "luis@example.org", Password: "secreto123"})
	assert.ErrorIs(t, err, shared.ErrUnauthenticated, "suspended")
	_, err = svc.Login(ctx, Credentials{Email: "nuevo@example.org", Password: "secreto123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials, "pending")
	_, err = svc.Login(ctx, Credentials{Email: "negado@example.org", Password: "secreto123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials, "rejected")
	_, err = svc.Login(ctx, Credentials{Email: "not-an-email", Password: "x"})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, issuer.issued)
}

func TestOnlyApprovedAccountsCanLogin(t *testing.T) {
	for status, want := range map[users.Status]bool{
		users.StatusApproved:  true,
		users.StatusPending:   false,
		users.StatusRejected:  false,
		users.StatusSuspended: false,
		"":                    false,
	} {
		assert.Equal(t, want, Account{Status: status}.CanLogin(), string(status))
	}
}

func TestLoginStorageFailure(t *testing.T) {
	svc := NewService(stubRepo{err: errors.New("db down")}, &stubIssuer{}, 0, nil, nil)
	_, err := svc.Login(context.Background(), Credentials{Email: "ana@example.org", Password: "secreto123"})
	assert.ErrorIs(t, err, shared.ErrInternal)
}

func TestTokenEndpoint(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := chi.NewRouter()
	r.Route("/auth", NewHandler(nil, svc).MountRoutes)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(body)))
		return rec
	}

	rec := post(`{"email":"ana@example.org","password":"secreto123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), `"access_token":"token-for-user"`)

	assert.Equal(t, http.StatusUnauthorized, post(`{"email":"ana@example.org","password":"incorrecta"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"email":`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, post(`{"email":"x","password":"y"}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, post(`{}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(`{}`).Code, "sixth attempt from one address")
}

func TestMeEndpoint(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/auth", NewHandler(nil, nil).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 8}))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":8}`, rec.Body.String())
}
