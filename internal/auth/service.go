package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/veeduria/veeduria-api/internal/shared"
)

// ErrInvalidCredentials is returned for any failed login.
var ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", shared.ErrUnauthenticated)

// Issuer signs bearer tokens.
type Issuer interface {
	Issue(userID int64, ttl time.Duration) (string, error)
}

// Service wraps authentication business rules.
type Service struct {
	repo      Repository
	issuer    Issuer
	ttl       time.Duration
	audit     shared.AuditSink
	logger    *slog.Logger
	validator *validator.Validate
	now       func() time.Time
	// compared when the email is unknown so both paths cost one bcrypt run
	decoy []byte
}

// NewService constructs a new Service.
func NewService(repo Repository, issuer Issuer, ttl time.Duration, audit shared.AuditSink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	decoy, _ := bcrypt.GenerateFromPassword([]byte("decoy-password"), bcrypt.MinCost)
	return &Service{
		repo:      repo,
		issuer:    issuer,
		ttl:       ttl,
		audit:     audit,
		logger:    logger,
		validator: shared.NewValidator(),
		now:       time.Now,
		decoy:     decoy,
	}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, in Credentials) (Account, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := shared.ValidateStruct(s.validator, in); err != nil {
		return Account{}, err
	}
	account, err := s.repo.FindByEmail(ctx, in.Email)
	if errors.Is(err, shared.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.decoy, []byte(in.Password))
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, shared.Internal("find account", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(in.Password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	if !account.CanLogin() {
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// Login authenticates in and issues a bearer token.
func (s *Service) Login(ctx context.Context, in Credentials) (Token, error) {
	account, err := s.Authenticate(ctx, in)
	if err != nil {
		return Token{}, err
	}
	raw, err := s.issuer.Issue(account.ID, s.ttl)
	if err != nil {
		return Token{}, shared.Internal("issue token", err)
	}
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditRecord{
		ActorID:  account.ID,
		Action:   shared.AuditLogin,
		Entity:   "user",
		EntityID: strconv.FormatInt(account.ID, 10),
	})
	return Token{
		AccessToken: raw,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.ttl / time.Second),
		ExpiresAt:   s.now().UTC().Add(s.ttl),
	}, nil
}
