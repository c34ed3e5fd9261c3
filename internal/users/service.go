package users

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/veeduria/veeduria-api/internal/roles"
	"github.com/veeduria/veeduria-api/internal/shared"
)

const auditEntity = "user"

// Repository defines data access for users.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	// Get returns the user with every membership, active or not.
	Get(ctx context.Context, id int64) (User, error)
}

// TxRepository exposes operations that run inside one transaction.
type TxRepository interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	DocumentExists(ctx context.Context, number string) (bool, error)
	Insert(ctx context.Context, user User) (User, error)
	LockUser(ctx context.Context, id int64) (User, error)
	// SetStatus stores the approval state of a locked user.
	SetStatus(ctx context.Context, id int64, status Status) error
	// ShareRole holds a share lock on the role row until commit and fails
	// with NotFoundError when the role is gone.
	ShareRole(ctx context.Context, roleID int64) error
	// RequestMembership stores an inactive membership that grants nothing.
	RequestMembership(ctx context.Context, userID, roleID, requestedBy int64) (Membership, error)
	UpsertMembership(ctx context.Context, userID, roleID, assignedBy int64) (Membership, error)
	// DeactivateMembership reports whether an active membership was switched off.
	DeactivateMembership(ctx context.Context, userID, roleID int64) (bool, error)
}

// RoleLookup resolves role ids to existing roles.
type RoleLookup interface {
	FindMany(ctx context.Context, ids []int64) ([]roles.Role, error)
}

// PasswordHasher turns a plaintext password into a storable hash.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	Cost int
}

// Hash implements PasswordHasher.
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("users: hash password: %w", err)
	}
	return string(hash), nil
}

// Service handles user business logic.
type Service struct {
	repo     Repository
	roles    RoleLookup
	hasher   PasswordHasher
	audit    shared.AuditSink
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService builds Service instance. A nil hasher falls back to bcrypt.
func NewService(repo Repository, roleLookup RoleLookup, hasher PasswordHasher, audit shared.AuditSink, logger *slog.Logger) *Service {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		roles:    roleLookup,
		hasher:   hasher,
		audit:    audit,
		logger:   logger,
		validate: shared.NewValidator(),
	}
}

// FindUser returns user id with all memberships loaded.
func (s *Service) FindUser(ctx context.Context, id int64) (User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, shared.Internal("users: find", err)
	}
	return user, nil
}

// Register creates a pending account. Requested role ids are stored as
// inactive memberships recorded against assignedBy; they grant nothing until
// an administrator assigns them with AssignRole.
func (s *Service) Register(ctx context.Context, assignedBy int64, in RegistrationInput) (User, error) {
	in = normalizeRegistration(in)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return User{}, err
	}
	if err := s.checkRoles(ctx, in.RoleIDs); err != nil {
		return User{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, shared.Internal("users: register", err)
	}

	var created User
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		taken, err := tx.EmailExists(ctx, in.Email)
		if err != nil {
			return err
		}
		if taken {
			return shared.Invalid("email", "is already registered")
		}
		taken, err = tx.DocumentExists(ctx, in.DocumentNumber)
		if err != nil {
			return err
		}
		if taken {
			return shared.Invalid("document_number", "is already registered")
		}
		created, err = tx.Insert(ctx, User{
			Name:           in.Name,
			Surname:        in.Surname,
			Email:          in.Email,
			DocumentNumber: in.DocumentNumber,
			DocumentType:   in.DocumentType,
			PrimaryRole:    in.PrimaryRole,
			Status:         StatusPending,
			PasswordHash:   hash,
		})
		if err != nil {
			return err
		}
		created.Memberships = make([]Membership, 0, len(in.RoleIDs))
		for _, roleID := range in.RoleIDs {
			m, err := tx.RequestMembership(ctx, created.ID, roleID, assignedBy)
			if err != nil {
				return err
			}
			created.Memberships = append(created.Memberships, m)
		}
		return nil
	})
	if err != nil {
		return User{}, shared.Internal("users: register", err)
	}
	s.record(ctx, assignedBy, shared.AuditRegister, created.ID, map[string]any{
		"email":        created.Email,
		"primary_role": string(created.PrimaryRole),
		"role_ids":     in.RoleIDs,
	})
	return created, nil
}

// AssignRole grants an active membership to roleID, reactivating a revoked or
// requested one. The role row is share-locked so a concurrent role delete
// either sees the new assignment or wins and yields NotFoundError here.
func (s *Service) AssignRole(ctx context.Context, actorID, userID, roleID int64) (Membership, error) {
	var membership Membership
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		if err := tx.ShareRole(ctx, roleID); err != nil {
			return err
		}
		var err error
		membership, err = tx.UpsertMembership(ctx, userID, roleID, actorID)
		return err
	})
	if err != nil {
		return Membership{}, shared.Internal("users: assign role", err)
	}
	s.record(ctx, actorID, shared.AuditAssignRole, userID, map[string]any{"role_id": roleID})
	return membership, nil
}

// SetStatus records an approval decision for userID. Setting the current
// status again is a no-op and is not audited.
func (s *Service) SetStatus(ctx context.Context, actorID, userID int64, in StatusInput) (User, error) {
	in.Status = Status(strings.ToLower(strings.TrimSpace(string(in.Status))))
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return User{}, err
	}
	var previous Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		previous = current.Status
		if current.Status == in.Status {
			return nil
		}
		return tx.SetStatus(ctx, userID, in.Status)
	})
	if err != nil {
		return User{}, shared.Internal("users: set status", err)
	}
	if previous != in.Status {
		s.record(ctx, actorID, shared.AuditSetStatus, userID, map[string]any{
			"from": string(previous),
			"to":   string(in.Status),
		})
	}
	return s.FindUser(ctx, userID)
}

// RevokeRole deactivates the membership to roleID. Missing memberships are a no-op.
func (s *Service) RevokeRole(ctx context.Context, actorID, userID, roleID int64) error {
	var changed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		var err error
		changed, err = tx.DeactivateMembership(ctx, userID, roleID)
		return err
	})
	if err != nil {
		return shared.Internal("users: revoke role", err)
	}
	if changed {
		s.record(ctx, actorID, shared.AuditRevokeRole, userID, map[string]any{"role_id": roleID})
	}
	return nil
}

func (s *Service) checkRoles(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.roles.FindMany(ctx, ids)
	if err != nil {
		return shared.Internal("users: check roles", err)
	}
	known := make(map[int64]struct{}, len(found))
	for _, r := range found {
		known[r.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return shared.Invalid("role_ids", "unknown role "+strconv.FormatInt(id, 10))
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, details map[string]any) {
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditRecord{
		ActorID:  actorID,
		Action:   action,
		Entity:   auditEntity,
		EntityID: strconv.FormatInt(id, 10),
		Details:  details,
	})
}

func normalizeRegistration(in RegistrationInput) RegistrationInput {
	// cases.Caser is stateful, one per call.
	title := cases.Title(language.Spanish)
	in.Name = title.String(strings.TrimSpace(in.Name))
	in.Surname = title.String(strings.TrimSpace(in.Surname))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.DocumentNumber = strings.TrimSpace(in.DocumentNumber)
	in.DocumentType = DocumentType(strings.ToLower(strings.TrimSpace(string(in.DocumentType))))
	in.PrimaryRole = shared.PrimaryRole(strings.ToLower(strings.TrimSpace(string(in.PrimaryRole))))
	if len(in.RoleIDs) > 0 {
		ids := slices.Clone(in.RoleIDs)
		slices.Sort(ids)
		in.RoleIDs = slices.Compact(ids)
	}
	return in
}
