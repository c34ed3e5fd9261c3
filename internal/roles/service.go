package roles

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/veeduria/veeduria-api/internal/shared"
)

const auditEntity = "role"

// Repository defines data access for roles.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Role, error)
	FindMany(ctx context.Context, ids []int64) ([]Role, error)
	Search(ctx context.Context, term string) ([]Role, error)
	List(ctx context.Context, filters ListFilters) ([]Role, int, error)
	Stats(ctx context.Context) (Stats, error)
	Members(ctx context.Context, id int64) ([]Member, error)
}

// TxRepository exposes operations that run inside one transaction.
type TxRepository interface {
	Insert(ctx context.Context, role Role) (Role, error)
	// LockRole loads the role with its permissions and holds its row lock until commit.
	LockRole(ctx context.Context, id int64) (Role, error)
	SaveRole(ctx context.Context, role Role) (Role, error)
	AddPermission(ctx context.Context, id int64, slug string) error
	RemovePermission(ctx context.Context, id int64, slug string) error
	CountActiveAssignments(ctx context.Context, id int64) (int, error)
	Delete(ctx context.Context, id int64) error
}

var sortColumns = map[string]struct{}{
	"name":       {},
	"id":         {},
	"status":     {},
	"created_at": {},
}

// Service handles role business logic.
type Service struct {
	repo     Repository
	audit    shared.AuditSink
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService builds Service instance.
func NewService(repo Repository, audit shared.AuditSink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, validate: shared.NewValidator()}
}

// Create validates and inserts a new role. Status defaults to active.
func (s *Service) Create(ctx context.Context, actorID int64, in CreateInput) (Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Status == "" {
		in.Status = StatusActive
	}
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Role{}, err
	}
	var created Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, Role{Name: in.Name, Description: in.Description, Status: in.Status, Permissions: []string{}})
		return err
	})
	if err != nil {
		return Role{}, shared.Internal("roles: create", err)
	}
	s.record(ctx, actorID, shared.AuditCreate, created.ID, map[string]any{
		"name":   created.Name,
		"status": string(created.Status),
	})
	return created, nil
}

// Update applies the non-nil fields of in to role id.
func (s *Service) Update(ctx context.Context, actorID, id int64, in UpdateInput) (Role, error) {
	if in.Name != nil {
		v := strings.TrimSpace(*in.Name)
		in.Name = &v
	}
	if in.Description != nil {
		v := strings.TrimSpace(*in.Description)
		in.Description = &v
	}
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Role{}, err
	}
	var (
		updated Role
		changes = map[string]any{}
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.LockRole(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil && *in.Name != role.Name {
			changes["name"] = *in.Name
			role.Name = *in.Name
		}
		if in.Description != nil && *in.Description != role.Description {
			changes["description"] = *in.Description
			role.Description = *in.Description
		}
		if in.Status != nil && *in.Status != role.Status {
			changes["status"] = string(*in.Status)
			role.Status = *in.Status
		}
		if len(changes) == 0 {
			updated = role
			return nil
		}
		updated, err = tx.SaveRole(ctx, role)
		return err
	})
	if err != nil {
		return Role{}, shared.Internal("roles: update", err)
	}
	if len(changes) > 0 {
		s.record(ctx, actorID, shared.AuditUpdate, id, changes)
	}
	return updated, nil
}

// Delete removes role id unless a user still holds an active membership to it.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	var name string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.LockRole(ctx, id)
		if err != nil {
			return err
		}
		count, err := tx.CountActiveAssignments(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return &shared.ConflictError{Entity: auditEntity, ID: id, Reason: "role in use", Count: count}
		}
		name = role.Name
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return shared.Internal("roles: delete", err)
	}
	s.record(ctx, actorID, shared.AuditDelete, id, map[string]any{"name": name})
	return nil
}

// Activate marks role id active. Already active roles are returned unchanged.
func (s *Service) Activate(ctx context.Context, actorID, id int64) (Role, error) {
	return s.setStatus(ctx, actorID, id, StatusActive, shared.AuditActivate)
}

// Deactivate marks role id inactive. Already inactive roles are returned unchanged.
func (s *Service) Deactivate(ctx context.Context, actorID, id int64) (Role, error) {
	return s.setStatus(ctx, actorID, id, StatusInactive, shared.AuditDeactivate)
}

func (s *Service) setStatus(ctx context.Context, actorID, id int64, target Status, action string) (Role, error) {
	var (
		result  Role
		changed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.LockRole(ctx, id)
		if err != nil {
			return err
		}
		if role.Status == target {
			result = role
			return nil
		}
		role.Status = target
		changed = true
		result, err = tx.SaveRole(ctx, role)
		return err
	})
	if err != nil {
		return Role{}, shared.Internal("roles: set status", err)
	}
	if changed {
		s.record(ctx, actorID, action, id, map[string]any{"status": string(target)})
	}
	return result, nil
}

// AddPermission inserts slug into the permission set of role id.
func (s *Service) AddPermission(ctx context.Context, actorID, id int64, slug string) (Role, error) {
	slug, err := validSlug(slug)
	if err != nil {
		return Role{}, err
	}
	return s.editPermissions(ctx, actorID, id, slug, true)
}

// RemovePermission drops slug from the permission set of role id. Absent slugs are a no-op.
func (s *Service) RemovePermission(ctx context.Context, actorID, id int64, slug string) (Role, error) {
	return s.editPermissions(ctx, actorID, id, shared.NormalizeSlug(slug), false)
}

func (s *Service) editPermissions(ctx context.Context, actorID, id int64, slug string, add bool) (Role, error) {
	var (
		result  Role
		changed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.LockRole(ctx, id)
		if err != nil {
			return err
		}
		has := role.HasPermission(slug)
		switch {
		case add && !has:
			if err := tx.AddPermission(ctx, id, slug); err != nil {
				return err
			}
			role.Permissions = insertSlug(role.Permissions, slug)
		case !add && has:
			if err := tx.RemovePermission(ctx, id, slug); err != nil {
				return err
			}
			role.Permissions = removeSlug(role.Permissions, slug)
		default:
			result = role
			return nil
		}
		changed = true
		result, err = tx.SaveRole(ctx, role)
		return err
	})
	if err != nil {
		return Role{}, shared.Internal("roles: edit permissions", err)
	}
	if changed {
		action := shared.AuditRemovePermission
		if add {
			action = shared.AuditAddPermission
		}
		s.record(ctx, actorID, action, id, map[string]any{"permission": slug})
	}
	return result, nil
}

// Find returns role id.
func (s *Service) Find(ctx context.Context, id int64) (Role, error) {
	role, err := s.repo.Get(ctx, id)
	if err != nil {
		return Role{}, shared.Internal("roles: find", err)
	}
	return role, nil
}

// FindMany returns the roles among ids that exist, ordered by id.
func (s *Service) FindMany(ctx context.Context, ids []int64) ([]Role, error) {
	if len(ids) == 0 {
		return []Role{}, nil
	}
	found, err := s.repo.FindMany(ctx, ids)
	if err != nil {
		return nil, shared.Internal("roles: find many", err)
	}
	return found, nil
}

// Search matches term against name or description, case-insensitively.
func (s *Service) Search(ctx context.Context, term string) ([]Role, error) {
	found, err := s.repo.Search(ctx, strings.TrimSpace(term))
	if err != nil {
		return nil, shared.Internal("roles: search", err)
	}
	return found, nil
}

// List returns one page of roles. Default order is name ascending, ties broken by id.
func (s *Service) List(ctx context.Context, filters ListFilters) (Page, error) {
	filters.SortBy = strings.ToLower(strings.TrimSpace(filters.SortBy))
	filters.SortDir = strings.ToLower(strings.TrimSpace(filters.SortDir))
	if filters.SortBy == "" {
		filters.SortBy = "name"
	}
	if filters.SortDir == "" {
		filters.SortDir = "asc"
	}
	var fieldErrs []shared.FieldError
	if _, ok := sortColumns[filters.SortBy]; !ok {
		fieldErrs = append(fieldErrs, shared.FieldError{Field: "sort", Reason: "must be one of: name id status created_at"})
	}
	if filters.SortDir != "asc" && filters.SortDir != "desc" {
		fieldErrs = append(fieldErrs, shared.FieldError{Field: "dir", Reason: "must be one of: asc desc"})
	}
	if filters.Status != "" && !filters.Status.Valid() {
		fieldErrs = append(fieldErrs, shared.FieldError{Field: "status", Reason: "must be one of: active inactive"})
	}
	if len(fieldErrs) > 0 {
		return Page{}, &shared.ValidationError{Fields: fieldErrs}
	}
	filters.Page, filters.PerPage = shared.NormalizePage(filters.Page, filters.PerPage)

	found, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return Page{}, shared.Internal("roles: list", err)
	}
	return Page{Roles: found, Pagination: shared.NewPagination(filters.Page, filters.PerPage, total)}, nil
}

// Stats summarises roles and their active assignments.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return Stats{}, shared.Internal("roles: stats", err)
	}
	return stats, nil
}

// Members lists users holding an active membership to role id.
func (s *Service) Members(ctx context.Context, id int64) ([]Member, error) {
	members, err := s.repo.Members(ctx, id)
	if err != nil {
		return nil, shared.Internal("roles: members", err)
	}
	return members, nil
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

func validSlug(slug string) (string, error) {
	slug = shared.NormalizeSlug(slug)
	if slug == "" {
		return "", shared.Invalid("slug", "is required")
	}
	if len(slug) > shared.MaxSlugLength {
		return "", shared.Invalid("slug", "must be at most 100 characters")
	}
	return slug, nil
}
