package users

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/veeduria/veeduria-api/internal/roles"
	"github.com/veeduria/veeduria-api/internal/shared"
)

type membershipKey struct{ user, role int64 }

type mockRepository struct {
	users       map[int64]User
	memberships map[membershipKey]Membership
	roles       map[int64]bool
	nextID      int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:       make(map[int64]User),
		memberships: make(map[membershipKey]Membership),
		roles:       map[int64]bool{1: true, 2: true},
		nextID:      1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	users := make(map[int64]User, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	memberships := make(map[membershipKey]Membership, len(m.memberships))
	for k, v := range m.memberships {
		memberships[k] = v
	}
	nextID := m.nextID
	if err := fn(ctx, &mockTx{m: m}); err != nil {
		m.users, m.memberships, m.nextID = users, memberships, nextID
		return err
	}
	return nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.NotFound(auditEntity, id)
	}
	u.Memberships = []Membership{}
	for k, ms := range m.memberships {
		if k.user == id {
			u.Memberships = append(u.Memberships, ms)
		}
	}
	return u, nil
}

type mockTx struct{ m *mockRepository }

func (t *mockTx) EmailExists(ctx context.Context, email string) (bool, error) {
	for _, u := range t.m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (t *mockTx) DocumentExists(ctx context.Context, number string) (bool, error) {
	for _, u := range t.m.users {
		if u.DocumentNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (t *mockTx) Insert(ctx context.Context, u User) (User, error) {
	u.ID = t.m.nextID
	t.m.nextID++
	u.CreatedAt = time.Now()
	t.m.users[u.ID] = u
	return u, nil
}

func (t *mockTx) LockUser(ctx context.Context, id int64) (User, error) {
	return t.m.Get(ctx, id)
}

func (t *mockTx) SetStatus(ctx context.Context, id int64, status Status) error {
	u, ok := t.m.users[id]
	if !ok {
		return shared.NotFound(auditEntity, id)
	}
	u.Status = status
	t.m.users[id] = u
	return nil
}

func (t *mockTx) ShareRole(ctx context.Context, roleID int64) error {
	if !t.m.roles[roleID] {
		return shared.NotFound("role", roleID)
	}
	return nil
}

func (t *mockTx) RequestMembership(ctx context.Context, userID, roleID, requestedBy int64) (Membership, error) {
	ms := Membership{RoleID: roleID, AssignedBy: requestedBy, AssignedAt: time.Now()}
	t.m.memberships[membershipKey{userID, roleID}] = ms
	return ms, nil
}

func (t *mockTx) UpsertMembership(ctx context.Context, userID, roleID, assignedBy int64) (Membership, error) {
	ms := Membership{RoleID: roleID, AssignedBy: assignedBy, AssignedAt: time.Now(), Active: true}
	t.m.memberships[membershipKey{userID, roleID}] = ms
	return ms, nil
}

func (t *mockTx) DeactivateMembership(ctx context.Context, userID, roleID int64) (bool, error) {
	key := membershipKey{userID, roleID}
	ms, ok := t.m.memberships[key]
	if !ok || !ms.Active {
		return false, nil
	}
	ms.Active = false
	t.m.memberships[key] = ms
	return true, nil
}

type stubRoles struct {
	known map[int64]roles.Role
	err   error
}

func (s stubRoles) FindMany(ctx context.Context, ids []int64) ([]roles.Role, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := []roles.Role{}
	for _, id := range ids {
		if r, ok := s.known[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

type recordingSink struct{ records []shared.AuditRecord }

func (s *recordingSink) Record(ctx context.Context, rec shared.AuditRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func newTestService() (*Service, *mockRepository, *recordingSink) {
	repo := newMockRepository()
	sink := &recordingSink{}
	roleLookup := stubRoles{known: map[int64]roles.Role{
		1: {ID: 1, Name: "Operador", Status: roles.StatusActive},
		2: {ID: 2, Name: "Cliente", Status: roles.StatusActive},
	}}
	return NewService(repo, roleLookup, plainHasher{}, sink, nil), repo, sink
}

func validRegistration() RegistrationInput {
	return RegistrationInput{
		Name:           "  maría josé ",
		Surname:        "pérez gómez",
		Email:          " Maria@Example.COM ",
		DocumentNumber: "1020304050",
		DocumentType:   DocumentCitizenID,
		PrimaryRole:    shared.PrimaryRoleClient,
		Password:       "s3cretpass",
	}
}

func TestRegisterCreatesPendingUser(t *testing.T) {
	svc, repo, sink := newTestService()

	in := validRegistration()
	in.PrimaryRole = "ADG"
	in.RoleIDs = []int64{2, 1, 2}
	user, err := svc.Register(context.Background(), 99, in)
	require.NoError(t, err)

	assert.Equal(t, "María José", user.Name)
	assert.Equal(t, "Pérez Gómez", user.Surname)
	assert.Equal(t, "maria@example.com", user.Email)
	assert.Equal(t, StatusPending, user.Status)
	assert.Equal(t, shared.PrimaryRoleGeneralAdministrator, user.PrimaryRole)
	assert.Equal(t, "hashed:s3cretpass", repo.users[user.ID].PasswordHash)

	require.Len(t, user.Memberships, 2)
	for _, m := range user.Memberships {
		assert.Equal(t, int64(99), m.AssignedBy)
		assert.False(t, m.Active, "requested roles wait for an administrator")
	}
	assert.Empty(t, user.ActiveRoleIDs())
	assert.False(t, user.Approved())

	require.Len(t, sink.records, 1)
	assert.Equal(t, shared.AuditRegister, sink.records[0].Action)
	assert.Equal(t, int64(99), sink.records[0].ActorID)
}

func TestRegisterValidation(t *testing.T) {
	svc, repo, _ := newTestService()

	cases := map[string]struct {
		mutate func(*RegistrationInput)
		field  string
	}{
		"missing name":        {func(in *RegistrationInput) { in.Name = " " }, "name"},
		"long surname":        {func(in *RegistrationInput) { in.Surname = strings.Repeat("a", 101) }, "surname"},
		"bad email":           {func(in *RegistrationInput) { in.Email = "not-an-email" }, "email"},
		"long document":       {func(in *RegistrationInput) { in.DocumentNumber = strings.Repeat("1", 21) }, "document_number"},
		"unknown doc type":    {func(in *RegistrationInput) { in.DocumentType = "dni" }, "document_type"},
		"unknown role tag":    {func(in *RegistrationInput) { in.PrimaryRole = "root" }, "primary_role"},
		"short password":      {func(in *RegistrationInput) { in.Password = "short" }, "password"},
		"unknown role member": {func(in *RegistrationInput) { in.RoleIDs = []int64{1, 42} }, "role_ids"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := validRegistration()
			tc.mutate(&in)
			_, err := svc.Register(context.Background(), 1, in)
			var ve *shared.ValidationError
			require.ErrorAs(t, err, &ve)
			require.NotEmpty(t, ve.Fields)
			assert.Equal(t, tc.field, ve.Fields[0].Field)
		})
	}
	assert.Empty(t, repo.users)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	svc, repo, sink := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, 1, validRegistration())
	require.NoError(t, err)

	dupEmail := validRegistration()
	dupEmail.DocumentNumber = "999"
	_, err = svc.Register(ctx, 1, dupEmail)
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "email", ve.Fields[0].Field)

	dupDoc := validRegistration()
	dupDoc.Email = "otra@example.com"
	_, err = svc.Register(ctx, 1, dupDoc)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "document_number", ve.Fields[0].Field)

	assert.Len(t, repo.users, 1)
	assert.Len(t, sink.records, 1)
}

func TestRegisterRoleLookupFailure(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, stubRoles{err: errors.New("db down")}, plainHasher{}, nil, nil)

	in := validRegistration()
	in.RoleIDs = []int64{1}
	_, err := svc.Register(context.Background(), 1, in)
	assert.ErrorIs(t, err, shared.ErrInternal)
}

func TestAssignAndRevokeRole(t *testing.T) {
	svc, repo, sink := newTestService()
	ctx := context.Background()
	user, err := svc.Register(ctx, 1, validRegistration())
	require.NoError(t, err)
	sink.records = nil

	m, err := svc.AssignRole(ctx, 7, user.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.AssignedBy)
	assert.True(t, m.Active)

	found, err := svc.FindUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, found.ActiveRoleIDs())

	require.NoError(t, svc.RevokeRole(ctx, 7, user.ID, 1))
	require.NoError(t, svc.RevokeRole(ctx, 7, user.ID, 1))
	require.NoError(t, svc.RevokeRole(ctx, 7, user.ID, 2))

	found, err = svc.FindUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, found.ActiveRoleIDs())
	assert.Len(t, found.Memberships, 1)
	assert.False(t, repo.memberships[membershipKey{user.ID, 1}].Active)

	require.Len(t, sink.records, 2)
	assert.Equal(t, shared.AuditAssignRole, sink.records[0].Action)
	assert.Equal(t, shared.AuditRevokeRole, sink.records[1].Action)
}

func TestAssignRoleActivatesRequestedMembership(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	in := validRegistration()
	in.RoleIDs = []int64{1}
	user, err := svc.Register(ctx, 1, in)
	require.NoError(t, err)
	require.False(t, repo.memberships[membershipKey{user.ID, 1}].Active)

	m, err := svc.AssignRole(ctx, 7, user.ID, 1)
	require.NoError(t, err)
	assert.True(t, m.Active)
	assert.Equal(t, int64(7), m.AssignedBy)
}

func TestAssignRoleChecksRoleInsideTransaction(t *testing.T) {
	svc, repo, sink := newTestService()
	ctx := context.Background()
	user, err := svc.Register(ctx, 1, validRegistration())
	require.NoError(t, err)
	sink.records = nil

	// the role lookup still lists role 2, the locked read does not
	delete(repo.roles, 2)
	_, err = svc.AssignRole(ctx, 7, user.ID, 2)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.NotContains(t, repo.memberships, membershipKey{user.ID, 2})
	assert.Empty(t, sink.records)
}

func TestSetStatus(t *testing.T) {
	svc, _, sink := newTestService()
	ctx := context.Background()
	user, err := svc.Register(ctx, 1, validRegistration())
	require.NoError(t, err)
	sink.records = nil

	approved, err := svc.SetStatus(ctx, 7, user.ID, StatusInput{Status: " Approved "})
	require.NoError(t, err)
	assert.True(t, approved.Approved())

	_, err = svc.SetStatus(ctx, 7, user.ID, StatusInput{Status: StatusApproved})
	require.NoError(t, err)
	require.Len(t, sink.records, 1, "repeating a status is not audited")
	assert.Equal(t, shared.AuditSetStatus, sink.records[0].Action)
	assert.Equal(t, map[string]any{"from": "pending", "to": "approved"}, sink.records[0].Details)

	_, err = svc.SetStatus(ctx, 7, user.ID, StatusInput{Status: "deleted"})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.SetStatus(ctx, 7, 404, StatusInput{Status: StatusSuspended})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAssignRoleNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	user, err := svc.Register(ctx, 1, validRegistration())
	require.NoError(t, err)

	_, err = svc.AssignRole(ctx, 1, user.ID, 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.AssignRole(ctx, 1, 404, 1)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.ErrorIs(t, svc.RevokeRole(ctx, 1, 404, 1), shared.ErrNotFound)

	_, err = svc.FindUser(ctx, 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRepositoryTransactionsReadCommitted(t *testing.T) {
	assert.Equal(t, pgx.ReadCommitted, txIsoLevel)
}

func TestBcryptHasher(t *testing.T) {
	hash, err := BcryptHasher{Cost: bcrypt.MinCost}.Hash("s3cretpass")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cretpass")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong")))
}
