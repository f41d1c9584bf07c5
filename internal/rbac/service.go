package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"

	"github.com/sheetgate/sheetgate/internal/identity"
)

var validate = validator.New()

// FoldEmail normalizes an email for case-insensitive comparison using
// Unicode case folding.
func FoldEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// Service orchestrates rbac operations. Every mutating or admin-listing
// operation re-resolves the requester's admin marker from the store; nothing
// is ever trusted from client-supplied claims.
type Service struct {
	repo        RepositoryPort
	cache       *Cache
	adminEmails map[string]struct{}
	logger      *slog.Logger
}

// NewService constructs a Service. adminEmails lists identities granted the
// admin marker when their account is provisioned or refreshed at sign-in.
func NewService(repo RepositoryPort, cache *Cache, adminEmails []string, logger *slog.Logger) *Service {
	set := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		if folded := FoldEmail(email); folded != "" {
			set[folded] = struct{}{}
		}
	}
	return &Service{repo: repo, cache: cache, adminEmails: set, logger: logger}
}

// SignIn provisions the caller's account on first sign-in and returns it
// together with the assigned role, if any.
func (s *Service) SignIn(ctx context.Context, ident identity.Identity) (*User, *Role, error) {
	user, err := s.ensureUser(ctx, ident)
	if err != nil {
		return nil, nil, err
	}
	role, err := s.assignedRole(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, role, nil
}

// CreateRole persists a new role with an empty sheet set.
func (s *Service) CreateRole(ctx context.Context, ident identity.Identity, name string) (*Role, error) {
	if _, err := s.requireAdmin(ctx, ident); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("role name required: %w", ErrInvalidInput)
	}
	role, err := s.repo.CreateRole(ctx, name)
	if err != nil {
		return nil, err
	}
	s.bump(ctx)
	return role, nil
}

// DeleteRole removes a role and cascades: owned sheets are deleted and users
// assigned to the role become unassigned, all in one atomic unit.
func (s *Service) DeleteRole(ctx context.Context, ident identity.Identity, roleID string) error {
	if _, err := s.requireAdmin(ctx, ident); err != nil {
		return err
	}
	if err := s.repo.DeleteRoleCascade(ctx, roleID); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// AddSheet creates a sheet owned by the role, appended to its sheet list.
func (s *Service) AddSheet(ctx context.Context, ident identity.Identity, sheetRef, roleID string) (*Sheet, error) {
	if _, err := s.requireAdmin(ctx, ident); err != nil {
		return nil, err
	}
	sheetRef = strings.TrimSpace(sheetRef)
	if sheetRef == "" {
		return nil, fmt.Errorf("sheet id required: %w", ErrInvalidInput)
	}
	sheet, err := s.repo.AddSheet(ctx, roleID, sheetRef)
	if err != nil {
		return nil, err
	}
	s.bump(ctx)
	return sheet, nil
}

// DeleteSheet removes a sheet from its owning role and deletes it.
func (s *Service) DeleteSheet(ctx context.Context, ident identity.Identity, sheetID string) error {
	if _, err := s.requireAdmin(ctx, ident); err != nil {
		return err
	}
	if err := s.repo.DeleteSheet(ctx, sheetID); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// AssignRole sets the target user's role, replacing any prior assignment.
// Repeated identical calls are idempotent.
func (s *Service) AssignRole(ctx context.Context, ident identity.Identity, email, roleID string) error {
	if _, err := s.requireAdmin(ctx, ident); err != nil {
		return err
	}
	if err := validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("malformed email %q: %w", email, ErrInvalidInput)
	}
	user, err := s.repo.GetUserByEmail(ctx, FoldEmail(email))
	if err != nil {
		return err
	}
	return s.repo.AssignRole(ctx, user.ID, roleID)
}

// ListRoles returns all roles with nested sheets, via the read-through cache.
func (s *Service) ListRoles(ctx context.Context, ident identity.Identity) ([]Role, error) {
	if _, err := s.requireAdmin(ctx, ident); err != nil {
		return nil, err
	}
	return s.cache.FetchRoles(ctx, s.repo.ListRoles)
}

// ListSheets returns every sheet across all roles.
func (s *Service) ListSheets(ctx context.Context, ident identity.Identity) ([]Sheet, error) {
	if _, err := s.requireAdmin(ctx, ident); err != nil {
		return nil, err
	}
	return s.repo.ListSheets(ctx)
}

// ListUsers returns all users with their assigned roles.
func (s *Service) ListUsers(ctx context.Context, ident identity.Identity) ([]User, error) {
	if _, err := s.requireAdmin(ctx, ident); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

// MyAccess answers the access-decision query for the caller itself. It is
// recomputed from current role and sheet state on every call, never cached.
// Unassigned callers get a nil role and empty sheets, not an error.
func (s *Service) MyAccess(ctx context.Context, ident identity.Identity) (Access, error) {
	user, err := s.ensureUser(ctx, ident)
	if err != nil {
		return Access{}, err
	}
	role, err := s.assignedRole(ctx, user)
	if err != nil {
		return Access{}, err
	}
	if role == nil {
		return Access{Role: nil, Sheets: []Sheet{}}, nil
	}
	return Access{Role: role, Sheets: role.Sheets}, nil
}

// ensureUser resolves the requester's account, provisioning it on first
// contact. The admin marker comes from server-side configuration, not from
// anything the client sent.
func (s *Service) ensureUser(ctx context.Context, ident identity.Identity) (*User, error) {
	if ident.Subject == "" || ident.Email == "" {
		return nil, fmt.Errorf("identity assertion incomplete: %w", ErrInvalidInput)
	}
	email := FoldEmail(ident.Email)
	_, isAdmin := s.adminEmails[email]
	return s.repo.UpsertUser(ctx, ident.Subject, email, isAdmin)
}

func (s *Service) requireAdmin(ctx context.Context, ident identity.Identity) (*User, error) {
	user, err := s.ensureUser(ctx, ident)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// assignedRole loads the user's role with sheets. A role deleted between the
// user read and the role read reads as no assignment.
func (s *Service) assignedRole(ctx context.Context, user *User) (*Role, error) {
	if user.RoleID == nil {
		return nil, nil
	}
	role, err := s.repo.GetRole(ctx, *user.RoleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return role, nil
}

func (s *Service) bump(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("roles cache bump", slog.Any("error", err))
	}
}
