package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sheetgate/sheetgate/internal/platform/db"
)

// DB is the database surface the repository needs. *pgxpool.Pool satisfies
// it; tests substitute fakes.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// RepositoryPort defines data access methods for the rbac store.
type RepositoryPort interface {
	UpsertUser(ctx context.Context, subject, email string, isAdmin bool) (*User, error)
	GetUserBySubject(ctx context.Context, subject string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	AssignRole(ctx context.Context, userID, roleID string) error

	CreateRole(ctx context.Context, name string) (*Role, error)
	GetRole(ctx context.Context, id string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	DeleteRoleCascade(ctx context.Context, id string) error

	AddSheet(ctx context.Context, roleID, sheetRef string) (*Sheet, error)
	DeleteSheet(ctx context.Context, id string) error
	ListSheets(ctx context.Context) ([]Sheet, error)
	SheetsByRole(ctx context.Context, roleID string) ([]Sheet, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db DB
}

// NewRepository constructs a repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

var _ RepositoryPort = (*Repository)(nil)

const userColumns = `id, subject, email, is_admin, role_id, created_at, updated_at`

// UpsertUser provisions a user on first sign-in, refreshing email and the
// admin marker on subsequent sign-ins.
func (r *Repository) UpsertUser(ctx context.Context, subject, email string, isAdmin bool) (*User, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (id, subject, email, is_admin)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject) DO UPDATE
		SET email = EXCLUDED.email, is_admin = EXCLUDED.is_admin, updated_at = now()
		RETURNING `+userColumns,
		uuid.NewString(), subject, email, isAdmin,
	)
	user, err := scanUser(row)
	if err != nil {
		// A second IdP subject claiming an already-registered email hits
		// the users_email_key constraint.
		return nil, mapPgError(err)
	}
	return user, nil
}

// GetUserBySubject fetches a user by identity-provider subject.
func (r *Repository) GetUserBySubject(ctx context.Context, subject string) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE subject = $1`, subject)
	return scanUser(row)
}

// GetUserByEmail fetches a user by case-folded email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// ListUsers returns all users ordered by creation.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// AssignRole points the user at the role. The role row is key-share locked
// first so the assignment serializes against a concurrent cascade delete.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID string) error {
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockRole(ctx, tx, roleID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE users SET role_id = $2, updated_at = now() WHERE id = $1`, userID, roleID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return nil
	})
	return mapPgError(err)
}

// CreateRole inserts a new role with an empty sheet set.
func (r *Repository) CreateRole(ctx context.Context, name string) (*Role, error) {
	var role Role
	err := r.db.QueryRow(ctx, `
		INSERT INTO roles (id, name) VALUES ($1, $2)
		RETURNING id, name, created_at, updated_at`,
		uuid.NewString(), name,
	).Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	role.Sheets = []Sheet{}
	return &role, nil
}

// GetRole fetches a role with its sheets in insertion order. Both reads run
// in one transaction so a concurrent cascade delete cannot leave a reader
// holding the role row with a sheet list from after the cascade.
func (r *Repository) GetRole(ctx context.Context, id string) (*Role, error) {
	var role Role
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT id, name, created_at, updated_at FROM roles WHERE id = $1`, id).
			Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("role %s: %w", id, ErrNotFound)
			}
			return err
		}
		sheets, err := sheetsForRole(ctx, tx, id)
		if err != nil {
			return err
		}
		role.Sheets = sheets
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// ListRoles returns all roles with nested sheets. A single snapshot query per
// collection keeps concurrent readers consistent with invariant enforcement.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	roles := []Role{}
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, name, created_at, updated_at FROM roles ORDER BY created_at, id`)
		if err != nil {
			return err
		}
		index := map[string]int{}
		for rows.Next() {
			var role Role
			if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt); err != nil {
				rows.Close()
				return err
			}
			role.Sheets = []Sheet{}
			index[role.ID] = len(roles)
			roles = append(roles, role)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		sheetRows, err := tx.Query(ctx, `SELECT id, sheet_ref, role_id, created_at FROM sheets ORDER BY seq`)
		if err != nil {
			return err
		}
		defer sheetRows.Close()
		for sheetRows.Next() {
			var sheet Sheet
			if err := sheetRows.Scan(&sheet.ID, &sheet.SheetID, &sheet.RoleID, &sheet.CreatedAt); err != nil {
				return err
			}
			if i, ok := index[sheet.RoleID]; ok {
				roles[i].Sheets = append(roles[i].Sheets, sheet)
			}
		}
		return sheetRows.Err()
	})
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// DeleteRoleCascade atomically removes the role, its sheets, and all user
// assignments pointing at it. Concurrent readers observe either the full
// prior state or the full post-cascade state, never a partial one.
func (r *Repository) DeleteRoleCascade(ctx context.Context, id string) error {
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var locked string
		if err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("role %s: %w", id, ErrNotFound)
			}
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM sheets WHERE role_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET role_id = NULL, updated_at = now() WHERE role_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id); err != nil {
			return err
		}
		return nil
	})
	return mapPgError(err)
}

// AddSheet appends a sheet to the role's list. The role row is key-share
// locked so the insert serializes against a concurrent cascade delete.
func (r *Repository) AddSheet(ctx context.Context, roleID, sheetRef string) (*Sheet, error) {
	var sheet Sheet
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockRole(ctx, tx, roleID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO sheets (id, sheet_ref, role_id) VALUES ($1, $2, $3)
			RETURNING id, sheet_ref, role_id, created_at`,
			uuid.NewString(), sheetRef, roleID,
		).Scan(&sheet.ID, &sheet.SheetID, &sheet.RoleID, &sheet.CreatedAt)
	})
	if err != nil {
		return nil, mapPgError(err)
	}
	return &sheet, nil
}

// DeleteSheet removes a sheet from its owning role.
func (r *Repository) DeleteSheet(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sheets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sheet %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListSheets returns every sheet across all roles in insertion order.
func (r *Repository) ListSheets(ctx context.Context) ([]Sheet, error) {
	rows, err := r.db.Query(ctx, `SELECT id, sheet_ref, role_id, created_at FROM sheets ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSheets(rows)
}

// SheetsByRole returns the sheets owned by one role in insertion order.
func (r *Repository) SheetsByRole(ctx context.Context, roleID string) ([]Sheet, error) {
	return sheetsForRole(ctx, r.db, roleID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func sheetsForRole(ctx context.Context, q querier, roleID string) ([]Sheet, error) {
	rows, err := q.Query(ctx, `SELECT id, sheet_ref, role_id, created_at FROM sheets WHERE role_id = $1 ORDER BY seq`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSheets(rows)
}

func collectSheets(rows pgx.Rows) ([]Sheet, error) {
	sheets := []Sheet{}
	for rows.Next() {
		var sheet Sheet
		if err := rows.Scan(&sheet.ID, &sheet.SheetID, &sheet.RoleID, &sheet.CreatedAt); err != nil {
			return nil, err
		}
		sheets = append(sheets, sheet)
	}
	return sheets, rows.Err()
}

func lockRole(ctx context.Context, tx pgx.Tx, roleID string) error {
	var id string
	if err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE id = $1 FOR KEY SHARE`, roleID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("role %s: %w", roleID, ErrNotFound)
		}
		return err
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanUser(row scannable) (*User, error) {
	var user User
	var roleID *string
	var createdAt, updatedAt time.Time
	if err := row.Scan(&user.ID, &user.Subject, &user.Email, &user.IsAdmin, &roleID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", ErrNotFound)
		}
		return nil, err
	}
	user.RoleID = roleID
	user.CreatedAt = createdAt
	user.UpdatedAt = updatedAt
	return &user, nil
}

// mapPgError translates PostgreSQL constraint violations into domain errors.
// Unique violations on the role name become DuplicateName, those on the user
// email EmailTaken. A foreign key violation means the referenced role
// vanished under a racing cascade; so does a serialization failure (40001),
// which is how a RepeatableRead transaction blocked on a role lock resolves
// once the cascade holding FOR UPDATE commits.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			switch pgErr.ConstraintName {
			case "roles_name_key":
				return ErrDuplicateName
			case "users_email_key":
				return ErrEmailTaken
			}
		case "23503", "40001":
			return ErrCascadeConflict
		}
	}
	return err
}
