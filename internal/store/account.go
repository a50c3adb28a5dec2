// ABOUTME: Store methods for accounts and account memberships.
// ABOUTME: Membership role is the engine's source of admin override and guest rules.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelierhq/atelier/internal/perm"
)

// Account is an accounts table row.
type Account struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountMemberRow is one member in a membership listing, joined with the
// user's profile fields.
type AccountMemberRow struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
	Role        perm.AccountRole
	JoinedAt    time.Time
}

// CreateAccountWithOwner atomically creates an account and adds ownerID with
// the owner role.
func (s *Store) CreateAccountWithOwner(ctx context.Context, name string, ownerID uuid.UUID) (*Account, error) {
	var a Account
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO accounts (name) VALUES ($1)
			RETURNING id, name, created_at, updated_at`, name,
		).Scan(&a.ID, &a.Name, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO account_members (account_id, user_id, role)
			VALUES ($1, $2, $3)`, a.ID, ownerID, perm.RoleOwner); err != nil {
			return fmt.Errorf("create owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount returns the account with the given id, or (nil, nil) if none.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

// GetAccountRole returns userID's role in accountID, or (nil, nil) if the user
// is not a member. Part of the perm.Store contract.
func (s *Store) GetAccountRole(ctx context.Context, accountID, userID uuid.UUID) (*perm.AccountRole, error) {
	var role perm.AccountRole
	err := s.pool.QueryRow(ctx,
		`SELECT role FROM account_members WHERE account_id = $1 AND user_id = $2`,
		accountID, userID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account role: %w", err)
	}
	return &role, nil
}

// AddAccountMember adds userID to accountID with the given role. Adding an
// existing member is an error (unique membership per pair).
func (s *Store) AddAccountMember(ctx context.Context, accountID, userID uuid.UUID, role perm.AccountRole) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO account_members (account_id, user_id, role)
		VALUES ($1, $2, $3)`, accountID, userID, role); err != nil {
		return fmt.Errorf("add account member: %w", err)
	}
	return nil
}

// UpdateAccountMemberRole changes userID's role in accountID.
func (s *Store) UpdateAccountMemberRole(ctx context.Context, accountID, userID uuid.UUID, role perm.AccountRole) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE account_members SET role = $3, updated_at = now()
		WHERE account_id = $1 AND user_id = $2`, accountID, userID, role); err != nil {
		return fmt.Errorf("update account member role: %w", err)
	}
	return nil
}

// RemoveAccountMember removes userID from accountID. Removing a non-member is
// a no-op.
func (s *Store) RemoveAccountMember(ctx context.Context, accountID, userID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM account_members WHERE account_id = $1 AND user_id = $2`,
		accountID, userID); err != nil {
		return fmt.Errorf("remove account member: %w", err)
	}
	return nil
}

// ListAccountMembers returns all members of an account ordered by join time.
func (s *Store) ListAccountMembers(ctx context.Context, accountID uuid.UUID) ([]AccountMemberRow, error) {
	query, args, err := psql.
		Select("m.user_id", "u.email", "u.display_name", "m.role", "m.created_at").
		From("account_members m").
		Join("users u ON u.id = m.user_id").
		Where(sq.Eq{"m.account_id": accountID}).
		OrderBy("m.created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build member listing: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list account members: %w", err)
	}
	defer rows.Close()

	var members []AccountMemberRow
	for rows.Next() {
		var m AccountMemberRow
		if err := rows.Scan(&m.UserID, &m.Email, &m.DisplayName, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetAccountOwnerCount returns the number of owners in the account. Used to
// prevent removing or demoting the last owner.
func (s *Store) GetAccountOwnerCount(ctx context.Context, accountID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM account_members WHERE account_id = $1 AND role = $2`,
		accountID, perm.RoleOwner,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count account owners: %w", err)
	}
	return n, nil
}

// ListUserAccounts returns all accounts the user belongs to with their role,
// ordered by account name.
func (s *Store) ListUserAccounts(ctx context.Context, userID uuid.UUID) ([]UserAccountRow, error) {
	query, args, err := psql.
		Select("a.id", "a.name", "m.role", "m.created_at").
		From("account_members m").
		Join("accounts a ON a.id = m.account_id").
		Where(sq.Eq{"m.user_id": userID}).
		OrderBy("a.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build account listing: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list user accounts: %w", err)
	}
	defer rows.Close()

	var accounts []UserAccountRow
	for rows.Next() {
		var a UserAccountRow
		if err := rows.Scan(&a.AccountID, &a.Name, &a.Role, &a.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UserAccountRow is one account in a user's membership listing.
type UserAccountRow struct {
	AccountID uuid.UUID
	Name      string
	Role      perm.AccountRole
	JoinedAt  time.Time
}
