package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced when creating admins.
const MinPasswordLength = 8

var ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

type Admin struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (d *DB) CountAdmins(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting admins: %w", err)
	}
	return n, nil
}

// CreateAdmin stores a new admin with a bcrypt hash of password.
func (d *DB) CreateAdmin(ctx context.Context, email, password, name string) (Admin, error) {
	return d.createAdmin(ctx, email, password, name, false)
}

// SetupAdmin creates the first admin. It fails with ErrSetupComplete once
// any admin exists.
func (d *DB) SetupAdmin(ctx context.Context, email, password, name string) (Admin, error) {
	return d.createAdmin(ctx, email, password, name, true)
}

func (d *DB) createAdmin(ctx context.Context, email, password, name string, firstOnly bool) (Admin, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Admin{}, err
	}
	if len(password) < MinPasswordLength {
		return Admin{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Admin{}, fmt.Errorf("hashing password: %w", err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Admin{}, err
	}
	defer tx.Rollback()

	var count, same int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(email = ?), 0) FROM admins`, email).Scan(&count, &same)
	if err != nil {
		return Admin{}, fmt.Errorf("checking admins: %w", err)
	}
	if firstOnly && count > 0 {
		return Admin{}, ErrSetupComplete
	}
	if same > 0 {
		return Admin{}, ErrAdminExists
	}

	admin := Admin{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO admins (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		admin.ID, admin.Email, admin.Name, string(hash), admin.CreatedAt.Unix()); err != nil {
		return Admin{}, fmt.Errorf("inserting admin: %w", err)
	}
	return admin, tx.Commit()
}

// Authenticate checks email and password. Unknown emails and wrong
// passwords both return ErrInvalidCredentials.
func (d *DB) Authenticate(ctx context.Context, email, password string) (Admin, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var (
		admin   Admin
		hash    string
		created int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM admins WHERE email = ?`, email).
		Scan(&admin.ID, &admin.Email, &admin.Name, &hash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Admin{}, ErrInvalidCredentials
	}
	if err != nil {
		return Admin{}, fmt.Errorf("loading admin: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Admin{}, ErrInvalidCredentials
	}
	admin.CreatedAt = time.Unix(created, 0).UTC()
	return admin, nil
}

func (d *DB) GetAdmin(ctx context.Context, id string) (Admin, error) {
	var (
		admin   Admin
		created int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT id, email, name, created_at FROM admins WHERE id = ?`, id).
		Scan(&admin.ID, &admin.Email, &admin.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Admin{}, ErrNotFound
	}
	if err != nil {
		return Admin{}, fmt.Errorf("loading admin: %w", err)
	}
	admin.CreatedAt = time.Unix(created, 0).UTC()
	return admin, nil
}
