package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Subscriber struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeEmail lowercases and trims email and checks that it parses as a
// bare address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return email, nil
}

// AddSubscriber subscribes email. An active subscription for the same email
// returns ErrAlreadySubscribed; an inactive one is switched back on.
func (d *DB) AddSubscriber(ctx context.Context, email, name string) (Subscriber, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Subscriber{}, err
	}
	name = strings.TrimSpace(name)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Subscriber{}, err
	}
	defer tx.Rollback()

	existing, err := scanSubscriber(tx.QueryRowContext(ctx,
		`SELECT id, email, name, active, created_at FROM subscribers WHERE email = ?`, email))
	switch {
	case err == nil && existing.Active:
		return Subscriber{}, ErrAlreadySubscribed
	case err == nil:
		if name == "" {
			name = existing.Name
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE subscribers SET active = 1, name = ? WHERE id = ?`, name, existing.ID); err != nil {
			return Subscriber{}, fmt.Errorf("reactivating subscriber: %w", err)
		}
		existing.Active = true
		existing.Name = name
		return existing, tx.Commit()
	case !errors.Is(err, ErrNotFound):
		return Subscriber{}, err
	}

	sub := Subscriber{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Active:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO subscribers (id, email, name, active, created_at) VALUES (?, ?, ?, 1, ?)`,
		sub.ID, sub.Email, sub.Name, sub.CreatedAt.Unix()); err != nil {
		return Subscriber{}, fmt.Errorf("inserting subscriber: %w", err)
	}
	return sub, tx.Commit()
}

// Unsubscribe marks email inactive. The row is kept.
func (d *DB) Unsubscribe(ctx context.Context, email string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx, `UPDATE subscribers SET active = 0 WHERE email = ?`, email)
	if err != nil {
		return fmt.Errorf("unsubscribing: %w", err)
	}
	return affected(res)
}

func (d *DB) SetSubscriberActive(ctx context.Context, id string, active bool) error {
	res, err := d.db.ExecContext(ctx, `UPDATE subscribers SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("updating subscriber: %w", err)
	}
	return affected(res)
}

func (d *DB) GetSubscriber(ctx context.Context, id string) (Subscriber, error) {
	return scanSubscriber(d.db.QueryRowContext(ctx,
		`SELECT id, email, name, active, created_at FROM subscribers WHERE id = ?`, id))
}

// ActiveSubscribers returns every active subscriber, oldest first.
func (d *DB) ActiveSubscribers(ctx context.Context) ([]Subscriber, error) {
	return d.querySubscribers(ctx,
		`SELECT id, email, name, active, created_at FROM subscribers WHERE active = 1 ORDER BY created_at, email`)
}

// ListSubscribers returns all subscribers, newest first.
func (d *DB) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	return d.querySubscribers(ctx,
		`SELECT id, email, name, active, created_at FROM subscribers ORDER BY created_at DESC, email`)
}

func (d *DB) querySubscribers(ctx context.Context, query string) ([]Subscriber, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers: %w", err)
	}
	defer rows.Close()

	var subs []Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row scanner) (Subscriber, error) {
	var (
		sub     Subscriber
		created int64
	)
	err := row.Scan(&sub.ID, &sub.Email, &sub.Name, &sub.Active, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscriber{}, ErrNotFound
	}
	if err != nil {
		return Subscriber{}, fmt.Errorf("scanning subscriber: %w", err)
	}
	sub.CreatedAt = time.Unix(created, 0).UTC()
	return sub, nil
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
