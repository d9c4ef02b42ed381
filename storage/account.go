package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"mailcopy/models"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailTaken         = errors.New("email address already taken")
	ErrInvalidCredentials = errors.New("invalid email and/or password")
)

// AccountStorage manages account persistence
type AccountStorage struct {
	db *DB
}

// NewAccountStorage creates a new account storage instance
func NewAccountStorage(db *DB) *AccountStorage {
	return &AccountStorage{db: db}
}

const accountColumns = "id, email, first_name, last_name, password_hash, created_at"

// CreateAccount registers a new account with a bcrypt hashed password
func (s *AccountStorage) CreateAccount(ctx context.Context, account *models.Account, password string) error {
	account.Email = normalizeEmail(account.Email)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	account.PasswordHash = string(hashedPassword)
	account.CreatedAt = time.Now().UTC()

	return s.db.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, s.db.rebind("SELECT COUNT(*) FROM accounts WHERE email = ?"), account.Email).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if exists > 0 {
			return ErrEmailTaken
		}

		err = tx.QueryRowContext(ctx,
			s.db.rebind("INSERT INTO accounts (email, first_name, last_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id"),
			account.Email, account.FirstName, account.LastName, account.PasswordHash, account.CreatedAt,
		).Scan(&account.ID)
		if err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}
		return nil
	})
}

// GetAccount retrieves an account by ID
func (s *AccountStorage) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		s.db.rebind("SELECT "+accountColumns+" FROM accounts WHERE id = ?"), id))
}

// GetAccountByEmail retrieves an account by email address
func (s *AccountStorage) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		s.db.rebind("SELECT "+accountColumns+" FROM accounts WHERE email = ?"), normalizeEmail(email)))
}

// Authenticate verifies the password of the account registered under email
func (s *AccountStorage) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	account, err := s.GetAccountByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	} else if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	account := &models.Account{}
	err := row.Scan(&account.ID, &account.Email, &account.FirstName, &account.LastName, &account.PasswordHash, &account.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to read account: %w", err)
	}
	return account, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
