package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mailcopy/mailbox"
	"mailcopy/models"
)

// EmailStorage persists per-participant message copies
type EmailStorage struct {
	db  *DB
	now func() time.Time
}

// NewEmailStorage creates a new email storage instance
func NewEmailStorage(db *DB) *EmailStorage {
	return &EmailStorage{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// ComposeRequest is one logical message to fan out
type ComposeRequest struct {
	Sender     *models.Account
	Recipients []string
	Subject    string
	Body       string
}

const emailColumns = `e.id, e.message_id, e.owner_id, o.email, e.sender_id, s.email,
	e.subject, e.body, e.sent_at, e.is_read, e.is_archived, e.is_deleted, e.previous_mailbox`

const emailFrom = ` FROM emails e
	JOIN accounts o ON o.id = e.owner_id
	JOIN accounts s ON s.id = e.sender_id`

// Compose resolves the recipients and stores one copy per participant.
// Either every copy is created or none is.
func (s *EmailStorage) Compose(ctx context.Context, req ComposeRequest) ([]*models.Email, error) {
	addresses := mailbox.ParseRecipients(req.Recipients...)
	if len(addresses) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient required", mailbox.ErrValidation)
	}

	var copies []*models.Email
	err := s.db.inTx(ctx, func(tx *sql.Tx) error {
		recipients := make([]*models.Account, 0, len(addresses))
		for _, addr := range addresses {
			account, err := scanAccount(tx.QueryRowContext(ctx,
				s.db.rebind("SELECT "+accountColumns+" FROM accounts WHERE email = ?"), addr))
			if errors.Is(err, ErrAccountNotFound) {
				return &mailbox.RecipientError{Address: addr}
			} else if err != nil {
				return err
			}
			recipients = append(recipients, account)
		}

		var err error
		copies, err = mailbox.FanOut(mailbox.Draft{
			MessageID: uuid.New().String(),
			Sender:    req.Sender,
			Subject:   req.Subject,
			Body:      req.Body,
			Timestamp: s.now().Truncate(time.Microsecond),
		}, recipients)
		if err != nil {
			return err
		}

		for _, c := range copies {
			if err := s.insert(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return copies, nil
}

func (s *EmailStorage) insert(ctx context.Context, tx *sql.Tx, e *models.Email) error {
	err := tx.QueryRowContext(ctx,
		s.db.rebind(`INSERT INTO emails
		(message_id, owner_id, sender_id, subject, body, sent_at, is_read, is_archived, is_deleted, previous_mailbox)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		e.MessageID, e.OwnerID, e.SenderID, e.Subject, e.Body, e.Timestamp,
		e.Read, e.Archived, e.Deleted, e.PreviousMailbox,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to create email: %w", err)
	}

	for _, recipientID := range e.RecipientIDs {
		_, err := tx.ExecContext(ctx,
			s.db.rebind("INSERT INTO email_recipients (email_id, account_id) VALUES (?, ?)"),
			e.ID, recipientID)
		if err != nil {
			return fmt.Errorf("failed to add recipient: %w", err)
		}
	}
	return nil
}

// ListOptions pages a mailbox listing
type ListOptions struct {
	Limit  int
	Offset int
}

// List returns the owner's copies in mailbox m, newest first
func (s *EmailStorage) List(ctx context.Context, ownerID int64, m mailbox.Mailbox, opts ListOptions) ([]*models.Email, error) {
	filter, err := mailbox.FilterFor(m)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + emailColumns + emailFrom + " WHERE e.owner_id = ? AND e.is_deleted = ?"
	args := []any{ownerID, filter.Deleted}
	if filter.Archived != nil {
		query += " AND e.is_archived = ?"
		args = append(args, *filter.Archived)
	}
	if filter.OwnerIsRecipient {
		query += " AND EXISTS (SELECT 1 FROM email_recipients r WHERE r.email_id = e.id AND r.account_id = e.owner_id)"
	}
	if filter.OwnerIsSender {
		query += " AND e.sender_id = e.owner_id"
	}
	query += " ORDER BY e.sent_at DESC, e.id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	defer rows.Close()

	emails := make([]*models.Email, 0)
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emails: %w", err)
	}
	rows.Close()

	if err := s.loadRecipients(ctx, s.db.DB, emails); err != nil {
		return nil, err
	}
	return emails, nil
}

// Get returns a copy owned by ownerID. Copies of other accounts are reported
// as not found.
func (s *EmailStorage) Get(ctx context.Context, ownerID, id int64) (*models.Email, error) {
	e, err := s.get(ctx, s.db.DB, ownerID, id, "")
	if err != nil {
		return nil, err
	}
	if err := s.loadRecipients(ctx, s.db.DB, []*models.Email{e}); err != nil {
		return nil, err
	}
	return e, nil
}

// Update applies a flag patch against the persisted row inside a transaction
// and returns the updated copy together with the trash transition it caused.
func (s *EmailStorage) Update(ctx context.Context, ownerID, id int64, patch models.EmailPatch) (*models.Email, mailbox.Transition, error) {
	var (
		e          *models.Email
		transition mailbox.Transition
	)
	err := s.db.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		e, err = s.get(ctx, tx, ownerID, id, s.db.forUpdate())
		if err != nil {
			return err
		}
		if err := s.loadRecipients(ctx, tx, []*models.Email{e}); err != nil {
			return err
		}

		transition, err = mailbox.Apply(e, patch)
		if err != nil || patch.Empty() {
			return err
		}

		_, err = tx.ExecContext(ctx,
			s.db.rebind("UPDATE emails SET is_read = ?, is_archived = ?, is_deleted = ?, previous_mailbox = ? WHERE id = ?"),
			e.Read, e.Archived, e.Deleted, e.PreviousMailbox, e.ID)
		if err != nil {
			return fmt.Errorf("failed to update email: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, mailbox.Unchanged, err
	}
	return e, transition, nil
}

// Purge permanently removes a trashed copy. Other participants' copies are
// separate rows and stay untouched.
func (s *EmailStorage) Purge(ctx context.Context, ownerID, id int64) error {
	return s.db.inTx(ctx, func(tx *sql.Tx) error {
		e, err := s.get(ctx, tx, ownerID, id, s.db.forUpdate())
		if err != nil {
			return err
		}
		if err := mailbox.CanPurge(e); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, s.db.rebind("DELETE FROM email_recipients WHERE email_id = ?"), e.ID); err != nil {
			return fmt.Errorf("failed to delete recipients: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.db.rebind("DELETE FROM emails WHERE id = ?"), e.ID); err != nil {
			return fmt.Errorf("failed to delete email: %w", err)
		}
		return nil
	})
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *EmailStorage) get(ctx context.Context, q queryer, ownerID, id int64, lock string) (*models.Email, error) {
	row := q.QueryRowContext(ctx,
		s.db.rebind("SELECT "+emailColumns+emailFrom+" WHERE e.id = ? AND e.owner_id = ?"+lock),
		id, ownerID)

	e, err := scanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mailbox.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *EmailStorage) loadRecipients(ctx context.Context, q queryer, emails []*models.Email) error {
	if len(emails) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Email, len(emails))
	args := make([]any, 0, len(emails))
	for _, e := range emails {
		byID[e.ID] = e
		e.Recipients = []string{}
		e.RecipientIDs = nil
		args = append(args, e.ID)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	rows, err := q.QueryContext(ctx, s.db.rebind(
		`SELECT r.email_id, a.id, a.email FROM email_recipients r
		JOIN accounts a ON a.id = r.account_id
		WHERE r.email_id IN (`+placeholders+`) ORDER BY a.email`), args...)
	if err != nil {
		return fmt.Errorf("failed to load recipients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			emailID, accountID int64
			address            string
		)
		if err := rows.Scan(&emailID, &accountID, &address); err != nil {
			return fmt.Errorf("failed to read recipient: %w", err)
		}
		if e, ok := byID[emailID]; ok {
			e.RecipientIDs = append(e.RecipientIDs, accountID)
			e.Recipients = append(e.Recipients, address)
		}
	}
	return rows.Err()
}

func scanEmail(row rowScanner) (*models.Email, error) {
	e := &models.Email{IsOwner: true}
	var previous sql.NullString
	err := row.Scan(
		&e.ID, &e.MessageID, &e.OwnerID, &e.OwnerEmail, &e.SenderID, &e.SenderEmail,
		&e.Subject, &e.Body, &e.Timestamp, &e.Read, &e.Archived, &e.Deleted, &previous,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	} else if err != nil {
		return nil, fmt.Errorf("failed to read email: %w", err)
	}
	if previous.Valid {
		e.PreviousMailbox = &previous.String
	}
	return e, nil
}
