package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailcopy/config"
	"mailcopy/mailbox"
	"mailcopy/models"
)

func ptr(b bool) *bool { return &b }

type fixture struct {
	db       *DB
	accounts *AccountStorage
	emails   *EmailStorage
	alice    *models.Account
	bob      *models.Account
	carol    *models.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := InitDB(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:       db,
		accounts: NewAccountStorage(db),
		emails:   NewEmailStorage(db),
	}

	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.emails.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	f.alice = f.register(t, "alice@example.com")
	f.bob = f.register(t, "bob@example.com")
	f.carol = f.register(t, "carol@example.com")
	return f
}

func (f *fixture) register(t *testing.T, email string) *models.Account {
	t.Helper()
	account := &models.Account{Email: email}
	require.NoError(t, f.accounts.CreateAccount(context.Background(), account, "secret"))
	return account
}

func (f *fixture) compose(t *testing.T, sender *models.Account, subject string, recipients ...string) []*models.Email {
	t.Helper()
	copies, err := f.emails.Compose(context.Background(), ComposeRequest{
		Sender:     sender,
		Recipients: recipients,
		Subject:    subject,
		Body:       "body of " + subject,
	})
	require.NoError(t, err)
	return copies
}

func (f *fixture) copyOf(t *testing.T, owner *models.Account, copies []*models.Email) *models.Email {
	t.Helper()
	for _, c := range copies {
		if c.OwnerID == owner.ID {
			return c
		}
	}
	t.Fatalf("no copy for %s", owner.Email)
	return nil
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestAccountStorage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("EmailIsNormalized", func(t *testing.T) {
		account := &models.Account{Email: "  Dave@Example.COM "}
		require.NoError(t, f.accounts.CreateAccount(ctx, account, "pw"))
		assert.Equal(t, "dave@example.com", account.Email)
		assert.NotZero(t, account.ID)

		got, err := f.accounts.GetAccountByEmail(ctx, "DAVE@example.com")
		require.NoError(t, err)
		assert.Equal(t, account.ID, got.ID)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		err := f.accounts.CreateAccount(ctx, &models.Account{Email: "alice@example.com"}, "pw")
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("Authenticate", func(t *testing.T) {
		account, err := f.accounts.Authenticate(ctx, "alice@example.com", "secret")
		require.NoError(t, err)
		assert.Equal(t, f.alice.ID, account.ID)

		_, err = f.accounts.Authenticate(ctx, "alice@example.com", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = f.accounts.Authenticate(ctx, "nobody@example.com", "secret")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("MissingAccount", func(t *testing.T) {
		_, err := f.accounts.GetAccount(ctx, 9999)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestCompose(t *testing.T) {
	ctx := context.Background()

	t.Run("OneCopyPerParticipant", func(t *testing.T) {
		f := newFixture(t)
		copies := f.compose(t, f.alice, "Hello", "bob@example.com, carol@example.com")
		require.Len(t, copies, 3)
		assert.Equal(t, 3, f.count(t, "emails"))

		for _, c := range copies {
			stored, err := f.emails.Get(ctx, c.OwnerID, c.ID)
			require.NoError(t, err)
			assert.Equal(t, "Hello", stored.Subject)
			assert.Equal(t, "alice@example.com", stored.SenderEmail)
			assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, stored.Recipients)
			assert.Equal(t, copies[0].MessageID, stored.MessageID)
			assert.Equal(t, c.OwnerID == f.alice.ID, stored.Read)
			assert.False(t, stored.Archived)
			assert.False(t, stored.Deleted)
			assert.Nil(t, stored.PreviousMailbox)
			assert.True(t, stored.IsOwner)
		}
	})

	t.Run("UnknownRecipientCreatesNothing", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.emails.Compose(ctx, ComposeRequest{
			Sender:     f.alice,
			Recipients: []string{"bob@example.com", "ghost@example.com"},
			Subject:    "Hi",
		})
		require.ErrorIs(t, err, mailbox.ErrUnknownRecipient)

		var recipientErr *mailbox.RecipientError
		require.True(t, errors.As(err, &recipientErr))
		assert.Equal(t, "ghost@example.com", recipientErr.Address)
		assert.Equal(t, 0, f.count(t, "emails"))
		assert.Equal(t, 0, f.count(t, "email_recipients"))
	})

	t.Run("NoRecipients", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.emails.Compose(ctx, ComposeRequest{Sender: f.alice, Recipients: []string{" , "}})
		assert.ErrorIs(t, err, mailbox.ErrValidation)
		assert.Equal(t, 0, f.count(t, "emails"))
	})

	t.Run("SenderAmongRecipients", func(t *testing.T) {
		f := newFixture(t)
		copies := f.compose(t, f.alice, "Note", "alice@example.com, bob@example.com")
		assert.Len(t, copies, 2)
	})

	t.Run("TextIsStoredVerbatim", func(t *testing.T) {
		f := newFixture(t)
		copies, err := f.emails.Compose(ctx, ComposeRequest{
			Sender:     f.alice,
			Recipients: []string{"bob@example.com"},
			Subject:    "Re: <b>lunch</b> & more",
			Body:       "Write to <bob@example.com>",
		})
		require.NoError(t, err)

		got, err := f.emails.Get(ctx, f.bob.ID, f.copyOf(t, f.bob, copies).ID)
		require.NoError(t, err)
		assert.Equal(t, "Re: <b>lunch</b> & more", got.Subject)
		assert.Equal(t, "Write to <bob@example.com>", got.Body)
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.compose(t, f.alice, "First", "bob@example.com")
	second := f.compose(t, f.bob, "Second", "alice@example.com")
	toSelf := f.compose(t, f.alice, "Self", "alice@example.com")
	require.Len(t, toSelf, 1)

	subjects := func(emails []*models.Email) []string {
		out := make([]string, 0, len(emails))
		for _, e := range emails {
			out = append(out, e.Subject)
		}
		return out
	}

	t.Run("Inbox", func(t *testing.T) {
		emails, err := f.emails.List(ctx, f.alice.ID, mailbox.Inbox, ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"Self", "Second"}, subjects(emails))
	})

	t.Run("Sent", func(t *testing.T) {
		emails, err := f.emails.List(ctx, f.alice.ID, mailbox.Sent, ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"Self", "First"}, subjects(emails))
	})

	t.Run("Paging", func(t *testing.T) {
		emails, err := f.emails.List(ctx, f.alice.ID, mailbox.Sent, ListOptions{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"First"}, subjects(emails))
	})

	t.Run("ArchiveAndTrash", func(t *testing.T) {
		_, _, err := f.emails.Update(ctx, f.alice.ID, f.copyOf(t, f.alice, second).ID, models.EmailPatch{Archived: ptr(true)})
		require.NoError(t, err)
		_, _, err = f.emails.Update(ctx, f.alice.ID, f.copyOf(t, f.alice, first).ID, models.EmailPatch{Deleted: ptr(true)})
		require.NoError(t, err)

		archive, err := f.emails.List(ctx, f.alice.ID, mailbox.Archive, ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"Second"}, subjects(archive))

		trash, err := f.emails.List(ctx, f.alice.ID, mailbox.Trash, ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"First"}, subjects(trash))

		inbox, err := f.emails.List(ctx, f.alice.ID, mailbox.Inbox, ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"Self"}, subjects(inbox))
	})

	t.Run("OtherOwnersUnaffected", func(t *testing.T) {
		emails, err := f.emails.List(ctx, f.bob.ID, mailbox.Inbox, ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"First"}, subjects(emails))
	})

	t.Run("EmptyMailboxIsEmptySlice", func(t *testing.T) {
		emails, err := f.emails.List(ctx, f.carol.ID, mailbox.Inbox, ListOptions{})
		require.NoError(t, err)
		assert.NotNil(t, emails)
		assert.Empty(t, emails)
	})

	t.Run("MatchesFilter", func(t *testing.T) {
		for _, m := range mailbox.All {
			emails, err := f.emails.List(ctx, f.alice.ID, m, ListOptions{})
			require.NoError(t, err)
			for _, e := range emails {
				assert.True(t, mailbox.Contains(m, e), "%s listed in %s", e.Subject, m)
			}
		}
	})
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	copies := f.compose(t, f.alice, "Private", "bob@example.com")
	bobCopy := f.copyOf(t, f.bob, copies)

	_, err := f.emails.Get(ctx, f.carol.ID, bobCopy.ID)
	assert.ErrorIs(t, err, mailbox.ErrNotFound)

	_, err = f.emails.Get(ctx, f.bob.ID, 424242)
	assert.ErrorIs(t, err, mailbox.ErrNotFound)

	_, _, err = f.emails.Update(ctx, f.carol.ID, bobCopy.ID, models.EmailPatch{Read: ptr(true)})
	assert.ErrorIs(t, err, mailbox.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("TrashRemembersOrigin", func(t *testing.T) {
		f := newFixture(t)
		copies := f.compose(t, f.alice, "Hi", "bob@example.com")

		aliceCopy := f.copyOf(t, f.alice, copies)
		e, transition, err := f.emails.Update(ctx, f.alice.ID, aliceCopy.ID, models.EmailPatch{Deleted: ptr(true)})
		require.NoError(t, err)
		assert.Equal(t, mailbox.Trashed, transition)
		require.NotNil(t, e.PreviousMailbox)
		assert.Equal(t, "sent", *e.PreviousMailbox)

		bobCopy := f.copyOf(t, f.bob, copies)
		_, _, err = f.emails.Update(ctx, f.bob.ID, bobCopy.ID, models.EmailPatch{Archived: ptr(true)})
		require.NoError(t, err)
		_, _, err = f.emails.Update(ctx, f.bob.ID, bobCopy.ID, models.EmailPatch{Deleted: ptr(true)})
		require.NoError(t, err)

		stored, err := f.emails.Get(ctx, f.bob.ID, bobCopy.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.PreviousMailbox)
		assert.Equal(t, "archive", *stored.PreviousMailbox)
	})

	t.Run("RestoreClearsOrigin", func(t *testing.T) {
		f := newFixture(t)
		copies := f.compose(t, f.alice, "Hi", "bob@example.com")
		bobCopy := f.copyOf(t, f.bob, copies)

		_, _, err := f.emails.Update(ctx, f.bob.ID, bobCopy.ID, models.EmailPatch{Deleted: ptr(true)})
		require.NoError(t, err)
		_, transition, err := f.emails.Update(ctx, f.bob.ID, bobCopy.ID, models.EmailPatch{Deleted: ptr(false)})
		require.NoError(t, err)
		assert.Equal(t, mailbox.Restored, transition)

		stored, err := f.emails.Get(ctx, f.bob.ID, bobCopy.ID)
		require.NoError(t, err)
		assert.False(t, stored.Deleted)
		assert.Nil(t, stored.PreviousMailbox)
	})

	t.Run("CopiesAreIndependent", func(t *testing.T) {
		f := newFixture(t)
		copies := f.compose(t, f.alice, "Hi", "bob@example.com")
		bobCopy := f.copyOf(t, f.bob, copies)

		_, _, err := f.emails.Update(ctx, f.bob.ID, bobCopy.ID, models.EmailPatch{Read: ptr(true), Archived: ptr(true)})
		require.NoError(t, err)

		aliceCopy, err := f.emails.Get(ctx, f.alice.ID, f.copyOf(t, f.alice, copies).ID)
		require.NoError(t, err)
		assert.False(t, aliceCopy.Archived)
	})

	t.Run("EmptyPatchIsNoop", func(t *testing.T) {
		f := newFixture(t)
		copies := f.compose(t, f.alice, "Hi", "bob@example.com")
		aliceCopy := f.copyOf(t, f.alice, copies)

		got, transition, err := f.emails.Update(ctx, f.alice.ID, aliceCopy.ID, models.EmailPatch{})
		require.NoError(t, err)
		assert.Equal(t, mailbox.Unchanged, transition)
		assert.True(t, got.Read)
		assert.False(t, got.Archived || got.Deleted)

		_, _, err = f.emails.Update(ctx, f.bob.ID, aliceCopy.ID, models.EmailPatch{})
		assert.ErrorIs(t, err, mailbox.ErrNotFound)
	})

	t.Run("ConcurrentFlagsDoNotLoseUpdates", func(t *testing.T) {
		f := newFixture(t)
		copies := f.compose(t, f.alice, "Race", "bob@example.com")
		bobCopy := f.copyOf(t, f.bob, copies)

		var wg sync.WaitGroup
		errs := make(chan error, 40)
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _, err := f.emails.Update(ctx, f.bob.ID, bobCopy.ID, models.EmailPatch{Read: ptr(true)})
				errs <- err
			}()
			go func() {
				defer wg.Done()
				_, _, err := f.emails.Update(ctx, f.bob.ID, bobCopy.ID, models.EmailPatch{Archived: ptr(true), Deleted: ptr(true)})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := f.emails.Get(ctx, f.bob.ID, bobCopy.ID)
		require.NoError(t, err)
		assert.True(t, got.Read)
		assert.True(t, got.Archived)
		assert.True(t, got.Deleted)
		require.NotNil(t, got.PreviousMailbox)
		assert.Equal(t, "inbox", *got.PreviousMailbox)
	})
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	copies := f.compose(t, f.alice, "Bye", "bob@example.com")
	bobCopy := f.copyOf(t, f.bob, copies)

	err := f.emails.Purge(ctx, f.bob.ID, bobCopy.ID)
	assert.ErrorIs(t, err, mailbox.ErrPreconditionFailed)

	_, _, err = f.emails.Update(ctx, f.bob.ID, bobCopy.ID, models.EmailPatch{Deleted: ptr(true)})
	require.NoError(t, err)

	assert.ErrorIs(t, f.emails.Purge(ctx, f.alice.ID, bobCopy.ID), mailbox.ErrNotFound)
	require.NoError(t, f.emails.Purge(ctx, f.bob.ID, bobCopy.ID))

	_, err = f.emails.Get(ctx, f.bob.ID, bobCopy.ID)
	assert.ErrorIs(t, err, mailbox.ErrNotFound)

	aliceCopy, err := f.emails.Get(ctx, f.alice.ID, f.copyOf(t, f.alice, copies).ID)
	require.NoError(t, err)
	assert.Equal(t, "Bye", aliceCopy.Subject)
	assert.Equal(t, 1, f.count(t, "emails"))
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: "postgres"}
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", pg.rebind("SELECT 1 WHERE a = ? AND b = ?"))
	assert.Equal(t, " FOR UPDATE OF e", pg.forUpdate())

	lite := &DB{driver: "sqlite"}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
	assert.Empty(t, lite.forUpdate())
}
