package repository

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/alina-bot/internal/database"
	"github.com/Proton-105/alina-bot/internal/domain"
	"github.com/Proton-105/alina-bot/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver: database.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "test.db"),
	}
	db, err := database.Open(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestUser(id int64) *domain.User {
	return &domain.User{
		ID:        id,
		FirstName: "Ana",
		Username:  "ana",
		Style:     domain.StyleGentle,
		Verbosity: domain.VerbosityNormal,
		FreeLeft:  2,
		Memory:    domain.Facts{},
		CreatedAt: time.Now().UTC(),
	}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t), testLogger())

	_, err := repo.FindByID(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Create(ctx, newTestUser(1)))
	require.NoError(t, repo.Create(ctx, newTestUser(1)), "duplicate create is ignored")

	user, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ana", user.FirstName)
	assert.Equal(t, domain.StyleGentle, user.Style)
	assert.Empty(t, user.Name)
	assert.Nil(t, user.SubUntil)

	t.Run("free messages run out", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			ok, err := repo.DecrementFree(ctx, 1)
			require.NoError(t, err)
			assert.True(t, ok)
		}
		ok, err := repo.DecrementFree(ctx, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("subscription", func(t *testing.T) {
		until := time.Now().UTC().Add(7 * 24 * time.Hour).Truncate(time.Second)
		require.NoError(t, repo.SetSubscription(ctx, 1, until, 10))

		user, err := repo.FindByID(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, user.SubUntil)
		assert.True(t, user.SubUntil.Equal(until))
		assert.Equal(t, 10, user.FreeLeft)

		assert.ErrorIs(t, repo.SetSubscription(ctx, 404, until, 10), ErrNotFound)
	})

	t.Run("profile and memory", func(t *testing.T) {
		user.Name = "Анечка"
		user.Style = domain.StyleDirect
		user.TZ = "Europe/Madrid"
		require.NoError(t, repo.UpdateProfile(ctx, user))
		require.NoError(t, repo.SaveMemory(ctx, 1, domain.Facts{"city": "Madrid"}))

		total, err := repo.IncrementMessages(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, total)

		got, err := repo.FindByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Анечка", got.Name)
		assert.Equal(t, domain.StyleDirect, got.Style)
		assert.Equal(t, "Europe/Madrid", got.TZ)
		assert.Equal(t, "Madrid", got.Memory["city"])
		assert.Equal(t, 1, got.TotalMessages)
	})
}

func TestMessageRepositoryTrim(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(openTestDB(t), testLogger())

	for i := 0; i < 160; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		_, err := repo.Append(ctx, 7, role, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}
	_, err := repo.Append(ctx, 8, domain.RoleUser, "other user")
	require.NoError(t, err)

	users, err := repo.UsersAbove(ctx, 150)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, users)

	recent, err := repo.Recent(ctx, 7, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "msg 157", recent[0].Content)
	assert.Equal(t, "msg 159", recent[2].Content)

	deleted, err := repo.TrimTo(ctx, 7, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 60, deleted)

	count, err := repo.Count(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 100, count)

	count, err = repo.Count(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	oldest, err := repo.Recent(ctx, 7, 100)
	require.NoError(t, err)
	assert.Equal(t, "msg 60", oldest[0].Content)
}

func TestPaymentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository(openTestDB(t), testLogger())

	p := &domain.Payment{
		UserID:   1,
		Provider: domain.ProviderStars,
		OrderID:  "stars:week:abc",
		Amount:   600,
		Currency: "XTR",
		Status:   domain.PaymentPending,
	}
	require.NoError(t, repo.Upsert(ctx, p))
	assert.NotZero(t, p.ID)

	changed, err := repo.Settle(ctx, p.OrderID, domain.PaymentPaid, "charge-1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Settle(ctx, p.OrderID, domain.PaymentPaid, "charge-1")
	require.NoError(t, err)
	assert.False(t, changed, "already settled")

	got, err := repo.FindByOrder(ctx, p.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, got.Status)
	assert.Equal(t, "charge-1", got.Raw)

	require.NoError(t, repo.Reopen(ctx, p.OrderID))
	changed, err = repo.Settle(ctx, p.OrderID, domain.PaymentPaid, "charge-1")
	require.NoError(t, err)
	assert.True(t, changed, "reopened payment settles again")

	old := &domain.Payment{
		UserID:    2,
		Provider:  domain.ProviderRedsys,
		OrderID:   "1700000000",
		Amount:    999,
		Currency:  "EUR",
		Status:    domain.PaymentPending,
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, repo.Upsert(ctx, old))

	expired, err := repo.ExpirePending(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, expired)

	got, err = repo.FindByOrder(ctx, old.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, got.Status)

	_, err = repo.FindByOrder(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReminderRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := NewUserRepository(db, testLogger())
	repo := NewReminderRepository(db, testLogger())

	u := newTestUser(5)
	require.NoError(t, users.Create(ctx, u))
	u.TZ = "UTC+3"
	require.NoError(t, users.UpdateProfile(ctx, u))

	morning, err := repo.Add(ctx, 5, domain.ReminderMorning, "09:00")
	require.NoError(t, err)
	_, err = repo.Add(ctx, 5, domain.ReminderEvening, "21:00")
	require.NoError(t, err)

	list, err := repo.ListByUser(ctx, 5)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "09:00", list[0].TimeLocal)
	assert.True(t, list[0].Active)

	toggled, err := repo.Toggle(ctx, 5, morning.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Active)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.ReminderEvening, active[0].Type)
	assert.Equal(t, "UTC+3", active[0].TZ)

	_, err = repo.Toggle(ctx, 6, morning.ID)
	assert.ErrorIs(t, err, ErrNotFound, "other users cannot touch the reminder")

	require.NoError(t, repo.Delete(ctx, 5, morning.ID))
	assert.ErrorIs(t, repo.Delete(ctx, 5, morning.ID), ErrNotFound)
}
