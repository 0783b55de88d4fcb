package storage_test

import (
	"context"
	"os"
	"testing"

	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/Jeffreasy/KoruFormsService/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestPool connects to a migrated database. Set TEST_DATABASE_URL to run.
func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := storage.NewPostgres(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func newForm(site string) *domain.Form {
	return &domain.Form{
		FormID:    "it-" + uuid.NewString(),
		Name:      "Contact",
		WebsiteID: &site,
		Status:    domain.StatusActive,
		IsActive:  true,
		Fields:    []domain.Field{{ID: "email", Type: domain.FieldEmail, Label: "Email", Required: true}},
		Layout:    domain.Layout{DisplayType: "Inline"},
	}
}

func TestFormStore_ScopeAndFlip(t *testing.T) {
	pool := setupTestPool(t)
	ctx := context.Background()
	store := storage.NewFormStore(pool)

	site := "site-" + uuid.NewString()
	f := newForm(site)
	require.NoError(t, store.Create(ctx, f))
	t.Cleanup(func() { _, _ = store.Delete(ctx, f.FormID, nil) })

	err := store.Create(ctx, newFormWithID(f.FormID, site))
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	_, err = store.GetScoped(ctx, f.FormID, []string{"someone-else"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := store.GetScoped(ctx, f.FormID, []string{site})
	require.NoError(t, err)
	assert.Equal(t, "email", got.Fields[0].ID)

	n, err := store.SetActiveForWebsite(ctx, site, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = store.SetActiveForWebsite(ctx, site, false)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "second flip must be a no-op")

	sites, err := store.ReconcilableWebsites(ctx)
	require.NoError(t, err)
	assert.Contains(t, sites, site, "disabled sites stay reconcilable")

	name := "Renamed"
	n, err = store.Update(ctx, f.FormID, []string{site}, domain.FormPatch{Name: &name})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err = store.Get(ctx, f.FormID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.False(t, got.IsActive, "update must not touch is_active")
}

func newFormWithID(formID, site string) *domain.Form {
	f := newForm(site)
	f.FormID = formID
	return f
}
