package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SeanSwan/Apex-sub007/internal/report"
)

func TestClientDirectoryRoundTrip(t *testing.T) {
	dir, err := NewSQLiteClientDirectory(t.TempDir())
	require.NoError(t, err)
	defer dir.Close()
	ctx := context.Background()

	branding := report.DefaultBranding()
	branding.PrimaryColor = "#112233"
	require.NoError(t, dir.Upsert(ctx, report.Client{
		ID:           "acme-plaza",
		Name:         "Acme Plaza",
		Location:     "Los Angeles, CA",
		ContactEmail: "ops@acme.example",
		Branding:     branding,
	}))
	require.NoError(t, dir.Upsert(ctx, report.Client{ID: "zenith", Name: "Zenith Tower"}))

	got, err := dir.Get(ctx, "acme-plaza")
	require.NoError(t, err)
	assert.Equal(t, "Acme Plaza", got.Name)
	assert.Equal(t, "#112233", got.Branding.PrimaryColor)

	list, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Acme Plaza", list[0].Name, "listing is ordered by name")
}

func TestClientDirectoryGetMissing(t *testing.T) {
	dir, err := NewSQLiteClientDirectory(t.TempDir())
	require.NoError(t, err)
	defer dir.Close()

	_, err = dir.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestClientDirectoryUpsertReplaces(t *testing.T) {
	dir, err := NewSQLiteClientDirectory(t.TempDir())
	require.NoError(t, err)
	defer dir.Close()
	ctx := context.Background()

	require.NoError(t, dir.Upsert(ctx, report.Client{ID: "c1", Name: "Old Name"}))
	require.NoError(t, dir.Upsert(ctx, report.Client{ID: "c1", Name: "New Name"}))

	got, err := dir.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "New Name", got.Name)
}
