package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceUpdatePartialFields(t *testing.T) {
	db := newTestDB(t)
	svc := NewResourceService(db)
	ctx := context.Background()

	created, err := svc.CreateResource(ctx, CreateResourceRequest{
		Code:        "livraisons",
		Name:        "Livraisons",
		Description: "Tournées de livraison",
		Icon:        "truck",
	})
	require.NoError(t, err)

	// Deactivating alone must not wipe the display fields.
	inactive := false
	resp, err := svc.UpdateResource(ctx, created.ID, UpdateResourceRequest{Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Tournées de livraison", resp.Description)
	assert.Equal(t, "truck", resp.Icon)
	assert.Equal(t, "Livraisons", resp.Name)
	assert.False(t, resp.Active)

	resp, err = svc.UpdateResource(ctx, created.ID, UpdateResourceRequest{Description: "Tournées"})
	require.NoError(t, err)
	assert.Equal(t, "Tournées", resp.Description)
}

func TestResourceCodeIsImmutable(t *testing.T) {
	db := newTestDB(t)
	svc := NewResourceService(db)
	ctx := context.Background()

	created, err := svc.CreateResource(ctx, CreateResourceRequest{Code: "livraisons", Name: "Livraisons"})
	require.NoError(t, err)

	// UpdateResourceRequest carries no code field; the update keeps it.
	resp, err := svc.UpdateResource(ctx, created.ID, UpdateResourceRequest{Name: "Tournées"})
	require.NoError(t, err)
	assert.Equal(t, "livraisons", resp.Code)
	assert.Equal(t, "Tournées", resp.Name)
}
