package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmeter/backend/internal/domain/shared"
)

func TestProductItemRegistryLookup(t *testing.T) {
	items := DefaultProductItems()

	t.Run("all resource families are registered", func(t *testing.T) {
		for _, rt := range []ResourceType{
			ResourceTypeInstance, ResourceTypeVolume, ResourceTypeFloatingIP,
			ResourceTypeLoadBalancer, ResourceTypeListener,
		} {
			item, err := items.Lookup(rt)
			require.NoError(t, err)
			assert.NotEmpty(t, item.ProductName())
		}
	})

	t.Run("unknown resource type fails", func(t *testing.T) {
		_, err := items.Lookup(ResourceType("snapshot"))
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestInstanceItem(t *testing.T) {
	item, err := DefaultProductItems().Lookup(ResourceTypeInstance)
	require.NoError(t, err)
	assert.Equal(t, "compute.instance", item.ProductName())

	volume, err := item.ResourceVolume(ResourceFacts{ResourceID: "srv-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), volume)
}

func TestVolumeItem(t *testing.T) {
	item, err := DefaultProductItems().Lookup(ResourceTypeVolume)
	require.NoError(t, err)
	assert.Equal(t, "storage.volume", item.ProductName())

	t.Run("bills by size", func(t *testing.T) {
		volume, err := item.ResourceVolume(ResourceFacts{
			ResourceID: "vol-1",
			Attributes: map[string]any{"size": int64(100)},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(100), volume)
	})

	t.Run("missing size fails", func(t *testing.T) {
		_, err := item.ResourceVolume(ResourceFacts{ResourceID: "vol-1"})
		assert.ErrorIs(t, err, shared.ErrInvalidParameter)
	})

	t.Run("non-positive size fails", func(t *testing.T) {
		_, err := item.ResourceVolume(ResourceFacts{
			ResourceID: "vol-1",
			Attributes: map[string]any{"size": int64(0)},
		})
		assert.ErrorIs(t, err, shared.ErrInvalidParameter)
	})
}

func TestFloatingIPItem(t *testing.T) {
	item, err := DefaultProductItems().Lookup(ResourceTypeFloatingIP)
	require.NoError(t, err)
	assert.Equal(t, "network.floatingip", item.ProductName())

	t.Run("converts rate limit to bandwidth units", func(t *testing.T) {
		volume, err := item.ResourceVolume(ResourceFacts{
			ResourceID: "fip-1",
			Attributes: map[string]any{"rate_limit": int64(2048)},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), volume)
	})

	t.Run("missing rate limit fails", func(t *testing.T) {
		_, err := item.ResourceVolume(ResourceFacts{ResourceID: "fip-1"})
		assert.ErrorIs(t, err, shared.ErrInvalidParameter)
	})
}

func TestListenerItem(t *testing.T) {
	item, err := DefaultProductItems().Lookup(ResourceTypeListener)
	require.NoError(t, err)
	assert.Equal(t, "network.listener", item.ProductName())

	t.Run("bills per thousand connections", func(t *testing.T) {
		volume, err := item.ResourceVolume(ResourceFacts{
			ResourceID: "lsn-1",
			Attributes: map[string]any{"connection_limit": int64(5000)},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5), volume)
	})

	t.Run("no explicit limit bills one unit", func(t *testing.T) {
		volume, err := item.ResourceVolume(ResourceFacts{ResourceID: "lsn-1"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), volume)
	})

	t.Run("small limit bills minimum unit", func(t *testing.T) {
		volume, err := item.ResourceVolume(ResourceFacts{
			ResourceID: "lsn-1",
			Attributes: map[string]any{"connection_limit": int64(200)},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), volume)
	})
}
