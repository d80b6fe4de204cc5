package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeyEamigh/ccengram/internal/store"
)

// fakeProvider is a mockEmbedder with a configurable availability flag, used
// to exercise EmbeddingService's fallback and switch logic.
type fakeProvider struct {
	*mockEmbedder
	up bool
}

func newFakeProvider(name string, dims int, up bool) *fakeProvider {
	m := newMockEmbedder(dims)
	m.modelName = name
	return &fakeProvider{mockEmbedder: m, up: up}
}

func (f *fakeProvider) Available(ctx context.Context) bool { return f.up }

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestNewEmbeddingServicePicksFirstAvailable(t *testing.T) {
	st := openTestStore(t)
	primary := newFakeProvider("primary", 8, false)
	fallback := newFakeProvider("fallback", 8, true)

	svc, err := NewEmbeddingService(context.Background(), st, map[string]Embedder{
		"primary":  primary,
		"fallback": fallback,
	}, []string{"primary", "fallback"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", svc.ActiveProviderName())
}

func TestNewEmbeddingServiceErrorsWhenNoneAvailable(t *testing.T) {
	st := openTestStore(t)
	primary := newFakeProvider("primary", 8, false)

	_, err := NewEmbeddingService(context.Background(), st, map[string]Embedder{
		"primary": primary,
	}, []string{"primary"})
	require.Error(t, err)
}

func TestEmbeddingServiceRegistersActiveModel(t *testing.T) {
	st := openTestStore(t)
	primary := newFakeProvider("primary", 8, true)

	svc, err := NewEmbeddingService(context.Background(), st, map[string]Embedder{
		"primary": primary,
	}, []string{"primary"})
	require.NoError(t, err)

	got, err := st.GetActiveEmbeddingModel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, svc.GetActiveModelID(), got.ID)
	assert.True(t, got.IsActive)
}

func TestSwitchProviderFailsOnUnavailableAndRollsBackNothing(t *testing.T) {
	st := openTestStore(t)
	primary := newFakeProvider("primary", 8, true)
	secondary := newFakeProvider("secondary", 8, false)

	svc, err := NewEmbeddingService(context.Background(), st, map[string]Embedder{
		"primary":   primary,
		"secondary": secondary,
	}, []string{"primary", "secondary"})
	require.NoError(t, err)

	err = svc.SwitchProvider(context.Background(), "secondary")
	var unavailable *ProviderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "primary", svc.ActiveProviderName())
}

func TestSwitchProviderSucceedsAndUpdatesStore(t *testing.T) {
	st := openTestStore(t)
	primary := newFakeProvider("primary", 8, true)
	secondary := newFakeProvider("secondary", 8, true)

	svc, err := NewEmbeddingService(context.Background(), st, map[string]Embedder{
		"primary":   primary,
		"secondary": secondary,
	}, []string{"primary", "secondary"})
	require.NoError(t, err)

	require.NoError(t, svc.SwitchProvider(context.Background(), "secondary"))
	assert.Equal(t, "secondary", svc.ActiveProviderName())

	got, err := st.GetActiveEmbeddingModel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, svc.GetActiveModelID(), got.ID)
}

func TestEmbeddingServiceEmbedReturnsMetadata(t *testing.T) {
	st := openTestStore(t)
	primary := newFakeProvider("primary", 4, true)

	svc, err := NewEmbeddingService(context.Background(), st, map[string]Embedder{
		"primary": primary,
	}, []string{"primary"})
	require.NoError(t, err)

	res, err := svc.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, svc.GetActiveModelID(), res.Model)
	assert.Equal(t, 4, res.Dimensions)
	assert.False(t, res.Cached)

	batch, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, batch.Vectors, 2)
	assert.Equal(t, svc.GetActiveModelID(), batch.Model)
}

func TestEmbeddingServiceEmbedReflectsCaching(t *testing.T) {
	st := openTestStore(t)
	primary := newFakeProvider("primary", 4, true)
	cached := NewCachedEmbedderWithDefaults(primary)

	svc, err := NewEmbeddingService(context.Background(), st, map[string]Embedder{
		"primary": cached,
	}, []string{"primary"})
	require.NoError(t, err)

	res, err := svc.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.True(t, res.Cached)
}
