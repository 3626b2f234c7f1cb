package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/seller-scraper/internal/models"
)

func newStorage(t *testing.T) (*LinkStorage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "progress", "links.json")
	ls, err := NewLinkStorage(path)
	require.NoError(t, err)
	return ls, path
}

func TestAddAndDedupe(t *testing.T) {
	ls, _ := newStorage(t)

	added, err := ls.Add(&ProductLink{ASIN: "B0TEST0001", URL: "https://www.amazon.co.jp/dp/B0TEST0001"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = ls.Add(&ProductLink{ASIN: "B0TEST0001", URL: "https://www.amazon.co.jp/dp/B0TEST0001?th=1"})
	require.NoError(t, err)
	assert.False(t, added)

	_, err = ls.Add(&ProductLink{})
	assert.ErrorIs(t, err, ErrMissingKey)

	link, ok := ls.Get("B0TEST0001")
	require.True(t, ok)
	assert.Equal(t, StatusPending, link.Status)
}

func TestKeyFallsBackToURL(t *testing.T) {
	link := LinkFromProduct(models.NewProduct("", "https://www.amazon.co.jp/sspa/click?x=1", "Ad"))
	assert.Equal(t, "https://www.amazon.co.jp/sspa/click?x=1", link.Key())
}

func TestStatusLifecycle(t *testing.T) {
	ls, _ := newStorage(t)

	n, err := ls.AddBatch([]*ProductLink{
		{ASIN: "A1", URL: "u1"},
		{ASIN: "A2", URL: "u2"},
		{},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, ls.UpdateStatus("A1", StatusProcessing, ""))
	require.NoError(t, ls.Complete("A1", "Maple Store", "https://www.amazon.co.jp/sp?seller=ZZ99"))
	require.NoError(t, ls.UpdateStatus("A2", StatusFailed, "seller link not found"))

	assert.True(t, ls.IsDone("A1"))
	assert.False(t, ls.IsDone("A2"))
	assert.Empty(t, ls.GetPending())

	link, _ := ls.Get("A1")
	assert.Equal(t, 1, link.Attempts)
	assert.Equal(t, "Maple Store", link.SellerName)

	assert.Equal(t, map[string]int{"completed": 1, "failed": 1, "total": 2}, ls.GetStats())

	assert.ErrorIs(t, ls.UpdateStatus("missing", StatusFailed, ""), ErrLinkNotFound)
}

func TestPersistsAcrossInstances(t *testing.T) {
	ls, path := newStorage(t)

	_, err := ls.Add(&ProductLink{ASIN: "A1", URL: "u1"})
	require.NoError(t, err)
	require.NoError(t, ls.Complete("A1", "Seller", "s1"))

	reopened, err := NewLinkStorage(path)
	require.NoError(t, err)
	assert.True(t, reopened.IsDone("A1"))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCorruptFileFailsToLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewLinkStorage(path)
	assert.Error(t, err)
}
