package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordersplit/internal/codec"
	"ordersplit/internal/filename"
)

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, generate(2, 5, 3, dir, "orders_", ".xml"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2, "temporary files must be renamed away")

	rule := filename.New("orders_", ".xml")
	c := codec.New()
	for _, name := range []string{"orders_5.xml", "orders_6.xml"} {
		assert.True(t, rule.Matches(name))
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		batch, err := c.Decode(data)
		require.NoError(t, err)
		assert.Len(t, batch.Orders, 3)
		for _, o := range batch.Orders {
			assert.NotEmpty(t, o.Products)
			assert.False(t, o.Created.IsZero())
		}
	}
}
