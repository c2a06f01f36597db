package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelDB_PutGetPrefix(t *testing.T) {
	l, err := NewLevelDB(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Put([]byte("stitch:a"), []byte("1")))
	require.NoError(t, l.Put([]byte("stitch:b"), []byte("2")))
	require.NoError(t, l.Put([]byte("checkpoint:c"), []byte("3")))

	v, err := l.Get([]byte("stitch:a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	_, err = l.Get([]byte("stitch:zzz"))
	assert.True(t, IsNotFound(err))

	iter := l.NewPrefixIterator([]byte("stitch:"))
	defer iter.Release()
	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	require.NoError(t, iter.Error())
	assert.Equal(t, []string{"stitch:a", "stitch:b"}, keys)
}
