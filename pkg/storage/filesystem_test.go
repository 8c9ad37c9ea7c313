package storage

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("students.csv", []byte("ID\n"))
	require.NoError(t, err)
	_, err = store.Save("students.csv", []byte("ID\ns-1\n"))
	require.NoError(t, err)

	f, err := store.Open("students.csv")
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "ID\ns-1\n", string(body))

	require.NoError(t, store.Delete("students.csv"))
	require.NoError(t, store.Delete("students.csv"))
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../escape.txt", []byte("x"))
	require.ErrorIs(t, err, ErrInvalidPath)
	_, err = store.Open("/etc/passwd")
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestLocalStorageSaveStreamLimit(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	n, err := store.SaveStream("a.txt", strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = store.SaveStream("b.txt", strings.NewReader("hello!"), 5)
	require.ErrorIs(t, err, ErrTooLarge)
	_, err = store.Open("b.txt")
	require.Error(t, err)
}
