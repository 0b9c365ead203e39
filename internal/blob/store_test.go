package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/db"
)

func storeBackends(t *testing.T) map[string]Store {
	t.Helper()

	fsStore, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	conn, err := db.Open(db.Options{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	sqlStore, err := NewSQLStore(conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })

	return map[string]Store{"fs": fsStore, "sql": sqlStore}
}

func TestStoreContract(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Put(ctx, "preview/weekly/1.json", []byte(`{"a":1}`)))
			require.NoError(t, store.Put(ctx, "preview/monthly/2.json", []byte(`{"b":2}`)))
			require.NoError(t, store.Put(ctx, "archive/weekly/3.json", []byte(`{"c":3}`)))

			data, err := store.Get(ctx, "preview/weekly/1.json")
			require.NoError(t, err)
			assert.Equal(t, `{"a":1}`, string(data))

			require.NoError(t, store.Put(ctx, "preview/weekly/1.json", []byte(`{"a":2}`)))
			data, err = store.Get(ctx, "preview/weekly/1.json")
			require.NoError(t, err)
			assert.Equal(t, `{"a":2}`, string(data))

			objs, err := store.List(ctx, "preview/")
			require.NoError(t, err)
			require.Len(t, objs, 2)
			assert.Equal(t, "preview/monthly/2.json", objs[0].Key)
			assert.Equal(t, "preview/weekly/1.json", objs[1].Key)
			assert.Equal(t, int64(7), objs[1].Size)

			all, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)

			require.NoError(t, store.Delete(ctx, "archive/weekly/3.json"))
			assert.ErrorIs(t, store.Delete(ctx, "archive/weekly/3.json"), ErrNotFound)

			_, err = store.Get(ctx, "archive/weekly/3.json")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreRejectsInvalidKeys(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"", "/abs", "a/../b", "a//b", `a\b`} {
				assert.Error(t, store.Put(context.Background(), key, []byte("x")), key)
			}
		})
	}
}
