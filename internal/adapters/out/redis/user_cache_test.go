package redis

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EthanQC/warpong/internal/adapters/out/file"
	"github.com/EthanQC/warpong/internal/adapters/out/storagetest"
	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/ports/out"
)

func newCached(t *testing.T) (*CachedStorage, *file.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	inner, err := file.NewStore(filepath.Join(t.TempDir(), "database.json"))
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCachedStorage(inner, client, time.Minute), inner, mr
}

func TestCachedStorageContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) out.Storage {
		s, _, _ := newCached(t)
		return s
	})
}

func TestFindUserFillsCache(t *testing.T) {
	s, _, mr := newCached(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, storagetest.NewUser("alice")))
	assert.False(t, mr.Exists(userKey("alice")))

	_, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, mr.Exists(userKey("alice")))
	assert.Equal(t, time.Minute, mr.TTL(userKey("alice")))
}

func TestWritesInvalidate(t *testing.T) {
	s, _, mr := newCached(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, storagetest.NewUser("alice")))
	_, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, s.SetStatus(ctx, "alice", entity.StatusOnline, time.Now()))
	assert.False(t, mr.Exists(userKey("alice")))

	got, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusOnline, got.Status)
}

func TestRedisDownFallsBack(t *testing.T) {
	s, _, mr := newCached(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, storagetest.NewUser("alice")))

	mr.Close()
	got, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

// writeDuringRead 回源读完快照后触发一次写入，模拟读写交错
type writeDuringRead struct {
	out.Storage
	hook func()
}

func (w *writeDuringRead) FindUser(ctx context.Context, username string) (*entity.User, error) {
	u, err := w.Storage.FindUser(ctx, username)
	if hook := w.hook; hook != nil {
		w.hook = nil
		hook()
	}
	return u, err
}

func TestFillSkippedWhenWriteInterleaves(t *testing.T) {
	mr := miniredis.RunT(t)
	fs, err := file.NewStore(filepath.Join(t.TempDir(), "database.json"))
	require.NoError(t, err)
	inner := &writeDuringRead{Storage: fs}
	s := NewCachedStorage(inner, redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, storagetest.NewUser("alice")))

	inner.hook = func() {
		require.NoError(t, s.SetStatus(ctx, "alice", entity.StatusOnline, time.Now()))
	}
	stale, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusOffline, stale.Status)
	assert.False(t, mr.Exists(userKey("alice")), "stale snapshot must not be cached")

	got, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusOnline, got.Status)
	assert.True(t, mr.Exists(userKey("alice")))
}

func TestInvalidateBumpsVersion(t *testing.T) {
	s, _, mr := newCached(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, storagetest.NewUser("alice")))
	require.NoError(t, s.SetLocation(ctx, "alice", entity.Location{Lat: 1, Lng: 2}))

	v, err := mr.Get(versionKey("alice"))
	require.NoError(t, err)
	assert.Equal(t, "2", v)
	assert.Equal(t, 2*time.Minute, mr.TTL(versionKey("alice")))
}
