// Package storagetest 是 out.Storage 各实现共用的契约测试
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/ports/out"
	apperrors "github.com/EthanQC/warpong/pkg/errors"
)

// Factory 每个子测试拿到一个空的存储
type Factory func(t *testing.T) out.Storage

// NewUser 测试用户
func NewUser(username string) *entity.User {
	return &entity.User{
		ID:           "id-" + username,
		Username:     username,
		PasswordHash: "hash-" + username,
		DisplayName:  username,
		Status:       entity.StatusOffline,
		LastSeen:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Location:     &entity.Location{Lat: -6.2088, Lng: 106.8456},
		AvatarURL:    "https://example.invalid/" + username,
	}
}

// Run 执行全部契约用例
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndFind", func(t *testing.T) { testCreateAndFind(t, newStore(t)) })
	t.Run("DuplicateUsername", func(t *testing.T) { testDuplicate(t, newStore(t)) })
	t.Run("UpsertUser", func(t *testing.T) { testUpsert(t, newStore(t)) })
	t.Run("FieldUpdates", func(t *testing.T) { testFieldUpdates(t, newStore(t)) })
	t.Run("ListUsers", func(t *testing.T) { testListUsers(t, newStore(t)) })
	t.Run("Conversation", func(t *testing.T) { testConversation(t, newStore(t)) })
	t.Run("ConcurrentFieldWrites", func(t *testing.T) { testConcurrentFieldWrites(t, newStore(t)) })
}

func testCreateAndFind(t *testing.T, s out.Storage) {
	ctx := context.Background()
	_, err := s.FindUser(ctx, "alice")
	require.ErrorIs(t, err, apperrors.ErrUserNotFound)

	require.NoError(t, s.CreateUser(ctx, NewUser("alice")))
	got, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "id-alice", got.ID)
	assert.Equal(t, "hash-alice", got.PasswordHash)
	assert.Equal(t, entity.StatusOffline, got.Status)
	require.NotNil(t, got.Location)
	assert.InDelta(t, -6.2088, got.Location.Lat, 1e-9)
}

func testDuplicate(t *testing.T, s out.Storage) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, NewUser("alice")))

	dup := NewUser("alice")
	dup.ID = "other"
	dup.PasswordHash = "other-hash"
	require.ErrorIs(t, s.CreateUser(ctx, dup), apperrors.ErrDuplicateUsername)

	got, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "id-alice", got.ID)
	assert.Equal(t, "hash-alice", got.PasswordHash)
}

func testUpsert(t *testing.T, s out.Storage) {
	ctx := context.Background()
	u := NewUser("bob")
	require.NoError(t, s.UpsertUser(ctx, u))

	u.DisplayName = "Bobby"
	u.IsVIP = true
	require.NoError(t, s.UpsertUser(ctx, u))

	got, err := s.FindUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bobby", got.DisplayName)
	assert.True(t, got.IsVIP)
}

func testFieldUpdates(t *testing.T, s out.Storage) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, NewUser("alice")))

	seen := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetStatus(ctx, "alice", entity.StatusOnline, seen))
	require.NoError(t, s.SetLocation(ctx, "alice", entity.Location{Lat: 1.5, Lng: 2.5}))

	got, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusOnline, got.Status)
	assert.True(t, seen.Equal(got.LastSeen), "lastSeen %v", got.LastSeen)
	require.NotNil(t, got.Location)
	assert.InDelta(t, 1.5, got.Location.Lat, 1e-9)
	assert.InDelta(t, 2.5, got.Location.Lng, 1e-9)

	assert.ErrorIs(t, s.SetStatus(ctx, "ghost", entity.StatusOnline, seen), apperrors.ErrUserNotFound)
	assert.ErrorIs(t, s.SetLocation(ctx, "ghost", entity.Location{}), apperrors.ErrUserNotFound)
}

func testListUsers(t *testing.T, s out.Storage) {
	ctx := context.Background()
	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, s.CreateUser(ctx, NewUser(name)))
	}
	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, names)
}

func testConversation(t *testing.T, s out.Storage) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = "bob", "alice"
		}
		require.NoError(t, s.AppendMessage(ctx, &entity.Message{
			ID:        fmt.Sprintf("m%02d", i),
			From:      from,
			To:        to,
			Body:      fmt.Sprintf("msg %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		}))
	}
	require.NoError(t, s.AppendMessage(ctx, &entity.Message{
		ID: "other", From: "alice", To: "carol", Body: "x", Timestamp: base.Add(time.Hour),
	}))

	ab, err := s.ListConversation(ctx, "alice", "bob", entity.ConversationLimit)
	require.NoError(t, err)
	ba, err := s.ListConversation(ctx, "bob", "alice", entity.ConversationLimit)
	require.NoError(t, err)

	require.Len(t, ab, 50)
	require.Len(t, ba, 50)
	assert.Equal(t, "msg 10", ab[0].Body)
	assert.Equal(t, "msg 59", ab[49].Body)
	for i := range ab {
		assert.Equal(t, ab[i].ID, ba[i].ID)
		if i > 0 {
			assert.True(t, ab[i-1].Timestamp.Before(ab[i].Timestamp))
		}
	}

	empty, err := s.ListConversation(ctx, "bob", "carol", entity.ConversationLimit)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testConcurrentFieldWrites(t *testing.T, s out.Storage) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, NewUser("alice")))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = s.SetLocation(ctx, "alice", entity.Location{Lat: float64(i), Lng: 7})
		}(i)
		go func() {
			defer wg.Done()
			_ = s.SetStatus(ctx, "alice", entity.StatusOnline, time.Now())
		}()
	}
	wg.Wait()

	got, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusOnline, got.Status)
	require.NotNil(t, got.Location)
	assert.InDelta(t, 7, got.Location.Lng, 1e-9)
}
