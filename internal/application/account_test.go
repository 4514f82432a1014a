package application

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/EthanQC/warpong/internal/adapters/out/file"
	"github.com/EthanQC/warpong/internal/adapters/out/memory"
	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/domain/protocol"
	"github.com/EthanQC/warpong/internal/ports/in"
	apperrors "github.com/EthanQC/warpong/pkg/errors"
	"github.com/EthanQC/warpong/pkg/jwt"
)

const avatarTemplate = "https://ui-avatars.com/api/?name=%s&background=1DB954&color=fff"

func newAccount(t *testing.T) (*AccountService, *file.Store, jwt.Manager) {
	t.Helper()
	store, err := file.NewStore(filepath.Join(t.TempDir(), "database.json"))
	require.NoError(t, err)
	tokens, err := jwt.NewManager("test-secret", time.Hour, "warpong")
	require.NoError(t, err)
	svc := NewAccountService(store, tokens, &fakePublisher{}, AccountOptions{
		DefaultLocation: entity.Location{Lat: -6.2088, Lng: 106.8456},
		AvatarTemplate:  avatarTemplate,
		BcryptCost:      bcrypt.MinCost,
		OpTimeout:       time.Second,
	})
	return svc, store, tokens
}

func TestRegisterDefaults(t *testing.T) {
	svc, store, _ := newAccount(t)
	ctx := context.Background()

	pub, err := svc.Register(ctx, in.RegisterRequest{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "alice", pub.DisplayName)
	assert.Equal(t, entity.StatusOffline, pub.Status)
	assert.Equal(t, "https://ui-avatars.com/api/?name=alice&background=1DB954&color=fff", pub.AvatarURL)
	require.NotNil(t, pub.Location)
	assert.Equal(t, -6.2088, pub.Location.Lat)

	u, err := store.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret")))
	assert.NotEmpty(t, u.ID)
}

func TestRegisterDuplicateLeavesOriginal(t *testing.T) {
	svc, store, _ := newAccount(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, in.RegisterRequest{Username: "alice", Password: "secret", DisplayName: "Alice"})
	require.NoError(t, err)
	before, _ := store.FindUser(ctx, "alice")

	_, err = svc.Register(ctx, in.RegisterRequest{Username: "alice", Password: "other", DisplayName: "Imposter"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateUsername)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	after, _ := store.FindUser(ctx, "alice")
	assert.Equal(t, before, after)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newAccount(t)
	_, err := svc.Register(context.Background(), in.RegisterRequest{Username: "  ", Password: "x"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = svc.Register(context.Background(), in.RegisterRequest{Username: "bob"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestLogin(t *testing.T) {
	svc, store, tokens := newAccount(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, in.RegisterRequest{Username: "alice", Password: "secret"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "nobody", "secret")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
	_, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, apperrors.ErrInvalidPassword)

	res, err := svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	claims, err := tokens.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, entity.StatusOnline, res.User.Status)

	raw, err := json.Marshal(res.User)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "password")

	u, _ := store.FindUser(ctx, "alice")
	assert.Equal(t, entity.StatusOnline, u.Status)
}

func TestUpdateLocation(t *testing.T) {
	svc, store, tokens := newAccount(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, in.RegisterRequest{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	res, err := svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.UpdateLocation(ctx, "garbage", entity.Location{}), apperrors.ErrInvalidToken)
	assert.ErrorIs(t, svc.UpdateLocation(ctx, res.Token, entity.Location{Lat: 100}), apperrors.ErrInvalidLocation)

	require.NoError(t, svc.UpdateLocation(ctx, res.Token, entity.Location{Lat: 10, Lng: 20}))
	u, _ := store.FindUser(ctx, "alice")
	assert.Equal(t, 10.0, u.Location.Lat)

	// 令牌有效但用户不存在
	ghostToken, err := tokens.Generate("id-ghost", "ghost")
	require.NoError(t, err)
	assert.NoError(t, svc.UpdateLocation(ctx, ghostToken, entity.Location{Lat: 1, Lng: 1}))
}

func TestListUsersHidesPasswords(t *testing.T) {
	svc, _, _ := newAccount(t)
	ctx := context.Background()
	for _, name := range []string{"alice", "bob"} {
		_, err := svc.Register(ctx, in.RegisterRequest{Username: name, Password: "pw"})
		require.NoError(t, err)
	}
	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	raw, _ := json.Marshal(users)
	assert.NotContains(t, string(raw), "password")
}

func TestConversationSymmetricCapped(t *testing.T) {
	svc, store, _ := newAccount(t)
	ctx := context.Background()
	clock := NewClock()
	for i := 0; i < 55; i++ {
		from, to := "alice", "bob"
		if i%3 == 0 {
			from, to = "bob", "alice"
		}
		require.NoError(t, store.AppendMessage(ctx, &entity.Message{
			ID: fmt.Sprint(i), From: from, To: to, Body: fmt.Sprint(i), Timestamp: clock.Now(),
		}))
	}

	ab, err := svc.Conversation(ctx, "alice", "bob")
	require.NoError(t, err)
	ba, err := svc.Conversation(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, ab, 50)
	assert.Equal(t, ab, ba)
	assert.Equal(t, "5", ab[0].Body)
	assert.Equal(t, "54", ab[49].Body)

	empty, err := svc.Conversation(ctx, "carol", "dave")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

// 注册 alice，登录拿到令牌，bob 离线时发送私信，之后能查到这条消息
func TestAliceMessagesOfflineBob(t *testing.T) {
	svc, store, _ := newAccount(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, in.RegisterRequest{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	res, err := svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)

	hub := newFakeHub()
	rt := NewRealtimeService(store, memory.NewPresenceRegistry(), hub, nil, nil, time.Second)
	conn := newFakeConn("c1")
	_ = hub.Register(conn)
	sess := rt.Open(conn)

	sess.HandleFrame(ctx, frame(t, protocol.TypeLogin, "alice"))
	sess.HandleFrame(ctx, frame(t, protocol.TypeSendMessage, protocol.SendMessagePayload{From: "alice", To: "bob", Message: "hi"}))
	require.Len(t, conn.ofType(t, protocol.TypeMessageSent), 1)

	msgs, err := svc.Conversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Body)
}
