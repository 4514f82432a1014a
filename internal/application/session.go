package application

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/domain/protocol"
	"github.com/EthanQC/warpong/internal/domain/session"
	"github.com/EthanQC/warpong/internal/ports/in"
	"github.com/EthanQC/warpong/internal/ports/out"
	apperrors "github.com/EthanQC/warpong/pkg/errors"
	"github.com/EthanQC/warpong/pkg/zlog"
)

// Session 单连接会话，由该连接的读协程顺序驱动
type Session struct {
	svc  *RealtimeService
	conn out.Connection
	sm   *session.StateMachine
}

var _ in.Session = (*Session)(nil)

func (s *Session) State() session.State { return s.sm.State() }

func (s *Session) Username() string { return s.sm.Username() }

// logger 以 ctx 中的连接级 logger 为基础，补上当前用户名
func (s *Session) logger(ctx context.Context) *zap.Logger {
	return zlog.C(ctx).With(zap.String("username", s.sm.Username()))
}

// HandleFrame 解析一帧并分发，错误以 error 帧回给客户端
func (s *Session) HandleFrame(ctx context.Context, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		s.replyError(err)
		s.svc.metrics.event("malformed", "rejected")
		return
	}

	switch env.Type {
	case protocol.TypeLogin:
		var username string
		if username, err = protocol.DecodeUsername(env.Data); err == nil {
			err = s.Login(ctx, username)
		}
	case protocol.TypeSendLocation:
		var p protocol.LocationPayload
		if err = protocol.DecodeData(env.Data, &p); err == nil {
			err = s.SendLocation(ctx, entity.Location{Lat: p.Lat, Lng: p.Lng})
		}
	case protocol.TypeSendMessage:
		var p protocol.SendMessagePayload
		if err = protocol.DecodeData(env.Data, &p); err == nil {
			err = s.SendMessage(ctx, p.To, p.Message)
		}
	default:
		s.replyError(errors.New("unknown message type"))
		s.svc.metrics.event("unknown", "rejected")
		return
	}

	if err != nil {
		s.logger(ctx).Debug("realtime event rejected", zap.String("type", string(env.Type)), zap.Error(err))
		s.replyError(err)
		s.svc.metrics.event(string(env.Type), "rejected")
		return
	}
	s.svc.metrics.event(string(env.Type), "ok")
}

// Login 绑定用户名；同名重复登录视为重新声明，换名返回 ErrAlreadyAuthenticated
func (s *Session) Login(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return apperrors.ErrInvalidInput
	}
	if s.sm.State() == session.StateAuthenticated && s.sm.Username() != username {
		return apperrors.ErrAlreadyAuthenticated
	}
	prev, err := s.sm.Transition(session.EventLogin)
	if err != nil {
		return transitionError(err)
	}
	if prev == session.StateAnonymous {
		s.sm.Bind(username)
	}

	id := s.conn.ID()
	if old, replaced := s.svc.registry.SetOnline(username, id); replaced {
		s.logger(ctx).Info("login replaced previous connection", zap.String("previous_conn_id", string(old)))
	}
	s.svc.setStatus(ctx, username, entity.StatusOnline)
	n := s.svc.delivery.Broadcast(protocol.TypeUserOnline, username, entity.NoConn)
	s.svc.publish(out.EventPresenceChanged, username, map[string]any{
		"username": username,
		"status":   string(entity.StatusOnline),
	})

	s.logger(ctx).Info("user online", zap.String("remote_addr", s.conn.RemoteAddr()), zap.Int("notified", n))
	return nil
}

// SendLocation 持久化失败只记日志，广播照常
func (s *Session) SendLocation(ctx context.Context, loc entity.Location) error {
	if _, err := s.sm.Transition(session.EventSendLocation); err != nil {
		return transitionError(err)
	}
	if err := loc.Validate(); err != nil {
		return err
	}
	username := s.sm.Username()

	opCtx, cancel := context.WithTimeout(ctx, s.svc.opTimeout)
	err := s.svc.storage.SetLocation(opCtx, username, loc)
	cancel()
	if err != nil {
		s.logger(ctx).Warn("persist location failed", zap.Error(err))
	}

	s.svc.delivery.Broadcast(protocol.TypeUserLocation, protocol.LocationPayload{
		Username: username,
		Lat:      loc.Lat,
		Lng:      loc.Lng,
	}, s.conn.ID())
	return nil
}

// SendMessage 先落库再投递，发送方总会收到 message-sent
func (s *Session) SendMessage(ctx context.Context, to, body string) error {
	if _, err := s.sm.Transition(session.EventSendMessage); err != nil {
		return transitionError(err)
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return apperrors.ErrInvalidInput
	}

	msg := &entity.Message{
		ID:        entity.NewMessageID(),
		From:      s.sm.Username(),
		To:        to,
		Body:      body,
		Timestamp: s.svc.clock.Now(),
	}

	opCtx, cancel := context.WithTimeout(ctx, s.svc.opTimeout)
	err := s.svc.storage.AppendMessage(opCtx, msg)
	cancel()
	stored := err == nil
	if !stored {
		s.logger(ctx).Error("persist message failed", zap.String("to", to), zap.Error(err))
	}

	delivered := s.svc.delivery.Unicast(to, protocol.TypeNewMessage, protocol.NewMessagePayload{
		From:      msg.From,
		To:        msg.To,
		Message:   msg.Body,
		Timestamp: msg.Timestamp,
	})
	s.svc.delivery.Reply(s.conn, protocol.TypeMessageSent, protocol.MessageSentPayload{Success: stored})

	if stored {
		s.svc.publish(out.EventMessageCreated, msg.From, map[string]any{
			"id":        msg.ID,
			"from":      msg.From,
			"to":        msg.To,
			"timestamp": msg.Timestamp,
			"delivered": delivered,
		})
	}
	return nil
}

// Close 传输层断开；只有仍是在线表记录的连接才写离线并广播
func (s *Session) Close(ctx context.Context) {
	prev, err := s.sm.Transition(session.EventDisconnect)
	if err != nil || prev != session.StateAuthenticated {
		return
	}
	username := s.sm.Username()
	if !s.svc.registry.RemoveIfOwner(username, s.conn.ID()) {
		s.logger(ctx).Debug("stale connection closed, newer login keeps the username")
		return
	}

	s.svc.setStatus(ctx, username, entity.StatusOffline)
	s.svc.delivery.Broadcast(protocol.TypeUserOffline, username, s.conn.ID())
	s.svc.publish(out.EventPresenceChanged, username, map[string]any{
		"username": username,
		"status":   string(entity.StatusOffline),
	})
	s.logger(ctx).Info("user offline")
}

func (s *Session) replyError(err error) {
	s.svc.delivery.Reply(s.conn, protocol.TypeError, protocol.ErrorPayload{Error: err.Error()})
}

func transitionError(err error) error {
	switch {
	case errors.Is(err, session.ErrClosed):
		return apperrors.ErrSessionClosed
	case errors.Is(err, session.ErrInvalidTransition):
		return apperrors.ErrNotAuthenticated
	default:
		return err
	}
}
