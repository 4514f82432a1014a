package session

import (
	"errors"
	"sync"
)

// State 会话状态
type State string

const (
	StateAnonymous     State = "anonymous"     // 未登录
	StateAuthenticated State = "authenticated" // 已绑定用户名
	StateClosed        State = "closed"        // 已断开
)

// Event 会话事件
type Event string

const (
	EventLogin        Event = "login"         // 登录
	EventSendLocation Event = "send-location" // 上报位置
	EventSendMessage  Event = "send-message"  // 发送私信
	EventDisconnect   Event = "disconnect"    // 传输层断开
)

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrClosed            = errors.New("session has already closed")
)

type stateEvent struct {
	state State
	event Event
}

var transitions = map[stateEvent]State{
	{StateAnonymous, EventLogin}:            StateAuthenticated,
	{StateAnonymous, EventDisconnect}:       StateClosed,
	{StateAuthenticated, EventLogin}:        StateAuthenticated,
	{StateAuthenticated, EventSendLocation}: StateAuthenticated,
	{StateAuthenticated, EventSendMessage}:  StateAuthenticated,
	{StateAuthenticated, EventDisconnect}:   StateClosed,
}

// StateMachine 单连接状态机，绑定的用户名在登录后固定
type StateMachine struct {
	mu       sync.RWMutex
	state    State
	username string
}

// NewStateMachine 新连接总是从 Anonymous 开始
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateAnonymous}
}

// Next 查询转换结果但不执行
func Next(from State, event Event) (State, bool) {
	to, ok := transitions[stateEvent{from, event}]
	return to, ok
}

// Transition 执行状态转换，返回转换前的状态
func (sm *StateMachine) Transition(event Event) (State, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	prev := sm.state
	if prev == StateClosed {
		return prev, ErrClosed
	}
	to, ok := Next(prev, event)
	if !ok {
		return prev, ErrInvalidTransition
	}
	sm.state = to
	return prev, nil
}

// Bind 记录登录用户名，只在 Anonymous 到 Authenticated 时调用
func (sm *StateMachine) Bind(username string) {
	sm.mu.Lock()
	sm.username = username
	sm.mu.Unlock()
}

// State 当前状态
func (sm *StateMachine) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// Username 绑定的用户名，未登录为空
func (sm *StateMachine) Username() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.username
}
