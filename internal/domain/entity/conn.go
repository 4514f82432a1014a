package entity

import "github.com/google/uuid"

// ConnID 连接标识，每条 WebSocket 连接唯一
type ConnID string

// NoConn 空连接，用于广播时不排除任何人
const NoConn ConnID = ""

// NewConnID 生成新的连接标识
func NewConnID() ConnID { return ConnID(uuid.NewString()) }
