package server

import (
	"spacearena/protocol"
	"spacearena/store"
)

// Command 进入 Tick 队列的一条命令；只在 Tick 协程中执行。
// 四种形态互斥：入站消息、认证后入场、连接离开、内部函数。
type Command struct {
	Conn  Conn
	Msg   protocol.Inbound
	Admit *Admission
	Leave bool
	Fn    func(r *Room)

	done chan struct{} // Do 等待执行完成
}

// Admission 认证已在读协程完成，等待 Tick 协程把玩家放入世界
type Admission struct {
	Identity Identity
	Record   *store.PlayerRecord // nil 表示新账号
	Token    string
	Resumed  bool
}
