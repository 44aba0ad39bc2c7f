package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"text-sync/internal/dto"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
// 快照发送之前收到的变更帧暂存在 backlog 中，保证快照总是第一帧。
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	id     string
	roomID string
	send   chan []byte

	// updates 按到达顺序串行处理，同一连接的两次写入不会乱序提交
	updates  chan []byte
	done     chan struct{}
	doneOnce sync.Once

	mu      sync.Mutex
	ready   bool
	closed  bool
	backlog [][]byte
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, id, roomID string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		id:      id,
		roomID:  roomID,
		send:    make(chan []byte, 256),
		updates: make(chan []byte, 64),
		done:    make(chan struct{}),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.UpdatePump()
	go c.ReadPump()
}

// queueUpdate 把 update 帧交给本连接的处理协程，队列满时返回 false
func (c *Client) queueUpdate(raw []byte) bool {
	select {
	case c.updates <- raw:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// UpdatePump 逐个处理本连接的 update 帧，连接断开或 Hub 停止后退出
func (c *Client) UpdatePump() {
	for {
		select {
		case raw := <-c.updates:
			c.hub.handleClientUpdate(HubMessage{Type: "update", RoomID: c.roomID, Client: c, RawData: raw})
		case <-c.done:
			return
		case <-c.hub.ctx.Done():
			return
		}
	}
}

// rejectBusy 回复 busy 错误帧，尽量带上请求 ID
func (c *Client) rejectBusy(raw []byte) {
	var frame dto.IncomingFrame
	_ = json.Unmarshal(raw, &frame)
	c.sendError(frame.RequestID, "busy", "server busy, update dropped")
}

func (c *Client) stop() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Client) logger() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"client_id": c.id, "room_id": c.roomID})
}

// deliver 投递一帧。快照之前进入 backlog，发送缓冲满时断开连接。
func (c *Client) deliver(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if !c.ready {
		c.backlog = append(c.backlog, frame)
		return
	}
	c.enqueueLocked(frame)
}

// markReady 先发送快照（可能为 nil），再放行 backlog
func (c *Client) markReady(snapshot []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ready {
		return
	}
	if snapshot != nil {
		c.enqueueLocked(snapshot)
	}
	for _, frame := range c.backlog {
		c.enqueueLocked(frame)
	}
	c.backlog = nil
	c.ready = true
}

// enqueueLocked 写入发送缓冲。缓冲满说明客户端跟不上推送，
// 直接断开连接，客户端重连后重新拉取快照，不会漏掉变更。
func (c *Client) enqueueLocked(frame []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		c.logger().Warn("Client send channel full, disconnecting slow client")
		c.closeLocked()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// sendError 直接发送错误帧，不经过 backlog
func (c *Client) sendError(requestID, code, message string) {
	payload, err := json.Marshal(dto.ErrorFrame{Type: dto.FrameError, RequestID: requestID, Code: code, Message: message})
	if err != nil {
		c.logger().WithError(err).Error("Failed to marshal error frame")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.enqueueLocked(payload)
}

// closeSend 关闭发送通道，WritePump 随后发送关闭帧并退出。可重复调用。
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	c.backlog = nil
	close(c.send)
}

// ReadPump 将消息从 WebSocket 连接泵送到 Hub 的 messageChan。
// 它在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	defer func() {
		c.stop()
		unregisterMsg := HubMessage{Type: "unregister", RoomID: c.roomID, Client: c}
		select {
		case c.hub.messageChan <- unregisterMsg:
		case <-c.hub.ctx.Done():
		case <-time.After(1 * time.Second):
			c.logger().Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		c.logger().Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger().WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.logger().Debug("WebSocket connection closed normally or read error")
			}
			break
		}

		if messageType != websocket.TextMessage {
			c.logger().Debugf("Received non-text message type: %d", messageType)
			continue
		}
		c.logger().Debugf("Received raw message (size: %d)", len(message))

		if !c.hub.QueueMessage(HubMessage{Type: "update", RoomID: c.roomID, Client: c, RawData: message}) {
			c.rejectBusy(message)
		}
	}
}

// WritePump 将消息从 send 通道泵送到 WebSocket 连接，并定期发送 Ping。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger().Info("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.logger().Info("Hub closed send channel")
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger().WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger().WithError(err).Warn("Failed to send ping message")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) RoomID() string { return c.roomID }
func (c *Client) CloseConn()     { c.conn.Close() }
