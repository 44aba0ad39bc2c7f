package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"text-sync/internal/domain"
	"text-sync/internal/dto"
	"text-sync/internal/repository"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 正文可能较长
	maxMessageSize = 1 << 20
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string // "register", "unregister", "update"
	RoomID  string
	Client  *Client
	RawData []byte
}

// MessageService 是 Hub 依赖的消息操作，由 service.MessageService 实现
type MessageService interface {
	ListMessages(ctx context.Context, roomID string) ([]domain.Message, error)
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	UpdateMessage(ctx context.Context, id string, patch domain.MessagePatch) (*domain.Message, error)
}

// roomState 是一个房间的连接集合和变更订阅
type roomState struct {
	clients map[*Client]bool
	sub     repository.Subscription
}

// Hub 维护活跃客户端集合，把房间的变更推送转发给该房间的所有连接。
// 每个有连接的房间只持有一个推送订阅，最后一个连接断开时关闭。
type Hub struct {
	messageChan chan HubMessage

	rooms   map[string]*roomState
	roomsMu sync.RWMutex

	feed     repository.ChangeFeed
	messages MessageService

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(feed repository.ChangeFeed, messages MessageService) *Hub {
	if feed == nil {
		panic("ChangeFeed cannot be nil for Hub")
	}
	if messages == nil {
		panic("MessageService cannot be nil for Hub")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		rooms:       make(map[string]*roomState),
		feed:        feed,
		messages:    messages,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run 启动 Hub 的主事件处理循环，应在单独的 goroutine 中运行
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")
	for {
		select {
		case <-h.ctx.Done():
			log.Info("Hub is shutting down...")
			return
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			case "update":
				// 交给连接自己的处理协程，不阻塞 Hub 主循环
				if !msg.Client.queueUpdate(msg.RawData) {
					msg.Client.rejectBusy(msg.RawData)
				}
			default:
				log.Warnf("Hub: Received unknown message type: %s in room %s", msg.Type, msg.RoomID)
			}
		}
	}
}

// Stop 停止主循环，关闭所有订阅和连接
func (h *Hub) Stop() {
	h.cancel()
	h.roomsMu.Lock()
	for roomID, room := range h.rooms {
		_ = room.sub.Close()
		for client := range room.clients {
			client.closeSend()
		}
		delete(h.rooms, roomID)
	}
	h.roomsMu.Unlock()
	h.wg.Wait()
}

// RoomCount 返回有连接的房间数
func (h *Hub) RoomCount() int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms)
}

// ClientCount 返回房间内的连接数
func (h *Hub) ClientCount(roomID string) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	if room, ok := h.rooms[roomID]; ok {
		return len(room.clients)
	}
	return 0
}

// registerClient 处理客户端注册。房间第一个连接时订阅变更推送，
// 之后异步发送快照，快照之前到达的变更会先缓存在客户端上。
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	roomID := client.RoomID()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":   roomID,
		"client_id": client.ID(),
		"action":    "registerClient",
	})

	h.roomsMu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		sub, err := h.feed.Subscribe(h.ctx, roomID)
		if err != nil {
			h.roomsMu.Unlock()
			logCtx.WithError(err).Error("Failed to subscribe to room feed")
			client.sendError("", domain.ErrorCode(domain.ErrStoreUnavailable), "Failed to subscribe to room changes")
			client.closeSend()
			return
		}
		room = &roomState{clients: make(map[*Client]bool), sub: sub}
		h.rooms[roomID] = room
		h.wg.Add(1)
		go h.pumpRoom(roomID, sub)
		logCtx.Info("Feed subscription created for room")
	}
	room.clients[client] = true
	h.roomsMu.Unlock()
	logCtx.Info("Client registered to Hub")

	go h.sendInitialSnapshot(client)
}

// unregisterClient 处理客户端注销，房间变空时关闭订阅
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	roomID := client.RoomID()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":   roomID,
		"client_id": client.ID(),
		"action":    "unregisterClient",
	})

	h.roomsMu.Lock()
	room, ok := h.rooms[roomID]
	if !ok || !room.clients[client] {
		h.roomsMu.Unlock()
		logCtx.Warn("Client not found during unregister")
		return
	}
	delete(room.clients, client)
	client.closeSend()
	var sub repository.Subscription
	if len(room.clients) == 0 {
		delete(h.rooms, roomID)
		sub = room.sub
	}
	h.roomsMu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			logCtx.WithError(err).Warn("Failed to close room feed subscription")
		}
		logCtx.Info("Room empty, feed subscription closed")
	}
	logCtx.Info("Client unregistered from Hub")
}

// pumpRoom 把订阅收到的事件转发给房间内所有连接，包括写入发起者
func (h *Hub) pumpRoom(roomID string, sub repository.Subscription) {
	defer h.wg.Done()
	logCtx := logrus.WithField("room_id", roomID)
	for ev := range sub.Events() {
		payload, err := json.Marshal(dto.ChangeFrame{Type: dto.FrameChange, Event: ev})
		if err != nil {
			logCtx.WithError(err).Error("Failed to marshal change frame")
			continue
		}
		h.broadcast(roomID, payload)
	}
	logCtx.Debug("Room feed pump exited")
}

// broadcast 将消息发送给指定房间的所有客户端
func (h *Hub) broadcast(roomID string, message []byte) {
	h.roomsMu.RLock()
	room, ok := h.rooms[roomID]
	clients := make([]*Client, 0)
	if ok {
		for client := range room.clients {
			clients = append(clients, client)
		}
	}
	h.roomsMu.RUnlock()

	for _, client := range clients {
		client.deliver(message)
	}
}

// sendInitialSnapshot 发送快照，然后放行快照之前缓存的变更
func (h *Hub) sendInitialSnapshot(client *Client) {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":   client.RoomID(),
		"client_id": client.ID(),
		"operation": "sendInitialSnapshot",
	})

	messages, err := h.messages.ListMessages(h.ctx, client.RoomID())
	if err != nil {
		logCtx.WithError(err).Error("Failed to load messages for snapshot")
		client.sendError("", domain.ErrorCode(err), "Failed to load messages")
		client.markReady(nil)
		return
	}
	payload, err := json.Marshal(dto.SnapshotFrame{Type: dto.FrameSnapshot, RoomID: client.RoomID(), Messages: messages})
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal snapshot frame")
		client.markReady(nil)
		return
	}
	client.markReady(payload)
	logCtx.WithField("messages", len(messages)).Debug("Snapshot sent to client")
}

// handleClientUpdate 处理客户端通过 WebSocket 发来的 update 帧。
// 成功的写入通过房间推送回到所有连接，失败只通知发送者。
func (h *Hub) handleClientUpdate(msg HubMessage) {
	client := msg.Client
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":   msg.RoomID,
		"client_id": client.ID(),
		"operation": "handleClientUpdate",
	})

	var frame dto.IncomingFrame
	if err := json.Unmarshal(msg.RawData, &frame); err != nil {
		logCtx.WithError(err).Warn("Malformed frame from client")
		client.sendError("", domain.CodeValidation, "malformed frame")
		return
	}
	if frame.Type != dto.FrameUpdate || frame.MessageID == "" {
		client.sendError(frame.RequestID, domain.CodeValidation, fmt.Sprintf("unsupported frame type %q", frame.Type))
		return
	}
	logCtx = logCtx.WithField("message_id", frame.MessageID)

	ctx, cancel := context.WithTimeout(h.ctx, writeWait)
	defer cancel()

	existing, err := h.messages.GetMessage(ctx, frame.MessageID)
	if err == nil && existing.RoomID != msg.RoomID {
		err = fmt.Errorf("message %s: %w", frame.MessageID, domain.ErrNotFound)
	}
	if err == nil {
		_, err = h.messages.UpdateMessage(ctx, frame.MessageID, frame.Patch())
	}
	if err != nil {
		logCtx.WithError(err).Warn("Client update failed")
		client.sendError(frame.RequestID, domain.ErrorCode(err), err.Error())
		return
	}
	logCtx.Debug("Client update applied")
}

// QueueMessage 将消息放入 Hub 的处理队列（非阻塞）
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"room_id":      msg.RoomID,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}
