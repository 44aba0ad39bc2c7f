package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"text-sync/internal/domain"
	"text-sync/internal/dto"
	"text-sync/internal/repository"
)

const (
	handshakeTimeout = 10 * time.Second
	readWait         = 70 * time.Second
	feedBuffer       = 256
)

// Subscribe 建立 WebSocket 连接并等待服务端快照，之后的变更帧才会投递。
// 快照之后才返回，保证返回时服务端的推送订阅已经建立。
func (r *RoomClient) Subscribe(ctx context.Context, roomID string) (repository.Subscription, error) {
	if err := r.checkRoom(roomID); err != nil {
		return nil, err
	}
	wsURL := *r.client.baseURL
	if wsURL.Scheme == "https" {
		wsURL.Scheme = "wss"
	} else {
		wsURL.Scheme = "ws"
	}
	wsURL.Path += "/ws/rooms/" + url.PathEscape(roomID)
	wsURL.RawQuery = url.Values{"token": {r.token}}.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, fmt.Errorf("%w: dial feed: %v", domain.ErrStoreUnavailable, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var first dto.OutgoingFrame
	if err := conn.ReadJSON(&first); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: read snapshot: %v", domain.ErrStoreUnavailable, err)
	}
	if first.Type == dto.FrameError {
		conn.Close()
		kind := domain.ErrorForCode(first.Code)
		if kind == nil {
			kind = domain.ErrStoreUnavailable
		}
		return nil, fmt.Errorf("%w: %s", kind, first.Message)
	}

	sub := &wsSubscription{
		conn:   conn,
		roomID: roomID,
		events: make(chan domain.ChangeEvent, feedBuffer),
		done:   make(chan struct{}),
	}
	sub.exited.Add(1)
	go sub.run()
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// wsSubscription 把 change 帧转换成 ChangeEvent
type wsSubscription struct {
	conn   *websocket.Conn
	roomID string
	events chan domain.ChangeEvent

	closeOnce sync.Once
	done      chan struct{}
	exited    sync.WaitGroup
}

func (s *wsSubscription) Events() <-chan domain.ChangeEvent { return s.events }

// Close 关闭连接并等待读循环退出，可重复调用
func (s *wsSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	s.exited.Wait()
	return err
}

func (s *wsSubscription) run() {
	defer s.exited.Done()
	defer close(s.events)
	logCtx := logrus.WithField("room_id", s.roomID)

	s.conn.SetPingHandler(func(data string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(readWait))
		return s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(readWait))
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				logCtx.WithError(err).Warn("Feed connection closed")
			}
			return
		}
		var frame dto.OutgoingFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			logCtx.WithError(err).Warn("Malformed frame from server")
			continue
		}
		switch frame.Type {
		case dto.FrameChange:
			if frame.Event == nil {
				continue
			}
			select {
			case s.events <- *frame.Event:
			case <-s.done:
				return
			}
		case dto.FrameError:
			logCtx.WithFields(logrus.Fields{"code": frame.Code, "request_id": frame.RequestID}).Warn(frame.Message)
		}
	}
}
