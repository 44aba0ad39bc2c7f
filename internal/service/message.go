package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"text-sync/internal/domain"
	"text-sync/internal/repository"
)

// MessageService 负责消息的增删改查，并在写入提交后向房间推送变更。
type MessageService struct {
	roomRepo     repository.RoomRepository
	messageRepo  repository.MessageRepository
	feed         repository.ChangeFeed
	defaultTitle string
}

// NewMessageService 创建 MessageService 实例。feed 为 nil 时不推送变更。
func NewMessageService(roomRepo repository.RoomRepository, messageRepo repository.MessageRepository,
	feed repository.ChangeFeed, defaultTitle string) *MessageService {
	if roomRepo == nil || messageRepo == nil {
		panic("repositories cannot be nil for MessageService")
	}
	if defaultTitle == "" {
		defaultTitle = domain.DefaultTitle(domain.DefaultLocale)
	}
	return &MessageService{
		roomRepo:     roomRepo,
		messageRepo:  messageRepo,
		feed:         feed,
		defaultTitle: defaultTitle,
	}
}

// DefaultTitle 返回新消息的占位标题
func (s *MessageService) DefaultTitle() string { return s.defaultTitle }

// ListMessages 返回房间内的全部消息，按创建顺序
func (s *MessageService) ListMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	if err := domain.ValidateRoomCode(roomID); err != nil {
		return nil, err
	}
	messages, err := s.messageRepo.FindByRoom(ctx, roomID)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("ListMessages: Repository error")
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	return messages, nil
}

// GetMessage 查找单条消息
func (s *MessageService) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := s.messageRepo.FindByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, ErrMessageNotFound)
	}
	return msg, nil
}

// CreateMessage 在房间内创建一条空消息。input.ID 为空时由服务端生成。
func (s *MessageService) CreateMessage(ctx context.Context, input domain.NewMessage) (*domain.Message, error) {
	if err := domain.ValidateRoomCode(input.RoomID); err != nil {
		return nil, err
	}
	title := s.defaultTitle
	if input.Title != nil {
		if err := domain.ValidateTitle(*input.Title); err != nil {
			return nil, err
		}
		title = *input.Title
	}
	id := input.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: message id must be a UUID", domain.ErrValidation)
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": input.RoomID, "message_id": id})

	if _, err := s.roomRepo.FindByID(ctx, input.RoomID); err != nil {
		return nil, mapRepoError(err, ErrRoomNotFound)
	}

	msg := &domain.Message{ID: id, RoomID: input.RoomID, Title: &title, Content: ""}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.Warn("CreateMessage: message id already exists")
		} else {
			logCtx.WithError(err).Error("CreateMessage: Repository error")
		}
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	logCtx.Debug("Message created")
	s.publish(ctx, domain.ChangeInsert, msg)
	return msg, nil
}

// UpdateMessage 部分更新消息。空更新返回 ValidationError。
func (s *MessageService) UpdateMessage(ctx context.Context, id string, patch domain.MessagePatch) (*domain.Message, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	msg, err := s.messageRepo.Update(ctx, id, patch)
	if err != nil {
		if !errors.Is(err, repository.ErrMessageNotFound) {
			logrus.WithField("message_id", id).WithError(err).Error("UpdateMessage: Repository error")
		}
		return nil, mapRepoError(err, ErrMessageNotFound)
	}
	s.publish(ctx, domain.ChangeUpdate, msg)
	return msg, nil
}

// RenameMessage 只修改标题
func (s *MessageService) RenameMessage(ctx context.Context, id, title string) (*domain.Message, error) {
	return s.UpdateMessage(ctx, id, domain.MessagePatch{Title: &title})
}

// DeleteMessage 删除消息，返回删除前的行
func (s *MessageService) DeleteMessage(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := s.messageRepo.Delete(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrMessageNotFound) {
			logrus.WithField("message_id", id).WithError(err).Error("DeleteMessage: Repository error")
		}
		return nil, mapRepoError(err, ErrMessageNotFound)
	}
	s.publish(ctx, domain.ChangeDelete, msg)
	return msg, nil
}

// publish 推送失败不回滚写入，只记录日志
func (s *MessageService) publish(ctx context.Context, t domain.ChangeType, msg *domain.Message) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, msg.RoomID, domain.NewMessageEvent(t, msg)); err != nil {
		logrus.WithFields(logrus.Fields{
			"room_id":    msg.RoomID,
			"message_id": msg.ID,
			"event_type": t,
		}).WithError(err).Warn("Failed to publish change event")
	}
}
