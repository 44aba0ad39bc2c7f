package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"text-sync/internal/domain"
	"text-sync/internal/repository"
)

// maxCodeAttempts 房间码冲突时的总尝试次数
const maxCodeAttempts = 5

// RoomServiceConfig 是 RoomService 的可选配置
type RoomServiceConfig struct {
	// TTL 房间存活时间，<=0 时使用 domain.DefaultRoomTTL
	TTL time.Duration
	// DefaultTitle 初始消息的占位标题
	DefaultTitle string
	// Now 时钟，测试时可替换
	Now func() time.Time
	// GenerateCode 房间码生成器，测试时可替换
	GenerateCode func() (string, error)
}

// RoomService 负责房间管理相关的业务逻辑。
type RoomService struct {
	roomRepo    repository.RoomRepository
	messageRepo repository.MessageRepository
	feed        repository.ChangeFeed
	tokens      *TokenService

	ttl          time.Duration
	defaultTitle string
	now          func() time.Time
	generateCode func() (string, error)
}

// CreateRoomResult 创建房间的返回值
type CreateRoomResult struct {
	Room     *domain.Room     `json:"room"`
	Messages []domain.Message `json:"messages"`
	Token    string           `json:"token,omitempty"`
}

// JoinRoomResult 通过房间码加入的返回值。
// 房间已过期时只返回房间本身，由调用方展示过期页面。
type JoinRoomResult struct {
	Room      *domain.Room     `json:"room"`
	Expired   bool             `json:"expired"`
	ExpiresAt time.Time        `json:"expires_at"`
	Messages  []domain.Message `json:"messages,omitempty"`
	Token     string           `json:"token,omitempty"`
}

// RoomStats 房间统计
type RoomStats struct {
	Total   int64     `json:"total"`
	Expired int64     `json:"expired"`
	Cutoff  time.Time `json:"cutoff"`
	TTL     string    `json:"ttl"`
}

// NewRoomService 创建 RoomService 实例。feed 和 tokens 可以为 nil。
func NewRoomService(roomRepo repository.RoomRepository, messageRepo repository.MessageRepository,
	feed repository.ChangeFeed, tokens *TokenService, cfg RoomServiceConfig) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if messageRepo == nil {
		panic("MessageRepository cannot be nil for RoomService")
	}
	s := &RoomService{
		roomRepo:     roomRepo,
		messageRepo:  messageRepo,
		feed:         feed,
		tokens:       tokens,
		ttl:          cfg.TTL,
		defaultTitle: cfg.DefaultTitle,
		now:          cfg.Now,
		generateCode: cfg.GenerateCode,
	}
	if s.ttl <= 0 {
		s.ttl = domain.DefaultRoomTTL
	}
	if s.defaultTitle == "" {
		s.defaultTitle = domain.DefaultTitle(domain.DefaultLocale)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.generateCode == nil {
		s.generateCode = GenerateRoomCode
	}
	return s
}

// TTL 返回房间存活时间
func (s *RoomService) TTL() time.Duration { return s.ttl }

// CreateRoom 创建房间并写入一条空的初始消息。
// 房间码冲突时换一个新码重试，总共 5 次。
func (s *RoomService) CreateRoom(ctx context.Context, name string) (*CreateRoomResult, error) {
	name, err := domain.NormalizeRoomName(name)
	if err != nil {
		return nil, err
	}
	logCtx := logrus.WithField("room_name", name)

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			logCtx.WithError(err).Error("Failed to generate room code")
			return nil, fmt.Errorf("generate room code: %w", err)
		}

		room := &domain.Room{ID: code, Name: name}
		title := s.defaultTitle
		seed := &domain.Message{ID: uuid.NewString(), Title: &title, Content: ""}

		err = s.roomRepo.Create(ctx, room, seed)
		if err == nil {
			logCtx.WithFields(logrus.Fields{"room_id": room.ID, "attempt": attempt}).Info("Room created successfully")
			result := &CreateRoomResult{Room: room, Messages: []domain.Message{*seed}}
			if s.tokens != nil {
				token, err := s.tokens.IssueRoomToken(room)
				if err != nil {
					logCtx.WithError(err).Error("Failed to issue room token")
					return nil, err
				}
				result.Token = token
			}
			return result, nil
		}
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithFields(logrus.Fields{"room_id": code, "attempt": attempt}).Warn("Room code already exists, retrying")
			continue
		}
		logCtx.WithError(err).Error("Failed to save new room")
		return nil, mapRepoError(err, ErrRoomNotFound)
	}

	logCtx.Errorf("Failed to allocate a unique room code after %d attempts", maxCodeAttempts)
	return nil, ErrRoomCodeExhausted
}

// GetRoom 按房间码精确查找。不做过期过滤，也没有任何副作用。
func (s *RoomService) GetRoom(ctx context.Context, code string) (*domain.Room, error) {
	if err := domain.ValidateRoomCode(code); err != nil {
		return nil, err
	}
	room, err := s.roomRepo.FindByID(ctx, code)
	if err != nil {
		if !errors.Is(err, repository.ErrRoomNotFound) {
			logrus.WithField("room_id", code).WithError(err).Error("GetRoom: Repository error")
		}
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	return room, nil
}

// JoinRoom 通过房间码加入。未过期时附带消息列表和访问令牌。
func (s *RoomService) JoinRoom(ctx context.Context, code string) (*JoinRoomResult, error) {
	room, err := s.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	result := &JoinRoomResult{Room: room, Expired: s.IsExpired(room), ExpiresAt: room.ExpiresAt(s.ttl)}
	if result.Expired {
		logrus.WithField("room_id", room.ID).Info("Join attempt on expired room")
		return result, nil
	}

	messages, err := s.messageRepo.FindByRoom(ctx, room.ID)
	if err != nil {
		logrus.WithField("room_id", room.ID).WithError(err).Error("JoinRoom: failed to load messages")
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	result.Messages = messages
	if s.tokens != nil {
		if result.Token, err = s.tokens.IssueRoomToken(room); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// RenameRoom 只修改房间名称
func (s *RoomService) RenameRoom(ctx context.Context, code, name string) (*domain.Room, error) {
	if err := domain.ValidateRoomCode(code); err != nil {
		return nil, err
	}
	name, err := domain.NormalizeRoomName(name)
	if err != nil {
		return nil, err
	}
	room, err := s.roomRepo.UpdateName(ctx, code, name)
	if err != nil {
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	logrus.WithFields(logrus.Fields{"room_id": code, "room_name": name}).Info("Room renamed")
	return room, nil
}

// TouchRoom 刷新房间的 updated_at，不影响过期时间
func (s *RoomService) TouchRoom(ctx context.Context, code string) (*domain.Room, error) {
	if err := domain.ValidateRoomCode(code); err != nil {
		return nil, err
	}
	room, err := s.roomRepo.Touch(ctx, code)
	if err != nil {
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	return room, nil
}

// DeleteRoom 删除房间，消息由存储层级联删除。删除成功后通知订阅者。
func (s *RoomService) DeleteRoom(ctx context.Context, code string) (*domain.Room, error) {
	if err := domain.ValidateRoomCode(code); err != nil {
		return nil, err
	}
	room, err := s.roomRepo.Delete(ctx, code)
	if err != nil {
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	logrus.WithField("room_id", code).Info("Room deleted")
	publishRoomDeleted(ctx, s.feed, room.ID, s.now().UTC())
	return room, nil
}

// ListRooms 返回全部房间
func (s *RoomService) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rooms, err := s.roomRepo.FindAll(ctx)
	if err != nil {
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	return rooms, nil
}

// Stats 统计房间总数和已过期的房间数
func (s *RoomService) Stats(ctx context.Context) (*RoomStats, error) {
	cutoff := s.now().UTC().Add(-s.ttl)
	total, err := s.roomRepo.Count(ctx)
	if err != nil {
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	expired, err := s.roomRepo.CountCreatedBefore(ctx, cutoff)
	if err != nil {
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	return &RoomStats{Total: total, Expired: expired, Cutoff: cutoff, TTL: s.ttl.String()}, nil
}

// IsExpired 判断房间是否已过期，只做判断不做删除
func (s *RoomService) IsExpired(room *domain.Room) bool {
	return room.IsExpired(s.now(), s.ttl)
}

// GenerateRoomCode 从 [A-Z0-9] 中均匀抽取 6 个字符
func GenerateRoomCode() (string, error) {
	max := big.NewInt(int64(len(domain.RoomCodeAlphabet)))
	b := make([]byte, domain.RoomCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random index: %w", err)
		}
		b[i] = domain.RoomCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// publishRoomDeleted 通知订阅者房间已删除，失败只记日志
func publishRoomDeleted(ctx context.Context, feed repository.ChangeFeed, roomID string, at time.Time) {
	if feed == nil {
		return
	}
	if err := feed.Publish(ctx, roomID, domain.NewRoomDeletedEvent(roomID, at)); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Warn("Failed to publish room_deleted event")
	}
}
