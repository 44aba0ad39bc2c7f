// Package apiclient 是 HTTP/WebSocket API 的客户端。
// RoomClient 同时实现 syncengine.Store 和 syncengine.Feed，让同步引擎可以跑在远程服务之上。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"text-sync/internal/domain"
	"text-sync/internal/dto"
	"text-sync/internal/service"
)

// ErrUnauthorized 令牌缺失、无效、过期或不属于该房间
var ErrUnauthorized = errors.New("unauthorized")

// APIError 是服务端返回的非 2xx 响应。Unwrap 返回对应的错误分类。
type APIError struct {
	Status  int
	Code    string
	Message string
	kind    error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.kind }

// Client 访问不需要房间令牌的接口
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	adminToken string
}

// Option 配置 Client
type Option func(*Client)

// WithHTTPClient 替换默认的 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAdminToken 设置运维接口使用的令牌
func WithAdminToken(token string) Option {
	return func(c *Client) { c.adminToken = token }
}

// New 创建 Client，baseURL 形如 http://localhost:8080
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateRoom 创建房间，返回房间、初始消息和访问令牌
func (c *Client) CreateRoom(ctx context.Context, name string) (*service.CreateRoomResult, error) {
	var out service.CreateRoomResult
	if err := c.do(ctx, http.MethodPost, "/api/rooms", "", dto.CreateRoomRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JoinRoom 通过房间码加入。房间过期时 Expired 为 true 且没有令牌。
func (c *Client) JoinRoom(ctx context.Context, code string) (*service.JoinRoomResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := domain.ValidateRoomCode(code); err != nil {
		return nil, err
	}
	var out service.JoinRoomResult
	if err := c.do(ctx, http.MethodPost, "/api/rooms/join", "", dto.JoinRoomRequest{Code: code}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sweep 触发一次过期清理并等待结果
func (c *Client) Sweep(ctx context.Context) (*service.SweepResult, error) {
	var out service.SweepResult
	if err := c.doAdmin(ctx, http.MethodPost, "/api/admin/sweep", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EnqueueSweep 把清理任务放入队列，由 worker 执行
func (c *Client) EnqueueSweep(ctx context.Context) (*dto.TaskResponse, error) {
	var out dto.TaskResponse
	if err := c.doAdmin(ctx, http.MethodPost, "/api/admin/sweep?async=true", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats 返回房间统计
func (c *Client) Stats(ctx context.Context) (*service.RoomStats, error) {
	var out service.RoomStats
	if err := c.doAdmin(ctx, http.MethodGet, "/api/admin/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Room 返回绑定到指定房间和令牌的客户端
func (c *Client) Room(roomID, token string) *RoomClient {
	return &RoomClient{client: c, roomID: roomID, token: token}
}

func (c *Client) doAdmin(ctx context.Context, method, path string, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Admin-Token", c.adminToken)
	return c.send(req, out)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) send(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// 网络错误按存储不可用处理，由调用方决定是否重试
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError 把错误响应映射回错误分类，优先使用响应里的错误码
func decodeError(resp *http.Response) error {
	var body dto.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)
	apiErr := &APIError{Status: resp.StatusCode, Code: body.Code, Message: body.Error}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if kind := domain.ErrorForCode(body.Code); kind != nil {
		apiErr.kind = kind
		return apiErr
	}
	switch resp.StatusCode {
	case http.StatusBadRequest:
		apiErr.kind = domain.ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		apiErr.kind = ErrUnauthorized
	case http.StatusNotFound, http.StatusGone:
		apiErr.kind = domain.ErrNotFound
	case http.StatusConflict:
		apiErr.kind = domain.ErrConflict
	case http.StatusServiceUnavailable:
		apiErr.kind = domain.ErrStoreUnavailable
	}
	return apiErr
}

// BaseURL 返回服务地址
func (c *Client) BaseURL() string { return c.baseURL.String() }
