package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"LiteChat/models"
)

// Client 封装聊天后端的 REST 接口，用于快照拉取与周期轮询。
// websocket 推送负责实时性，这里的接口负责权威数据
type Client struct {
	baseURL string
	http    *http.Client
	tokenFn func() string // 每次请求时取当前令牌
}

func NewClient(baseURL string, tokenFn func() string) *Client {
	if tokenFn == nil {
		tokenFn = func() string { return "" }
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		tokenFn: tokenFn,
	}
}

// 后端统一响应信封
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// 列表接口的分页包装
type listData struct {
	List  json.RawMessage `json:"list"`
	Total int             `json:"total"`
}

// MySessions 拉取本端（客服或用户）的会话列表
func (c *Client) MySessions(ctx context.Context) ([]models.Session, error) {
	var out []models.Session
	if err := c.getList(ctx, "/api/v1/chat/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WaitingSessions 拉取等待接入的会话列表（客服侧）
func (c *Client) WaitingSessions(ctx context.Context) ([]models.Session, error) {
	var out []models.Session
	if err := c.getList(ctx, "/api/v1/customer-service/waiting-sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OnlineAgents 拉取在线客服名单
func (c *Client) OnlineAgents(ctx context.Context) ([]models.Agent, error) {
	var out []models.Agent
	if err := c.getList(ctx, "/api/v1/customer-service/online", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionMessages 分页拉取会话历史消息
func (c *Client) SessionMessages(ctx context.Context, sessionID string, page, pageSize int, onlyToday bool) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	if onlyToday {
		q.Set("onlyToday", "true")
	}
	path := "/api/v1/chat/sessions/" + url.PathEscape(models.NormalizeSessionID(sessionID)) + "/messages"
	var out []models.Message
	if err := c.getList(ctx, path, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Statistics 拉取客服工作台统计数据
func (c *Client) Statistics(ctx context.Context) (models.Statistics, error) {
	var out models.Statistics
	data, err := c.do(ctx, http.MethodGet, "/api/v1/chat/statistics", nil)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode statistics: %w", err)
	}
	return out, nil
}

// EndSession 通过 REST 结束会话（websocket 断开时的兜底通道）
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	path := "/api/v1/chat/sessions/" + url.PathEscape(models.NormalizeSessionID(sessionID)) + "/end"
	_, err := c.do(ctx, http.MethodPost, path, nil)
	return err
}

// getList 处理 {list, total} 包装；后端偶尔直接返回数组，两种都接受
func (c *Client) getList(ctx context.Context, path string, q url.Values, out interface{}) error {
	data, err := c.do(ctx, http.MethodGet, path, q)
	if err != nil {
		return err
	}
	trimmed := strings.TrimSpace(string(data))
	// data 缺失或为 null 时按空列表处理
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(data, out)
	}
	var ld listData
	if err := json.Unmarshal(data, &ld); err != nil {
		return fmt.Errorf("decode list wrapper: %w", err)
	}
	if len(ld.List) == 0 {
		return nil
	}
	return json.Unmarshal(ld.List, out)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	if token := c.tokenFn(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	var env apiResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if env.Code != 200 && env.Code != 0 {
		return nil, fmt.Errorf("%s %s: code %d: %s", method, path, env.Code, env.Message)
	}
	return env.Data, nil
}
