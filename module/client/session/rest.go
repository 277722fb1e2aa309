package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"EchoChat/module/chat/model"
	"EchoChat/service/storage"
	"EchoChat/tools/errs"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// API 会话用到的持久化读写口
type API interface {
	ListConversations(ctx context.Context) ([]model.ConversationSummary, error)
	ListMessages(ctx context.Context, convID string) ([]model.Message, error)
	CreateMessage(ctx context.Context, convID, text string, att *model.Attachment) (*model.Message, error)
	CreateConversation(ctx context.Context, n model.NewConversation) (*model.ConversationSummary, error)
}

// RESTClient /api 的 HTTP 客户端
type RESTClient struct {
	rc *resty.Client
}

var _ API = (*RESTClient)(nil)

// NewRESTClient baseURL 形如 http://127.0.0.1:8080
func NewRESTClient(baseURL, token string) *RESTClient {
	rc := resty.New().
		SetBaseURL(baseURL+"/api").
		SetAuthToken(token).
		SetTimeout(15*time.Second).
		SetHeader("Content-Type", "application/json")
	rc.JSONMarshal = json.Marshal
	rc.JSONUnmarshal = json.Unmarshal
	return &RESTClient{rc: rc}
}

func (c *RESTClient) ListUsers(ctx context.Context) ([]model.User, error) {
	var out []model.User
	if err := c.do(ctx, http.MethodGet, "/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RESTClient) ListConversations(ctx context.Context) ([]model.ConversationSummary, error) {
	var out []model.ConversationSummary
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RESTClient) ListMessages(ctx context.Context, convID string) ([]model.Message, error) {
	var out []model.Message
	if err := c.do(ctx, http.MethodGet, "/messages/"+convID, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RESTClient) CreateMessage(ctx context.Context, convID, text string, att *model.Attachment) (*model.Message, error) {
	body := map[string]any{"message": text}
	if att != nil {
		body["attachment"] = att
	}
	out := &model.Message{}
	if err := c.do(ctx, http.MethodPost, "/messages/"+convID, body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RESTClient) CreateConversation(ctx context.Context, n model.NewConversation) (*model.ConversationSummary, error) {
	out := &model.ConversationSummary{}
	if err := c.do(ctx, http.MethodPost, "/conversations", n, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RESTClient) Presence(ctx context.Context, userID string) (storage.PresenceInfo, error) {
	var out storage.PresenceInfo
	if err := c.do(ctx, http.MethodGet, "/presence/"+userID, nil, &out); err != nil {
		return out, err
	}
	return out, nil
}

// do 非 2xx 时优先还原服务端的 CodeError
func (c *RESTClient) do(ctx context.Context, method, path string, body, result any) error {
	ce := &errs.CodeError{}
	req := c.rc.R().SetContext(ctx).SetResult(result).SetError(ce)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return errs.WrapMsg(err, "http request", "method", method, "path", path)
	}
	if resp.IsError() {
		if ce.Code != 0 {
			return ce
		}
		return errs.New(fmt.Sprintf("http %d", resp.StatusCode()), "method", method, "path", path)
	}
	return nil
}
