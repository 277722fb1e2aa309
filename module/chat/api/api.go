// Package api 会话/消息/用户的 REST 读写路径
package api

import (
	"net/http"

	"EchoChat/data/database"
	"EchoChat/logger"
	"EchoChat/middleware"
	midsec "EchoChat/middleware/security"
	"EchoChat/module/chat/model"
	"EchoChat/service/storage"
	"EchoChat/tools/errs"

	"github.com/gin-gonic/gin"
)

type Server struct {
	Store    database.Store
	Presence storage.Presence
}

func New(store database.Store, presence storage.Presence) *Server {
	return &Server{Store: store, Presence: presence}
}

// Mount 挂到 /api 下
func (s *Server) Mount(rt *middleware.Router) {
	auth := middleware.RouteOpt{IsAuth: true}
	rt.GET("/users", handle(s.ListUsers), middleware.RouteOpt{})
	rt.GET("/conversations", handle(s.ListConversations), auth)
	rt.POST("/conversations", handle(s.CreateConversation), auth)
	rt.GET("/messages/:convoId", handle(s.ListMessages), auth)
	rt.POST("/messages/:convoId", handle(s.CreateMessage), auth)
	rt.POST("/messages/:convoId/:messageId/file", handle(s.SetAttachment), auth)
	rt.GET("/presence/:userId", handle(s.GetPresence), auth)
}

func (s *Server) ListUsers(c *gin.Context) error {
	users, err := s.Store.ListUsers(c.Request.Context())
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, users)
	return nil
}

// ListConversations 当前用户参与的会话，最近活跃在前
func (s *Server) ListConversations(c *gin.Context) error {
	list, err := s.Store.ListConversations(c.Request.Context(), midsec.UserID(c))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, list)
	return nil
}

func (s *Server) CreateConversation(c *gin.Context) error {
	var req model.NewConversation
	if err := c.ShouldBindJSON(&req); err != nil {
		return errs.ErrArgs.WrapMsg("bad body", "err", err)
	}
	req.CreatorID = midsec.UserID(c)
	sum, err := s.Store.CreateConversation(c.Request.Context(), req)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, sum)
	return nil
}

func (s *Server) ListMessages(c *gin.Context) error {
	convID := c.Param("convoId")
	if err := s.requireMember(c, convID); err != nil {
		return err
	}
	msgs, err := s.Store.ListMessages(c.Request.Context(), convID)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, msgs)
	return nil
}

type createMessageReq struct {
	Message    string            `json:"message"`
	Attachment *model.Attachment `json:"attachment,omitempty"`
}

// CreateMessage 落库并返回带 id/时间的消息；扇出由客户端随后的 message 帧触发
func (s *Server) CreateMessage(c *gin.Context) error {
	var req createMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return errs.ErrArgs.WrapMsg("bad body", "err", err)
	}
	msg, err := s.Store.CreateMessage(c.Request.Context(), model.NewMessage{
		ConversationID: c.Param("convoId"),
		SenderID:       midsec.UserID(c),
		Text:           req.Message,
		Attachment:     req.Attachment,
	})
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, msg)
	return nil
}

// SetAttachment 只有发送者能给自己的消息补挂附件
func (s *Server) SetAttachment(c *gin.Context) error {
	convID, msgID := c.Param("convoId"), c.Param("messageId")
	if err := s.requireMember(c, convID); err != nil {
		return err
	}
	var att model.Attachment
	if err := c.ShouldBindJSON(&att); err != nil {
		return errs.ErrArgs.WrapMsg("bad body", "err", err)
	}
	msgs, err := s.Store.ListMessages(c.Request.Context(), convID)
	if err != nil {
		return err
	}
	owned := false
	for _, m := range msgs {
		if m.ID == msgID {
			owned = m.SenderID == midsec.UserID(c)
			break
		}
	}
	if !owned {
		return errs.ErrNoPermission.WrapMsg("not your message", "messageId", msgID)
	}
	msg, err := s.Store.SetAttachment(c.Request.Context(), msgID, att)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, msg)
	return nil
}

func (s *Server) GetPresence(c *gin.Context) error {
	userID := c.Param("userId")
	if s.Presence == nil {
		c.JSON(http.StatusOK, storage.PresenceInfo{UserID: userID})
		return nil
	}
	info, err := s.Presence.Lookup(c.Request.Context(), userID)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, info)
	return nil
}

func (s *Server) requireMember(c *gin.Context, convID string) error {
	ok, err := s.Store.IsMember(c.Request.Context(), convID, midsec.UserID(c))
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrNoPermission.WrapMsg("not a member", "conversationId", convID)
	}
	return nil
}

// handle 把返回 error 的处理函数转成 gin.HandlerFunc，CodeError 按码映射 HTTP 状态
func handle(fn func(*gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := fn(c)
		if err == nil {
			return
		}
		ce, ok := errs.AsCode(err)
		if !ok {
			logger.Errorf("[API] %s %s err=%+v", c.Request.Method, c.FullPath(), err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, errs.ErrInternalServer)
			return
		}
		status := httpStatus(ce.Code)
		if status >= http.StatusInternalServerError {
			logger.Errorf("[API] %s %s err=%+v", c.Request.Method, c.FullPath(), err)
		} else {
			logger.Debugf("[API] %s %s rejected: %s", c.Request.Method, c.FullPath(), ce.Error())
		}
		c.AbortWithStatusJSON(status, ce)
	}
}

func httpStatus(code int) int {
	switch code {
	case errs.ArgsError, errs.AttachmentError:
		return http.StatusBadRequest
	case errs.NoPermissionError:
		return http.StatusForbidden
	case errs.RecordNotFoundError:
		return http.StatusNotFound
	case errs.TokenInvalidError, errs.TokenExpiredError, errs.TokenMissingError:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
