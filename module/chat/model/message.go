package model

import (
	"strings"
	"time"

	"EchoChat/tools/errs"
)

const (
	AttachmentJPEG = "image/jpeg"
	AttachmentPNG  = "image/png"
	AttachmentMP4  = "video/mp4"

	// MaxAttachmentSize 10MB
	MaxAttachmentSize int64 = 10 * 1024 * 1024
)

var allowedAttachmentTypes = map[string]struct{}{
	AttachmentJPEG: {},
	AttachmentPNG:  {},
	AttachmentMP4:  {},
}

// Attachment 消息附件的元数据，文件本体不在这里存
type Attachment struct {
	ID   string `json:"id" bson:"_id"`
	Name string `json:"name" bson:"name"`
	Type string `json:"type" bson:"type"`
	Size int64  `json:"size" bson:"size"`
}

func (a *Attachment) Validate() error {
	if a == nil {
		return nil
	}
	if strings.TrimSpace(a.Name) == "" {
		return errs.ErrAttachment.WrapMsg("attachment name is empty")
	}
	if _, ok := allowedAttachmentTypes[strings.ToLower(a.Type)]; !ok {
		return errs.ErrAttachment.WrapMsg("attachment type not allowed", "type", a.Type)
	}
	if a.Size <= 0 || a.Size > MaxAttachmentSize {
		return errs.ErrAttachment.WrapMsg("attachment size out of range", "size", a.Size, "max", MaxAttachmentSize)
	}
	return nil
}

// Message 创建后不可变，唯一允许的修改是补挂附件
type Message struct {
	ID             string      `json:"id" bson:"_id"`
	ConversationID string      `json:"conversationId" bson:"conversation_id"`
	SenderID       string      `json:"senderId" bson:"sender_id"`
	Text           string      `json:"message" bson:"message"`
	Attachment     *Attachment `json:"file,omitempty" bson:"file,omitempty"`
	CreatedAt      time.Time   `json:"createdAt" bson:"created_at"`
}

func (m *Message) GetTableName() string { return "message" }

// Less 渲染顺序：创建时间升序，时间相同按 id
func (m Message) Less(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

// NewMessage 写路径的入参，id 和时间由存储分配
type NewMessage struct {
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	Text           string      `json:"message"`
	Attachment     *Attachment `json:"file,omitempty"`
}

func (n *NewMessage) Validate() error {
	if n.ConversationID == "" {
		return errs.ErrArgs.WrapMsg("conversationId is empty")
	}
	if n.SenderID == "" {
		return errs.ErrArgs.WrapMsg("senderId is empty")
	}
	if strings.TrimSpace(n.Text) == "" && n.Attachment == nil {
		return errs.ErrArgs.WrapMsg("message has neither text nor attachment")
	}
	return n.Attachment.Validate()
}
