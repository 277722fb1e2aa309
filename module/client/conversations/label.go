package conversations

import (
	"strconv"
	"strings"
	"time"

	"EchoChat/module/chat/model"
)

// RelativeShort 列表里的相对时间：1m 5m 3h 2d 1w 4mo 2y
func RelativeShort(t, now time.Time) string {
	d := now.Sub(t)
	minutes := int(d / time.Minute)
	hours := int(d / time.Hour)
	days := hours / 24
	weeks := days / 7
	months := monthsBetween(t, now)

	switch {
	case minutes < 1:
		return "1m"
	case minutes < 60:
		return strconv.Itoa(minutes) + "m"
	case hours < 24:
		return strconv.Itoa(hours) + "h"
	case days < 7:
		return strconv.Itoa(days) + "d"
	case weeks < 4:
		return strconv.Itoa(weeks) + "w"
	case months < 12:
		return strconv.Itoa(months) + "mo"
	default:
		return strconv.Itoa(months/12) + "y"
	}
}

// monthsBetween 完整日历月数
func monthsBetween(from, to time.Time) int {
	from = from.In(to.Location())
	n := (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
	if n > 0 && from.AddDate(0, n, 0).After(to) {
		n--
	}
	if n < 0 {
		return 0
	}
	return n
}

// Preview 列表预览行，"Alice: hi"。没有消息返回空
func Preview(s model.ConversationSummary) string {
	m := s.Latest()
	if m == nil {
		return ""
	}
	text := m.Text
	if text == "" && m.Attachment != nil {
		text = m.Attachment.Name
	}
	name := SenderFirstName(s, m.SenderID)
	if name == "" {
		return text
	}
	return name + ": " + text
}

// SenderFirstName 发送者显示名的第一个词
func SenderFirstName(s model.ConversationSummary, senderID string) string {
	for _, mem := range s.Members {
		if mem.MemberID != senderID {
			continue
		}
		if f := strings.Fields(mem.User.Name); len(f) > 0 {
			return f[0]
		}
		return ""
	}
	return ""
}
