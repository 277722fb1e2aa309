package conversations

import (
	"iter"
	"strings"
	"unicode"

	"EchoChat/module/chat/model"
)

// Normalize 去掉非字母数字并转小写
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Matches 名称或任一成员名包含查询串。空查询全部匹配
func Matches(s model.ConversationSummary, query string) bool {
	q := Normalize(query)
	if q == "" {
		return true
	}
	if strings.Contains(Normalize(s.Name), q) {
		return true
	}
	for _, m := range s.Members {
		if strings.Contains(Normalize(m.User.Name), q) {
			return true
		}
	}
	return false
}

// Filter 在有序序列上过滤，不改变顺序
func Filter(seq iter.Seq[model.ConversationSummary], query string) iter.Seq[model.ConversationSummary] {
	return func(yield func(model.ConversationSummary) bool) {
		for s := range seq {
			if Matches(s, query) && !yield(s) {
				return
			}
		}
	}
}
