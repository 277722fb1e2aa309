// Package conversations 客户端会话列表状态
package conversations

import (
	"iter"
	"sort"
	"time"

	"EchoChat/module/chat/model"
)

// Index 会话 id -> 摘要，渲染顺序始终是最近活跃倒序。只允许单个上下文修改
type Index struct {
	byID map[string]model.ConversationSummary
}

func NewIndex() *Index {
	return &Index{byID: make(map[string]model.ConversationSummary)}
}

// LoadAll 整体替换
func (x *Index) LoadAll(list []model.ConversationSummary) {
	x.byID = make(map[string]model.ConversationSummary, len(list))
	for _, s := range list {
		if s.ID != "" {
			x.byID[s.ID] = s
		}
	}
}

// PatchLatestActivity 未知会话直接忽略，等下次全量加载。返回是否生效
func (x *Index) PatchLatestActivity(id string, at time.Time, preview model.Message) bool {
	s, ok := x.byID[id]
	if !ok {
		return false
	}
	s.UpdatedAt = at
	s.Messages = []model.Message{preview}
	x.byID[id] = s
	return true
}

// AddConversation 新会话，重复添加按 id 覆盖
func (x *Index) AddConversation(s model.ConversationSummary) {
	if s.ID == "" {
		return
	}
	x.byID[s.ID] = s
}

func (x *Index) Get(id string) (model.ConversationSummary, bool) {
	s, ok := x.byID[id]
	return s, ok
}

func (x *Index) Len() int { return len(x.byID) }

// OrderedSummaries 每次迭代重新排序，同一时间按 id
func (x *Index) OrderedSummaries() iter.Seq[model.ConversationSummary] {
	return func(yield func(model.ConversationSummary) bool) {
		list := make([]model.ConversationSummary, 0, len(x.byID))
		for _, s := range x.byID {
			list = append(list, s)
		}
		sort.Slice(list, func(i, j int) bool {
			if !list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
				return list[i].UpdatedAt.After(list[j].UpdatedAt)
			}
			return list[i].ID < list[j].ID
		})
		for _, s := range list {
			if !yield(s) {
				return
			}
		}
	}
}
