// Package messages 客户端单个打开会话的消息状态
package messages

import (
	"iter"
	"sort"

	"EchoChat/module/chat/model"
)

// Store 打开会话的消息集合，按 id 去重。只允许单个上下文修改
type Store struct {
	byID map[string]model.Message

	// 排序缓存，写入后失效
	sorted []model.Message
	dirty  bool
}

func NewStore() *Store {
	return &Store{byID: make(map[string]model.Message)}
}

// LoadHistory 合并一次历史拉取。快照里没有的已有消息保留（它们比快照新）；
// 两边都有的 id，拉取到的副本不比本地旧才覆盖
func (s *Store) LoadHistory(msgs []model.Message) {
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if cur, ok := s.byID[m.ID]; ok && m.CreatedAt.Before(cur.CreatedAt) {
			continue
		}
		s.byID[m.ID] = m
	}
	s.dirty = true
}

// ApplyIncoming 插入或覆盖，重复投递幂等
func (s *Store) ApplyIncoming(m model.Message) {
	if m.ID == "" {
		return
	}
	s.byID[m.ID] = m
	s.dirty = true
}

func (s *Store) Get(id string) (model.Message, bool) {
	m, ok := s.byID[id]
	return m, ok
}

func (s *Store) Len() int { return len(s.byID) }

// Reset 切换会话前调用
func (s *Store) Reset() {
	clear(s.byID)
	s.sorted = nil
	s.dirty = false
}

// Sequence 按创建时间升序（同时间按 id），每次迭代都反映最新状态
func (s *Store) Sequence() iter.Seq[model.Message] {
	return func(yield func(model.Message) bool) {
		for _, m := range s.view() {
			if !yield(m) {
				return
			}
		}
	}
}

// Messages Sequence 的切片形式
func (s *Store) Messages() []model.Message {
	v := s.view()
	out := make([]model.Message, len(v))
	copy(out, v)
	return out
}

func (s *Store) view() []model.Message {
	if !s.dirty && s.sorted != nil {
		return s.sorted
	}
	out := make([]model.Message, 0, len(s.byID))
	for _, m := range s.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	s.sorted = out
	s.dirty = false
	return out
}
