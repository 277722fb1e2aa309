package messages

import (
	"iter"
	"time"

	"EchoChat/module/chat/model"
)

// BurstGap 相邻消息间隔达到这个值就断开分组并显示时间分隔
const BurstGap = 5 * time.Minute

// Item 渲染用的一行
type Item struct {
	Message     model.Message
	NewBurst    bool // 显示头像和发送者
	ShowDivider bool
}

// Group 纯函数：首条消息、间隔 >= BurstGap 或换了发送者时开始新分组；
// 分隔线只看时间
func Group(seq iter.Seq[model.Message]) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		var prev *model.Message
		for m := range seq {
			it := Item{Message: m, NewBurst: true, ShowDivider: true}
			if prev != nil {
				gap := m.CreatedAt.Sub(prev.CreatedAt).Abs()
				it.ShowDivider = gap >= BurstGap
				it.NewBurst = it.ShowDivider || m.SenderID != prev.SenderID
			}
			if !yield(it) {
				return
			}
			cur := m
			prev = &cur
		}
	}
}
