package chat

import "sort"

// ConnectionRegistry 用户 <-> 在线连接集合。
// 所有操作都是全函数：未知连接/离线用户返回空，不报错
type ConnectionRegistry interface {
	Register(connID, userID string)
	Unregister(connID string)
	ConnectionsFor(userIDs []string) []string
}

// Registry 单进程实现，只允许事件循环访问，不加锁。
// 用户键只在至少有一条连接时存在
type Registry struct {
	byUser map[string]map[string]struct{} // user -> conn set
	byConn map[string]string              // conn -> user
}

var _ ConnectionRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]struct{}),
		byConn: make(map[string]string),
	}
}

// Register 同一对重复调用幂等；连接换绑用户时从旧用户集合中移除
func (r *Registry) Register(connID, userID string) {
	if connID == "" || userID == "" {
		return
	}
	if old, ok := r.byConn[connID]; ok {
		if old == userID {
			return
		}
		r.detach(connID, old)
	}
	set := r.byUser[userID]
	if set == nil {
		set = make(map[string]struct{})
		r.byUser[userID] = set
	}
	set[connID] = struct{}{}
	r.byConn[connID] = userID
}

func (r *Registry) Unregister(connID string) {
	if user, ok := r.byConn[connID]; ok {
		r.detach(connID, user)
	}
}

func (r *Registry) detach(connID, userID string) {
	delete(r.byConn, connID)
	if set := r.byUser[userID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// ConnectionsFor 去重、排序后的连接ID
func (r *Registry) ConnectionsFor(userIDs []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, u := range userIDs {
		for c := range r.byUser[u] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// UserOf 连接所属用户
func (r *Registry) UserOf(connID string) (string, bool) {
	u, ok := r.byConn[connID]
	return u, ok
}

func (r *Registry) Count(userID string) int { return len(r.byUser[userID]) }

func (r *Registry) Users() int { return len(r.byUser) }

func (r *Registry) Connections() int { return len(r.byConn) }

// Snapshot user -> 连接数
func (r *Registry) Snapshot() map[string]int {
	out := make(map[string]int, len(r.byUser))
	for u, set := range r.byUser {
		out[u] = len(set)
	}
	return out
}
