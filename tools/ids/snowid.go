package ids

import (
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits = 10
	seqBits  = 12
	seqMask  = 1<<seqBits - 1
	maxNode  = 1<<nodeBits - 1
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

// Generator hands out 63-bit snowflake ids: 41 bits of milliseconds since
// epoch, 10 bits of node, 12 bits of sequence.
type Generator struct {
	mu     sync.Mutex
	node   int64
	seq    int64
	lastMS int64
	now    func() time.Time
}

func NewGenerator(node int64) *Generator {
	if node < 0 || node > maxNode {
		node = 1
	}
	return &Generator{node: node, now: time.Now}
}

func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms < g.lastMS {
		// 时钟回拨：沿用上一毫秒继续递增
		ms = g.lastMS
	}
	if ms == g.lastMS {
		g.seq = (g.seq + 1) & seqMask
		if g.seq == 0 {
			// 序列溢出，等到下一毫秒
			for ms <= g.lastMS {
				time.Sleep(100 * time.Microsecond)
				ms = g.now().UnixMilli()
			}
		}
	} else {
		g.seq = 0
	}
	g.lastMS = ms

	return (ms-epoch)<<(nodeBits+seqBits) | g.node<<seqBits | g.seq
}

func (g *Generator) NextString() string {
	return strconv.FormatInt(g.Next(), 10)
}

var (
	defaultGen *Generator
	once       sync.Once
)

func def() *Generator {
	once.Do(func() { defaultGen = NewGenerator(1) })
	return defaultGen
}

// SetNodeID 设置默认生成器节点号（0~1023），在 main 初始化时调用
func SetNodeID(node int64) {
	g := def()
	g.mu.Lock()
	defer g.mu.Unlock()
	if node < 0 || node > maxNode {
		node = 1
	}
	g.node = node
}

func Generate() int64 { return def().Next() }

func GenerateString() string { return def().NextString() }
