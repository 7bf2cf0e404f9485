// 包 matchcache：扩展搜索结果缓存（进程内 LRU + 可选 Redis）
package matchcache

import (
	"container/list"
	"sync"
	"time"
)

// 文档注释：本地 LRU 缓存（坐标 + 参数摘要 + 图层指纹为键）
// 背景：输入文件中重复坐标较常见，命中后跳过整轮扩展搜索；TTL 可调。
// 约束：只保存要素 ID，值由调用方按当前图层还原；ttl<=0 表示不过期。
type LRU struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[string]*list.Element
}

type entry struct {
	k   string
	ids []int
	exp time.Time
}

func NewLRU(capacity int, ttl time.Duration) *LRU {
	return &LRU{cap: capacity, ttl: ttl, lst: list.New(), dict: make(map[string]*list.Element)}
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

func (c *LRU) Get(k string) ([]int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		it := e.Value.(entry)
		if c.ttl <= 0 || time.Now().Before(it.exp) {
			c.lst.MoveToFront(e)
			return it.ids, true
		}
		c.lst.Remove(e)
		delete(c.dict, k)
	}
	return nil, false
}

func (c *LRU) Set(k string, ids []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := entry{k: k, ids: ids, exp: time.Now().Add(c.ttl)}
	if e, ok := c.dict[k]; ok {
		e.Value = it
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(it)
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		if back == nil {
			break
		}
		delete(c.dict, back.Value.(entry).k)
		c.lst.Remove(back)
	}
}
