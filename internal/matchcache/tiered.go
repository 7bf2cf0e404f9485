package matchcache

import (
	"geoenrich/internal/metrics"
)

// tier：单层缓存
type tier interface {
	Get(k string) ([]int, bool)
	Set(k string, ids []int)
}

// 文档注释：两级缓存
// 背景：先查进程内 LRU，未命中再查 Redis；Redis 命中回填 LRU。写入同时落两层。
// 约束：任一层可缺省；两层都缺省时 New 返回 nil，调用方据此不挂接缓存。
type Tiered struct {
	local  *LRU
	remote *Redis
}

func New(local *LRU, remote *Redis) *Tiered {
	if local == nil && remote == nil {
		return nil
	}
	return &Tiered{local: local, remote: remote}
}

func (t *Tiered) Get(k string) ([]int, bool) {
	if t.local != nil {
		if ids, ok := lookup("lru", t.local, k); ok {
			return ids, true
		}
	}
	if t.remote != nil {
		if ids, ok := lookup("redis", t.remote, k); ok {
			if t.local != nil {
				t.local.Set(k, ids)
			}
			return ids, true
		}
	}
	return nil, false
}

func (t *Tiered) Set(k string, ids []int) {
	if t.local != nil {
		t.local.Set(k, ids)
	}
	if t.remote != nil {
		t.remote.Set(k, ids)
	}
}

func lookup(name string, c tier, k string) ([]int, bool) {
	ids, ok := c.Get(k)
	result := "miss"
	if ok {
		result = "hit"
	}
	metrics.CacheLookupsTotal.WithLabelValues(name, result).Inc()
	return ids, ok
}
