package util

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// CacheConfig 用于配置LRU缓存的行为。
type CacheConfig struct {
	// Capacity 是缓存的最大元素数量。如果为0，则不限制数量。
	Capacity int
	// MaxWeight 是缓存中所有元素的最大权重总和。如果为0，则不限制权重。
	MaxWeight int
	// TTL 是元素的存活时间。如果为0，则元素永不过期。
	TTL time.Duration
	// Now 用于测试时注入时钟，默认 time.Now。
	Now func() time.Time
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	weight     int
	expiration time.Time
}

// LRUCache 是一个支持泛型、可配置且线程安全的LRU缓存。
// 过期元素在访问时被动淘汰。
type LRUCache[K comparable, V any] struct {
	config        CacheConfig
	ll            *list.List
	cache         map[K]*list.Element
	currentWeight int
	lock          sync.Mutex
}

// NewWithConfig 使用指定的配置创建一个LRU缓存实例。
func NewWithConfig[K comparable, V any](config CacheConfig) (*LRUCache[K, V], error) {
	if config.Capacity <= 0 && config.MaxWeight <= 0 {
		return nil, fmt.Errorf("必须设置 Capacity 或 MaxWeight 中的至少一个")
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &LRUCache[K, V]{
		config: config,
		ll:     list.New(),
		cache:  make(map[K]*list.Element),
	}, nil
}

// Get 方法根据键获取一个值，并将其标记为最近使用。
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var zero V
	element, ok := c.cache[key]
	if !ok {
		return zero, false
	}
	e := element.Value.(*entry[K, V])
	if c.expired(e) {
		c.removeElement(element)
		return zero, false
	}
	c.ll.MoveToFront(element)
	return e.value, true
}

// Put 以权重 1 写入一个键值对。
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.PutWeighted(key, value, 1)
}

// PutWeighted 向缓存中添加或更新一个键值对，并指定其权重。
// 一个大的新元素可能导致淘汰多个旧元素。
func (c *LRUCache[K, V]) PutWeighted(key K, value V, weight int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var expiration time.Time
	if c.config.TTL > 0 {
		expiration = c.config.Now().Add(c.config.TTL)
	}

	if element, ok := c.cache[key]; ok {
		e := element.Value.(*entry[K, V])
		c.currentWeight += weight - e.weight
		e.weight = weight
		e.value = value
		e.expiration = expiration
		c.ll.MoveToFront(element)
	} else {
		element := c.ll.PushFront(&entry[K, V]{
			key:        key,
			value:      value,
			weight:     weight,
			expiration: expiration,
		})
		c.cache[key] = element
		c.currentWeight += weight
	}

	for c.isOverCapacity() {
		c.removeElement(c.ll.Back())
	}
}

// Delete 删除一个键，返回它是否存在。
func (c *LRUCache[K, V]) Delete(key K) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	element, ok := c.cache[key]
	if !ok {
		return false
	}
	c.removeElement(element)
	return true
}

// Len 返回当前缓存中的条目数量（可能包含尚未被访问淘汰的过期条目）。
func (c *LRUCache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ll.Len()
}

// Weight 返回当前缓存中所有元素的总权重。
func (c *LRUCache[K, V]) Weight() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.currentWeight
}

// 以下方法假设已持有锁。

func (c *LRUCache[K, V]) expired(e *entry[K, V]) bool {
	return c.config.TTL > 0 && c.config.Now().After(e.expiration)
}

func (c *LRUCache[K, V]) isOverCapacity() bool {
	if c.ll.Len() == 0 {
		return false
	}
	if c.config.Capacity > 0 && c.ll.Len() > c.config.Capacity {
		return true
	}
	return c.config.MaxWeight > 0 && c.currentWeight > c.config.MaxWeight
}

func (c *LRUCache[K, V]) removeElement(e *list.Element) {
	c.ll.Remove(e)
	ent := e.Value.(*entry[K, V])
	delete(c.cache, ent.key)
	c.currentWeight -= ent.weight
}
