package db

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"securevault/config"
	"securevault/logs"

	"github.com/dgraph-io/badger/v2"
	lru "github.com/hashicorp/golang-lru"
)

// ErrClosed 数据库已关闭
var ErrClosed = errors.New("database is not initialized or closed")

// KV 一条待落库的写操作
type KV struct {
	Key    string
	Value  []byte
	Delete bool
}

// Manager 封装 BadgerDB 的管理器
// 所有写入通过 Commit 在单个 badger 事务里完成：要么全部落库，要么全部不落。
type Manager struct {
	Db *badger.DB
	mu sync.RWMutex

	// 读缓存：key -> []byte，只缓存存在的值
	cache *lru.Cache

	cacheHits   uint64
	cacheMisses uint64

	Logger *logs.Logger
	cfg    *config.Config
}

// NewManager 用默认配置在 path 打开数据库
func NewManager(path string) (*Manager, error) {
	cfg := config.DefaultConfig()
	cfg.Database.Path = path
	return NewManagerWithConfig(cfg)
}

// NewMemoryManager 纯内存数据库，测试使用
func NewMemoryManager() (*Manager, error) {
	return NewManagerWithConfig(config.TestConfig())
}

// NewManagerWithConfig 创建 DBManager，可选注入整份 Config
func NewManagerWithConfig(cfg *config.Config) (*Manager, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var opts badger.Options
	if cfg.Database.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// badger v2 不自动创建父目录，需要手动创建
		if err := os.MkdirAll(cfg.Database.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Database.Path)
	}
	opts = opts.WithLogger(nil).
		WithValueLogFileSize(cfg.Database.ValueLogFileSize).
		WithSyncWrites(cfg.Database.SyncWrites)

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	cache, err := lru.New(cfg.Cache.ReadCacheSize)
	if err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("failed to create read cache: %w", err)
	}

	manager := &Manager{
		Db:     bdb,
		cache:  cache,
		Logger: logs.WithComponent("DB"),
		cfg:    cfg,
	}
	manager.Logger.Debug("opened badger (in_memory=%v path=%q)", cfg.Database.InMemory, cfg.Database.Path)
	return manager, nil
}

// Get 读取键对应的值；不存在时返回 (nil, nil)。
// 读库与回填缓存在同一把读锁内完成，Commit 持写锁，
// 因此回填的值不会比并发提交的新值更旧。
func (manager *Manager) Get(key string) ([]byte, error) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	if manager.Db == nil {
		return nil, ErrClosed
	}

	if v, ok := manager.cache.Get(key); ok {
		atomic.AddUint64(&manager.cacheHits, 1)
		return cloneBytes(v.([]byte)), nil
	}
	atomic.AddUint64(&manager.cacheMisses, 1)

	var value []byte
	err := manager.Db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if value == nil {
		// 空值与"不存在"区分开
		value = []byte{}
	}
	manager.cache.Add(key, cloneBytes(value))
	return value, nil
}

// Has 判断 key 是否存在
func (manager *Manager) Has(key string) (bool, error) {
	v, err := manager.Get(key)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// Scan 扫描指定前缀的所有键值对
func (manager *Manager) Scan(prefix string) (map[string][]byte, error) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	if manager.Db == nil {
		return nil, ErrClosed
	}

	result := make(map[string][]byte)
	err := manager.Db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if v == nil {
				v = []byte{}
			}
			result[string(k)] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Commit 在一个 badger 事务里原子地应用整组写操作。
// 写集超过单事务上限时直接失败，不拆批。
// 写锁覆盖落库和缓存失效，期间没有 Get 能回填旧值。
func (manager *Manager) Commit(ops []KV) error {
	if len(ops) == 0 {
		return nil
	}
	manager.mu.Lock()
	defer manager.mu.Unlock()
	if manager.Db == nil {
		return ErrClosed
	}

	err := manager.Db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			if op.Key == "" {
				return errors.New("empty key in write set")
			}
			var err error
			if op.Delete {
				err = txn.Delete([]byte(op.Key))
			} else {
				err = txn.Set([]byte(op.Key), cloneBytes(op.Value))
			}
			if err != nil {
				return fmt.Errorf("stage %s: %w", op.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		manager.Logger.Error("commit of %d ops failed: %v", len(ops), err)
		return err
	}

	for _, op := range ops {
		manager.cache.Remove(op.Key)
	}
	manager.Logger.Trace("committed %d ops", len(ops))
	return nil
}

// CacheStats 返回读缓存命中/未命中次数
func (manager *Manager) CacheStats() (hits, misses uint64) {
	return atomic.LoadUint64(&manager.cacheHits), atomic.LoadUint64(&manager.cacheMisses)
}

// Close 关闭数据库，可重复调用
func (manager *Manager) Close() {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	if manager.Db != nil {
		if err := manager.Db.Close(); err != nil {
			manager.Logger.Error("close failed: %v", err)
		}
		manager.Db = nil
	}
	manager.cache.Purge()
}

// DumpPrefix 调试用：按前缀列出 key（不含值）
func (manager *Manager) DumpPrefix(prefix string) ([]string, error) {
	kv, err := manager.Scan(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(kv))
	for k := range kv {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
