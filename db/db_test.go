package db

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"securevault/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mgr, err := NewMemoryManager()
	require.NoError(t, err)
	t.Cleanup(mgr.Close)
	return mgr
}

func TestGetMissingKey(t *testing.T) {
	mgr := newTestManager(t)

	v, err := mgr.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, v)

	ok, err := mgr.Has("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCommitAndGet(t *testing.T) {
	mgr := newTestManager(t)

	require.NoError(t, mgr.Commit([]KV{
		{Key: "v1_account_a", Value: []byte("alpha")},
		{Key: "v1_account_b", Value: []byte("beta")},
		{Key: "v1_receipt_x", Value: []byte{}},
	}))

	v, err := mgr.Get("v1_account_a")
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), v)

	// 空值也算存在
	ok, err := mgr.Has("v1_receipt_x")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mgr.Commit([]KV{{Key: "v1_account_a", Delete: true}}))
	v, err = mgr.Get("v1_account_a")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCommitIsAllOrNothing(t *testing.T) {
	mgr := newTestManager(t)
	require.NoError(t, mgr.Commit([]KV{{Key: "k1", Value: []byte("old")}}))

	// 第二条 key 为空，整个事务失败，第一条也不能落库
	err := mgr.Commit([]KV{
		{Key: "k1", Value: []byte("new")},
		{Key: "", Value: []byte("bad")},
	})
	require.Error(t, err)

	v, err := mgr.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), v)
}

func TestReadCacheInvalidatedOnCommit(t *testing.T) {
	mgr := newTestManager(t)
	require.NoError(t, mgr.Commit([]KV{{Key: "k", Value: []byte("1")}}))

	_, err := mgr.Get("k")
	require.NoError(t, err)
	_, err = mgr.Get("k")
	require.NoError(t, err)
	hits, misses := mgr.CacheStats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)

	require.NoError(t, mgr.Commit([]KV{{Key: "k", Value: []byte("2")}}))
	v, err := mgr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)

	// 调用方修改返回值不影响缓存
	v[0] = 'x'
	v, err = mgr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func TestConcurrentReadsNeverCacheStaleValue(t *testing.T) {
	mgr := newTestManager(t)
	const rounds = 2000
	require.NoError(t, mgr.Commit([]KV{{Key: "counter", Value: []byte("0")}}))

	var done int32
	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for atomic.LoadInt32(&done) == 0 {
				_, _ = mgr.Get("counter")
			}
		}()
	}

	for i := 1; i <= rounds; i++ {
		require.NoError(t, mgr.Commit([]KV{{Key: "counter", Value: []byte(strconv.Itoa(i))}}))
		// 每次提交返回后，读到的必须是刚写入的值
		v, err := mgr.Get("counter")
		require.NoError(t, err)
		require.Equal(t, strconv.Itoa(i), string(v), "round %d", i)
	}
	atomic.StoreInt32(&done, 1)
	wg.Wait()
}

func TestScanPrefix(t *testing.T) {
	mgr := newTestManager(t)
	require.NoError(t, mgr.Commit([]KV{
		{Key: "v1_owner_P_a", Value: []byte{}},
		{Key: "v1_owner_P_b", Value: []byte{}},
		{Key: "v1_owner_Q_c", Value: []byte{}},
	}))

	kv, err := mgr.Scan("v1_owner_P_")
	require.NoError(t, err)
	assert.Len(t, kv, 2)
	assert.Contains(t, kv, "v1_owner_P_a")
	assert.Contains(t, kv, "v1_owner_P_b")

	keys, err := mgr.DumpPrefix("v1_owner_")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1_owner_P_a", "v1_owner_P_b", "v1_owner_Q_c"}, keys)
}

func TestClosedManager(t *testing.T) {
	mgr, err := NewMemoryManager()
	require.NoError(t, err)
	mgr.Close()
	mgr.Close()

	_, err = mgr.Get("k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, mgr.Commit([]KV{{Key: "k", Value: []byte("v")}}), ErrClosed)
}

func TestPersistsAcrossReopen(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Path = t.TempDir()
	cfg.Database.SyncWrites = false

	mgr, err := NewManagerWithConfig(cfg)
	require.NoError(t, err)
	require.NoError(t, mgr.Commit([]KV{{Key: "v1_account_z", Value: []byte("zeta")}}))
	mgr.Close()

	mgr, err = NewManagerWithConfig(cfg)
	require.NoError(t, err)
	defer mgr.Close()
	v, err := mgr.Get("v1_account_z")
	require.NoError(t, err)
	assert.Equal(t, []byte("zeta"), v)
}

func TestInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Program.DomainTag = ""
	_, err := NewManagerWithConfig(cfg)
	assert.Error(t, err)
}
