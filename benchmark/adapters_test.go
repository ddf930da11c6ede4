package benchmark

import (
	"runtime"
	"sync"

	"github.com/Snawoot/lfmap"
	"github.com/alphadose/haxmap"
	"github.com/fufuok/cmap"
	"github.com/llxisdsh/pb"
	csmap "github.com/mhmtszr/concurrent-swiss-map"
	orcaman_map "github.com/orcaman/concurrent-map/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zhangyunhao116/skipmap"

	"github.com/llxisdsh/shardmap"
)

// ============================================================================
// Map Adapters
// ============================================================================

// MapInterface is the operation set every implementation under comparison
// can express.
type MapInterface interface {
	Store(key, value int)
	Load(key int) (int, bool)
	LoadOrStore(key, value int)
	Delete(key int)
}

type impl struct {
	name string
	make func() MapInterface
}

// impls lists the implementations in ranking tables, shardmap first.
var impls = []impl{
	{"shardmap.Map", func() MapInterface { return &shardMapAdapter{shardmap.NewMap[int, int]()} }},
	{"shardmap.Map/xxhash", func() MapInterface {
		return &shardMapAdapter{shardmap.NewMap[int, int](shardmap.WithHashAlgorithm(shardmap.HashXXHash))}
	}},
	{"pb.MapOf", func() MapInterface { return &pbMapAdapter{} }},
	{"sync.Map", func() MapInterface { return &syncMapAdapter{} }},
	{"xsync.Map", func() MapInterface { return &xsyncMapAdapter{xsync.NewMap[int, int]()} }},
	{"haxmap", func() MapInterface { return &haxMapAdapter{haxmap.New[int, int]()} }},
	{"skipmap", newSkipMap},
	{"fufuok.cmap", newFufuokMap},
	{"concurrent-swiss-map", newSwissMap},
	{"orcaman.concurrent-map", newOrcamanMap},
	{"lfmap", newLfMap},
}

// shardImpls are the shardmap variants alone, one per shard amount.
func shardImpls() []impl {
	var out []impl
	for _, n := range []int{1, 16, runtime.GOMAXPROCS(0) * 4, 1024} {
		n := max(1, nextPow2(n))
		out = append(out, impl{
			name: "shards=" + itoa(n),
			make: func() MapInterface {
				return &shardMapAdapter{shardmap.NewMap[int, int](shardmap.WithShardAmount(n))}
			},
		})
	}
	return out
}

type shardMapAdapter struct{ m *shardmap.Map[int, int] }

func (a *shardMapAdapter) Store(k, v int)         { a.m.Insert(k, v) }
func (a *shardMapAdapter) Load(k int) (int, bool) { return a.m.Load(k) }
func (a *shardMapAdapter) LoadOrStore(k, v int)   { a.m.Entry(k).OrInsert(v).Release() }
func (a *shardMapAdapter) Delete(k int)           { a.m.Remove(k) }

type pbMapAdapter struct{ m pb.MapOf[int, int] }

func (a *pbMapAdapter) Store(k, v int)         { a.m.Store(k, v) }
func (a *pbMapAdapter) Load(k int) (int, bool) { return a.m.Load(k) }
func (a *pbMapAdapter) LoadOrStore(k, v int)   { _, _ = a.m.LoadOrStore(k, v) }
func (a *pbMapAdapter) Delete(k int)           { a.m.Delete(k) }

type syncMapAdapter struct{ m sync.Map }

func (a *syncMapAdapter) Store(k, v int) { a.m.Store(k, v) }
func (a *syncMapAdapter) Load(k int) (int, bool) {
	v, ok := a.m.Load(k)
	if ok {
		return v.(int), true
	}
	return 0, false
}
func (a *syncMapAdapter) LoadOrStore(k, v int) { _, _ = a.m.LoadOrStore(k, v) }
func (a *syncMapAdapter) Delete(k int)         { a.m.Delete(k) }

type xsyncMapAdapter struct{ m *xsync.Map[int, int] }

func (a *xsyncMapAdapter) Store(k, v int)         { a.m.Store(k, v) }
func (a *xsyncMapAdapter) Load(k int) (int, bool) { return a.m.Load(k) }
func (a *xsyncMapAdapter) LoadOrStore(k, v int)   { _, _ = a.m.LoadOrStore(k, v) }
func (a *xsyncMapAdapter) Delete(k int)           { a.m.Delete(k) }

type haxMapAdapter struct{ m *haxmap.Map[int, int] }

func (a *haxMapAdapter) Store(k, v int)         { a.m.Set(k, v) }
func (a *haxMapAdapter) Load(k int) (int, bool) { return a.m.Get(k) }
func (a *haxMapAdapter) LoadOrStore(k, v int)   { _, _ = a.m.GetOrSet(k, v) }
func (a *haxMapAdapter) Delete(k int)           { a.m.Del(k) }

// funcAdapter wraps implementations through closures, so the table does
// not depend on their concrete type names.
type funcAdapter struct {
	store       func(k, v int)
	load        func(k int) (int, bool)
	loadOrStore func(k, v int)
	delete      func(k int)
}

func (a *funcAdapter) Store(k, v int)         { a.store(k, v) }
func (a *funcAdapter) Load(k int) (int, bool) { return a.load(k) }
func (a *funcAdapter) LoadOrStore(k, v int)   { a.loadOrStore(k, v) }
func (a *funcAdapter) Delete(k int)           { a.delete(k) }

func newSkipMap() MapInterface {
	m := skipmap.New[int, int]()
	return &funcAdapter{
		store:       func(k, v int) { m.Store(k, v) },
		load:        m.Load,
		loadOrStore: func(k, v int) { _, _ = m.LoadOrStore(k, v) },
		delete:      func(k int) { m.Delete(k) },
	}
}

func newFufuokMap() MapInterface {
	m := cmap.NewOf[int, int]()
	return &funcAdapter{
		store:       func(k, v int) { m.Set(k, v) },
		load:        func(k int) (int, bool) { return m.Get(k) },
		loadOrStore: func(k, v int) { _ = m.SetIfAbsent(k, v) },
		delete:      func(k int) { m.Remove(k) },
	}
}

func newSwissMap() MapInterface {
	m := csmap.New(csmap.WithShardCount[int, int](32))
	return &funcAdapter{
		store:       func(k, v int) { m.Store(k, v) },
		load:        func(k int) (int, bool) { return m.Load(k) },
		loadOrStore: func(k, v int) { m.SetIfAbsent(k, v) },
		delete:      func(k int) { m.Delete(k) },
	}
}

func newOrcamanMap() MapInterface {
	m := orcaman_map.NewWithCustomShardingFunction[int, int](
		func(key int) uint32 { return uint32(key) },
	)
	return &funcAdapter{
		store:       func(k, v int) { m.Set(k, v) },
		load:        func(k int) (int, bool) { return m.Get(k) },
		loadOrStore: func(k, v int) { _ = m.SetIfAbsent(k, v) },
		delete:      func(k int) { m.Remove(k) },
	}
}

func newLfMap() MapInterface {
	m := lfmap.New[int, int]()
	return &funcAdapter{
		store: func(k, v int) { m.Set(k, v) },
		load:  func(k int) (int, bool) { return m.Get(k) },
		loadOrStore: func(k, v int) {
			if _, ok := m.Get(k); !ok {
				m.Set(k, v)
			}
		},
		delete: func(k int) { m.Delete(k) },
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// itoa is a tiny integer-to-string helper to avoid imports.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}
