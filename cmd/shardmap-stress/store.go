package main

import (
	"fmt"

	"github.com/llxisdsh/pb"

	"github.com/llxisdsh/shardmap"
)

const (
	implShardMap = "shardmap"
	implPB       = "pb"
)

// store is the operation set the workload drives.
type store interface {
	Load(key int) (int, bool)
	Store(key, value int)
	LoadOrStore(key, value int) (int, bool)
	Delete(key int)
	Len() int
}

type shardStore struct {
	m *shardmap.Map[int, int]
}

func (s shardStore) Load(key int) (int, bool) {
	return s.m.Load(key)
}

func (s shardStore) Store(key, value int) {
	s.m.Insert(key, value)
}

func (s shardStore) LoadOrStore(key, value int) (int, bool) {
	e := s.m.Entry(key)
	loaded := e.IsOccupied()
	r := e.OrInsert(value)
	actual := r.Value()
	r.Release()
	return actual, loaded
}

func (s shardStore) Delete(key int) {
	s.m.Remove(key)
}

func (s shardStore) Len() int {
	return s.m.Len()
}

type pbStore struct {
	m *pb.MapOf[int, int]
}

func (s pbStore) Load(key int) (int, bool) {
	return s.m.Load(key)
}

func (s pbStore) Store(key, value int) {
	s.m.Store(key, value)
}

func (s pbStore) LoadOrStore(key, value int) (int, bool) {
	return s.m.LoadOrStore(key, value)
}

func (s pbStore) Delete(key int) {
	s.m.Delete(key)
}

func (s pbStore) Len() int {
	return s.m.Size()
}

// newStore builds the implementation named impl, presized for capacity
// entries. The shardmap map is also returned so callers can export its
// shard statistics; it is nil for pb.
func newStore(impl string, capacity int, opts ...func(*shardmap.MapConfig)) (store, *shardmap.Map[int, int], error) {
	switch impl {
	case implShardMap:
		m := shardmap.NewMap[int, int](append(opts, shardmap.WithCapacity(capacity))...)
		return shardStore{m}, m, nil
	case implPB:
		return pbStore{pb.NewMapOf[int, int](pb.WithPresize(capacity))}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown impl %q (want %s or %s)", impl, implShardMap, implPB)
	}
}
