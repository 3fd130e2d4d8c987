package ubindex

import "sync"

// idSet is a reset-in-place membership set for query-path deduplication,
// pooled across queries since it is allocated on every nearby/k_nearest
// call and the query path is hot.
type idSet struct {
	m map[int64]struct{}
}

func (s *idSet) reset() {
	for k := range s.m {
		delete(s.m, k)
	}
}

func (s *idSet) add(id int64) bool {
	if _, ok := s.m[id]; ok {
		return false
	}
	s.m[id] = struct{}{}
	return true
}

func (s *idSet) has(id int64) bool {
	_, ok := s.m[id]
	return ok
}

func (s *idSet) len() int { return len(s.m) }

// counter is a reset-in-place id->occurrence-count map, pooled the same
// way as idSet. Used by the counting strategy in nearby's general-case
// path.
type counter struct {
	m map[int64]int32
}

func (c *counter) reset() {
	for k := range c.m {
		delete(c.m, k)
	}
}

func (c *counter) inc(id int64) {
	c.m[id]++
}

func (c *counter) get(id int64) int32 {
	return c.m[id]
}

var idSetPool = sync.Pool{
	New: func() any { return &idSet{m: make(map[int64]struct{})} },
}

var counterPool = sync.Pool{
	New: func() any { return &counter{m: make(map[int64]int32)} },
}

func acquireIDSet() *idSet {
	s := idSetPool.Get().(*idSet)
	s.reset()
	return s
}

func releaseIDSet(s *idSet) {
	idSetPool.Put(s)
}

func acquireCounter() *counter {
	c := counterPool.Get().(*counter)
	c.reset()
	return c
}

func releaseCounter(c *counter) {
	counterPool.Put(c)
}
