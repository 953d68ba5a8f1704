package models

import "time"

// Shard is a host running yn-shard. Limit 0 means unlimited.
type Shard struct {
	Name      string
	Hostname  string
	IP        string
	Limit     int // 0 means unlimited
	CreatedOn time.Time
}

// HasCapacity reports whether one more application fits on a shard that
// currently hosts count applications.
func (s *Shard) HasCapacity(count int) bool {
	return s.Limit == 0 || count < s.Limit
}

// ShardLoad is the number of applications (pending ones included) placed on
// a shard.
type ShardLoad struct {
	Shard string
	Count int
}
