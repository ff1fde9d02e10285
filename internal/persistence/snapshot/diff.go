package snapshot

import "sort"

// Consumer mirrors a level incrementally, e.g. a renderer or a broadcaster.
type Consumer interface {
	Add(e Entity)
	Remove(id string)
	Update(e Entity)
}

// Change is the id-level difference between two snapshots. Updated carries
// every entity present in both; field comparison is left to consumers.
type Change struct {
	Added   []Entity `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Updated []Entity `json:"updated,omitempty"`
}

func (c Change) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Updated) == 0
}

func Diff(prev, cur *Level) Change {
	var c Change
	Apply(prev, cur, consumerFuncs{
		add:    func(e Entity) { c.Added = append(c.Added, e) },
		remove: func(id string) { c.Removed = append(c.Removed, id) },
		update: func(e Entity) { c.Updated = append(c.Updated, e) },
	})
	return c
}

// Apply feeds the difference between prev and cur to c: removals first, then
// additions and updates in current entity order. A nil prev adds everything.
func Apply(prev, cur *Level, c Consumer) {
	before := map[string]bool{}
	if prev != nil {
		for _, e := range prev.Entities {
			before[e.ID] = true
		}
	}
	now := map[string]bool{}
	if cur != nil {
		for _, e := range cur.Entities {
			now[e.ID] = true
		}
	}

	var removed []string
	for id := range before {
		if !now[id] {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		c.Remove(id)
	}
	if cur == nil {
		return
	}
	for _, e := range cur.Entities {
		if before[e.ID] {
			c.Update(e)
		} else {
			c.Add(e)
		}
	}
}

type consumerFuncs struct {
	add    func(Entity)
	remove func(string)
	update func(Entity)
}

func (f consumerFuncs) Add(e Entity)     { f.add(e) }
func (f consumerFuncs) Remove(id string) { f.remove(id) }
func (f consumerFuncs) Update(e Entity)  { f.update(e) }
