package main

import (
	"errors"
	"sort"

	persistlog "github.com/dr-vortex/annihilation/internal/persistence/log"
	"github.com/dr-vortex/annihilation/internal/sim/level"
)

type divergence struct {
	Entry persistlog.ActionEntry
	OK    bool
	Err   error
}

type report struct {
	Applied     int
	Skipped     int
	Joined      int
	Divergences []divergence
}

// replay steps lvl forward to each entry's tick and applies it. Entries
// before the level's tick are skipped. A player missing from the level joined
// after the save and gets the starter kit, as on a live join.
func replay(lvl *level.Level, entries []persistlog.ActionEntry, toTick uint64) report {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Tick < entries[j].Tick })

	var rep report
	for _, e := range entries {
		if e.Tick < lvl.Tick() {
			rep.Skipped++
			continue
		}
		if toTick != 0 && e.Tick > toTick {
			break
		}
		for lvl.Tick() < e.Tick {
			lvl.Step()
		}
		if _, err := lvl.Player(e.PlayerID); errors.Is(err, level.ErrNotFound) {
			if _, err := lvl.AddPlayer(e.PlayerID, e.PlayerID); err == nil {
				_ = lvl.GrantStarterKit(e.PlayerID)
				rep.Joined++
			}
		}

		act, err := level.DecodeAction(e.Kind, e.Payload)
		var ok bool
		if err == nil {
			ok, err = lvl.TryAction(e.PlayerID, act)
		}
		rep.Applied++
		if ok != e.OK || (err != nil) != (e.Error != "") {
			rep.Divergences = append(rep.Divergences, divergence{Entry: e, OK: ok, Err: err})
		}
	}
	for toTick != 0 && lvl.Tick() < toTick {
		lvl.Step()
	}
	return rep
}
