// Command replay restores a save and re-applies the action journal recorded
// after it, reporting every action whose outcome differs from the journal.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "github.com/dr-vortex/annihilation/internal/persistence/log"
	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
	"github.com/dr-vortex/annihilation/internal/sim/catalogs"
	"github.com/dr-vortex/annihilation/internal/sim/level"
	"github.com/dr-vortex/annihilation/internal/sim/tuning"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst")
		actionsDir = flag.String("actions", "", "dir containing actions-*.jsonl.zst (default: <snapshot dir>/../actions)")
		configDir  = flag.String("configs", "", "catalog directory (default: embedded)")
		tuningPath = flag.String("tuning", "", "tuning.yaml (default: built-in defaults)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		outPath    = flag.String("out", "", "write the replayed level to this save file (optional)")
		strict     = flag.Bool("strict", false, "exit non-zero on the first divergence")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}
	snap, err := snapshot.ReadFile(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%s level=%s tick=%d systems=%d entities=%d pending=%d\n",
		snap.Version, snap.ID, snap.Tick, len(snap.Systems), len(snap.Entities), len(snap.Pending))

	cats, err := catalogs.Default()
	if *configDir != "" {
		cats, err = catalogs.Load(*configDir)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tune := tuning.Defaults()
	if *tuningPath != "" {
		if tune, err = tuning.Load(*tuningPath); err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
	}
	lvl, err := level.Restore(snap, cats, tune, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "restore:", err)
		os.Exit(1)
	}

	dir := *actionsDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(*snapPath), "..", "actions")
	}
	files, err := persistlog.Files(dir, "actions")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list actions:", err)
		os.Exit(1)
	}
	var entries []persistlog.ActionEntry
	for _, f := range files {
		got, err := persistlog.ReadActions(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", filepath.Base(f), err)
			os.Exit(1)
		}
		entries = append(entries, got...)
	}

	rep := replay(lvl, entries, *toTick)
	for _, d := range rep.Divergences {
		fmt.Printf("diverged tick=%d player=%s kind=%s journal_ok=%v replay_ok=%v err=%v\n",
			d.Entry.Tick, d.Entry.PlayerID, d.Entry.Kind, d.Entry.OK, d.OK, d.Err)
		if *strict {
			os.Exit(1)
		}
	}
	if *outPath != "" {
		if err := snapshot.WriteFile(*outPath, lvl.Snapshot()); err != nil {
			fmt.Fprintln(os.Stderr, "write snapshot:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay done: applied=%d skipped=%d joined=%d diverged=%d tick=%d\n",
		rep.Applied, rep.Skipped, rep.Joined, len(rep.Divergences), lvl.Tick())
}
