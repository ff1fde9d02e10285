package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
	"github.com/dr-vortex/annihilation/internal/protocol"
	"github.com/dr-vortex/annihilation/internal/sim/catalogs"
	"github.com/dr-vortex/annihilation/internal/sim/level"
	"github.com/dr-vortex/annihilation/internal/sim/tuning"
)

func savesCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("saves", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	levelID := fs.String("level", "", "level id filter")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx := context.Background()
	st, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.List(ctx, strings.TrimSpace(*levelID))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLEVEL\tNAME\tTICK\tBYTES\tUPDATED")
	for _, in := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", in.ID, in.LevelID, in.Name, in.Tick, in.Size, in.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func exportCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	id := fs.String("id", "", "save id (required)")
	outPath := fs.String("out", "", "output file; .json writes plain JSON, anything else a .snap.zst save (default: <tick>.snap.zst)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return fmt.Errorf("missing -id")
	}
	ctx := context.Background()
	st, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.Get(ctx, *id)
	if err != nil {
		return err
	}
	path := strings.TrimSpace(*outPath)
	if path == "" {
		path = snapshot.FileName(snap.Tick)
	}
	if err := writeSaveFile(path, snap); err != nil {
		return err
	}
	fmt.Fprintf(out, "exported %s level=%s tick=%d -> %s\n", *id, snap.ID, snap.Tick, path)
	return nil
}

func importCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	id := fs.String("id", "", "save id (default: <level id>/autosave)")
	in := fs.String("in", "", "save file (.snap.zst or .json, required)")
	configDir := fs.String("configs", "", "catalog directory for the restore check (default: embedded)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*in) == "" {
		return fmt.Errorf("missing -in")
	}
	snap, err := readSaveFile(*in)
	if err != nil {
		return err
	}
	if err := checkSave(snap, *configDir); err != nil {
		return err
	}
	key := strings.TrimSpace(*id)
	if key == "" {
		key = snap.ID + "/autosave"
	}

	ctx := context.Background()
	st, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	info, err := st.Put(ctx, key, snap)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "imported %s level=%s tick=%d bytes=%d\n", info.ID, info.LevelID, info.Tick, info.Size)
	return nil
}

func deleteCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	id := fs.String("id", "", "save id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return fmt.Errorf("missing -id")
	}
	ctx := context.Background()
	st, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %s\n", *id)
	return nil
}

func validateCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	configDir := fs.String("configs", "", "catalog directory (default: embedded)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: validate [-configs dir] <save file>...")
	}
	for _, path := range fs.Args() {
		snap, err := readSaveFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := checkSave(snap, *configDir); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(out, "%s: ok level=%s tick=%d entities=%d\n", path, snap.ID, snap.Tick, len(snap.Entities))
	}
	return nil
}

// checkSave runs the same gates the server does on load: version, schema
// and a dry-run restore against the catalogs.
func checkSave(snap *snapshot.Level, configDir string) error {
	snap, err := snapshot.Upgrade(snap)
	if err != nil {
		return err
	}
	raw, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}
	if err := protocol.ValidateLevel(raw); err != nil {
		return err
	}
	var cats *catalogs.Catalogs
	if strings.TrimSpace(configDir) != "" {
		cats, err = catalogs.Load(configDir)
	} else {
		cats, err = catalogs.Default()
	}
	if err != nil {
		return fmt.Errorf("catalogs: %w", err)
	}
	if _, err := level.Restore(snap, cats, tuning.Defaults(), nil); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return nil
}

func readSaveFile(path string) (*snapshot.Level, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return snapshot.Unmarshal(b)
	}
	return snapshot.ReadFile(path)
}

func writeSaveFile(path string, snap *snapshot.Level) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		b, err := snapshot.Marshal(snap)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, b, 0o644)
	}
	return snapshot.WriteFile(path, snap)
}
