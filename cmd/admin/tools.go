package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dr-vortex/annihilation/internal/auth"
	persistlog "github.com/dr-vortex/annihilation/internal/persistence/log"
	"github.com/dr-vortex/annihilation/internal/protocol"
)

func tokenCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	player := fs.String("player", "", "player id (required)")
	name := fs.String("name", "", "display name")
	levelID := fs.String("level", "", "bind the token to one level (optional)")
	ttl := fs.Duration("ttl", 0, "token lifetime (default: JWT_TTL)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*player) == "" {
		return fmt.Errorf("missing -player")
	}
	cfg, err := sf.config()
	if err != nil {
		return err
	}
	life := cfg.Auth.TokenTTL
	if *ttl > 0 {
		life = *ttl
	}
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, life)
	if !issuer.Enabled() {
		return auth.ErrDisabled
	}
	tok, err := issuer.Issue(strings.TrimSpace(*player), *name, strings.TrimSpace(*levelID))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, tok)
	return nil
}

// eventsCmd prints events as JSON lines, from the store index by default or
// from the level journal with -journal.
func eventsCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	levelID := fs.String("level", "", "level id (required)")
	since := fs.Uint64("since", 0, "first tick")
	emitter := fs.String("emitter", "", "emitter id filter")
	kind := fs.String("kind", "", "event kind filter")
	limit := fs.Int("limit", 100, "max events")
	journal := fs.Bool("journal", false, "read <data>/levels/<level>/events journal files instead of the store")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*levelID) == "" {
		return fmt.Errorf("missing -level")
	}

	var evs []protocol.Event
	if *journal {
		cfg, err := sf.config()
		if err != nil {
			return err
		}
		dir := filepath.Join(cfg.DataDir, "levels", *levelID, "events")
		files, err := persistlog.Files(dir, "events")
		if err != nil {
			return err
		}
		for _, f := range files {
			got, err := persistlog.ReadEvents(f)
			if err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(f), err)
			}
			evs = append(evs, got...)
		}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		st, err := sf.open(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		evs, err = st.Events(ctx, *levelID, *since, *emitter, 0)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(out)
	n := 0
	for _, ev := range evs {
		if n >= *limit {
			break
		}
		if ev.Tick < *since || (*emitter != "" && ev.Emitter != *emitter) || (*kind != "" && ev.Kind != *kind) {
			continue
		}
		if err := enc.Encode(ev); err != nil {
			return err
		}
		n++
	}
	return nil
}
