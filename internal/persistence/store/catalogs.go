package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/dr-vortex/annihilation/internal/sim/catalogs"
	"github.com/dr-vortex/annihilation/internal/sim/tuning"
)

// UpsertCatalogs records the catalogs and tuning a server booted with, so a
// save can be matched to the data it was played under.
func (s *Store) UpsertCatalogs(ctx context.Context, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	type kv struct {
		name   string
		digest string
		v      any
	}
	rows := []kv{
		{"items", cats.Items.Digest, cats.Items.Defs},
		{"ships", cats.Ships.Digest, cats.Ships.Defs},
		{"hardpoints", cats.Hardpoints.Digest, cats.Hardpoints.Defs},
		{"research", cats.Research.Digest, cats.Research.Defs},
		{"station_parts", cats.StationParts.Digest, cats.StationParts.Defs},
		{"bodies", cats.Bodies.Digest, cats.Bodies.Defs},
	}
	tb, _ := json.Marshal(tune)
	sum := sha256.Sum256(tb)
	rows = append(rows, kv{"tuning", hex.EncodeToString(sum[:]), tune})

	now := time.Now().UTC().Format(timeFormat)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET digest=excluded.digest, json=excluded.json, updated_at=excluded.updated_at`))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		b, err := json.Marshal(r.v)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.name, r.digest, string(b), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CatalogDigests returns the recorded digest per catalog name.
func (s *Store) CatalogDigests(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name,digest FROM catalogs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var name, digest string
		if err := rows.Scan(&name, &digest); err != nil {
			return nil, err
		}
		out[name] = digest
	}
	return out, rows.Err()
}
