package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
)

// timeFormat is fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SaveInfo describes a stored save without its payload.
type SaveInfo struct {
	ID        string    `json:"id"`
	LevelID   string    `json:"level_id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Tick      uint64    `json:"tick"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Put stores snap under id, replacing any previous save with that id. The
// payload is the zstd save form.
func (s *Store) Put(ctx context.Context, id string, snap *snapshot.Level) (SaveInfo, error) {
	if id == "" {
		return SaveInfo{}, fmt.Errorf("empty save id")
	}
	data, err := snapshot.EncodeBytes(snap)
	if err != nil {
		return SaveInfo{}, fmt.Errorf("encode save %s: %w", id, err)
	}
	info := SaveInfo{
		ID:        id,
		LevelID:   snap.ID,
		Name:      snap.Name,
		Version:   snap.Version,
		Tick:      snap.Tick,
		Size:      int64(len(data)),
		UpdatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO saves(id,level_id,name,version,tick,size,data,updated_at)
		VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			level_id=excluded.level_id,
			name=excluded.name,
			version=excluded.version,
			tick=excluded.tick,
			size=excluded.size,
			data=excluded.data,
			updated_at=excluded.updated_at`),
		info.ID, info.LevelID, info.Name, info.Version, int64(info.Tick), info.Size, data,
		info.UpdatedAt.Format(timeFormat))
	if err != nil {
		return SaveInfo{}, fmt.Errorf("put save %s: %w", id, err)
	}
	return info, nil
}

// GetRaw returns the stored save bytes.
func (s *Store) GetRaw(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT data FROM saves WHERE id=?`), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) Get(ctx context.Context, id string) (*snapshot.Level, error) {
	data, err := s.GetRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := snapshot.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode save %s: %w", id, err)
	}
	return snap, nil
}

// List returns saves newest first. An empty levelID lists every level.
func (s *Store) List(ctx context.Context, levelID string) ([]SaveInfo, error) {
	q := `SELECT id,level_id,name,version,tick,size,updated_at FROM saves`
	var args []any
	if levelID != "" {
		q += ` WHERE level_id=?`
		args = append(args, levelID)
	}
	q += ` ORDER BY updated_at DESC, id`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SaveInfo
	for rows.Next() {
		var (
			info    SaveInfo
			tick    int64
			updated string
		)
		if err := rows.Scan(&info.ID, &info.LevelID, &info.Name, &info.Version, &tick, &info.Size, &updated); err != nil {
			return nil, err
		}
		info.Tick = uint64(tick)
		info.UpdatedAt, _ = time.Parse(timeFormat, updated)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Latest returns the most recently written save of a level.
func (s *Store) Latest(ctx context.Context, levelID string) (*snapshot.Level, SaveInfo, error) {
	infos, err := s.List(ctx, levelID)
	if err != nil {
		return nil, SaveInfo{}, err
	}
	if len(infos) == 0 {
		return nil, SaveInfo{}, fmt.Errorf("%w: no saves for level %q", ErrNotFound, levelID)
	}
	snap, err := s.Get(ctx, infos[0].ID)
	return snap, infos[0], err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM saves WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
