package database

import (
	"context"

	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/metrics"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/transcript"
)

const fragmentsSchema = `
CREATE TABLE IF NOT EXISTS transcript_fragments (
    id          BIGSERIAL PRIMARY KEY,
    room        TEXT NOT NULL,
    uid         TEXT NOT NULL,
    start_time  TEXT NOT NULL,
    end_time    TEXT NOT NULL,
    text        TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_fragments_room_start ON transcript_fragments (room, start_time);
CREATE INDEX IF NOT EXISTS idx_fragments_uid ON transcript_fragments (uid);
`

func (db *DB) ensureSchema(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, fragmentsSchema)
	return err
}

// InsertFragment archives one completed fragment.
func (db *DB) InsertFragment(ctx context.Context, room string, f transcript.Fragment) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO transcript_fragments (room, uid, start_time, end_time, text)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		room, f.UserID, f.Start.String(), f.End, f.Text,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	metrics.FragmentsArchived.Inc()
	return id, nil
}

// FragmentRow is one archived fragment as returned by queries.
type FragmentRow struct {
	ID        int64  `json:"id"`
	Room      string `json:"room"`
	UID       string `json:"uid"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Text      string `json:"text"`
}

// FragmentsByRoom returns a room's archived fragments ordered by start time.
func (db *DB) FragmentsByRoom(ctx context.Context, room string, limit int) ([]FragmentRow, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, room, uid, start_time, end_time, text
		 FROM transcript_fragments
		 WHERE room = $1
		 ORDER BY start_time, id
		 LIMIT $2`,
		room, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FragmentRow
	for rows.Next() {
		var r FragmentRow
		if err := rows.Scan(&r.ID, &r.Room, &r.UID, &r.StartTime, &r.EndTime, &r.Text); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
