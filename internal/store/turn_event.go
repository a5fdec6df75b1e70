package store

import (
	"context"
	"fmt"
	"time"
)

func (r *eventRepo) AppendTurn(ctx context.Context, data TurnEventData) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO turn_events
		(sequence, timestamp, session_id, user_id, phase, template, response_count,
		 chunks, latency_ms, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seqNum, time.Now().UnixMilli(), data.SessionID, data.UserID, data.Phase, data.Template,
		data.ResponseCount, data.Chunks, data.LatencyMs, data.Success, data.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("save turn event: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryTurnEvents(ctx context.Context, sessionID string, opts QueryOpts) ([]TurnEventRecord, error) {
	var (
		conds []string
		args  []any
	)
	if sessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, sessionID)
	}
	where, args := opts.clauses(conds, args)

	rows, err := r.db.QueryContext(ctx, `SELECT id, sequence, timestamp, session_id, user_id,
		phase, template, response_count, chunks, latency_ms, success, error_message
		FROM turn_events`+where+" ORDER BY sequence DESC"+opts.limit(), args...)
	if err != nil {
		return nil, fmt.Errorf("query turn events: %w", err)
	}
	defer rows.Close()

	var records []TurnEventRecord
	for rows.Next() {
		var (
			rec TurnEventRecord
			ts  int64
		)
		err := rows.Scan(&rec.ID, &rec.Sequence, &ts, &rec.SessionID, &rec.UserID, &rec.Phase,
			&rec.Template, &rec.ResponseCount, &rec.Chunks, &rec.LatencyMs, &rec.Success,
			&rec.ErrorMessage)
		if err != nil {
			return nil, fmt.Errorf("scan turn event: %w", err)
		}
		rec.Timestamp = time.UnixMilli(ts)
		records = append(records, rec)
	}
	return records, rows.Err()
}
