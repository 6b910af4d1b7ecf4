package database

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/types"
)

const eventTimeLayout = "2006-01-02 15:04:05"

// InsertEvent stores a calendar event. It reports false when an identical
// event (same date, title and symbol) already exists.
func (s *Store) InsertEvent(ctx context.Context, e types.Event) (bool, error) {
	query := `
	INSERT OR IGNORE INTO events (event_date, title, description, source, type, symbol)
	VALUES (?, ?, ?, ?, ?, ?);`

	res, err := s.DB.ExecContext(ctx, query,
		e.EventDate.UTC().Format(eventTimeLayout), e.Title, e.Description, e.Source, string(e.Type), e.Symbol)
	if err != nil {
		return false, errors.Wrapf(err, "failed to insert event %q", e.Title)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		log.WithField("title", e.Title).Debug("Event already stored, skipping")
		return false, nil
	}
	return true, nil
}

type EventFilter struct {
	Type    types.EventType
	Symbols []string // restricts to these symbols when non-nil
	From    time.Time
	Limit   int
}

// ListEvents returns events ordered by date matching the filter.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]types.Event, error) {
	if f.Symbols != nil && len(f.Symbols) == 0 {
		return nil, nil
	}

	query := `SELECT id, event_date, title, description, source, type, symbol FROM events WHERE 1=1`
	var args []any

	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if len(f.Symbols) > 0 {
		query += ` AND symbol IN (?` + strings.Repeat(",?", len(f.Symbols)-1) + `)`
		for _, symbol := range f.Symbols {
			args = append(args, symbol)
		}
	}
	if !f.From.IsZero() {
		query += ` AND event_date >= ?`
		args = append(args, f.From.UTC().Format(eventTimeLayout))
	}
	query += ` ORDER BY event_date ASC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query events")
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var (
			e                    types.Event
			eventDate, eventType string
		)
		if err := rows.Scan(&e.ID, &eventDate, &e.Title, &e.Description, &e.Source, &eventType, &e.Symbol); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		e.EventDate = parseTime(eventDate)
		e.Type = types.EventType(eventType)
		events = append(events, e)
	}
	return events, errors.Wrap(rows.Err(), "failed to iterate events")
}

func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events;`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count events")
	}
	return n, nil
}
