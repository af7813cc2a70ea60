package legacy

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/schoolquest/internal/model"
)

// Sink stores converted events. repository.ProgressRepository satisfies it.
type Sink interface {
	Import(ctx context.Context, events []model.ProgressEvent) (int, error)
}

// Report counts what an import did.
type Report struct {
	Read     int
	Imported int
	Skipped  int
}

var columns = []string{"user_email", "mission_id", "score", "choice_label", "created_at"}

// timeLayouts are the created_at formats seen in exports.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// Import reads a CSV export of the old table (with a header row) and writes
// the converted events to sink in batches. Rows that cannot be decoded are
// logged and skipped.
func Import(ctx context.Context, r io.Reader, sink Sink, logger *slog.Logger) (Report, error) {
	const batchSize = 500

	var rep Report
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return rep, fmt.Errorf("legacy: reading header: %w", err)
	}
	index, err := headerIndex(header)
	if err != nil {
		return rep, err
	}

	batch := make([]model.ProgressEvent, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := sink.Import(ctx, batch)
		rep.Imported += n
		batch = batch[:0]
		return err
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rep, fmt.Errorf("legacy: reading line %d: %w", rep.Read+2, err)
		}
		rep.Read++

		row := Row{
			UserEmail:   rec[index["user_email"]],
			MissionID:   rec[index["mission_id"]],
			ChoiceLabel: rec[index["choice_label"]],
			CreatedAt:   rec[index["created_at"]],
		}
		row.Score, err = strconv.Atoi(strings.TrimSpace(rec[index["score"]]))
		if err != nil {
			logger.Warn("skipping legacy row", "line", rep.Read+1, "error", err)
			rep.Skipped++
			continue
		}

		ev, err := Convert(row)
		if err != nil {
			logger.Warn("skipping legacy row", "line", rep.Read+1, "error", err)
			rep.Skipped++
			continue
		}
		batch = append(batch, ev)

		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return rep, fmt.Errorf("legacy: importing batch: %w", err)
			}
		}
	}

	if err := flush(); err != nil {
		return rep, fmt.Errorf("legacy: importing batch: %w", err)
	}
	return rep, nil
}

// Convert turns one old row into a progress event with a fresh ID.
func Convert(row Row) (model.ProgressEvent, error) {
	user := strings.ToLower(strings.TrimSpace(row.UserEmail))
	if user == "" {
		return model.ProgressEvent{}, fmt.Errorf("legacy: empty user_email")
	}
	if row.MissionID == "" {
		return model.ProgressEvent{}, fmt.Errorf("legacy: empty mission_id")
	}

	p, err := Decode(row.MissionID, row.Score, row.ChoiceLabel)
	if err != nil {
		return model.ProgressEvent{}, err
	}
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return model.ProgressEvent{}, err
	}

	return model.ProgressEvent{
		ID:        xid.New().String(),
		User:      user,
		MissionID: row.MissionID,
		Score:     row.Score,
		Payload:   p,
		CreatedAt: created,
	}, nil
}

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range columns {
		if _, ok := index[c]; !ok {
			return nil, fmt.Errorf("legacy: missing column %q", c)
		}
	}
	return index, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("legacy: unrecognised created_at %q", s)
}
