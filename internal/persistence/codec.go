package persistence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/launchplan/internal/plan"
)

// mirrorRecord is the flat device shape: bundle keys at the top level and a
// millisecond epoch timestamp.
type mirrorRecord struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id,omitempty"`
	Idea      string `json:"idea"`
	Timestamp int64  `json:"timestamp"`
	plan.Bundle
}

// recordHead holds the identifying fields of either shape.
type recordHead struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	UserID    string          `json:"user_id"`
	Idea      string          `json:"idea"`
	Timestamp json.RawMessage `json:"timestamp"`
	CreatedAt json.RawMessage `json:"created_at"`
	PlanData  json.RawMessage `json:"plan_data"`
}

func encodeMirror(records []*plan.SavedPlanRecord) ([]byte, error) {
	out := make([]mirrorRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, mirrorRecord{
			ID:        rec.ID,
			AccountID: rec.AccountID,
			Idea:      rec.Idea,
			Timestamp: rec.CreatedAt.UnixMilli(),
			Bundle:    rec.Bundle,
		})
	}
	return json.Marshal(out)
}

// decodeMirror reads a mirrored list. Elements may be flat or carry the
// bundle under plan_data; undecodable elements are reported through skip
// and left out.
func decodeMirror(data []byte, skip func(index int, err error)) ([]*plan.SavedPlanRecord, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []*plan.SavedPlanRecord{}, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("decoding mirrored plan list: %w", err)
	}

	out := make([]*plan.SavedPlanRecord, 0, len(elems))
	for i, raw := range elems {
		rec, err := decodeRecord(raw)
		if err != nil {
			if skip != nil {
				skip(i, err)
			}
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeRecord(raw json.RawMessage) (*plan.SavedPlanRecord, error) {
	var head recordHead
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	if head.ID == "" {
		return nil, errors.New("record has no id")
	}

	rec := &plan.SavedPlanRecord{
		ID:        head.ID,
		AccountID: head.AccountID,
		Idea:      head.Idea,
	}
	if rec.AccountID == "" {
		rec.AccountID = head.UserID
	}

	created, err := parseTimestamp(head.Timestamp)
	if err == nil && created.IsZero() {
		created, err = parseTimestamp(head.CreatedAt)
	}
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = created

	src := []byte(raw)
	if isPresent(head.PlanData) {
		src = head.PlanData
	}
	bundle, err := decodeBundle(src)
	if err != nil {
		return nil, err
	}
	rec.Bundle = bundle
	return rec, nil
}

// decodeBundle accepts a bundle object, or a JSON string holding one.
func decodeBundle(data []byte) (plan.Bundle, error) {
	var b plan.Bundle
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return b, fmt.Errorf("decoding plan_data string: %w", err)
		}
		trimmed = []byte(inner)
	}
	if err := json.Unmarshal(trimmed, &b); err != nil {
		return b, fmt.Errorf("decoding bundle: %w", err)
	}
	return b, nil
}

func isPresent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

// parseTimestamp accepts a millisecond epoch number, a numeric string, or
// an RFC 3339 string. Absent values yield the zero time.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if !isPresent(raw) {
		return time.Time{}, nil
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(int64(ms)).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %s", raw)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(n).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func encodeHosted(rec *plan.SavedPlanRecord) (*HostedDocument, error) {
	data, err := json.Marshal(rec.Bundle)
	if err != nil {
		return nil, fmt.Errorf("encoding plan_data: %w", err)
	}
	return &HostedDocument{
		ID:        rec.ID,
		UserID:    rec.AccountID,
		Idea:      rec.Idea,
		Timestamp: rec.CreatedAt,
		PlanData:  data,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func decodeHosted(doc *HostedDocument) (*plan.SavedPlanRecord, error) {
	bundle, err := decodeBundle(doc.PlanData)
	if err != nil {
		return nil, err
	}
	created := doc.CreatedAt
	if created.IsZero() {
		created = doc.Timestamp
	}
	return &plan.SavedPlanRecord{
		ID:        doc.ID,
		AccountID: doc.UserID,
		Idea:      doc.Idea,
		CreatedAt: created.UTC().Truncate(time.Millisecond),
		Bundle:    bundle,
	}, nil
}
