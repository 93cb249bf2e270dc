package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Timestamp is a stored point in time. The zero value is written as 0.
// Reads accept 0, null, epoch milliseconds or an RFC 3339 string.
type Timestamp struct {
	time.Time
}

// At wraps t.
func At(t time.Time) Timestamp { return Timestamp{Time: t} }

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("0"), nil
	}
	return json.Marshal(ts.Time.UTC())
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" || s == "0" {
			ts.Time = time.Time{}
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		ts.Time = t
		return nil
	}
	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", data, err)
	}
	if ms == 0 {
		ts.Time = time.Time{}
		return nil
	}
	ts.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// The decoders below let stored records carry any Timestamp form. Encoding
// keeps the default RFC 3339 layout.

func (t *Ticket) UnmarshalJSON(data []byte) error {
	type plain Ticket
	aux := struct {
		*plain
		CreatedAt Timestamp `json:"createdAt"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.CreatedAt = aux.CreatedAt.Time
	return nil
}

func (c *CallLog) UnmarshalJSON(data []byte) error {
	type plain CallLog
	aux := struct {
		*plain
		CalledAt Timestamp `json:"calledAt"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.CalledAt = aux.CalledAt.Time
	return nil
}

func (f *FinishedTicket) UnmarshalJSON(data []byte) error {
	type plain FinishedTicket
	aux := struct {
		*plain
		FinishedAt Timestamp `json:"finishedAt"`
	}{plain: (*plain)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	f.FinishedAt = aux.FinishedAt.Time
	return nil
}

func (r *CallRecord) UnmarshalJSON(data []byte) error {
	type plain CallRecord
	aux := struct {
		*plain
		CalledAt Timestamp `json:"calledAt"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.CalledAt = aux.CalledAt.Time
	return nil
}

func (s *SystemState) UnmarshalJSON(data []byte) error {
	type plain SystemState
	aux := struct {
		*plain
		LastUpdated Timestamp `json:"lastUpdated"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.LastUpdated = aux.LastUpdated.Time
	return nil
}
