package schema

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// System column names shared by every record table.
const (
	CreatedAtColumn = "__created_at__"
	UpdatedAtColumn = "__updated_at__"
	TagsColumn      = "__tags__"
)

// Meta carries the system attributes every record has. Record structs
// embed it:
//
//	type User struct {
//		ID   int64  `db:"id" store:"pk"`
//		Name string `db:"name" store:"create,update"`
//		schema.Meta
//	}
type Meta struct {
	CreatedAt Timestamp `db:"__created_at__" json:"created_at"`
	UpdatedAt Timestamp `db:"__updated_at__" json:"updated_at"`
	Tags      Tags      `db:"__tags__" json:"tags"`
}

// Tags is an ordered, de-duplicated set of NFC-normalized strings,
// persisted as a JSON array.
type Tags []string

// NormalizeTags trims and NFC-normalizes each tag, drops empty strings
// and removes duplicates while preserving first-seen order.
func NormalizeTags(tags []string) Tags {
	out := make(Tags, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = norm.NFC.String(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Merge returns the union of t and extra, keeping t's order first.
func (t Tags) Merge(extra ...string) Tags {
	all := make([]string, 0, len(t)+len(extra))
	all = append(all, t...)
	all = append(all, extra...)
	return NormalizeTags(all)
}

// Has reports whether tag is in the set.
func (t Tags) Has(tag string) bool {
	tag = norm.NFC.String(strings.TrimSpace(tag))
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer. A nil set is stored as "[]".
func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (t *Tags) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into Tags", src)
	}
	if len(raw) == 0 {
		*t = Tags{}
		return nil
	}
	var ss []string
	if err := json.Unmarshal(raw, &ss); err != nil {
		return fmt.Errorf("unmarshal tags: %w", err)
	}
	*t = NormalizeTags(ss)
	return nil
}

// timestampLayouts are tried in order when a driver hands back text.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp is a UTC time that scans from native driver times as well as
// the textual forms SQLite returns.
type Timestamp struct {
	time.Time
}

// At wraps t as a UTC Timestamp.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// Value implements driver.Valuer.
func (ts Timestamp) Value() (driver.Value, error) {
	return ts.UTC(), nil
}

// Scan implements sql.Scanner.
func (ts *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		ts.Time = time.Time{}
		return nil
	case time.Time:
		ts.Time = v.UTC()
		return nil
	case int64:
		ts.Time = time.Unix(v, 0).UTC()
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", src)
	}
}

func (ts *Timestamp) parse(s string) error {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// MarshalJSON renders the timestamp as RFC 3339 with nanoseconds.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts the forms produced by MarshalJSON.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return ts.parse(s)
}
