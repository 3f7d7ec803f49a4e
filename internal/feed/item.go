package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoID        = errors.New("item has no identifier")
	ErrNoCreatedAt = errors.New("item has no creation timestamp")
)

// Item is one upstream mod record. Identity is ID only.
type Item struct {
	ID        string
	Name      string
	Category  string
	Version   string
	Access    string
	CreatedAt string
	ImageURL  string

	// Raw is the record exactly as the upstream sent it.
	// The durable seen cache stores it verbatim.
	Raw json.RawMessage
}

// Fields maps Item attributes to upstream JSON field names.
// Deployments disagree on the access-type field, so every name is configurable.
type Fields struct {
	ID        string
	Name      string
	Category  string
	Version   string
	Access    string
	CreatedAt string
	Image     string
}

// DefaultFields returns the field names used by the public mods API.
func DefaultFields() Fields {
	return Fields{
		ID:        "id",
		Name:      "name",
		Category:  "category",
		Version:   "version",
		Access:    "access_type",
		CreatedAt: "created_at",
		Image:     "image_url",
	}
}

// WithDefaults fills empty names from DefaultFields.
func (f Fields) WithDefaults() Fields {
	d := DefaultFields()
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return strings.TrimSpace(v)
	}
	return Fields{
		ID:        pick(f.ID, d.ID),
		Name:      pick(f.Name, d.Name),
		Category:  pick(f.Category, d.Category),
		Version:   pick(f.Version, d.Version),
		Access:    pick(f.Access, d.Access),
		CreatedAt: pick(f.CreatedAt, d.CreatedAt),
		Image:     pick(f.Image, d.Image),
	}
}

// Decode builds an Item from one JSON object.
// Missing or null attributes decode to "". An error is returned only when raw
// is not a JSON object.
func (f Fields) Decode(raw json.RawMessage) (Item, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Item{}, fmt.Errorf("decode item: %w", err)
	}
	if obj == nil {
		return Item{}, errors.New("decode item: not an object")
	}
	f = f.WithDefaults()
	return Item{
		ID:        identifier(obj[f.ID]),
		Name:      text(obj[f.Name]),
		Category:  text(obj[f.Category]),
		Version:   text(obj[f.Version]),
		Access:    text(obj[f.Access]),
		CreatedAt: text(obj[f.CreatedAt]),
		ImageURL:  text(obj[f.Image]),
		Raw:       append(json.RawMessage(nil), bytes.TrimSpace(raw)...),
	}, nil
}

// identifier canonicalises a string or numeric id.
// null, "", false and numeric zero all count as "no identifier".
func identifier(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		if f, err := n.Float64(); err == nil && f == 0 {
			return ""
		}
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

// text renders scalar values as strings; objects and arrays become "".
func text(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	switch v[0] {
	case '{', '[':
		return ""
	}
	return string(v)
}

// Date is a calendar date with no time of day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// DateOf returns t's calendar date in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

var createdLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02 15:04:05.999999999-0700",
	"2006-01-02T15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	time.DateOnly,
}

// ParseCreated parses an ISO-8601 creation timestamp.
// A trailing "Z" is rewritten to "+00:00" first; the result keeps the
// timestamp's own offset so DateOf reports the date as written.
func ParseCreated(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrNoCreatedAt
	}
	if strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "+00:00"
	}
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable created_at %q", raw)
}

// UploadDate is the display date: the part of the timestamp before any "T".
func (it Item) UploadDate() string {
	if i := strings.IndexByte(it.CreatedAt, 'T'); i >= 0 {
		return it.CreatedAt[:i]
	}
	return it.CreatedAt
}
