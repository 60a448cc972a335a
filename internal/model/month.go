package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Month is a calendar month. The zero value is not a valid month.
type Month struct {
	Year  int
	Month time.Month
}

// NewMonth returns the Month containing t (in t's location).
func NewMonth(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth accepts "YYYY-MM" or "YYYY-MM-DD"; the day is ignored.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	layout := "2006-01"
	if len(s) > len(layout) {
		layout = "2006-01-02"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return Month{}, eris.Wrapf(err, "model: parse month %q", s)
	}
	return NewMonth(t), nil
}

// MustParseMonth is ParseMonth for literals; it panics on bad input.
func MustParseMonth(s string) Month {
	m, err := ParseMonth(s)
	if err != nil {
		panic(err)
	}
	return m
}

// IsZero reports whether m is the zero Month.
func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

// Start is midnight UTC on the first day of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the exclusive upper bound: the start of the following month.
func (m Month) End() time.Time { return m.Start().AddDate(0, 1, 0) }

// Next returns the following month.
func (m Month) Next() Month { return NewMonth(m.End()) }

// Prev returns the preceding month.
func (m Month) Prev() Month { return NewMonth(m.Start().AddDate(0, -1, 0)) }

func (m Month) index() int { return m.Year*12 + int(m.Month) - 1 }

// Before reports whether m is strictly earlier than o.
func (m Month) Before(o Month) bool { return m.index() < o.index() }

// After reports whether m is strictly later than o.
func (m Month) After(o Month) bool { return m.index() > o.index() }

// String formats the month as YYYY-MM.
func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

// Date formats the month as its first day, YYYY-MM-01, the form stored in month_date columns.
func (m Month) Date() string { return m.Start().Format("2006-01-02") }

// MarshalJSON implements json.Marshaler. The zero month encodes as "".
func (m Month) MarshalJSON() ([]byte, error) {
	if m.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(m.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Month) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return eris.Wrap(err, "model: month json")
	}
	if s == "" {
		*m = Month{}
		return nil
	}
	parsed, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value implements driver.Valuer so a Month can be bound directly to a DATE column.
func (m Month) Value() (driver.Value, error) {
	return m.Date(), nil
}

// Scan implements sql.Scanner for DATE and TEXT columns.
func (m *Month) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*m = NewMonth(v)
		return nil
	case string:
		parsed, err := ParseMonth(v)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case []byte:
		return m.Scan(string(v))
	default:
		return eris.Errorf("model: cannot scan %T into Month", src)
	}
}
