package records

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DatePrecision records how much of a date was present in the source so the
// value round-trips losslessly.
type DatePrecision uint8

const (
	// PrecisionDay covers full dates and datetimes.
	PrecisionDay DatePrecision = iota
	PrecisionMonth
	PrecisionYear
)

// Date is a point in time with explicit precision. Datetimes must be UTC.
type Date struct {
	Time      time.Time
	Precision DatePrecision
	HasTime   bool
}

// NewDate returns a day-precision Date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// String renders the date at its recorded precision.
func (d Date) String() string {
	switch {
	case d.HasTime:
		return d.Time.UTC().Format(time.RFC3339)
	case d.Precision == PrecisionYear:
		return d.Time.Format("2006")
	case d.Precision == PrecisionMonth:
		return d.Time.Format("2006-01")
	default:
		return d.Time.Format("2006-01-02")
	}
}

// MarshalJSON encodes the date at its recorded precision.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes "2014", "2014-06", "2014-06-30" or an RFC 3339
// datetime. Datetimes with a non-zero zone offset are rejected.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDate parses a date string at any supported precision.
func ParseDate(raw string) (Date, error) {
	if strings.Contains(raw, "T") {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Date{}, fmt.Errorf("parse datetime %q: %w", raw, err)
		}
		if _, offset := t.Zone(); offset != 0 {
			return Date{}, fmt.Errorf("datetime %q must be UTC", raw)
		}
		return Date{Time: t.UTC(), HasTime: true}, nil
	}

	switch strings.Count(raw, "-") {
	case 0:
		t, err := time.Parse("2006", raw)
		if err != nil {
			return Date{}, fmt.Errorf("parse year %q: %w", raw, err)
		}
		return Date{Time: t, Precision: PrecisionYear}, nil
	case 1:
		t, err := time.Parse("2006-01", raw)
		if err != nil {
			return Date{}, fmt.Errorf("parse month %q: %w", raw, err)
		}
		return Date{Time: t, Precision: PrecisionMonth}, nil
	case 2:
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Date{}, fmt.Errorf("parse date %q: %w", raw, err)
		}
		return Date{Time: t}, nil
	default:
		return Date{}, fmt.Errorf("unrecognised date %q", raw)
	}
}

// Dates maps a date role (creation, publication, revision, released, ...) to
// its value.
type Dates map[string]Date

// Role names used across the catalogue.
const (
	DateRoleCreation    = "creation"
	DateRolePublication = "publication"
	DateRoleRevision    = "revision"
	DateRoleReleased    = "released"
	DateRoleAdopted     = "adopted"
)
