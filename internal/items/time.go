package items

import (
	"fmt"

	"github.com/antarctica/lantern/internal/records"
)

// TimeTag renders a date as an HTML time element at the date's recorded
// precision.
func TimeTag(d records.Date) string {
	return fmt.Sprintf(`<time datetime="%s">%s</time>`, d.String(), TimeLabel(d))
}

// TimeLabel renders a date as human text at the date's recorded precision.
func TimeLabel(d records.Date) string {
	switch {
	case d.HasTime:
		return d.Time.UTC().Format("2 January 2006 15:04 UTC")
	case d.Precision == records.PrecisionYear:
		return d.Time.Format("2006")
	case d.Precision == records.PrecisionMonth:
		return d.Time.Format("January 2006")
	default:
		return d.Time.Format("2 January 2006")
	}
}

// LabelledDate is one row of an item page's dates list.
type LabelledDate struct {
	Label string
	Tag   string
}

// dateRoleLabels orders and names the roles shown on item pages.
var dateRoleLabels = []struct {
	role  string
	label string
}{
	{records.DateRoleCreation, "Item created"},
	{records.DateRolePublication, "Item published"},
	{records.DateRoleRevision, "Item updated"},
	{records.DateRoleReleased, "Data released"},
	{records.DateRoleAdopted, "Adopted"},
}

// LabelledDates projects a record's dates into display order, skipping roles
// the record does not carry.
func LabelledDates(dates records.Dates) []LabelledDate {
	var out []LabelledDate
	for _, entry := range dateRoleLabels {
		if d, ok := dates[entry.role]; ok {
			out = append(out, LabelledDate{Label: entry.label, Tag: TimeTag(d)})
		}
	}
	return out
}
