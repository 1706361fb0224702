// Package items projects records into the presentation model rendered by the
// item HTML exporter: access labels, precision-aware dates, distribution
// buckets, tabs and page metadata fragments.
package items

import "github.com/antarctica/lantern/internal/records/admin"

// AccessLevel classifies who can reach a resource's data.
type AccessLevel string

const (
	AccessPublic AccessLevel = "public"
	AccessBAS    AccessLevel = "bas"
)

// Label returns the human label shown on item pages.
func (l AccessLevel) Label() string {
	switch l {
	case AccessPublic:
		return "Open Access"
	case AccessBAS:
		return "BAS Staff Only"
	default:
		return "Unknown"
	}
}

// LevelFor derives the access level from administrative metadata. A record
// without a seal, or a seal granting no access permissions, is open.
func LevelFor(administration *admin.Administration) AccessLevel {
	if administration == nil || administration.Public() {
		return AccessPublic
	}
	return AccessBAS
}
