package records

import "slices"

// Identifiers is a filterable identifier list.
type Identifiers []Identifier

// Filter returns identifiers in the given namespace.
func (ids Identifiers) Filter(namespace string) Identifiers {
	var out Identifiers
	for _, id := range ids {
		if id.Namespace == namespace {
			out = append(out, id)
		}
	}
	return out
}

// Contacts is a filterable contact list.
type Contacts []Contact

// Filter returns contacts holding any of the given roles.
func (cs Contacts) Filter(roles ...ContactRole) Contacts {
	var out Contacts
	for _, c := range cs {
		for _, role := range roles {
			if slices.Contains(c.Role, role) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Aggregations is a filterable aggregation list.
type Aggregations []Aggregation

// AggregationFilter selects aggregations. Predicates combine with AND; the
// value lists within each predicate combine with OR. Zero-valued predicates
// match everything.
type AggregationFilter struct {
	Namespace    string
	Identifiers  []string
	Associations []AssociationCode
	Initiatives  []InitiativeCode
}

// Filter returns aggregations matching every set predicate.
func (as Aggregations) Filter(f AggregationFilter) Aggregations {
	var out Aggregations
	for _, a := range as {
		if f.Namespace != "" && a.Identifier.Namespace != f.Namespace {
			continue
		}
		if len(f.Identifiers) > 0 && !slices.Contains(f.Identifiers, a.Identifier.Identifier) {
			continue
		}
		if len(f.Associations) > 0 && !slices.Contains(f.Associations, a.AssociationType) {
			continue
		}
		if len(f.Initiatives) > 0 && !slices.Contains(f.Initiatives, a.InitiativeType) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Identifiers returns the referenced record identifiers, in order.
func (as Aggregations) RecordIdentifiers() []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.Identifier.Identifier)
	}
	return out
}

// Constraints is a filterable constraint list.
type Constraints []Constraint

// Filter returns constraints of the given type, optionally narrowed to any of
// the given restriction codes.
func (cs Constraints) Filter(typ ConstraintType, codes ...RestrictionCode) Constraints {
	var out Constraints
	for _, c := range cs {
		if c.Type != typ {
			continue
		}
		if len(codes) > 0 && !slices.Contains(codes, c.RestrictionCode) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Extents is a filterable extent list.
type Extents []Extent

// Filter returns extents with the given identifier.
func (es Extents) Filter(identifier string) Extents {
	var out Extents
	for _, e := range es {
		if e.Identifier == identifier {
			out = append(out, e)
		}
	}
	return out
}

// Bounding returns the record's bounding extent, conventionally identified as
// "bounding", or nil.
func (es Extents) Bounding() *Extent {
	for i := range es {
		if es[i].Identifier == "bounding" {
			return &es[i]
		}
	}
	return nil
}

// GraphicOverviews is a filterable overview list.
type GraphicOverviews []GraphicOverview

// Filter returns overviews with the given identifier.
func (gs GraphicOverviews) Filter(identifier string) GraphicOverviews {
	var out GraphicOverviews
	for _, g := range gs {
		if g.Identifier == identifier {
			out = append(out, g)
		}
	}
	return out
}
