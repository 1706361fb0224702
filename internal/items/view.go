package items

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/antarctica/lantern/internal/htmlutil"
	"github.com/antarctica/lantern/internal/records"
	"github.com/antarctica/lantern/internal/records/admin"
)

// Tab identifiers in page order.
const (
	TabItems          = "items"
	TabData           = "data"
	TabAuthors        = "authors"
	TabLicence        = "licence"
	TabExtent         = "extent"
	TabLineage        = "lineage"
	TabRelated        = "related"
	TabAdditionalInfo = "additional-info"
	TabContact        = "contact"
	TabAdmin          = "admin"
)

// Tab is one item-page tab and whether the record populates it.
type Tab struct {
	ID      string
	Label   string
	Enabled bool
}

// View is the payload handed to the item page template.
type View struct {
	ID             string
	Href           string
	Title          string
	HierarchyLevel records.HierarchyLevel
	HierarchyLabel string
	AbstractHTML   string
	Summary        string
	Edition        string
	AccessLevel    AccessLevel
	Dates          []LabelledDate
	Citation       string
	Tabs           []Tab
	Distributions  Distributions
	Aliases        records.Identifiers
	DOIs           records.Identifiers
	Thumbnail      string
	Extent         *records.Extent
	Lineage        string
	Authors        records.Contacts
	Licence        *records.Constraint
	Related        records.Aggregations
	OpenGraph      map[string]string
	SchemaOrg      string
	PhysicalMap    *PhysicalMap
	FileRevision   string
}

// PhysicalMap composes the per-side child records of a paper map product.
type PhysicalMap struct {
	Sides []MapSide
}

// MapSide is one printed side of a physical map.
type MapSide struct {
	ID     string
	Title  string
	Extent *records.Extent
	Series *records.Series
}

// Resolver looks up related records by identifier against the build snapshot.
type Resolver func(ctx context.Context, id string) (*records.RecordRevision, error)

// Strategy builds the view variant appropriate to a record. The first
// strategy whose Matches returns true wins; DefaultStrategy matches
// everything.
type Strategy interface {
	Matches(revision *records.RecordRevision) bool
	Build(ctx context.Context, b *Builder, revision *records.RecordRevision) (*View, error)
}

// Builder assembles item views against one build snapshot.
type Builder struct {
	baseURL    string
	keys       admin.Keys
	resolve    Resolver
	strategies []Strategy
}

// NewBuilder creates a builder. Strategies are consulted in order, before the
// default.
func NewBuilder(baseURL string, keys admin.Keys, resolve Resolver) *Builder {
	return &Builder{
		baseURL: baseURL,
		keys:    keys,
		resolve: resolve,
		strategies: []Strategy{
			&PhysicalMapStrategy{},
			&DefaultStrategy{},
		},
	}
}

// Build produces the view for one record revision.
func (b *Builder) Build(ctx context.Context, revision *records.RecordRevision) (*View, error) {
	for _, strategy := range b.strategies {
		if strategy.Matches(revision) {
			return strategy.Build(ctx, b, revision)
		}
	}
	return nil, fmt.Errorf("no view strategy for %s", revision.FileIdentifier)
}

// DefaultStrategy handles every record shape.
type DefaultStrategy struct{}

func (s *DefaultStrategy) Matches(*records.RecordRevision) bool { return true }

func (s *DefaultStrategy) Build(_ context.Context, b *Builder, revision *records.RecordRevision) (*View, error) {
	return b.baseView(revision)
}

// PhysicalMapStrategy handles paper map products composed of per-side child
// records, rendering multi-extent and multi-series displays.
type PhysicalMapStrategy struct{}

func (s *PhysicalMapStrategy) Matches(revision *records.RecordRevision) bool {
	if revision.HierarchyLevel != records.HierarchyPaperMapProduct {
		return false
	}
	return len(sideAggregations(revision)) > 0
}

func (s *PhysicalMapStrategy) Build(ctx context.Context, b *Builder, revision *records.RecordRevision) (*View, error) {
	view, err := b.baseView(revision)
	if err != nil {
		return nil, err
	}

	physical := &PhysicalMap{}
	for _, aggregation := range sideAggregations(revision) {
		side, err := b.resolve(ctx, aggregation.Identifier.Identifier)
		if err != nil {
			return nil, fmt.Errorf("resolve map side %s: %w", aggregation.Identifier.Identifier, err)
		}
		physical.Sides = append(physical.Sides, MapSide{
			ID:     side.FileIdentifier,
			Title:  side.Identification.Title,
			Extent: side.Identification.Extents.Bounding(),
			Series: side.Identification.Series,
		})
	}
	view.PhysicalMap = physical
	view.Tabs = tabsFor(view)
	return view, nil
}

func sideAggregations(revision *records.RecordRevision) records.Aggregations {
	return revision.Identification.Aggregations.Filter(records.AggregationFilter{
		Associations: []records.AssociationCode{records.AssociationIsComposedOf},
		Initiatives:  []records.InitiativeCode{records.InitiativePaperMap},
	})
}

func (b *Builder) baseView(revision *records.RecordRevision) (*View, error) {
	administration, err := admin.Load(b.keys, &revision.Record)
	if err != nil {
		return nil, err
	}

	abstract, err := htmlutil.Markdown(revision.Identification.Abstract)
	if err != nil {
		return nil, err
	}

	view := &View{
		ID:             revision.FileIdentifier,
		Href:           records.ItemHref(b.baseURL, revision.FileIdentifier),
		Title:          revision.Identification.Title,
		HierarchyLevel: revision.HierarchyLevel,
		HierarchyLabel: HierarchyLabel(revision.HierarchyLevel),
		AbstractHTML:   abstract,
		Summary:        htmlutil.FirstLine(revision.Identification.Abstract),
		Edition:        revision.Identification.Edition,
		AccessLevel:    LevelFor(administration),
		Dates:          LabelledDates(revision.Identification.Dates),
		Distributions:  Bucket(revision.Distribution),
		Aliases:        revision.Aliases(),
		DOIs:           revision.DOIs(),
		Extent:         revision.Identification.Extents.Bounding(),
		Authors:        revision.Identification.Contacts.Filter(records.RoleAuthor),
		Related:        revision.Identification.Aggregations,
		FileRevision:   revision.FileRevision,
	}

	if overview := revision.Identification.GraphicOverviews.Filter("overview"); len(overview) > 0 {
		view.Thumbnail = overview[0].Href
	}
	if revision.DataQuality != nil && revision.DataQuality.Lineage != nil {
		view.Lineage, err = htmlutil.Markdown(revision.DataQuality.Lineage.Statement)
		if err != nil {
			return nil, err
		}
	}
	if licences := revision.Identification.Constraints.Filter(records.ConstraintUsage, records.RestrictionLicence); len(licences) > 0 {
		view.Licence = &licences[0]
	}

	view.Tabs = tabsFor(view)
	view.OpenGraph = openGraph(view)
	view.SchemaOrg, err = schemaOrg(view)
	if err != nil {
		return nil, err
	}
	return view, nil
}

func tabsFor(view *View) []Tab {
	return []Tab{
		{ID: TabItems, Label: "Items", Enabled: view.PhysicalMap != nil},
		{ID: TabData, Label: "Data", Enabled: len(view.Distributions.Downloads) > 0 || len(view.Distributions.Layers) > 0 || view.Distributions.PublishedMap != nil},
		{ID: TabAuthors, Label: "Authors", Enabled: len(view.Authors) > 0},
		{ID: TabLicence, Label: "Licence", Enabled: view.Licence != nil},
		{ID: TabExtent, Label: "Extent", Enabled: view.Extent != nil},
		{ID: TabLineage, Label: "Lineage", Enabled: view.Lineage != ""},
		{ID: TabRelated, Label: "Related", Enabled: len(view.Related) > 0},
		{ID: TabAdditionalInfo, Label: "Additional Information", Enabled: true},
		{ID: TabContact, Label: "Contact", Enabled: true},
	}
}

func openGraph(view *View) map[string]string {
	og := map[string]string{
		"og:title":     view.Title,
		"og:url":       view.Href,
		"og:site_name": "BAS Data Catalogue",
		"og:type":      "website",
	}
	if view.Summary != "" {
		og["og:description"] = view.Summary
	}
	if view.Thumbnail != "" {
		og["og:image"] = view.Thumbnail
	}
	return og
}

func schemaOrg(view *View) (string, error) {
	doc := map[string]any{
		"@context": "https://schema.org",
		"@type":    schemaType(view.HierarchyLevel),
		"name":     view.Title,
		"url":      view.Href,
	}
	if view.Summary != "" {
		doc["description"] = view.Summary
	}
	if view.Thumbnail != "" {
		doc["image"] = view.Thumbnail
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("schema.org fragment for %s: %w", view.ID, err)
	}
	return string(data), nil
}

func schemaType(level records.HierarchyLevel) string {
	switch level {
	case records.HierarchyDataset:
		return "Dataset"
	case records.HierarchyPaperMapProduct, records.HierarchyProduct:
		return "Map"
	case records.HierarchyCollection, records.HierarchySeries:
		return "Collection"
	default:
		return "CreativeWork"
	}
}
