package items_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antarctica/lantern/internal/items"
	"github.com/antarctica/lantern/internal/records"
	"github.com/antarctica/lantern/internal/records/admin"
)

const testID = "5d5b4e21-fd32-409c-be83-ca1c339903e5"

func TestTimeTagPrecision(t *testing.T) {
	year, err := records.ParseDate("2014")
	require.NoError(t, err)
	assert.Equal(t, `<time datetime="2014">2014</time>`, items.TimeTag(year))

	month, err := records.ParseDate("2014-06")
	require.NoError(t, err)
	assert.Equal(t, `<time datetime="2014-06">June 2014</time>`, items.TimeTag(month))

	day, err := records.ParseDate("2014-06-30")
	require.NoError(t, err)
	assert.Equal(t, `<time datetime="2014-06-30">30 June 2014</time>`, items.TimeTag(day))

	instant, err := records.ParseDate("2014-06-30T14:30:00Z")
	require.NoError(t, err)
	assert.Equal(t,
		`<time datetime="2014-06-30T14:30:00Z">30 June 2014 14:30 UTC</time>`,
		items.TimeTag(instant))
}

func TestLabelledDatesOrdered(t *testing.T) {
	dates := records.Dates{
		records.DateRoleRevision: records.NewDate(2020, time.March, 1),
		records.DateRoleCreation: records.NewDate(2014, time.June, 30),
	}

	labelled := items.LabelledDates(dates)
	require.Len(t, labelled, 2)
	assert.Equal(t, "Item created", labelled[0].Label)
	assert.Equal(t, "Item updated", labelled[1].Label)
}

func TestHierarchyLabel(t *testing.T) {
	assert.Equal(t, "Dataset", items.HierarchyLabel(records.HierarchyDataset))
	assert.Equal(t, "Paper Map Product", items.HierarchyLabel(records.HierarchyPaperMapProduct))
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, items.AccessPublic, items.LevelFor(nil))
	assert.Equal(t, items.AccessPublic, items.LevelFor(&admin.Administration{ID: testID}))
	assert.Equal(t, items.AccessBAS, items.LevelFor(&admin.Administration{
		ID:                testID,
		AccessPermissions: []admin.Permission{{Directory: "NERC", Group: "BAS"}},
	}))
	assert.Equal(t, "Open Access", items.AccessPublic.Label())
}

func fileDistribution(formatHref, url string, bytes float64) records.Distribution {
	d := records.Distribution{
		Format:         &records.Format{Format: "x", Href: formatHref},
		TransferOption: records.TransferOption{Online: records.OnlineResource{Href: url}},
	}
	if bytes > 0 {
		d.TransferOption.Size = &records.Size{Unit: "bytes", Magnitude: bytes}
	}
	return d
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, items.KindGeoPackage,
		items.KindOf(fileDistribution(items.MediaTypeGeoPackage, "https://x/f.gpkg", 0)))
	assert.Equal(t, items.KindSANPath, items.KindOf(records.Distribution{
		TransferOption: records.TransferOption{Online: records.OnlineResource{Href: "sftp://san.nerc-bas.ac.uk/data"}},
	}))
	assert.Equal(t, items.KindOther, items.KindOf(records.Distribution{}))
}

func TestBucketPairsArcGISLayers(t *testing.T) {
	dists := []records.Distribution{
		fileDistribution(items.MediaTypeArcGISFeatureLayer, "https://agol/item/1", 0),
		fileDistribution(items.MediaTypeArcGISFeatureService, "https://svc/FeatureServer", 0),
		fileDistribution(items.MediaTypeGeoPackageZip, "https://x/f.gpkg.zip", 1024),
	}

	bucketed := items.Bucket(dists)
	require.Len(t, bucketed.Layers, 1)
	assert.Equal(t, "https://agol/item/1", bucketed.Layers[0].LayerURL)
	assert.Equal(t, "https://svc/FeatureServer", bucketed.Layers[0].ServiceURL)

	require.Len(t, bucketed.Downloads, 1, "service distributions never listed alone")
	assert.Equal(t, items.KindGeoPackageZip, bucketed.Downloads[0].Kind)
	assert.Equal(t, int64(1024), bucketed.Downloads[0].SizeBytes)
}

func revision(id string, level records.HierarchyLevel) *records.RecordRevision {
	return &records.RecordRevision{
		Record: records.Record{
			FileIdentifier: id,
			HierarchyLevel: level,
			Identification: records.Identification{
				Title:    "Map of Antarctica",
				Abstract: "An *important* map.\n\nWith detail.",
				Dates:    records.Dates{records.DateRoleCreation: records.NewDate(2014, time.June, 30)},
			},
		},
		FileRevision: "c1",
	}
}

func noResolve(context.Context, string) (*records.RecordRevision, error) {
	return nil, fmt.Errorf("unexpected resolve")
}

func TestBuildDefaultView(t *testing.T) {
	builder := items.NewBuilder("https://data.bas.ac.uk", admin.Keys{}, noResolve)

	view, err := builder.Build(t.Context(), revision(testID, records.HierarchyProduct))
	require.NoError(t, err)

	assert.Equal(t, "https://data.bas.ac.uk/items/"+testID, view.Href)
	assert.Contains(t, view.AbstractHTML, "<em>important</em>")
	assert.Equal(t, "An *important* map.", view.Summary)
	assert.Equal(t, items.AccessPublic, view.AccessLevel)
	assert.Nil(t, view.PhysicalMap)

	assert.Equal(t, "Map of Antarctica", view.OpenGraph["og:title"])
	assert.Contains(t, view.SchemaOrg, `"@type":"Map"`)

	var dataTab items.Tab
	for _, tab := range view.Tabs {
		if tab.ID == items.TabData {
			dataTab = tab
		}
	}
	assert.False(t, dataTab.Enabled, "no distributions")
}

func TestBuildPhysicalMapView(t *testing.T) {
	sideA := "0be10dfc-7b4a-4df9-8f62-66a2d2b9c14f"
	sideB := "9a3b5c6d-1e2f-4a5b-8c9d-0e1f2a3b4c5d"

	parent := revision(testID, records.HierarchyPaperMapProduct)
	for _, side := range []string{sideA, sideB} {
		parent.Identification.Aggregations = append(parent.Identification.Aggregations, records.Aggregation{
			Identifier:      records.Identifier{Identifier: side, Namespace: records.CatalogueNamespace},
			AssociationType: records.AssociationIsComposedOf,
			InitiativeType:  records.InitiativePaperMap,
		})
	}

	sides := map[string]*records.RecordRevision{
		sideA: revision(sideA, records.HierarchyDataset),
		sideB: revision(sideB, records.HierarchyDataset),
	}
	resolve := func(_ context.Context, id string) (*records.RecordRevision, error) {
		return sides[id], nil
	}

	builder := items.NewBuilder("https://data.bas.ac.uk", admin.Keys{}, resolve)
	view, err := builder.Build(t.Context(), parent)
	require.NoError(t, err)

	require.NotNil(t, view.PhysicalMap)
	require.Len(t, view.PhysicalMap.Sides, 2)
	assert.Equal(t, sideA, view.PhysicalMap.Sides[0].ID)
}
