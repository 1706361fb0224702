package records

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "5d5b4e21-fd32-409c-be83-ca1c339903e5"

// minimalRecordJSON is a complete-but-minimal product record in canonical form.
func minimalRecordJSON() string {
	return fmt.Sprintf(`{
		"file_identifier": %q,
		"hierarchy_level": "product",
		"metadata": {
			"character_set": "utf8",
			"language": "eng",
			"metadata_standard": {
				"name": %q,
				"version": %q
			}
		},
		"identification": {
			"title": "x",
			"abstract": "x",
			"dates": {"creation": "2014-06-30"},
			"identifiers": [
				{
					"identifier": %q,
					"href": "https://data.bas.ac.uk/items/%s",
					"namespace": "data.bas.ac.uk"
				}
			],
			"contacts": [
				{
					"organisation": {"name": "Mapping and Geographic Information Centre, British Antarctic Survey"},
					"email": "magic@bas.ac.uk",
					"role": ["pointOfContact"]
				}
			]
		}
	}`, testID, DefaultMetadataStandard.Name, DefaultMetadataStandard.Version, testID, testID)
}

func minimalRecord(t *testing.T) *Record {
	t.Helper()
	record, err := Structure([]byte(minimalRecordJSON()))
	require.NoError(t, err)
	return record
}

func TestStructureUnstructureRoundTrip(t *testing.T) {
	record := minimalRecord(t)

	raw, err := record.Unstructure()
	require.NoError(t, err)

	var want map[string]any
	require.NoError(t, json.Unmarshal([]byte(minimalRecordJSON()), &want))
	assert.Equal(t, want, raw)
}

func TestStructureRejectsForeignSchema(t *testing.T) {
	_, err := Structure([]byte(`{"$schema": "https://example.com/other.json"}`))
	assert.ErrorContains(t, err, "unsupported record schema")
}

func TestStructureAcceptsOwnSchema(t *testing.T) {
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(minimalRecordJSON()), &doc))
	doc["$schema"] = SchemaURL
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	record, err := Structure(data)
	require.NoError(t, err)
	assert.Equal(t, testID, record.FileIdentifier)
}

func TestDataQualityLiftedAndReinlined(t *testing.T) {
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(minimalRecordJSON()), &doc))
	ident := doc["identification"].(map[string]any)
	ident["lineage"] = map[string]any{"statement": "derived from survey data"}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	record, err := Structure(data)
	require.NoError(t, err)
	require.NotNil(t, record.DataQuality)
	require.NotNil(t, record.DataQuality.Lineage)
	assert.Equal(t, "derived from survey data", record.DataQuality.Lineage.Statement)

	raw, err := record.Unstructure()
	require.NoError(t, err)
	_, hasTopLevel := raw["data_quality"]
	assert.False(t, hasTopLevel, "data_quality merged back under identification")
	outIdent := raw["identification"].(map[string]any)
	assert.Equal(t, map[string]any{"statement": "derived from survey data"}, outIdent["lineage"])
}

func TestSHA1Stable(t *testing.T) {
	record := minimalRecord(t)

	first, err := record.SHA1()
	require.NoError(t, err)

	dumped, err := record.Dumps()
	require.NoError(t, err)
	reloaded, err := Structure(dumped)
	require.NoError(t, err)

	second, err := reloaded.SHA1()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 40)
}

func TestSHA1IgnoresAdminMetadata(t *testing.T) {
	record := minimalRecord(t)
	base, err := record.SHA1()
	require.NoError(t, err)

	require.NoError(t, record.SetSupplementalInfo(map[string]any{
		AdminMetadataKey: "opaque-token",
	}))
	withAdmin, err := record.SHA1()
	require.NoError(t, err)
	assert.Equal(t, base, withAdmin)
}

func TestDumpsWithAdminPreservesToken(t *testing.T) {
	record := minimalRecord(t)
	require.NoError(t, record.SetSupplementalInfo(map[string]any{
		AdminMetadataKey: "opaque-token",
		"physical_size":  "890x890mm",
	}))

	kept, err := record.DumpsWithAdmin()
	require.NoError(t, err)
	assert.Contains(t, string(kept), "opaque-token")

	stripped, err := record.Dumps()
	require.NoError(t, err)
	assert.NotContains(t, string(stripped), "opaque-token")
	assert.Contains(t, string(stripped), "physical_size")
}

func TestDumpsJSONCarriesSchema(t *testing.T) {
	record := minimalRecord(t)
	data, err := record.DumpsJSON(false)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, SchemaURL, doc["$schema"])
}

func TestSupplementalInfoEmptyResetsToNull(t *testing.T) {
	record := minimalRecord(t)
	require.NoError(t, record.SetSupplementalInfo(map[string]any{"k": "v"}))
	require.NotNil(t, record.Identification.SupplementalInformation)

	require.NoError(t, record.SetSupplementalInfo(map[string]any{}))
	assert.Nil(t, record.Identification.SupplementalInformation)
}
