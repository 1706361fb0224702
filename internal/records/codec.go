package records

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// AdminMetadataKey is the reserved supplemental-information key holding the
// sealed administrative metadata token.
const AdminMetadataKey = "administrative_metadata"

// Structure decodes a canonical JSON document into a Record. A "$schema" key,
// when present, must equal SchemaURL. The workaround keys "lineage" and
// "domain_consistency" under identification are lifted into a top-level data
// quality block.
func Structure(data []byte) (*Record, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}

	if schema, ok := raw["$schema"]; ok {
		if schema != SchemaURL {
			return nil, fmt.Errorf("unsupported record schema %v", schema)
		}
		delete(raw, "$schema")
	}
	delete(raw, "_schema")

	// Lift the data-quality workaround keys out of identification.
	if ident, ok := raw["identification"].(map[string]any); ok {
		dq := map[string]any{}
		if lineage, ok := ident["lineage"]; ok {
			dq["lineage"] = lineage
			delete(ident, "lineage")
		}
		if consistency, ok := ident["domain_consistency"]; ok {
			dq["domain_consistency"] = consistency
			delete(ident, "domain_consistency")
		}
		if len(dq) > 0 {
			raw["data_quality"] = dq
		}
	}

	normalised, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("normalise record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(normalised, &record); err != nil {
		return nil, fmt.Errorf("structure record: %w", err)
	}
	return &record, nil
}

// Unstructure produces the record's canonical JSON object: defaults applied,
// data quality re-inlined under identification, empty values stripped.
func (r *Record) Unstructure() (map[string]any, error) {
	withDefaults := *r
	withDefaults.Metadata.CharacterSet = "utf8"
	withDefaults.Metadata.Language = "eng"
	standard := DefaultMetadataStandard
	withDefaults.Metadata.MetadataStandard = &standard

	data, err := json.Marshal(withDefaults)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unstructure record: %w", err)
	}

	delete(raw, "$schema")
	delete(raw, "_schema")

	// Re-inline data quality under identification.
	if dq, ok := raw["data_quality"].(map[string]any); ok {
		ident, _ := raw["identification"].(map[string]any)
		if ident == nil {
			ident = map[string]any{}
			raw["identification"] = ident
		}
		if lineage, ok := dq["lineage"]; ok {
			ident["lineage"] = lineage
		}
		if consistency, ok := dq["domain_consistency"]; ok {
			ident["domain_consistency"] = consistency
		}
		delete(raw, "data_quality")
	}

	stripped, _ := stripEmpty(raw).(map[string]any)
	return stripped, nil
}

// Dumps serialises the record's canonical form: deterministic key order, no
// indent. Administrative metadata is stripped unless keepAdmin is set.
func (r *Record) Dumps() ([]byte, error) {
	return r.dumps(true)
}

// DumpsWithAdmin is Dumps preserving any sealed administrative metadata, as
// used when writing record files back upstream.
func (r *Record) DumpsWithAdmin() ([]byte, error) {
	return r.dumps(false)
}

func (r *Record) dumps(stripAdmin bool) ([]byte, error) {
	raw, err := r.Unstructure()
	if err != nil {
		return nil, err
	}
	if stripAdmin {
		stripAdminKey(raw)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("serialise record: %w", err)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return nil, fmt.Errorf("canonicalise record: %w", err)
	}
	return canonical, nil
}

// DumpsJSON serialises the record for file output, with the schema URL under
// "$schema" and two-space indentation. Administrative metadata is stripped
// unless keepAdmin is set.
func (r *Record) DumpsJSON(keepAdmin bool) ([]byte, error) {
	raw, err := r.Unstructure()
	if err != nil {
		return nil, err
	}
	if !keepAdmin {
		stripAdminKey(raw)
	}
	raw["$schema"] = SchemaURL
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialise record: %w", err)
	}
	return data, nil
}

// SHA1 is the record's content hash: the SHA-1 of the canonical form with
// administrative metadata stripped.
func (r *Record) SHA1() (string, error) {
	canonical, err := r.Dumps()
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// SupplementalInfo parses identification.supplemental_information as a JSON
// object of freeform key/values. A missing value yields an empty map.
func (r *Record) SupplementalInfo() (map[string]any, error) {
	if r.Identification.SupplementalInformation == nil {
		return map[string]any{}, nil
	}
	var info map[string]any
	if err := json.Unmarshal([]byte(*r.Identification.SupplementalInformation), &info); err != nil {
		return nil, fmt.Errorf("parse supplemental information: %w", err)
	}
	return info, nil
}

// SetSupplementalInfo replaces identification.supplemental_information with
// the given key/values. An empty map sets the field back to null.
func (r *Record) SetSupplementalInfo(info map[string]any) error {
	if len(info) == 0 {
		r.Identification.SupplementalInformation = nil
		return nil
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("serialise supplemental information: %w", err)
	}
	s := string(data)
	r.Identification.SupplementalInformation = &s
	return nil
}

// stripAdminKey removes the sealed admin token from the unstructured form's
// supplemental information, dropping the field entirely if it was the only key.
func stripAdminKey(raw map[string]any) {
	ident, ok := raw["identification"].(map[string]any)
	if !ok {
		return
	}
	encoded, ok := ident["supplemental_information"].(string)
	if !ok {
		return
	}
	var info map[string]any
	if err := json.Unmarshal([]byte(encoded), &info); err != nil {
		return
	}
	if _, present := info[AdminMetadataKey]; !present {
		return
	}
	delete(info, AdminMetadataKey)
	if len(info) == 0 {
		delete(ident, "supplemental_information")
		return
	}
	remaining, err := json.Marshal(info)
	if err != nil {
		return
	}
	ident["supplemental_information"] = string(remaining)
}

// stripEmpty recursively removes nils, empty strings, and empty collections.
// Zero numbers and false booleans are significant and kept.
func stripEmpty(v any) any {
	switch value := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			cleaned := stripEmpty(item)
			if isEmpty(cleaned) {
				continue
			}
			out[k] = cleaned
		}
		return out
	case []any:
		out := make([]any, 0, len(value))
		for _, item := range value {
			cleaned := stripEmpty(item)
			if isEmpty(cleaned) {
				continue
			}
			out = append(out, cleaned)
		}
		return out
	default:
		return v
	}
}

func isEmpty(v any) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return value == ""
	case map[string]any:
		return len(value) == 0
	case []any:
		return len(value) == 0
	default:
		return false
	}
}
