package records

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ProfileSchemaURL is the discovery profile schema applied when a record's
// domain consistency cites it.
const ProfileSchemaURL = "https://metadata-standards.data.bas.ac.uk/profiles/magic-discovery-v1/schema.json"

// profileHrefs maps domain-consistency specification hrefs to schema URLs.
var profileHrefs = map[string]string{
	"https://metadata-standards.data.bas.ac.uk/profiles/magic-discovery-v1/": ProfileSchemaURL,
	ProfileSchemaURL: ProfileSchemaURL,
}

var schemaFiles = map[string]string{
	SchemaURL:        "schemas/iso-19115-2-v4.json",
	ProfileSchemaURL: "schemas/magic-discovery-v1.json",
}

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func compiledSchemas() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		for url, path := range schemaFiles {
			data, err := schemaFS.ReadFile(path)
			if err != nil {
				compileErr = fmt.Errorf("read embedded schema %s: %w", path, err)
				return
			}
			if err := c.AddResource(url, bytes.NewReader(data)); err != nil {
				compileErr = fmt.Errorf("register schema %s: %w", url, err)
				return
			}
		}
		compiled = make(map[string]*jsonschema.Schema, len(schemaFiles))
		for url := range schemaFiles {
			sch, err := c.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", url, err)
				return
			}
			compiled[url] = sch
		}
	})
	return compiled, compileErr
}

// ValidateOptions narrows what Validate checks.
type ValidateOptions struct {
	// UseProfiles applies profile schemas cited by domain consistency.
	UseProfiles bool
	// ForceSchemas overrides schema resolution with an explicit URL list.
	ForceSchemas []string
}

// Validate checks the record against the fixed ISO schema, any resolved
// profile schemas, and the catalogue's structural invariants. Failures are
// returned as a RecordInvalidError.
func (r *Record) Validate(opts ValidateOptions) error {
	schemas, err := compiledSchemas()
	if err != nil {
		return err
	}

	urls := opts.ForceSchemas
	if urls == nil {
		urls = []string{SchemaURL}
		if opts.UseProfiles && r.DataQuality != nil {
			for _, dc := range r.DataQuality.DomainConsistency {
				if target, ok := profileHrefs[dc.Specification.Title.Href]; ok {
					urls = append(urls, target)
				}
			}
		}
	}

	raw, err := r.Unstructure()
	if err != nil {
		return err
	}
	// The schema validator needs plain decoded JSON values.
	doc, err := roundTrip(raw)
	if err != nil {
		return err
	}

	for _, url := range urls {
		sch, ok := schemas[url]
		if !ok {
			return invalid(r.FileIdentifier, "no schema registered for %s", url)
		}
		if err := sch.Validate(doc); err != nil {
			return &RecordInvalidError{FileIdentifier: r.FileIdentifier, Cause: err}
		}
	}

	return r.validateInvariants()
}

func roundTrip(raw map[string]any) (any, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal for validation: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal for validation: %w", err)
	}
	return doc, nil
}

// aliasPrefixes maps each hierarchy level to its permitted alias prefixes.
var aliasPrefixes = map[HierarchyLevel][]string{
	HierarchyCollection:      {"collections"},
	HierarchyDataset:         {"datasets"},
	HierarchyProduct:         {"products", "maps"},
	HierarchyPaperMapProduct: {"products", "maps"},
	HierarchySeries:          {"series"},
}

func (r *Record) validateInvariants() error {
	if r.FileIdentifier != TestRecordIdentifier {
		if _, err := uuid.Parse(r.FileIdentifier); err != nil {
			return invalid(r.FileIdentifier, "file identifier is not a UUID: %w", err)
		}
	}

	if err := r.validateCatalogueIdentifier(); err != nil {
		return err
	}

	if len(r.Identification.Contacts.Filter(RolePointOfContact)) == 0 {
		return invalid(r.FileIdentifier, "at least one identification contact must have the pointOfContact role")
	}

	seen := map[string]bool{}
	for _, extent := range r.Identification.Extents {
		if seen[extent.Identifier] {
			return invalid(r.FileIdentifier, "extent identifier %q is not unique", extent.Identifier)
		}
		seen[extent.Identifier] = true
	}

	for _, alias := range r.Aliases() {
		if err := r.validateAlias(alias); err != nil {
			return err
		}
	}

	return nil
}

func (r *Record) validateCatalogueIdentifier() error {
	ids := r.Identification.Identifiers.Filter(CatalogueNamespace)
	if len(ids) != 1 {
		return invalid(r.FileIdentifier, "expected exactly one identifier in the %s namespace, found %d", CatalogueNamespace, len(ids))
	}
	id := ids[0]
	if id.Identifier != r.FileIdentifier {
		return invalid(r.FileIdentifier, "catalogue identifier %q does not match file identifier", id.Identifier)
	}
	expected := "https://" + CatalogueNamespace + "/items/" + r.FileIdentifier
	if id.Href != expected {
		return invalid(r.FileIdentifier, "catalogue identifier href %q must be %q", id.Href, expected)
	}
	return nil
}

func (r *Record) validateAlias(alias Identifier) error {
	expectedHref := "https://" + CatalogueNamespace + "/" + alias.Identifier
	if alias.Href != expectedHref {
		return invalid(r.FileIdentifier, "alias href %q must be %q", alias.Href, expectedHref)
	}

	if strings.Count(alias.Identifier, "/") != 1 {
		return invalid(r.FileIdentifier, "alias %q must contain exactly one '/'", alias.Identifier)
	}

	prefix, suffix, _ := strings.Cut(alias.Identifier, "/")
	allowed, ok := aliasPrefixes[r.HierarchyLevel]
	if !ok {
		return invalid(r.FileIdentifier, "hierarchy level %q does not permit aliases", r.HierarchyLevel)
	}
	if !slices.Contains(allowed, prefix) {
		return invalid(r.FileIdentifier, "alias prefix %q is not valid for hierarchy level %q (expected one of %v)", prefix, r.HierarchyLevel, allowed)
	}

	if _, err := uuid.Parse(suffix); err == nil {
		return invalid(r.FileIdentifier, "alias %q must not contain a UUID", alias.Identifier)
	}

	return nil
}
