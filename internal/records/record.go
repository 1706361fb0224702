// Package records implements the ISO 19115-flavoured metadata record model:
// typed entities, the canonical JSON form and content hash, JSON Schema plus
// catalogue invariant validation, and filterable entity containers.
package records

// SchemaURL identifies the record schema version fixed for a deployment.
const SchemaURL = "https://metadata-standards.data.bas.ac.uk/bas-metadata-generator-configuration-schemas/v2/iso-19115-2-v4.json"

// CatalogueNamespace is the identifier namespace owned by the catalogue.
const CatalogueNamespace = "data.bas.ac.uk"

// AliasNamespace is the identifier namespace for catalogue alias paths.
const AliasNamespace = "alias." + CatalogueNamespace

// TestRecordIdentifier is the one non-UUID file identifier accepted by
// validation, used by end-to-end tests against real deployments.
const TestRecordIdentifier = "x-test-records-test-record-1"

// HierarchyLevel classifies the resource a record describes.
type HierarchyLevel string

const (
	HierarchyCollection      HierarchyLevel = "collection"
	HierarchyDataset         HierarchyLevel = "dataset"
	HierarchyProduct         HierarchyLevel = "product"
	HierarchyPaperMapProduct HierarchyLevel = "paperMapProduct"
	HierarchySeries          HierarchyLevel = "series"
	HierarchyService         HierarchyLevel = "service"
)

// Record is the in-memory description of one catalogue resource.
type Record struct {
	FileIdentifier      string               `json:"file_identifier"`
	HierarchyLevel      HierarchyLevel       `json:"hierarchy_level"`
	Metadata            Metadata             `json:"metadata"`
	ReferenceSystemInfo *ReferenceSystemInfo `json:"reference_system_info,omitempty"`
	Identification      Identification       `json:"identification"`
	DataQuality         *DataQuality         `json:"data_quality,omitempty"`
	Distribution        []Distribution       `json:"distribution,omitempty"`
}

// RecordRevision is a Record plus the remote blob's last commit id at the
// point it was cached. All store-retrieved records are RecordRevisions.
type RecordRevision struct {
	Record
	FileRevision string `json:"file_revision"`
}

// Metadata is the record-level metadata block.
type Metadata struct {
	Contacts         Contacts          `json:"contacts,omitempty"`
	DateStamp        *Date             `json:"date_stamp,omitempty"`
	CharacterSet     string            `json:"character_set,omitempty"`
	Language         string            `json:"language,omitempty"`
	MetadataStandard *MetadataStandard `json:"metadata_standard,omitempty"`
}

// MetadataStandard cites the metadata standard a record conforms to.
type MetadataStandard struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DefaultMetadataStandard is the fixed ISO 19115-2:2009 citation re-applied
// on every unstructure.
var DefaultMetadataStandard = MetadataStandard{
	Name:    "ISO 19115-2 Geographic Information - Metadata - Part 2: Extensions for Imagery and Gridded Data",
	Version: "ISO 19115-2:2009(E)",
}

// ReferenceSystemInfo describes the record's CRS.
type ReferenceSystemInfo struct {
	Code      Code      `json:"code"`
	Version   string    `json:"version,omitempty"`
	Authority *Citation `json:"authority,omitempty"`
}

// Code is a value plus an optional resolvable href.
type Code struct {
	Value string `json:"value"`
	Href  string `json:"href,omitempty"`
}

// Citation cites an external document or authority.
type Citation struct {
	Title   Code     `json:"title"`
	Dates   Dates    `json:"dates,omitempty"`
	Edition string   `json:"edition,omitempty"`
	Contact *Contact `json:"contact,omitempty"`
}

// Identification is the resource identification block.
type Identification struct {
	Title                   string           `json:"title"`
	Abstract                string           `json:"abstract"`
	Purpose                 string           `json:"purpose,omitempty"`
	Dates                   Dates            `json:"dates,omitempty"`
	Edition                 string           `json:"edition,omitempty"`
	Identifiers             Identifiers      `json:"identifiers,omitempty"`
	Contacts                Contacts         `json:"contacts,omitempty"`
	Aggregations            Aggregations     `json:"aggregations,omitempty"`
	Constraints             Constraints      `json:"constraints,omitempty"`
	Extents                 Extents          `json:"extents,omitempty"`
	GraphicOverviews        GraphicOverviews `json:"graphic_overviews,omitempty"`
	Maintenance             *Maintenance     `json:"maintenance,omitempty"`
	SpatialResolution       *int             `json:"spatial_resolution,omitempty"`
	Series                  *Series          `json:"series,omitempty"`
	SupplementalInformation *string          `json:"supplemental_information,omitempty"`
}

// Identifier is a namespaced resource identifier.
type Identifier struct {
	Identifier string `json:"identifier"`
	Href       string `json:"href,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
}

// ContactRole enumerates ISO responsible-party roles used by the catalogue.
type ContactRole string

const (
	RolePointOfContact ContactRole = "pointOfContact"
	RoleAuthor         ContactRole = "author"
	RolePublisher      ContactRole = "publisher"
	RoleDistributor    ContactRole = "distributor"
	RoleCustodian      ContactRole = "custodian"
)

// ContactIdentity names a person or organisation.
type ContactIdentity struct {
	Name  string `json:"name"`
	Href  string `json:"href,omitempty"`
	Title string `json:"title,omitempty"`
}

// Address is a postal address.
type Address struct {
	DeliveryPoint      string `json:"delivery_point,omitempty"`
	City               string `json:"city,omitempty"`
	AdministrativeArea string `json:"administrative_area,omitempty"`
	PostalCode         string `json:"postal_code,omitempty"`
	Country            string `json:"country,omitempty"`
}

// OnlineResource points at a resource on the network.
type OnlineResource struct {
	Href        string `json:"href"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Function    string `json:"function,omitempty"`
}

// Contact is a responsible party with one or more roles.
type Contact struct {
	Organisation   *ContactIdentity `json:"organisation,omitempty"`
	Individual     *ContactIdentity `json:"individual,omitempty"`
	Email          string           `json:"email,omitempty"`
	Phone          string           `json:"phone,omitempty"`
	Address        *Address         `json:"address,omitempty"`
	OnlineResource *OnlineResource  `json:"online_resource,omitempty"`
	Role           []ContactRole    `json:"role,omitempty"`
}

// AssociationCode classifies an aggregation cross-reference.
type AssociationCode string

const (
	AssociationCrossReference     AssociationCode = "crossReference"
	AssociationLargerWorkCitation AssociationCode = "largerWorkCitation"
	AssociationIsComposedOf       AssociationCode = "isComposedOf"
	AssociationCollectiveTitle    AssociationCode = "collectiveTitle"
	AssociationSeries             AssociationCode = "series"
	AssociationRevisionOf         AssociationCode = "revisionOf"
)

// InitiativeCode classifies the initiative an aggregation relates to.
type InitiativeCode string

const (
	InitiativeCollection InitiativeCode = "collection"
	InitiativePaperMap   InitiativeCode = "paperMap"
	InitiativeCampaign   InitiativeCode = "campaign"
)

// Aggregation is a typed cross-reference to another record.
type Aggregation struct {
	Identifier      Identifier      `json:"identifier"`
	AssociationType AssociationCode `json:"association_type"`
	InitiativeType  InitiativeCode  `json:"initiative_type,omitempty"`
}

// ConstraintType separates access from usage constraints.
type ConstraintType string

const (
	ConstraintAccess ConstraintType = "access"
	ConstraintUsage  ConstraintType = "usage"
)

// RestrictionCode enumerates ISO restriction codes used by the catalogue.
type RestrictionCode string

const (
	RestrictionUnrestricted RestrictionCode = "unrestricted"
	RestrictionRestricted   RestrictionCode = "restricted"
	RestrictionLicence      RestrictionCode = "license"
)

// Constraint is an access or usage constraint on the resource.
type Constraint struct {
	Type            ConstraintType  `json:"type"`
	RestrictionCode RestrictionCode `json:"restriction_code,omitempty"`
	Statement       string          `json:"statement,omitempty"`
	Href            string          `json:"href,omitempty"`
}

// BoundingBox is a geographic extent in decimal degrees.
type BoundingBox struct {
	WestLongitude float64 `json:"west_longitude"`
	EastLongitude float64 `json:"east_longitude"`
	SouthLatitude float64 `json:"south_latitude"`
	NorthLatitude float64 `json:"north_latitude"`
}

// GeographicExtent bounds the resource spatially.
type GeographicExtent struct {
	BoundingBox *BoundingBox `json:"bounding_box,omitempty"`
	Identifier  *Identifier  `json:"identifier,omitempty"`
}

// TemporalPeriod bounds the resource in time.
type TemporalPeriod struct {
	Start *Date `json:"start,omitempty"`
	End   *Date `json:"end,omitempty"`
}

// TemporalExtent bounds the resource temporally.
type TemporalExtent struct {
	Period TemporalPeriod `json:"period"`
}

// Extent is a named spatial and/or temporal extent.
type Extent struct {
	Identifier string            `json:"identifier"`
	Geographic *GeographicExtent `json:"geographic,omitempty"`
	Temporal   *TemporalExtent   `json:"temporal,omitempty"`
}

// GraphicOverview is a preview image for the resource.
type GraphicOverview struct {
	Identifier  string `json:"identifier"`
	Href        string `json:"href"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}

// Maintenance describes upkeep of the resource.
type Maintenance struct {
	MaintenanceFrequency string `json:"maintenance_frequency,omitempty"`
	Progress             string `json:"progress,omitempty"`
}

// Series places the resource within a map or publication series.
type Series struct {
	Name    string `json:"name,omitempty"`
	Page    string `json:"page,omitempty"`
	Edition string `json:"edition,omitempty"`
}

// DataQuality carries lineage and schema-conformance results.
type DataQuality struct {
	Lineage           *Lineage            `json:"lineage,omitempty"`
	DomainConsistency []DomainConsistency `json:"domain_consistency,omitempty"`
}

// Lineage is a freeform statement of resource provenance.
type Lineage struct {
	Statement string `json:"statement"`
}

// DomainConsistency records conformance against a schema profile.
type DomainConsistency struct {
	Specification Citation `json:"specification"`
	Explanation   string   `json:"explanation,omitempty"`
	Result        bool     `json:"result"`
}

// Format describes a distribution's data format.
type Format struct {
	Format string `json:"format"`
	Href   string `json:"href,omitempty"`
}

// Size is the transfer size of a distribution.
type Size struct {
	Unit      string  `json:"unit"`
	Magnitude float64 `json:"magnitude"`
}

// TransferOption describes how a distribution is fetched.
type TransferOption struct {
	Online OnlineResource `json:"online_resource"`
	Size   *Size          `json:"size,omitempty"`
}

// Distribution describes one way the resource is served.
type Distribution struct {
	Format         *Format        `json:"format,omitempty"`
	Distributor    *Contact       `json:"distributor,omitempty"`
	TransferOption TransferOption `json:"transfer_option"`
}

// ItemHref returns the canonical catalogue page URL for a file identifier.
func ItemHref(baseURL, fileIdentifier string) string {
	return baseURL + "/items/" + fileIdentifier
}

// Aliases returns the record's alias identifiers.
func (r *Record) Aliases() Identifiers {
	return r.Identification.Identifiers.Filter(AliasNamespace)
}

// DOIs returns the record's DOI identifiers.
func (r *Record) DOIs() Identifiers {
	return r.Identification.Identifiers.Filter("doi")
}
