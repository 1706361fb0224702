package items

import (
	"strings"

	"github.com/antarctica/lantern/internal/records"
)

// Kind enumerates the distribution variants the catalogue knows how to
// present. Anything else is listed verbatim without special handling.
type Kind string

const (
	KindArcGISFeatureLayer    Kind = "arcgis_feature_layer"
	KindArcGISOGCFeatureLayer Kind = "arcgis_ogc_feature_layer"
	KindArcGISVectorTileLayer Kind = "arcgis_vector_tile_layer"
	KindArcGISRasterTileLayer Kind = "arcgis_raster_tile_layer"
	KindGeoPackage            Kind = "geopackage"
	KindGeoPackageZip         Kind = "geopackage_zip"
	KindGeoJSON               Kind = "geojson"
	KindPDF                   Kind = "pdf"
	KindPDFGeoreferenced      Kind = "pdf_georeferenced"
	KindPNG                   Kind = "png"
	KindJPEG                  Kind = "jpeg"
	KindShapefileZip          Kind = "shapefile_zip"
	KindPublishedMap          Kind = "published_map"
	KindSANPath               Kind = "san_path"
	KindOther                 Kind = "other"
)

// Label returns the variant name shown in the data tab.
func (k Kind) Label() string {
	switch k {
	case KindArcGISFeatureLayer:
		return "ArcGIS Feature Layer"
	case KindArcGISOGCFeatureLayer:
		return "ArcGIS OGC Feature Layer"
	case KindArcGISVectorTileLayer:
		return "ArcGIS Vector Tile Layer"
	case KindArcGISRasterTileLayer:
		return "ArcGIS Raster Tile Layer"
	case KindGeoPackage:
		return "GeoPackage"
	case KindGeoPackageZip:
		return "GeoPackage (zipped)"
	case KindGeoJSON:
		return "GeoJSON"
	case KindPDF:
		return "PDF"
	case KindPDFGeoreferenced:
		return "PDF (georeferenced)"
	case KindPNG:
		return "PNG"
	case KindJPEG:
		return "JPEG"
	case KindShapefileZip:
		return "Shapefile (zipped)"
	case KindPublishedMap:
		return "Published map"
	case KindSANPath:
		return "SAN path"
	default:
		return "Download"
	}
}

// Catalogue media-type register hrefs carried in distribution formats.
const (
	mediaTypeRegister = "https://metadata-resources.data.bas.ac.uk/media-types/"

	MediaTypeArcGISFeatureLayer      = mediaTypeRegister + "x-service/arcgis+layer+feature"
	MediaTypeArcGISFeatureService    = mediaTypeRegister + "x-service/arcgis+service+feature"
	MediaTypeArcGISOGCFeatureLayer   = mediaTypeRegister + "x-service/arcgis+layer+feature+ogc"
	MediaTypeArcGISOGCFeatureService = mediaTypeRegister + "x-service/arcgis+service+feature+ogc"
	MediaTypeArcGISVectorTileLayer   = mediaTypeRegister + "x-service/arcgis+layer+tile+vector"
	MediaTypeArcGISVectorTileService = mediaTypeRegister + "x-service/arcgis+service+tile+vector"
	MediaTypeArcGISRasterTileLayer   = mediaTypeRegister + "x-service/arcgis+layer+tile+raster"
	MediaTypeArcGISRasterTileService = mediaTypeRegister + "x-service/arcgis+service+tile+raster"
	MediaTypeGeoPackage              = "https://www.iana.org/assignments/media-types/application/geopackage+sqlite3"
	MediaTypeGeoPackageZip           = mediaTypeRegister + "application/geopackage+sqlite3+zip"
	MediaTypeGeoJSON                 = "https://www.iana.org/assignments/media-types/application/geo+json"
	MediaTypePDF                     = "https://www.iana.org/assignments/media-types/application/pdf"
	MediaTypePDFGeoreferenced        = mediaTypeRegister + "application/pdf+geo"
	MediaTypePNG                     = "https://www.iana.org/assignments/media-types/image/png"
	MediaTypeJPEG                    = "https://www.iana.org/assignments/media-types/image/jpeg"
	MediaTypeShapefileZip            = mediaTypeRegister + "application/zip+shp"
)

var fileKinds = map[string]Kind{
	MediaTypeGeoPackage:       KindGeoPackage,
	MediaTypeGeoPackageZip:    KindGeoPackageZip,
	MediaTypeGeoJSON:          KindGeoJSON,
	MediaTypePDF:              KindPDF,
	MediaTypePDFGeoreferenced: KindPDFGeoreferenced,
	MediaTypePNG:              KindPNG,
	MediaTypeJPEG:             KindJPEG,
	MediaTypeShapefileZip:     KindShapefileZip,
}

// arcGISFamilies pairs a layer media type with its service media type.
var arcGISFamilies = []struct {
	kind    Kind
	layer   string
	service string
}{
	{KindArcGISFeatureLayer, MediaTypeArcGISFeatureLayer, MediaTypeArcGISFeatureService},
	{KindArcGISOGCFeatureLayer, MediaTypeArcGISOGCFeatureLayer, MediaTypeArcGISOGCFeatureService},
	{KindArcGISVectorTileLayer, MediaTypeArcGISVectorTileLayer, MediaTypeArcGISVectorTileService},
	{KindArcGISRasterTileLayer, MediaTypeArcGISRasterTileLayer, MediaTypeArcGISRasterTileService},
}

// Download is one presentable file distribution.
type Download struct {
	Kind      Kind
	URL       string
	SizeBytes int64
	Format    string
}

// ArcGISLayer pairs a layer item with its backing service endpoint.
type ArcGISLayer struct {
	Kind       Kind
	LayerURL   string
	ServiceURL string
}

// Distributions is a record's distributions bucketed into catalogue variants.
type Distributions struct {
	Downloads    []Download
	Layers       []ArcGISLayer
	SANPaths     []string
	PublishedMap *Download
}

// KindOf classifies a single distribution.
func KindOf(d records.Distribution) Kind {
	if strings.HasPrefix(d.TransferOption.Online.Href, "sftp://san") {
		return KindSANPath
	}
	if d.TransferOption.Online.Function == "order" {
		return KindPublishedMap
	}
	if d.Format == nil {
		return KindOther
	}
	if kind, ok := fileKinds[d.Format.Href]; ok {
		return kind
	}
	for _, family := range arcGISFamilies {
		if d.Format.Href == family.layer {
			return family.kind
		}
	}
	return KindOther
}

// SizeBytes returns a distribution's transfer size in bytes, or 0 if unknown
// or recorded in another unit.
func SizeBytes(d records.Distribution) int64 {
	size := d.TransferOption.Size
	if size == nil || size.Unit != "bytes" {
		return 0
	}
	return int64(size.Magnitude)
}

// Bucket partitions a record's distributions into presentation groups.
// ArcGIS layers pair with the service distribution of the same family;
// service distributions never appear on their own.
func Bucket(dists []records.Distribution) Distributions {
	var out Distributions

	services := map[string]string{}
	for _, d := range dists {
		if d.Format == nil {
			continue
		}
		for _, family := range arcGISFamilies {
			if d.Format.Href == family.service {
				services[family.service] = d.TransferOption.Online.Href
			}
		}
	}

	for _, d := range dists {
		switch kind := KindOf(d); kind {
		case KindSANPath:
			out.SANPaths = append(out.SANPaths, d.TransferOption.Online.Href)
		case KindPublishedMap:
			download := Download{Kind: kind, URL: d.TransferOption.Online.Href}
			out.PublishedMap = &download
		case KindArcGISFeatureLayer, KindArcGISOGCFeatureLayer, KindArcGISVectorTileLayer, KindArcGISRasterTileLayer:
			layer := ArcGISLayer{Kind: kind, LayerURL: d.TransferOption.Online.Href}
			for _, family := range arcGISFamilies {
				if family.kind == kind {
					layer.ServiceURL = services[family.service]
				}
			}
			out.Layers = append(out.Layers, layer)
		case KindOther:
			if isArcGISService(d) {
				continue
			}
			out.Downloads = append(out.Downloads, Download{
				Kind: kind, URL: d.TransferOption.Online.Href,
				SizeBytes: SizeBytes(d), Format: formatName(d),
			})
		default:
			out.Downloads = append(out.Downloads, Download{
				Kind: kind, URL: d.TransferOption.Online.Href,
				SizeBytes: SizeBytes(d), Format: formatName(d),
			})
		}
	}
	return out
}

func isArcGISService(d records.Distribution) bool {
	if d.Format == nil {
		return false
	}
	for _, family := range arcGISFamilies {
		if d.Format.Href == family.service {
			return true
		}
	}
	return false
}

func formatName(d records.Distribution) string {
	if d.Format == nil {
		return ""
	}
	return d.Format.Format
}
