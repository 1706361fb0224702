// Package iso is the seam to the external BAS ISO 19115 XML codec. The
// pipeline only ever encodes; Codec is the interface exporters depend on and
// Encoder is a minimal built-in implementation producing ISO 19139 documents.
package iso

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/antarctica/lantern/internal/records"
)

// Codec encodes records as ISO XML documents.
type Codec interface {
	Encode(record *records.RecordRevision) ([]byte, error)
}

// Stylesheet names the XSL stylesheet used to render record XML in browsers,
// relative to the site's static assets.
const Stylesheet = "/static/xsl/iso-html/xml-to-html-ISO.xsl"

// Encoder is the built-in Codec.
type Encoder struct{}

// NewEncoder returns the built-in ISO 19139 encoder.
func NewEncoder() *Encoder { return &Encoder{} }

type mdMetadata struct {
	XMLName        xml.Name           `xml:"gmd:MD_Metadata"`
	XMLNSGMD       string             `xml:"xmlns:gmd,attr"`
	XMLNSGCO       string             `xml:"xmlns:gco,attr"`
	FileIdentifier charStr            `xml:"gmd:fileIdentifier"`
	Language       charStr            `xml:"gmd:language"`
	CharacterSet   charStr            `xml:"gmd:characterSet"`
	HierarchyLevel charStr            `xml:"gmd:hierarchyLevel"`
	DateStamp      *charStr           `xml:"gmd:dateStamp,omitempty"`
	Identification identificationInfo `xml:"gmd:identificationInfo"`
	Distributions  []distributionInfo `xml:"gmd:distributionInfo,omitempty"`
}

type charStr struct {
	Value string `xml:"gco:CharacterString"`
}

type identificationInfo struct {
	Title    charStr  `xml:"gmd:MD_DataIdentification>gmd:citation>gmd:CI_Citation>gmd:title"`
	Abstract charStr  `xml:"gmd:MD_DataIdentification>gmd:abstract"`
	Edition  *charStr `xml:"gmd:MD_DataIdentification>gmd:citation>gmd:CI_Citation>gmd:edition,omitempty"`
}

type distributionInfo struct {
	Linkage charStr `xml:"gmd:MD_Distribution>gmd:transferOptions>gmd:MD_DigitalTransferOptions>gmd:onLine>gmd:CI_OnlineResource>gmd:linkage>gmd:URL"`
}

// Encode serialises the record as an ISO 19139 metadata document.
func (e *Encoder) Encode(record *records.RecordRevision) ([]byte, error) {
	doc := mdMetadata{
		XMLNSGMD:       "http://www.isotc211.org/2005/gmd",
		XMLNSGCO:       "http://www.isotc211.org/2005/gco",
		FileIdentifier: charStr{Value: record.FileIdentifier},
		Language:       charStr{Value: "eng"},
		CharacterSet:   charStr{Value: "utf8"},
		HierarchyLevel: charStr{Value: string(record.HierarchyLevel)},
		Identification: identificationInfo{
			Title:    charStr{Value: record.Identification.Title},
			Abstract: charStr{Value: record.Identification.Abstract},
		},
	}
	if record.Metadata.DateStamp != nil {
		doc.DateStamp = &charStr{Value: record.Metadata.DateStamp.String()}
	}
	if record.Identification.Edition != "" {
		doc.Identification.Edition = &charStr{Value: record.Identification.Edition}
	}
	for _, dist := range record.Distribution {
		doc.Distributions = append(doc.Distributions, distributionInfo{
			Linkage: charStr{Value: dist.TransferOption.Online.Href},
		})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode ISO XML for %s: %w", record.FileIdentifier, err)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// EncodeStyled prepends the catalogue stylesheet processing instruction so
// the document renders as HTML in browsers.
func EncodeStyled(codec Codec, record *records.RecordRevision) ([]byte, error) {
	body, err := codec.Encode(record)
	if err != nil {
		return nil, err
	}
	styled := bytes.Replace(body,
		[]byte(xml.Header),
		[]byte(xml.Header+`<?xml-stylesheet type="text/xsl" href="`+Stylesheet+`"?>`+"\n"),
		1,
	)
	return styled, nil
}
