package exporters

import (
	"context"
	"fmt"

	"github.com/antarctica/lantern/internal/iso"
	"github.com/antarctica/lantern/internal/publish"
	"github.com/antarctica/lantern/internal/records"
)

// ISOXMLExporter writes the record as an ISO 19139 XML document.
type ISOXMLExporter struct {
	deps     *Deps
	revision *records.RecordRevision
}

func (e *ISOXMLExporter) Name() string { return "iso_xml" }

func (e *ISOXMLExporter) key() string {
	return "records/" + e.revision.FileIdentifier + ".xml"
}

func (e *ISOXMLExporter) body() ([]byte, error) {
	return e.deps.Codec.Encode(e.revision)
}

func (e *ISOXMLExporter) Export(context.Context) error {
	body, err := e.body()
	if err != nil {
		return err
	}
	return e.deps.writeFile(e.key(), body)
}

func (e *ISOXMLExporter) Publish(ctx context.Context) error {
	body, err := e.body()
	if err != nil {
		return err
	}
	return e.deps.Uploader.UploadContent(ctx, e.key(), body,
		publish.WithContentType("application/xml"),
		publish.WithMetadata(resourceMeta(e.revision)),
	)
}

// ISOXMLHTMLExporter writes the same XML with the catalogue stylesheet
// processing instruction, served with an HTML content type so browsers apply
// the XSLT.
type ISOXMLHTMLExporter struct {
	deps     *Deps
	revision *records.RecordRevision
}

func (e *ISOXMLHTMLExporter) Name() string { return "iso_xml_html" }

func (e *ISOXMLHTMLExporter) key() string {
	return "records/" + e.revision.FileIdentifier + ".html"
}

func (e *ISOXMLHTMLExporter) body() ([]byte, error) {
	return iso.EncodeStyled(e.deps.Codec, e.revision)
}

func (e *ISOXMLHTMLExporter) Export(context.Context) error {
	body, err := e.body()
	if err != nil {
		return err
	}
	return e.deps.writeFile(e.key(), body)
}

func (e *ISOXMLHTMLExporter) Publish(ctx context.Context) error {
	body, err := e.body()
	if err != nil {
		return err
	}
	return e.deps.Uploader.UploadContent(ctx, e.key(), body,
		publish.WithContentType("text/html"),
		publish.WithMetadata(resourceMeta(e.revision)),
	)
}

// JSONExporter writes the record's canonical JSON with administrative
// metadata stripped.
type JSONExporter struct {
	deps     *Deps
	revision *records.RecordRevision
}

func (e *JSONExporter) Name() string { return "json" }

func (e *JSONExporter) key() string {
	return "records/" + e.revision.FileIdentifier + ".json"
}

func (e *JSONExporter) body() ([]byte, error) {
	return e.revision.DumpsJSON(false)
}

func (e *JSONExporter) Export(context.Context) error {
	body, err := e.body()
	if err != nil {
		return err
	}
	return e.deps.writeFile(e.key(), body)
}

func (e *JSONExporter) Publish(ctx context.Context) error {
	body, err := e.body()
	if err != nil {
		return err
	}
	return e.deps.Uploader.UploadContent(ctx, e.key(), body,
		publish.WithMetadata(resourceMeta(e.revision)),
	)
}

// AliasExporter writes a redirect page per alias identifier, pointing at the
// item page. Published objects additionally carry an S3 redirect header so
// the bucket serves a real 301.
type AliasExporter struct {
	deps     *Deps
	revision *records.RecordRevision
}

func (e *AliasExporter) Name() string { return "html_aliases" }

func (e *AliasExporter) target() string {
	return "/items/" + e.revision.FileIdentifier + "/index.html"
}

// RedirectBody is the HTML body served for an alias path.
func RedirectBody(target string) []byte {
	return []byte(fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="0;url=%s">
<title>Redirecting</title>
</head>
<body><a href="%s">Click here if you are not redirected.</a></body>
</html>
`, target, target))
}

func (e *AliasExporter) Export(context.Context) error {
	for _, alias := range e.revision.Aliases() {
		if err := e.deps.writeFile(alias.Identifier+"/index.html", RedirectBody(e.target())); err != nil {
			return err
		}
	}
	return nil
}

func (e *AliasExporter) Publish(ctx context.Context) error {
	for _, alias := range e.revision.Aliases() {
		err := e.deps.Uploader.UploadContent(ctx, alias.Identifier+"/index.html", RedirectBody(e.target()),
			publish.WithRedirect(e.target()),
			publish.WithMetadata(resourceMeta(e.revision)),
		)
		if err != nil {
			return err
		}
	}
	return nil
}
