package sdk

import (
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ajitpratap0/harvester/pkg/compression"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
)

// Object metadata keys written by the file and object store sinks.
const (
	MetaBrokerURI    = "harvester-broker-uri"
	MetaID           = "harvester-id"
	MetaSourceLabel  = "harvester-source-label"
	MetaLastModified = "harvester-last-modified"
	MetaContentURI   = "harvester-content-uri"
)

// Document is a data reference laid out for a file system or object store.
type Document struct {
	// Name is a slash separated relative path
	Name            string
	Body            []byte
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string
}

// DocumentEncoder names and compresses references for file-like sinks.
// Names are <prefix>/<source scope>/<id><ext>, so documents of different
// sources never collide and republishing a reference overwrites it.
type DocumentEncoder struct {
	prefix     string
	compressor compression.Compressor
}

// NewDocumentEncoder creates an encoder. algorithm is a compression name,
// blank for none.
func NewDocumentEncoder(prefix, algorithm string) (*DocumentEncoder, error) {
	alg, err := compression.ParseAlgorithm(algorithm)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid compression")
	}
	c, err := compression.NewCompressor(alg, compression.Default)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid compression")
	}
	return &DocumentEncoder{prefix: strings.Trim(prefix, "/"), compressor: c}, nil
}

// Algorithm returns the compression applied to bodies.
func (e *DocumentEncoder) Algorithm() compression.Algorithm { return e.compressor.Algorithm() }

// Name returns the relative path of ref.
func (e *DocumentEncoder) Name(ref *models.DataReference) string {
	file := safeSegment(ref.ID) + contentExtension(ref.ContentType) + e.compressor.Extension()
	return path.Join(e.prefix, scopeOf(ref.BrokerURI), file)
}

// Encode lays out ref.
func (e *DocumentEncoder) Encode(ref *models.DataReference) (*Document, error) {
	if ref.ID == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "reference has no id").WithDetail("broker", ref.BrokerURI)
	}
	body, err := e.compressor.Compress(ref.Content)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to compress document").
			WithDetail("id", ref.ID).
			WithDetail("compression", string(e.compressor.Algorithm()))
	}
	return &Document{
		Name:            e.Name(ref),
		Body:            body,
		ContentType:     ref.ContentType,
		ContentEncoding: e.compressor.ContentEncoding(),
		Metadata:        ReferenceMetadata(ref),
	}, nil
}

// ReferenceMetadata returns the descriptive fields of ref, omitting blank ones.
func ReferenceMetadata(ref *models.DataReference) map[string]string {
	m := map[string]string{
		MetaBrokerURI: ref.BrokerURI,
		MetaID:        ref.ID,
	}
	if ref.SourceLabel != "" {
		m[MetaSourceLabel] = ref.SourceLabel
	}
	if ref.ContentURI != "" {
		m[MetaContentURI] = ref.ContentURI
	}
	if ref.LastModified != nil {
		m[MetaLastModified] = ref.LastModified.UTC().Format(time.RFC3339)
	}
	return m
}

// scopeOf turns a broker URI into a directory: host and path when it parses
// as a URL, the sanitized URI otherwise.
func scopeOf(brokerURI string) string {
	u, err := url.Parse(brokerURI)
	if err != nil || (u.Host == "" && u.Path == "") {
		return safeSegment(brokerURI)
	}
	parts := []string{safeSegment(u.Scheme)}
	if u.Host != "" {
		parts = append(parts, safeSegment(u.Host))
	}
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" && p != "." && p != ".." {
			parts = append(parts, safeSegment(p))
		}
	}
	return path.Join(parts...)
}

func safeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "_"
	}
	return out
}

func contentExtension(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch {
	case ct == "application/xml", ct == "text/xml", strings.HasSuffix(ct, "+xml"):
		return ".xml"
	case ct == "application/json", strings.HasSuffix(ct, "+json"):
		return ".json"
	case ct == "text/plain":
		return ".txt"
	case ct == "text/html":
		return ".html"
	default:
		return ".dat"
	}
}
