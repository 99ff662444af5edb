// Package folder harvests metadata files from a local directory tree.
package folder

import (
	"context"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/sdk"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"go.uber.org/zap"
)

// Type is the connector type name.
const Type = "FOLDER"

// Definition properties.
const (
	PropertyRootFolder = "rootFolder"
	PropertyPattern    = "pattern"
	PropertyRecursive  = "recursive"
	PropertyMaxSize    = "maxFileSize"
)

const defaultMaxSize = 16 << 20

// Broker yields one reference per regular file under a root folder.
type Broker struct {
	def       models.EntityDefinition
	root      string
	pattern   string
	recursive bool
	maxSize   int64
	logger    *zap.Logger
}

// NewBroker builds a broker from def.
func NewBroker(def models.EntityDefinition) (core.InputBroker, error) {
	return New(def)
}

// New builds a broker from def.
func New(def models.EntityDefinition) (*Broker, error) {
	v := sdk.NewPropertyValidator(def)
	root := v.Required(PropertyRootFolder)
	pattern := v.String(PropertyPattern, "*")
	recursive := v.Bool(PropertyRecursive, true)
	maxSize := v.Int(PropertyMaxSize, defaultMaxSize, 1, 0)
	if err := v.Err(); err != nil {
		return nil, err
	}
	if _, err := filepath.Match(pattern, "probe"); err != nil {
		return nil, errors.New(errors.ErrorTypeConfig, "invalid file pattern").
			WithDetail("type", Type).
			WithDetail(PropertyPattern, pattern)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid root folder").WithDetail(PropertyRootFolder, root)
	}
	return &Broker{
		def:       def.Clone(),
		root:      abs,
		pattern:   pattern,
		recursive: recursive,
		maxSize:   int64(maxSize),
		logger:    zap.NewNop(),
	}, nil
}

// Initialize checks the root folder exists.
func (b *Broker) Initialize(_ context.Context, initCtx core.InitContext) error {
	b.logger = initCtx.Log().With(zap.String("broker", b.BrokerURI()))
	info, err := os.Stat(b.root)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "root folder is not accessible").WithDetail(PropertyRootFolder, b.root)
	}
	if !info.IsDir() {
		return errors.New(errors.ErrorTypeConfig, "root folder is not a directory").WithDetail(PropertyRootFolder, b.root)
	}
	return nil
}

func (b *Broker) Terminate() error { return nil }

func (b *Broker) EntityDefinition() models.EntityDefinition { return b.def.Clone() }

// BrokerURI is folder:// followed by the absolute root path.
func (b *Broker) BrokerURI() string {
	u := url.URL{Scheme: "folder", Path: filepath.ToSlash(b.root)}
	return u.String()
}

// Iterator lists the matching files in lexical order. Files are read lazily;
// with a LastHarvest set, files not modified since are left out.
func (b *Broker) Iterator(ctx context.Context, iterCtx core.IteratorContext) (core.Iterator, error) {
	var files []string
	err := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			b.logger.Warn("skipping unreadable path", zap.String("path", p), zap.Error(err))
			if d != nil && d.IsDir() && p != b.root {
				return filepath.SkipDir
			}
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if p != b.root && (!b.recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if ok, _ := filepath.Match(b.pattern, d.Name()); !ok {
			return nil
		}
		if iterCtx.LastHarvest != nil {
			info, err := d.Info()
			if err != nil || info.ModTime().Before(*iterCtx.LastHarvest) {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInput, "failed to list folder").WithDetail(PropertyRootFolder, b.root)
	}
	sort.Strings(files)
	return &iterator{broker: b, files: files}, nil
}

type iterator struct {
	broker *Broker
	files  []string
	pos    int
}

func (it *iterator) HasNext(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return it.pos < len(it.files), nil
}

// Next reads the pending file. A file that cannot be read still advances the
// iterator so the caller may skip it.
func (it *iterator) Next(_ context.Context) (*models.DataReference, error) {
	if it.pos >= len(it.files) {
		return nil, errors.New(errors.ErrorTypeInternal, "Next called without a pending element")
	}
	p := it.files[it.pos]
	it.pos++
	return it.broker.read(p)
}

func (b *Broker) read(p string) (*models.DataReference, error) {
	rel, err := filepath.Rel(b.root, p)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInput, "file outside root folder").WithDetail("path", p)
	}
	id := filepath.ToSlash(rel)

	info, err := os.Stat(p)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInput, "failed to stat file").WithDetail("path", p)
	}
	if info.Size() > b.maxSize {
		return nil, errors.New(errors.ErrorTypeInput, "file exceeds the size limit").
			WithDetail("path", p).
			WithDetail("size", info.Size())
	}
	content, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInput, "failed to read file").WithDetail("path", p)
	}

	modified := info.ModTime().UTC()
	return &models.DataReference{
		BrokerURI:    b.BrokerURI(),
		SourceLabel:  b.def.Label,
		ID:           id,
		LastModified: &modified,
		ContentURI:   (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String(),
		Content:      content,
		ContentType:  contentType(p, content),
	}, nil
}

func contentType(p string, content []byte) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".xml", ".rdf":
		return "application/xml"
	case ".json":
		return "application/json"
	}
	ct := http.DetectContentType(content)
	if strings.HasPrefix(ct, "text/xml") {
		return "application/xml"
	}
	return ct
}
