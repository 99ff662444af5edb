// Package folder writes harvested documents to a local directory tree.
package folder

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sync"

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
	PropertyRootFolder  = "rootFolder"
	PropertyCompression = "compression"
	PropertyOverwrite   = "overwrite"
)

// Broker stores each reference as one file, replacing it atomically on
// republish.
type Broker struct {
	def       models.EntityDefinition
	root      string
	overwrite bool
	encoder   *sdk.DocumentEncoder

	mu     sync.Mutex
	logger *zap.Logger
}

// NewBroker builds a broker from def.
func NewBroker(def models.EntityDefinition) (core.OutputBroker, error) {
	return New(def)
}

// New builds a broker from def.
func New(def models.EntityDefinition) (*Broker, error) {
	v := sdk.NewPropertyValidator(def)
	root := v.Required(PropertyRootFolder)
	alg := v.String(PropertyCompression, "")
	overwrite := v.Bool(PropertyOverwrite, true)
	if err := v.Err(); err != nil {
		return nil, err
	}
	enc, err := sdk.NewDocumentEncoder("", alg)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid root folder").WithDetail(PropertyRootFolder, root)
	}
	return &Broker{
		def:       def.Clone(),
		root:      abs,
		overwrite: overwrite,
		encoder:   enc,
		logger:    zap.NewNop(),
	}, nil
}

// Initialize creates the root folder when it does not exist.
func (b *Broker) Initialize(_ context.Context, initCtx core.InitContext) error {
	b.logger = initCtx.Log().With(zap.String("broker", b.BrokerURI()))
	if err := os.MkdirAll(b.root, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "cannot create root folder").WithDetail(PropertyRootFolder, b.root)
	}
	return nil
}

func (b *Broker) Terminate() error { return nil }

func (b *Broker) EntityDefinition() models.EntityDefinition { return b.def.Clone() }

func (b *Broker) BrokerURI() string {
	u := url.URL{Scheme: "folder", Path: filepath.ToSlash(b.root)}
	return u.String()
}

// Publish writes the document under the root folder.
func (b *Broker) Publish(ctx context.Context, ref *models.DataReference) (models.PublishingStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc, err := b.encoder.Encode(ref)
	if err != nil {
		return "", err
	}
	target := filepath.Join(b.root, filepath.FromSlash(doc.Name))

	b.mu.Lock()
	defer b.mu.Unlock()

	status := models.PublishingStatusCreated
	if _, err := os.Stat(target); err == nil {
		if !b.overwrite {
			return models.PublishingStatusSkipped, nil
		}
		status = models.PublishingStatusUpdated
	}

	if err := writeAtomic(target, doc.Body); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeOutput, "failed to write document").
			WithDetail("path", target).
			WithDetail("id", ref.ID)
	}
	b.logger.Debug("document written", zap.String("path", target), zap.String("status", string(status)))
	return status, nil
}

// writeAtomic writes through a temporary file in the target directory so
// readers never see a partial document.
func writeAtomic(target string, body []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".harvester-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}
