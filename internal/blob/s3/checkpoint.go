package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// ObjectStore is the subset of object storage the checkpoint store needs.
type ObjectStore interface {
	domain.BlobReader
	domain.BlobWriter
	Delete(ctx context.Context, path string) error
}

// CheckpointStore implements domain.CalibrationCache on object storage. Each
// save writes a versioned object plus "latest.json"; only the newest keep
// versioned objects are retained.
type CheckpointStore struct {
	store  ObjectStore
	prefix string
	keep   int
}

// NewCheckpointStore creates a checkpoint store under prefix. keep <= 0
// keeps 24 versions.
func NewCheckpointStore(store ObjectStore, prefix string, keep int) *CheckpointStore {
	if prefix == "" {
		prefix = "calibration/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if keep <= 0 {
		keep = 24
	}
	return &CheckpointStore{store: store, prefix: prefix, keep: keep}
}

func (c *CheckpointStore) latestPath() string { return c.prefix + "latest.json" }

// versionPath zero-pads so lexical order matches version order.
func (c *CheckpointStore) versionPath(version uint64) string {
	return fmt.Sprintf("%sv%020d.json", c.prefix, version)
}

// SaveCalibration writes the state and prunes old versions. Pruning
// failures do not fail the save.
func (c *CheckpointStore) SaveCalibration(ctx context.Context, st *domain.CalibrationState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("s3blob: marshal calibration: %w", err)
	}
	if err := c.store.Put(ctx, c.versionPath(st.Version), bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: save calibration: %w", err)
	}
	if err := c.store.Put(ctx, c.latestPath(), bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: save calibration: %w", err)
	}
	_ = c.prune(ctx)
	return nil
}

// LoadCalibration returns the latest state or domain.ErrNotFound.
func (c *CheckpointStore) LoadCalibration(ctx context.Context) (*domain.CalibrationState, error) {
	body, err := c.store.Get(ctx, c.latestPath())
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("s3blob: load calibration: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read calibration: %w", err)
	}
	st := domain.NewCalibrationState(0)
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("s3blob: decode calibration: %w", err)
	}
	return st.Clone(), nil
}

// LoadVersion returns one retained version.
func (c *CheckpointStore) LoadVersion(ctx context.Context, version uint64) (*domain.CalibrationState, error) {
	path := c.versionPath(version)
	ok, err := c.store.Exists(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load calibration v%d: %w", version, err)
	}
	if !ok {
		return nil, fmt.Errorf("s3blob: calibration v%d: %w", version, domain.ErrNotFound)
	}
	body, err := c.store.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load calibration v%d: %w", version, err)
	}
	defer body.Close()
	st := domain.NewCalibrationState(0)
	if err := json.NewDecoder(body).Decode(st); err != nil {
		return nil, fmt.Errorf("s3blob: decode calibration v%d: %w", version, err)
	}
	return st.Clone(), nil
}

func (c *CheckpointStore) prune(ctx context.Context) error {
	infos, err := c.store.List(ctx, c.prefix+"v")
	if err != nil {
		return err
	}
	if len(infos) <= c.keep {
		return nil
	}
	paths := make([]string, 0, len(infos))
	for _, info := range infos {
		paths = append(paths, info.Path)
	}
	sort.Strings(paths)
	var errs []error
	for _, p := range paths[:len(paths)-c.keep] {
		if err := c.store.Delete(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Store bundles a Reader and Writer into an ObjectStore.
type Store struct {
	*Reader
	*Writer
}

// NewStore creates the reader and writer for c.
func NewStore(c *Client) *Store {
	return &Store{Reader: NewReader(c), Writer: NewWriter(c)}
}

var _ domain.CalibrationCache = (*CheckpointStore)(nil)
var _ ObjectStore = (*Store)(nil)
