// Package ledger persists a durable history of tool invocations and
// produced extension packages in a Lode dataset.
//
// Records are Hive-partitioned by publisher/extension_id/day/record_kind.
// Package archives (the .vsix bytes) are stored beside the dataset under
// files/, bypassing the segment machinery.
package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/vsixctl/metrics"
	"github.com/pithecene-io/vsixctl/types"
)

// DefaultDataset is the dataset ID used when Config.Dataset is empty.
const DefaultDataset = "vsixctl"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"publisher", "extension_id", "day", "record_kind"}

// Config configures a Ledger.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Collector receives write outcomes. Optional.
	Collector *metrics.Collector
}

// Ledger writes records to a Lode dataset.
type Ledger struct {
	dataset      lode.Dataset
	config       Config
	storeFactory lode.StoreFactory

	mu        sync.Mutex
	storeOnce sync.Once
	store     lode.Store
	storeErr  error

	now func() time.Time
}

// NewFS returns a Ledger backed by the filesystem under root.
func NewFS(cfg Config, root string) (*Ledger, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, WrapInitError(err, root)
	}
	return NewWithFactory(cfg, lode.NewFSFactory(root))
}

// NewWithFactory returns a Ledger over a custom store factory.
// Use lode.NewMemoryFactory() in tests.
func NewWithFactory(cfg Config, factory lode.StoreFactory) (*Ledger, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &Ledger{
		dataset:      ds,
		config:       cfg,
		storeFactory: factory,
		now:          time.Now,
	}, nil
}

func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Dataset returns the dataset ID.
func (l *Ledger) Dataset() string { return l.config.Dataset }

// RecordInvocation appends an invocation record. A missing InvocationID is
// generated.
func (l *Ledger) RecordInvocation(ctx context.Context, rec types.InvocationRecord) error {
	if rec.InvocationID == "" {
		rec.InvocationID = uuid.NewString()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = l.now()
	}
	return l.write(ctx, invocationRecordMap(rec))
}

// RecordPackage appends a package record.
func (l *Ledger) RecordPackage(ctx context.Context, rec types.PackageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now()
	}
	return l.write(ctx, packageRecordMap(rec))
}

func (l *Ledger) write(ctx context.Context, record map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.dataset.Write(ctx, []any{record}, lode.Metadata{})
	l.config.Collector.IncLedgerWrite(err == nil)
	if err != nil {
		return WrapWriteError(err, fmt.Sprintf("%s/%s", l.config.Dataset, record["record_kind"]))
	}
	return nil
}

// ArchiveVSIX copies the package at path into the store and fills in
// rec's SHA256, SizeBytes and ArchivePath. The archive key is content
// addressed, so re-archiving identical bytes is idempotent.
func (l *Ledger) ArchiveVSIX(ctx context.Context, rec *types.PackageRecord, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	store, err := l.getOrCreateStore()
	if err != nil {
		l.config.Collector.IncLedgerWrite(false)
		return WrapInitError(err, l.config.Dataset)
	}

	key := l.buildArchivePath(rec, digest)
	err = store.Put(ctx, key, bytes.NewReader(data))
	l.config.Collector.IncLedgerWrite(err == nil)
	if err != nil {
		return WrapWriteError(err, key)
	}

	rec.SHA256 = digest
	rec.SizeBytes = int64(len(data))
	rec.ArchivePath = key
	if rec.VSIXPath == "" {
		rec.VSIXPath = path
	}
	return nil
}

// OpenArchive returns the bytes stored at an ArchivePath.
func (l *Ledger) OpenArchive(ctx context.Context, key string) ([]byte, error) {
	store, err := l.getOrCreateStore()
	if err != nil {
		return nil, WrapInitError(err, l.config.Dataset)
	}
	rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, WrapReadError(err, key)
	}
	defer func() { _ = rc.Close() }()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, WrapReadError(err, key)
	}
	return buf.Bytes(), nil
}

func (l *Ledger) getOrCreateStore() (lode.Store, error) {
	l.storeOnce.Do(func() {
		l.store, l.storeErr = l.storeFactory()
	})
	return l.store, l.storeErr
}

// buildArchivePath computes the key of an archived package.
// Format: datasets/<dataset>/files/publisher=<p>/extension_id=<e>/<version>/<sha256>.vsix
func (l *Ledger) buildArchivePath(rec *types.PackageRecord, digest string) string {
	return fmt.Sprintf("datasets/%s/files/publisher=%s/extension_id=%s/%s/%s.vsix",
		l.config.Dataset,
		partitionValue(rec.Publisher),
		partitionValue(rec.ExtensionID),
		partitionValue(rec.ExtensionVersion),
		digest,
	)
}

// Close releases ledger resources.
func (l *Ledger) Close() error {
	// Lode datasets hold no open handles.
	return nil
}
