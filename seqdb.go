// Package seqdb wires the block files, the buffer pool and the sequential
// indexes of one data directory together.
package seqdb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jobala/seqdb/buffer"
	"github.com/jobala/seqdb/config"
	"github.com/jobala/seqdb/index"
	"github.com/jobala/seqdb/logging"
	"github.com/jobala/seqdb/storage/disk"
	"github.com/jobala/seqdb/util"
)

func Open(cfg config.Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ownsLogger := false
	if !logging.IsInitialized() {
		err := logging.Init(logging.Config{
			Level:      logging.Level(cfg.Log.Level),
			Format:     cfg.Log.Format,
			OutputPath: cfg.Log.Output,
		})
		if err != nil {
			return nil, fmt.Errorf("error initializing logger: %w", err)
		}
		ownsLogger = true
	}

	policy, err := buffer.ParsePolicy(cfg.ReplacementPolicy)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("error creating data dir %s: %w", cfg.DataDir, err)
	}

	fm := disk.NewManager(cfg.DataDir, cfg.BlockSize)
	scheduler := disk.NewScheduler(fm)

	db := &DB{
		cfg:        cfg,
		files:      fm,
		scheduler:  scheduler,
		pool:       buffer.NewBufferpoolManager(cfg.BufferFrames, policy, scheduler),
		ownsLogger: ownsLogger,
		log:        logging.WithComponent("db"),
	}

	db.log.Info("opened database", "dir", cfg.DataDir, "blockSize", cfg.BlockSize, "frames", cfg.BufferFrames, "policy", policy)
	return db, nil
}

// CreateIndex creates an empty sequential index file together with its
// metadata.
func (db *DB) CreateIndex(name string, attrType index.AttrType, unique bool) error {
	opts := index.Options{
		AttrType:        attrType,
		Mode:            index.WRITE,
		Unique:          unique,
		MaxTidsPerEntry: db.cfg.MaxTidsPerEntry,
	}

	meta := index.NewMeta(index.SEQUENTIAL, opts, db.files.BlockSize())
	if err := meta.Check(db.files.BlockSize()); err != nil {
		return err
	}
	data, err := meta.Encode()
	if err != nil {
		return err
	}

	if err := db.pool.CreateFile(name); err != nil {
		if errors.Is(err, util.ErrFileExists) {
			return util.NewError(util.ErrIndexExists, "%s", name)
		}
		return err
	}

	if err := db.initIndex(name, opts, data); err != nil {
		if dropErr := db.pool.DropFile(name); dropErr != nil {
			db.log.Error("failed to drop index after failed create", "index", name, "error", dropErr)
		}
		return err
	}

	logging.WithFile("db", name).Info("created index", "attr", attrType, "unique", unique)
	return nil
}

func (db *DB) initIndex(name string, opts index.Options, meta []byte) error {
	if err := db.files.WriteMeta(name, meta); err != nil {
		return err
	}

	file, err := db.pool.OpenFile(name)
	if err != nil {
		return err
	}

	idx, err := index.New(index.SEQUENTIAL, db.pool, file, opts)
	if err != nil {
		return errors.Join(err, db.pool.CloseFile(file))
	}

	return errors.Join(idx.Close(), db.pool.CloseFile(file))
}

// OpenIndex opens an index created by CreateIndex. Every opened index must
// be closed before the index is dropped or the database closed.
func (db *DB) OpenIndex(name string, mode index.Mode) (*Index, error) {
	data, err := db.files.ReadMeta(name)
	if err != nil {
		return nil, err
	}

	meta, err := index.DecodeMeta(data)
	if err != nil {
		return nil, util.NewError(util.ErrMetaMismatch, "decoding metadata of %s: %v", name, err)
	}
	if err := meta.Check(db.files.BlockSize()); err != nil {
		return nil, err
	}
	if meta.Kind != index.SEQUENTIAL {
		return nil, util.NewError(util.ErrUnknownKind, "%s is a %s index", name, meta.Kind)
	}

	file, err := db.pool.OpenFile(name)
	if err != nil {
		return nil, err
	}

	opts := meta.Options(mode)
	idx, err := index.NewSeqIndex(db.pool, file, opts.AttrType, mode, opts.Unique, opts.MaxTidsPerEntry)
	if err != nil {
		return nil, errors.Join(err, db.pool.CloseFile(file))
	}

	logging.WithFile("db", name).Debug("opened index", "mode", mode)
	return &Index{SeqIndex: idx, db: db, file: file}, nil
}

// DropIndex removes the index file and its metadata. It fails while the
// index is open.
func (db *DB) DropIndex(name string) error {
	if err := db.pool.DropFile(name); err != nil {
		return err
	}

	logging.WithFile("db", name).Info("dropped index")
	return nil
}

func (db *DB) Pool() *buffer.BufferpoolManager {
	return db.pool
}

// Close writes every modified block back and stops the disk scheduler. All
// write back failures and blocks still fixed are reported together.
func (db *DB) Close() error {
	errs := db.pool.Shutdown()
	db.scheduler.Close()

	db.log.Info("closed database", "errors", len(errs))
	if db.ownsLogger {
		errs = append(errs, logging.Close())
	}
	return errors.Join(errs...)
}

// Close closes the index and releases its file.
func (i *Index) Close() error {
	return errors.Join(i.SeqIndex.Close(), i.db.pool.CloseFile(i.file))
}

type DB struct {
	cfg        config.Config
	files      *disk.FileManager
	scheduler  *disk.DiskScheduler
	pool       *buffer.BufferpoolManager
	ownsLogger bool
	log        *slog.Logger
}

// Index is an open sequential index of a DB.
type Index struct {
	*index.SeqIndex
	db   *DB
	file *disk.File
}
