package disk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jobala/seqdb/util"
)

const (
	DEFAULT_BLOCK_SIZE = 1024
	META_SUFFIX        = ".meta"
)

func NewManager(dir string, blockSize int) *FileManager {
	if blockSize <= 0 {
		blockSize = DEFAULT_BLOCK_SIZE
	}

	return &FileManager{
		dir:       dir,
		blockSize: blockSize,
		files:     map[string]*File{},
	}
}

func (fm *FileManager) BlockSize() int {
	return fm.blockSize
}

func (fm *FileManager) CreateFile(name string) error {
	fd, err := os.OpenFile(fm.path(name), os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return util.NewError(util.ErrFileExists, "create %s", name)
		}
		return fmt.Errorf("error creating %s: %w", name, err)
	}

	return fd.Close()
}

// DropFile closes the file if it is open and removes it together with its
// metadata sidecar.
func (fm *FileManager) DropFile(name string) error {
	fm.mu.Lock()
	if f, ok := fm.files[name]; ok {
		_ = f.fd.Close()
		f.fd = nil
		delete(fm.files, name)
	}
	fm.mu.Unlock()

	if err := os.Remove(fm.path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return util.NewError(util.ErrFileNotFound, "drop %s", name)
		}
		return fmt.Errorf("error dropping %s: %w", name, err)
	}

	if err := os.Remove(fm.path(name + META_SUFFIX)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error dropping metadata of %s: %w", name, err)
	}
	return nil
}

// OpenFile returns the shared handle of name. Every OpenFile must be paired
// with a CloseFile.
func (fm *FileManager) OpenFile(name string) (*File, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if f, ok := fm.files[name]; ok {
		f.refs++
		return f, nil
	}

	fd, err := os.OpenFile(fm.path(name), os.O_RDWR, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, util.NewError(util.ErrFileNotFound, "open %s", name)
		}
		return nil, fmt.Errorf("error opening %s: %w", name, err)
	}

	f := &File{
		name:      name,
		fd:        fd,
		refs:      1,
		blockSize: fm.blockSize,
	}
	fm.files[name] = f
	return f, nil
}

func (fm *FileManager) CloseFile(f *File) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if f.fd == nil {
		return util.NewError(util.ErrFileClosed, "close %s", f.name)
	}

	f.refs--
	if f.refs > 0 {
		return nil
	}

	delete(fm.files, f.name)
	err := f.fd.Close()
	f.fd = nil
	return err
}

// Refs returns how many OpenFile calls on f are still unclosed.
func (fm *FileManager) Refs(f *File) int {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if f.fd == nil {
		return 0
	}
	return f.refs
}

func (fm *FileManager) ReadBlock(f *File, blockNo uint32, buf []byte) error {
	if err := fm.checkBlock(f, blockNo, len(buf)); err != nil {
		return err
	}

	n, err := f.fd.ReadAt(buf[:fm.blockSize], f.offset(blockNo))
	if err != nil {
		if errors.Is(err, io.EOF) && n < fm.blockSize {
			return util.NewError(util.ErrShortBlock, "read %s block %d", f.name, blockNo)
		}
		return fmt.Errorf("error reading %s block %d: %w", f.name, blockNo, err)
	}

	return nil
}

func (fm *FileManager) WriteBlock(f *File, blockNo uint32, data []byte) error {
	if err := fm.checkBlock(f, blockNo, len(data)); err != nil {
		return err
	}

	if _, err := f.fd.WriteAt(data[:fm.blockSize], f.offset(blockNo)); err != nil {
		return fmt.Errorf("error writing %s block %d: %w", f.name, blockNo, err)
	}

	return nil
}

func (fm *FileManager) BlockCount(f *File) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.blockCount()
}

// AppendBlock grows the file by one zeroed block and returns its number.
func (fm *FileManager) AppendBlock(f *File) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cnt, err := f.blockCount()
	if err != nil {
		return 0, err
	}

	if err := f.fd.Truncate(f.offset(cnt + 1)); err != nil {
		return 0, fmt.Errorf("error growing %s: %w", f.name, err)
	}
	return cnt, nil
}

func (fm *FileManager) SetBlockCount(f *File, cnt uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fd == nil {
		return util.NewError(util.ErrFileClosed, "resize %s", f.name)
	}

	if err := f.fd.Truncate(f.offset(cnt)); err != nil {
		return fmt.Errorf("error resizing %s to %d blocks: %w", f.name, cnt, err)
	}
	return nil
}

func (fm *FileManager) WriteMeta(name string, data []byte) error {
	if err := os.WriteFile(fm.path(name+META_SUFFIX), data, 0o644); err != nil {
		return fmt.Errorf("error writing metadata of %s: %w", name, err)
	}
	return nil
}

func (fm *FileManager) ReadMeta(name string) ([]byte, error) {
	data, err := os.ReadFile(fm.path(name + META_SUFFIX))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, util.NewError(util.ErrFileNotFound, "metadata of %s", name)
		}
		return nil, fmt.Errorf("error reading metadata of %s: %w", name, err)
	}
	return data, nil
}

func (fm *FileManager) checkBlock(f *File, blockNo uint32, bufLen int) error {
	if bufLen < fm.blockSize {
		return util.NewError(util.ErrShortBlock, "buffer of %d bytes for %s", bufLen, f.name)
	}

	cnt, err := fm.BlockCount(f)
	if err != nil {
		return err
	}
	if blockNo >= cnt {
		return util.NewError(util.ErrBlockOutOfRange, "%s block %d of %d", f.name, blockNo, cnt)
	}
	return nil
}

func (fm *FileManager) path(name string) string {
	return filepath.Join(fm.dir, name)
}

func (f *File) Name() string {
	return f.name
}

func (f *File) String() string {
	return f.name
}

func (f *File) blockCount() (uint32, error) {
	if f.fd == nil {
		return 0, util.NewError(util.ErrFileClosed, "stat %s", f.name)
	}

	info, err := f.fd.Stat()
	if err != nil {
		return 0, fmt.Errorf("error reading size of %s: %w", f.name, err)
	}
	return uint32(info.Size() / int64(f.blockSize)), nil
}

func (f *File) offset(blockNo uint32) int64 {
	return int64(blockNo) * int64(f.blockSize)
}

type FileManager struct {
	mu        sync.Mutex
	dir       string
	blockSize int
	files     map[string]*File
}

// File is an open block file shared by every user of the same name.
type File struct {
	mu        sync.Mutex
	name      string
	fd        *os.File
	refs      int
	blockSize int
}
