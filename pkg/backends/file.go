package backends

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wayneeseguin/logship/pkg/formatters"
)

// File backend defaults.
const (
	DefaultFilePath      = "/logs/app.log"
	DefaultFileMaxSizeMB = 25
	// DefaultDiskFullRetries is how many rotations are attempted when the disk is full.
	DefaultDiskFullRetries = 1
)

// FileDialer opens a size-rotated log file that an external shipper tails.
// Each frame is written as one line. Backends dialed while another is still
// open share its file, so several senders never rotate the same path on their
// own.
type FileDialer struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Unescape decodes URL-escaped frames produced by formatters.FilebeatFormatter.
	Unescape bool
	// MaxRetries bounds rotate-and-retry attempts when a write fails with a disk full error.
	MaxRetries int

	mu     sync.Mutex
	shared *fileWriter
}

// NewFileDialer creates a dialer with the default rotation size.
func NewFileDialer(path string) *FileDialer {
	return &FileDialer{
		Path:       path,
		MaxSizeMB:  DefaultFileMaxSizeMB,
		MaxRetries: DefaultDiskFullRetries,
	}
}

// Dial returns a backend on the dialer's file, opening it and creating its
// directory if no other backend from this dialer holds it open.
func (d *FileDialer) Dial(ctx context.Context) (Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shared == nil {
		w, err := d.open()
		if err != nil {
			return nil, err
		}
		d.shared = w
	}
	d.shared.refs++
	return &FileBackend{dialer: d, w: d.shared}, nil
}

func (d *FileDialer) open() (*fileWriter, error) {
	path := d.Path
	if path == "" {
		path = DefaultFilePath
	}
	// Clean the path to prevent directory traversal
	path = filepath.Clean(path)

	// #nosec G301 - log directories need to be accessible by the shipper
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "create directory")
	}

	maxSize := d.MaxSizeMB
	if maxSize <= 0 {
		maxSize = DefaultFileMaxSizeMB
	}

	logger := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: d.MaxBackups,
		MaxAge:     d.MaxAgeDays,
		Compress:   d.Compress,
	}

	// lumberjack opens lazily; open now so configuration errors surface at dial time
	if _, err := logger.Write(nil); err != nil {
		return nil, errors.Wrap(err, "open file")
	}

	return &fileWriter{
		path:       path,
		logger:     logger,
		lock:       flock.New(path + ".lock"),
		unescape:   d.Unescape,
		maxRetries: d.MaxRetries,
	}, nil
}

// release drops one reference to w and closes it with the last one.
func (d *FileDialer) release(w *fileWriter) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	w.refs--
	if w.refs > 0 {
		return nil
	}
	if d.shared == w {
		d.shared = nil
	}
	return w.close()
}

func (d *FileDialer) String() string {
	path := d.Path
	if path == "" {
		path = DefaultFilePath
	}
	return "file://" + path
}

// FileBackend appends frames as lines to a rotating file. Writers in other
// processes are serialized through an advisory lock next to the file.
type FileBackend struct {
	dialer *FileDialer
	w      *fileWriter

	mu     sync.Mutex
	closed bool
}

// Write writes frame as a single line.
func (fb *FileBackend) Write(frame []byte) (int, error) {
	if fb.Closed() {
		return 0, errors.Errorf("write %s: file closed", fb.w.path)
	}
	return fb.w.write(frame)
}

// Rotate closes the current file and starts a new one.
func (fb *FileBackend) Rotate() error {
	return fb.w.rotate()
}

// Path returns the file path
func (fb *FileBackend) Path() string {
	return fb.w.path
}

// Close releases the file. The file and its lock are closed once every
// backend sharing them is closed.
func (fb *FileBackend) Close() error {
	fb.mu.Lock()
	if fb.closed {
		fb.mu.Unlock()
		return nil
	}
	fb.closed = true
	fb.mu.Unlock()

	return fb.dialer.release(fb.w)
}

// Closed reports whether Close has been called.
func (fb *FileBackend) Closed() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.closed
}

// Stats returns statistics for the file, across every backend sharing it.
func (fb *FileBackend) Stats() BackendStats {
	return fb.w.stats.snapshot("file://" + fb.w.path)
}

// fileWriter owns one rotating file. refs is guarded by the dialer's mutex.
type fileWriter struct {
	path       string
	logger     *lumberjack.Logger
	lock       *flock.Flock
	unescape   bool
	maxRetries int
	refs       int

	mu     sync.Mutex
	closed bool
	stats  statsTracker
}

func (w *fileWriter) write(frame []byte) (int, error) {
	line, err := w.line(frame)
	if err != nil {
		w.stats.track(0, err)
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, errors.Errorf("write %s: file closed", w.path)
	}

	for retries := 0; ; retries++ {
		n, err := w.writeLocked(line)
		if err == nil {
			w.stats.track(len(frame), nil)
			return len(frame), nil
		}
		if !isDiskFullError(err) || retries >= w.maxRetries {
			w.stats.track(n, err)
			return n, err
		}
		// Rotating starts a new file; with MaxBackups set, old backups are removed
		if rerr := w.logger.Rotate(); rerr != nil {
			w.stats.track(n, rerr)
			return n, errors.Wrap(rerr, "disk full handling failed")
		}
	}
}

func (w *fileWriter) writeLocked(line []byte) (int, error) {
	// Try to acquire lock
	if err := w.lock.Lock(); err != nil {
		return 0, errors.Wrap(err, "acquire lock")
	}
	defer func() {
		_ = w.lock.Unlock() // Best effort unlock
	}()

	n, err := w.logger.Write(line)
	if err != nil {
		return n, errors.Wrapf(err, "write %s", w.path)
	}
	return n, nil
}

func (w *fileWriter) line(frame []byte) ([]byte, error) {
	body := trimFrame(frame)
	if w.unescape {
		decoded, err := formatters.UnescapeFrame(body)
		if err != nil {
			return nil, err
		}
		body = decoded
	}

	line := make([]byte, 0, len(body)+1)
	line = append(line, body...)
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(line, '\n')
	}
	return line, nil
}

func (w *fileWriter) rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.logger.Rotate()
}

func (w *fileWriter) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var err error
	if cerr := w.logger.Close(); cerr != nil {
		err = multierr.Append(err, errors.Wrap(cerr, "close file"))
	}
	if cerr := w.lock.Close(); cerr != nil {
		err = multierr.Append(err, errors.Wrap(cerr, "close lock"))
	}
	return err
}

// isDiskFullError checks if an error indicates disk is full
func isDiskFullError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "enospc") ||
		strings.Contains(errStr, "disk full")
}
