package logger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	sinkBufferSize    = 32 * 1024
	sinkFlushInterval = 5 * time.Second
)

var errSinkClosed = errors.New("log file is closed")

// fileSink is one appended log file. Records are buffered and pushed to the
// OS every flushEvery; close writes out what is left and fsyncs.
type fileSink struct {
	path string

	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// openSink opens path for appending, creating its directory. A zero
// flushEvery leaves flushing to the caller.
func openSink(path string, flushEvery time.Duration) (*fileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // configured log path
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}

	s := &fileSink{path: path, f: f, buf: bufio.NewWriterSize(f, sinkBufferSize)}
	if flushEvery > 0 {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.flushEvery(flushEvery)
	}
	return s, nil
}

func (s *fileSink) flushEvery(d time.Duration) {
	defer close(s.done)
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			_ = s.flush()
		}
	}
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return 0, errSinkClosed
	}
	return s.buf.Write(p)
}

func (s *fileSink) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return nil
	}
	return s.buf.Flush()
}

// pending reports bytes not yet handed to the OS
func (s *fileSink) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return 0
	}
	return s.buf.Buffered()
}

// close is safe to call more than once
func (s *fileSink) close() error {
	if s.stop != nil {
		s.stopOnce.Do(func() { close(s.stop) })
		<-s.done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return nil
	}
	err := errors.Join(s.buf.Flush(), s.f.Sync(), s.f.Close())
	s.buf, s.f = nil, nil
	return err
}

// sinkSet shares one fileSink between every output naming the same path
type sinkSet struct {
	flushEvery time.Duration
	byPath     map[string]*fileSink
}

func newSinkSet(flushEvery time.Duration) *sinkSet {
	return &sinkSet{flushEvery: flushEvery, byPath: make(map[string]*fileSink)}
}

func (ss *sinkSet) get(path string) (*fileSink, error) {
	if s, ok := ss.byPath[filepath.Clean(path)]; ok {
		return s, nil
	}
	s, err := openSink(path, ss.flushEvery)
	if err != nil {
		return nil, err
	}
	ss.byPath[filepath.Clean(path)] = s
	return s, nil
}

func (ss *sinkSet) flush() error {
	var errs []error
	for path, s := range ss.byPath {
		if err := s.flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

func (ss *sinkSet) close() error {
	var errs []error
	for path, s := range ss.byPath {
		if err := s.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
	}
	clear(ss.byPath)
	return errors.Join(errs...)
}
