package log

import (
	"bytes"
	"os"
	"sync"
	"time"
)

// maxBatchBytes caps one async flush so a burst of events cannot grow the
// batch buffer without bound.
const maxBatchBytes = 10 << 20

// FileAppender writes rendered events to a log file and rotates it by size
// and by hour of day. In async mode events are queued and flushed by a
// background goroutine; emitting a line waits only when the queue is full.
type FileAppender struct {
	path      string
	splitMB   int
	splitHour int

	mu        sync.Mutex
	fd        *os.File
	fdCreated time.Time

	async         bool
	flushInterval time.Duration
	pending       chan *bytes.Buffer
	flushReq      chan chan struct{}
	batch         *bytes.Buffer
	pool          sync.Pool
}

// NewFileAppender builds an appender from cfg, filling in defaults for any
// rotation or async setting left at zero. In async mode the flush goroutine
// starts immediately.
func NewFileAppender(cfg *LogCfg) *FileAppender {
	applyFileDefaults(cfg)

	a := &FileAppender{
		path:      cfg.LogPath,
		splitMB:   cfg.FileSplitMB,
		splitHour: cfg.FileSplitHour,
		async:     cfg.IsAsync,
	}

	if a.async {
		a.flushInterval = time.Duration(cfg.AsyncWriteMillSec) * time.Millisecond
		a.pending = make(chan *bytes.Buffer, cfg.AsyncCacheSize)
		a.flushReq = make(chan chan struct{})
		a.batch = bytes.NewBuffer(make([]byte, 0, maxBatchBytes))
		a.pool.New = func() any { return &bytes.Buffer{} }
		go a.flushLoop()
	}
	return a
}

func applyFileDefaults(cfg *LogCfg) {
	if cfg.LogPath == "" {
		cfg.LogPath = "./r2p2.log"
	}
	if cfg.FileSplitMB <= 0 {
		cfg.FileSplitMB = 50
	}
	if cfg.FileSplitHour < 0 {
		cfg.FileSplitHour = 24
	}
	if cfg.IsAsync {
		if cfg.AsyncCacheSize <= 0 {
			cfg.AsyncCacheSize = 1024
		}
		if cfg.AsyncWriteMillSec <= 0 {
			cfg.AsyncWriteMillSec = 200
		}
	}
}

// Write queues the line in async mode and writes it through in sync mode.
func (a *FileAppender) Write(p []byte) (int, error) {
	if a.async {
		a.enqueue(p)
		return len(p), nil
	}
	return a.writeFile(p)
}

// Refresh blocks until every queued line has reached the file and the fd is
// synced. A no-op in sync mode.
func (a *FileAppender) Refresh() error {
	if !a.async {
		return nil
	}
	done := make(chan struct{})
	a.flushReq <- done
	<-done
	return nil
}

// Close flushes the queue, stops the flush goroutine and closes the file.
func (a *FileAppender) Close() error {
	if a.async {
		done := make(chan struct{})
		a.flushReq <- done
		<-done
		close(a.flushReq)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fd != nil {
		err := a.fd.Close()
		a.fd = nil
		return err
	}
	return nil
}

// writeFile rotates if due and appends p to the current file.
func (a *FileAppender) writeFile(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.rotate(); err != nil {
		return 0, err
	}
	return a.fd.Write(p)
}

// enqueue hands p to the flush goroutine. When the queue is full it asks for
// an immediate flush and then blocks until the queue has room.
func (a *FileAppender) enqueue(p []byte) {
	buf := a.pool.Get().(*bytes.Buffer)
	buf.Reset()
	buf.Write(p)

	select {
	case a.pending <- buf:
	default:
		select {
		case a.pending <- buf:
		case a.flushReq <- nil:
			a.pending <- buf
		}
	}
}

// drain batches every queued buffer into the file, splitting the batch when
// it would exceed maxBatchBytes.
func (a *FileAppender) drain() {
	for {
		select {
		case buf := <-a.pending:
			if a.batch.Len()+buf.Len() > maxBatchBytes {
				a.writeFile(a.batch.Bytes())
				a.batch.Reset()
			}
			a.batch.Write(buf.Bytes())
			buf.Reset()
			a.pool.Put(buf)
		default:
			if a.batch.Len() > 0 {
				a.writeFile(a.batch.Bytes())
				a.batch.Reset()
			}
			return
		}
	}
}

func (a *FileAppender) flushLoop() {
	tick := time.NewTicker(a.flushInterval)
	defer tick.Stop()
	for {
		select {
		case done, ok := <-a.flushReq:
			a.drain()
			if done != nil {
				if a.fd != nil {
					_ = a.fd.Sync()
				}
				done <- struct{}{}
			}
			if !ok {
				return
			}
		case <-tick.C:
			a.drain()
		}
	}
}
