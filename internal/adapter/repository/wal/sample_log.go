package wal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/carepulse/internal/domain"
)

const (
	segmentPrefix = "samples-"
	segmentSuffix = ".wal"
	filePerm      = 0644
)

// ErrFull is returned when a write would push the log past its disk budget.
var ErrFull = errors.New("sample log disk budget exhausted")

// SampleLog is a segmented, newline-delimited JSON log of metric samples. It buffers
// samples on local disk while the counter store backend is unreachable.
type SampleLog struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	mu          sync.Mutex
	segment     *os.File
	segmentSize int64
	// totalSize covers every segment on disk, including the open one.
	totalSize int64
	buffered  int
}

// NewSampleLog opens (or creates) a sample log in dir.
func NewSampleLog(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*SampleLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory %s: %w", dir, err)
	}

	l := &SampleLog{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "sample_wal"),
	}

	segments, err := l.segments()
	if err != nil {
		return nil, err
	}
	for _, path := range segments {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat segment %s: %w", path, err)
		}
		l.totalSize += info.Size()
	}
	if err := l.openTail(segments); err != nil {
		return nil, err
	}
	return l, nil
}

// Write appends a sample to the open segment, rotating when it is full.
func (l *SampleLog) Write(_ context.Context, sample domain.MetricSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample for WAL: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.totalSize+int64(len(data)) > l.maxTotalSize {
		return fmt.Errorf("%w (%d bytes used of %d)", ErrFull, l.totalSize, l.maxTotalSize)
	}
	if l.segment == nil {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	n, err := l.segment.Write(data)
	l.segmentSize += int64(n)
	l.totalSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write WAL segment: %w", err)
	}
	l.buffered++

	if l.segmentSize >= l.maxSegmentSize {
		if err := l.rotate(); err != nil {
			l.logger.Error("Failed to rotate WAL segment", "error", err)
		}
	}
	return nil
}

// Replay feeds every buffered sample to handler, oldest segment first, and removes
// each segment once all of it has been handled. Lines that cannot be decoded are
// skipped. Replay stops at the first handler error, leaving that segment and every
// later one on disk. Writes block until Replay returns.
func (l *SampleLog) Replay(ctx context.Context, handler func(sample domain.MetricSample) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closeSegment()
	segments, err := l.segments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return l.rotate()
	}
	l.logger.Info("Replaying WAL", "segments", len(segments), "buffered", l.buffered)

	replayed := 0
	for _, path := range segments {
		n, err := replaySegment(ctx, path, handler, l.logger)
		replayed += n
		if err != nil {
			l.logger.Error("WAL replay stopped", "segment", path, "replayed", replayed, "error", err)
			return err
		}
		l.removeSegment(path, n)
	}
	l.totalSize = 0
	l.buffered = 0
	l.logger.Info("WAL replay completed", "replayed", replayed)
	return l.rotate()
}

// removeSegment deletes a replayed segment and takes it out of the accounting.
func (l *SampleLog) removeSegment(path string, samples int) {
	if info, err := os.Stat(path); err == nil {
		l.totalSize -= info.Size()
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		l.logger.Error("Failed to remove WAL segment", "path", path, "error", err)
	}
	l.buffered = max(l.buffered-samples, 0)
}

func replaySegment(ctx context.Context, path string, handler func(domain.MetricSample) error, logger *slog.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open segment %s for replay: %w", path, err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		var sample domain.MetricSample
		if err := json.Unmarshal(scanner.Bytes(), &sample); err != nil {
			logger.Warn("Skipping undecodable WAL line", "segment", path, "error", err)
			continue
		}
		if err := handler(sample); err != nil {
			return n, fmt.Errorf("replay handler failed: %w", err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return n, nil
}

// Buffered returns the number of samples not yet replayed.
func (l *SampleLog) Buffered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buffered
}

// Close flushes and closes the open segment.
func (l *SampleLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.segment == nil {
		return nil
	}
	err := l.segment.Close()
	l.segment = nil
	return err
}

func (l *SampleLog) closeSegment() {
	if l.segment == nil {
		return
	}
	if err := l.segment.Sync(); err != nil {
		l.logger.Error("Failed to sync WAL segment", "error", err)
	}
	if err := l.segment.Close(); err != nil {
		l.logger.Error("Failed to close WAL segment", "error", err)
	}
	l.segment = nil
}

func (l *SampleLog) rotate() error {
	l.closeSegment()

	name := fmt.Sprintf("%s%020d%s", segmentPrefix, time.Now().UnixNano(), segmentSuffix)
	path := filepath.Join(l.dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create WAL segment %s: %w", path, err)
	}
	l.segment = f
	l.segmentSize = 0
	l.logger.Debug("Opened WAL segment", "path", path)
	return nil
}

// openTail reopens the newest segment for appending, or starts a new one.
func (l *SampleLog) openTail(segments []string) error {
	if len(segments) == 0 {
		return l.rotate()
	}
	tail := segments[len(segments)-1]
	info, err := os.Stat(tail)
	if err != nil {
		return fmt.Errorf("failed to stat segment %s: %w", tail, err)
	}
	if info.Size() >= l.maxSegmentSize {
		return l.rotate()
	}
	f, err := os.OpenFile(tail, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open segment %s: %w", tail, err)
	}
	l.segment = f
	l.segmentSize = info.Size()
	return nil
}

func (l *SampleLog) segments() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read WAL directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, segmentPrefix) && strings.HasSuffix(name, segmentSuffix) {
			out = append(out, filepath.Join(l.dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}
