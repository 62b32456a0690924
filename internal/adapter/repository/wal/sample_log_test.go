package wal

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/carepulse/internal/domain"
	"github.com/V4T54L/carepulse/internal/pkg/logger"
)

func openTestLog(t *testing.T, dir string, maxSegmentSize, maxTotalSize int64) *SampleLog {
	t.Helper()
	l, err := NewSampleLog(dir, maxSegmentSize, maxTotalSize, logger.Discard())
	if err != nil {
		t.Fatalf("failed to open sample log: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func sample(v float64) domain.MetricSample {
	return domain.MetricSample{
		ID:        uuid.NewString(),
		Type:      domain.MetricAPIRequest,
		Value:     v,
		Timestamp: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		Metadata:  map[string]any{"status_code": float64(200)},
	}
}

func TestSampleLog_WriteAndReplayAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	l := openTestLog(t, dir, 1024, 10*1024)

	want := []domain.MetricSample{sample(12), sample(250), sample(3100)}
	for _, s := range want {
		if err := l.Write(context.Background(), s); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	l.Close()

	reopened := openTestLog(t, dir, 1024, 10*1024)
	var got []domain.MetricSample
	err := reopened.Replay(context.Background(), func(s domain.MetricSample) error {
		got = append(got, s)
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Value != want[i].Value || !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("sample %d mismatch: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSampleLog_Rotation(t *testing.T) {
	l := openTestLog(t, t.TempDir(), 100, 10*1024)

	for i := 0; i < 6; i++ {
		if err := l.Write(context.Background(), sample(float64(i))); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	segments, err := l.segments()
	if err != nil {
		t.Fatalf("segments: %v", err)
	}
	if len(segments) < 2 {
		t.Errorf("expected rotation into several segments, got %d", len(segments))
	}
	if l.Buffered() != 6 {
		t.Errorf("expected 6 buffered samples, got %d", l.Buffered())
	}
}

func TestSampleLog_ReplayStopsOnHandlerError(t *testing.T) {
	l := openTestLog(t, t.TempDir(), 1024, 10*1024)
	for i := 0; i < 3; i++ {
		_ = l.Write(context.Background(), sample(float64(i)))
	}

	calls := 0
	errDown := errors.New("still down")
	err := l.Replay(context.Background(), func(domain.MetricSample) error {
		calls++
		if calls == 2 {
			return errDown
		}
		return nil
	})
	if !errors.Is(err, errDown) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected replay to stop after 2 calls, got %d", calls)
	}
}

func TestSampleLog_ReplayRemovesReplayedSegments(t *testing.T) {
	l := openTestLog(t, t.TempDir(), 100, 10*1024)
	for i := 0; i < 4; i++ {
		_ = l.Write(context.Background(), sample(float64(i)))
	}

	if err := l.Replay(context.Background(), func(domain.MetricSample) error { return nil }); err != nil {
		t.Fatalf("replay: %v", err)
	}
	segments, _ := l.segments()
	if len(segments) != 1 {
		t.Fatalf("expected one fresh segment, got %d", len(segments))
	}
	info, _ := os.Stat(segments[0])
	if info.Size() != 0 {
		t.Errorf("expected empty segment, size %d", info.Size())
	}
	if l.Buffered() != 0 {
		t.Errorf("expected buffered counter reset, got %d", l.Buffered())
	}

	calls := 0
	_ = l.Replay(context.Background(), func(domain.MetricSample) error {
		calls++
		return nil
	})
	if calls != 0 {
		t.Errorf("expected nothing left to replay, got %d samples", calls)
	}
}

func TestSampleLog_WriteDuringReplayIsKept(t *testing.T) {
	l := openTestLog(t, t.TempDir(), 1024, 10*1024)
	_ = l.Write(context.Background(), sample(1))

	late := sample(2)
	started := make(chan struct{})
	written := make(chan error, 1)
	go func() {
		<-started
		written <- l.Write(context.Background(), late)
	}()

	first := true
	err := l.Replay(context.Background(), func(domain.MetricSample) error {
		if first {
			first = false
			close(started)
			// Give the writer time to block on the log.
			time.Sleep(20 * time.Millisecond)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if err := <-written; err != nil {
		t.Fatalf("concurrent write: %v", err)
	}

	var got []domain.MetricSample
	_ = l.Replay(context.Background(), func(s domain.MetricSample) error {
		got = append(got, s)
		return nil
	})
	if len(got) != 1 || got[0].ID != late.ID {
		t.Fatalf("expected only the late sample to remain, got %+v", got)
	}
}

func TestSampleLog_FailedReplayKeepsRemainingSamples(t *testing.T) {
	l := openTestLog(t, t.TempDir(), 100, 10*1024)
	for i := 0; i < 4; i++ {
		_ = l.Write(context.Background(), sample(float64(i)))
	}
	before, _ := l.segments()
	if len(before) < 2 {
		t.Fatalf("expected several segments, got %d", len(before))
	}

	errDown := errors.New("still down")
	calls := 0
	err := l.Replay(context.Background(), func(domain.MetricSample) error {
		calls++
		if calls > 1 {
			return errDown
		}
		return nil
	})
	if !errors.Is(err, errDown) {
		t.Fatalf("expected handler error, got %v", err)
	}

	remaining := 0
	_ = l.Replay(context.Background(), func(domain.MetricSample) error {
		remaining++
		return nil
	})
	if remaining == 0 {
		t.Error("expected unreplayed samples to survive a failed replay")
	}
}

func TestSampleLog_DiskBudget(t *testing.T) {
	l := openTestLog(t, t.TempDir(), 100, 300)

	var err error
	for i := 0; i < 10 && err == nil; i++ {
		err = l.Write(context.Background(), sample(float64(i)))
	}
	if !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}
