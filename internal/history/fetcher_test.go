package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"smart-algo-trade/internal/model"
)

type fakeSource struct {
	calls []struct{ from, to time.Time }
	serve func(from, to time.Time) ([]model.Candle, error)
}

func (s *fakeSource) Candles(_ context.Context, _ uint32, _ string, from, to time.Time) ([]model.Candle, error) {
	s.calls = append(s.calls, struct{ from, to time.Time }{from, to})
	if s.serve != nil {
		return s.serve(from, to)
	}
	return nil, nil
}

func day(d int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func TestWindowSplitIntoChunks(t *testing.T) {
	src := &fakeSource{}
	f := New(src)

	// 150 days of 5minute data at a 60-day cap: 60 + 60 + 30.
	_, err := f.Fetch(context.Background(), 1, "5minute", day(0), day(150))
	if err != nil {
		t.Fatal(err)
	}
	if len(src.calls) != 3 {
		t.Fatalf("chunks = %d, want 3", len(src.calls))
	}
	if !src.calls[0].from.Equal(day(0)) || !src.calls[0].to.Equal(day(60)) {
		t.Errorf("chunk 0 = %v..%v", src.calls[0].from, src.calls[0].to)
	}
	if !src.calls[1].from.Equal(day(60)) || !src.calls[1].to.Equal(day(120)) {
		t.Errorf("chunk 1 = %v..%v", src.calls[1].from, src.calls[1].to)
	}
	if !src.calls[2].from.Equal(day(120)) || !src.calls[2].to.Equal(day(150)) {
		t.Errorf("chunk 2 = %v..%v", src.calls[2].from, src.calls[2].to)
	}
}

func TestSingleChunkWhenWindowFits(t *testing.T) {
	src := &fakeSource{}
	f := New(src)
	if _, err := f.Fetch(context.Background(), 1, "day", day(0), day(365)); err != nil {
		t.Fatal(err)
	}
	if len(src.calls) != 1 {
		t.Fatalf("chunks = %d, want 1", len(src.calls))
	}
}

func TestSeamDuplicatesDropped(t *testing.T) {
	src := &fakeSource{
		serve: func(from, to time.Time) ([]model.Candle, error) {
			// Every chunk returns its boundary candles inclusive, so the
			// seam candle appears in two adjacent responses.
			return []model.Candle{
				{Start: from, Open: 100, Close: 101},
				{Start: to, Open: 200, Close: 201},
			}, nil
		},
	}
	f := New(src)
	got, err := f.Fetch(context.Background(), 1, "5minute", day(0), day(120))
	if err != nil {
		t.Fatal(err)
	}
	// Chunks [0,60] and [60,120]: day 60 is returned twice, kept once.
	if len(got) != 3 {
		t.Fatalf("candles = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].Start.Before(got[i].Start) {
			t.Fatalf("not sorted at %d: %v >= %v", i, got[i-1].Start, got[i].Start)
		}
	}
	// First occurrence wins: the seam candle carries chunk 0's values.
	if got[1].Open != 200 {
		t.Fatalf("seam candle open = %d, want 200 (from first chunk)", got[1].Open)
	}
}

func TestChunkFailureAbortsWithWindow(t *testing.T) {
	boom := errors.New("429 too many requests")
	src := &fakeSource{
		serve: func(from, _ time.Time) ([]model.Candle, error) {
			if from.Equal(day(60)) {
				return nil, boom
			}
			return []model.Candle{{Start: from}}, nil
		},
	}
	f := New(src)
	got, err := f.Fetch(context.Background(), 1, "minute", day(0), day(150))
	if got != nil {
		t.Fatal("partial result returned despite chunk failure")
	}
	var ce *ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ChunkError", err)
	}
	if !ce.From.Equal(day(60)) || !ce.To.Equal(day(120)) {
		t.Fatalf("failed window = %v..%v", ce.From, ce.To)
	}
	if !errors.Is(err, boom) {
		t.Fatal("cause not wrapped")
	}
}

func TestUnknownInterval(t *testing.T) {
	f := New(&fakeSource{})
	if _, err := f.Fetch(context.Background(), 1, "2minute", day(0), day(1)); err == nil {
		t.Fatal("expected error for unknown interval")
	}
}

func TestEmptyWindowRejected(t *testing.T) {
	f := New(&fakeSource{})
	if _, err := f.Fetch(context.Background(), 1, "day", day(5), day(5)); err == nil {
		t.Fatal("expected error for empty window")
	}
}

func TestCandleMetadataStamped(t *testing.T) {
	src := &fakeSource{
		serve: func(from, _ time.Time) ([]model.Candle, error) {
			return []model.Candle{{Start: from, Close: 1}}, nil
		},
	}
	f := New(src)
	got, err := f.Fetch(context.Background(), 777, "15minute", day(0), day(10))
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Token != 777 || got[0].Interval != 15 || !got[0].Closed {
		t.Fatalf("candle metadata = %+v", got[0])
	}
}
