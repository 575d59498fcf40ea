package viewers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	mu    sync.Mutex
	count int
	err   error
	calls int
}

func (f *fakeSource) ViewerCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.count, f.err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRecordNotifiesObserversEveryTime(t *testing.T) {
	tr := NewTracker(time.Minute, discard())

	type change struct{ count, prev int }
	var mu sync.Mutex
	var changes []change
	tr.Observe(func(p core.Platform, count, prev int) {
		mu.Lock()
		changes = append(changes, change{count, prev})
		mu.Unlock()
	})

	tr.Record(core.PlatformTwitch, 100)
	tr.Record(core.PlatformTwitch, 100) // unchanged still notifies
	tr.Record(core.PlatformTwitch, 80)

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 3 {
		t.Fatalf("expected 3 callbacks, got %d", len(changes))
	}
	want := []change{{100, 0}, {100, 100}, {80, 100}}
	for i, w := range want {
		if changes[i] != w {
			t.Fatalf("callback %d = %+v, want %+v", i, changes[i], w)
		}
	}
}

func TestTotalSumsPlatforms(t *testing.T) {
	tr := NewTracker(time.Minute, discard())
	tr.Record(core.PlatformTwitch, 100)
	tr.Record(core.PlatformYouTube, 50)
	tr.Record(core.PlatformTikTok, 7)

	if got := tr.Total(); got != 157 {
		t.Fatalf("total = %d, want 157", got)
	}
	if got := tr.Count(core.PlatformYouTube); got != 50 {
		t.Fatalf("youtube = %d, want 50", got)
	}
}

func TestOfflineZeroesCount(t *testing.T) {
	tr := NewTracker(time.Minute, discard())
	tr.Record(core.PlatformTikTok, 42)
	tr.SetLive(core.PlatformTikTok, false)

	if got := tr.Count(core.PlatformTikTok); got != 0 {
		t.Fatalf("offline count = %d, want 0", got)
	}
}

func TestPollOnlyLivePlatforms(t *testing.T) {
	tr := NewTracker(time.Minute, discard())
	liveSrc := &fakeSource{count: 12}
	offSrc := &fakeSource{count: 99}
	tr.Register(core.PlatformTwitch, liveSrc)
	tr.Register(core.PlatformYouTube, offSrc)
	tr.SetLive(core.PlatformTwitch, true)

	tr.poll(context.Background())

	if liveSrc.callCount() != 1 {
		t.Fatalf("live source polled %d times, want 1", liveSrc.callCount())
	}
	if offSrc.callCount() != 0 {
		t.Fatal("offline source was polled")
	}
	if got := tr.Count(core.PlatformTwitch); got != 12 {
		t.Fatalf("twitch count = %d, want 12", got)
	}
}

func TestPollFailureKeepsCountForOneInterval(t *testing.T) {
	tr := NewTracker(time.Minute, discard())
	src := &fakeSource{count: 30}
	tr.Register(core.PlatformTwitch, src)
	tr.SetLive(core.PlatformTwitch, true)

	tr.poll(context.Background())
	if got := tr.Count(core.PlatformTwitch); got != 30 {
		t.Fatalf("count = %d, want 30", got)
	}

	src.mu.Lock()
	src.err = errors.New("api down")
	src.mu.Unlock()

	// First failure keeps the last known reading.
	tr.poll(context.Background())
	if got := tr.Count(core.PlatformTwitch); got != 30 {
		t.Fatalf("count after one failed poll = %d, want 30", got)
	}

	// Persistent failure resets to zero.
	tr.poll(context.Background())
	if got := tr.Count(core.PlatformTwitch); got != 0 {
		t.Fatalf("count after repeated failures = %d, want 0", got)
	}
}

func TestPollRecoveryClearsFailureStreak(t *testing.T) {
	tr := NewTracker(time.Minute, discard())
	src := &fakeSource{count: 30}
	tr.Register(core.PlatformTwitch, src)
	tr.SetLive(core.PlatformTwitch, true)

	tr.poll(context.Background())

	src.mu.Lock()
	src.err = errors.New("api down")
	src.mu.Unlock()
	tr.poll(context.Background())

	src.mu.Lock()
	src.err = nil
	src.count = 44
	src.mu.Unlock()
	tr.poll(context.Background())
	if got := tr.Count(core.PlatformTwitch); got != 44 {
		t.Fatalf("count after recovery = %d, want 44", got)
	}

	// A later single failure starts a fresh streak and keeps 44.
	src.mu.Lock()
	src.err = errors.New("api down again")
	src.mu.Unlock()
	tr.poll(context.Background())
	if got := tr.Count(core.PlatformTwitch); got != 44 {
		t.Fatalf("count after lone failure = %d, want 44", got)
	}
}

func TestNegativeCountClamped(t *testing.T) {
	tr := NewTracker(time.Minute, discard())
	tr.Record(core.PlatformTwitch, -5)
	if got := tr.Count(core.PlatformTwitch); got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}
}
