// Package ytchat is the YouTube platform adapter, built on the Data API:
// videos.list(liveStreamingDetails) for probing and viewer counts,
// liveChatMessages.list polling for the chat feed. The poll cadence
// follows the API's pollingIntervalMillis hint.
package ytchat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/api/option"
	youtube "google.golang.org/api/youtube/v3"

	"github.com/git-blame-dev/stream-sync-sub005/internal/adapter"
	"github.com/git-blame-dev/stream-sync-sub005/internal/config"
	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

// UnknownSink receives raw payloads the adapter cannot classify.
type UnknownSink interface {
	Unknown(platform core.Platform, raw string)
}

type Adapter struct {
	channelID string
	apiKey    string
	publish   adapter.Publisher
	logger    *slog.Logger
	self      adapter.SelfFilter
	unknown   UnknownSink

	// endpoint overrides the API base URL in tests
	endpoint string

	mu         sync.Mutex
	svc        *youtube.Service
	cancel     context.CancelFunc
	done       chan struct{}
	liveChatID string
	videoID    string

	connected atomic.Bool
}

func New(cfg *config.Config, apiKey string, unknown UnknownSink, publish adapter.Publisher, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	pc := cfg.YouTube
	return &Adapter{
		channelID: pc.Channel,
		apiKey:    apiKey,
		publish:   publish,
		logger:    logger,
		self:      adapter.SelfFilter{OperatorUserID: pc.OperatorUserID, Username: pc.Username},
		unknown:   unknown,
	}
}

func (a *Adapter) Platform() core.Platform { return core.PlatformYouTube }

func (a *Adapter) service(ctx context.Context) (*youtube.Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.svc != nil {
		return a.svc, nil
	}
	opts := []option.ClientOption{option.WithAPIKey(a.apiKey)}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ytchat: service: %w", err)
	}
	a.svc = svc
	return svc, nil
}

// Probe searches the channel for live broadcasts and returns their video
// ids.
func (a *Adapter) Probe(ctx context.Context) ([]string, error) {
	svc, err := a.service(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Search.List([]string{"id"}).
		ChannelId(a.channelID).
		EventType("live").
		Type("video").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("ytchat: live search: %w", err)
	}
	var ids []string
	for _, item := range resp.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			ids = append(ids, item.Id.VideoId)
		}
	}
	return ids, nil
}

// liveDetails fetches a video's liveStreamingDetails.
func (a *Adapter) liveDetails(ctx context.Context, videoID string) (*youtube.VideoLiveStreamingDetails, error) {
	svc, err := a.service(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Videos.List([]string{"liveStreamingDetails"}).
		Id(videoID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("ytchat: videos.list: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].LiveStreamingDetails == nil {
		return nil, fmt.Errorf("ytchat: video %s has no live details", videoID)
	}
	return resp.Items[0].LiveStreamingDetails, nil
}

// Initialize locates the live broadcast's chat and starts the poll loop.
func (a *Adapter) Initialize(ctx context.Context) error {
	ids, err := a.Probe(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("ytchat: channel %s is not live", a.channelID)
	}
	videoID := ids[0]
	details, err := a.liveDetails(ctx, videoID)
	if err != nil {
		return err
	}
	if details.ActiveLiveChatId == "" {
		return fmt.Errorf("ytchat: video %s has no active chat", videoID)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.cancel = cancel
	a.done = done
	a.liveChatID = details.ActiveLiveChatId
	a.videoID = videoID
	a.mu.Unlock()

	a.connected.Store(true)
	a.logger.Info("ytchat: connected", "video", videoID)
	go func() {
		defer close(done)
		defer a.connected.Store(false)
		a.pollLoop(pollCtx, details.ActiveLiveChatId)
	}()
	return nil
}

func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	cancel := a.cancel
	done := a.done
	a.cancel = nil
	a.done = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	a.connected.Store(false)
	return nil
}

func (a *Adapter) IsConnected() bool { return a.connected.Load() }

// ViewerCount reads concurrentViewers off the active video's live details.
func (a *Adapter) ViewerCount(ctx context.Context) (int, error) {
	a.mu.Lock()
	videoID := a.videoID
	a.mu.Unlock()
	if videoID == "" {
		return 0, nil
	}
	details, err := a.liveDetails(ctx, videoID)
	if err != nil {
		return 0, err
	}
	return int(details.ConcurrentViewers), nil
}

// pollLoop fetches chat pages until the context ends or the chat closes.
func (a *Adapter) pollLoop(ctx context.Context, liveChatID string) {
	pageToken := ""
	for {
		resp, err := a.fetchPage(ctx, liveChatID, pageToken)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Warn("ytchat: poll failed", "err", err)
			if !sleepContext(ctx, 10*time.Second) {
				return
			}
			continue
		}
		for _, item := range resp.Items {
			a.normalize(item)
		}
		pageToken = resp.NextPageToken
		if resp.OfflineAt != "" {
			a.logger.Info("ytchat: chat went offline")
			return
		}
		wait := time.Duration(resp.PollingIntervalMillis) * time.Millisecond
		if wait <= 0 {
			wait = 5 * time.Second
		}
		if !sleepContext(ctx, wait) {
			return
		}
	}
}

func (a *Adapter) fetchPage(ctx context.Context, liveChatID, pageToken string) (*youtube.LiveChatMessageListResponse, error) {
	svc, err := a.service(ctx)
	if err != nil {
		return nil, err
	}
	call := svc.LiveChatMessages.List(liveChatID, []string{"snippet", "authorDetails"}).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
