package display

import (
	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
	"github.com/git-blame-dev/stream-sync-sub005/internal/tts"
)

// Surface is an overlay region. Chat text and notifications render on
// separate surfaces and may overlap in time; within one surface at most
// one item is ever visible.
type Surface string

const (
	SurfaceChat         Surface = "chat"
	SurfaceNotification Surface = "notification"
)

type ItemType string

const (
	TypeChat         ItemType = "chat"
	TypeNotification ItemType = "notification"
	TypeVFX          ItemType = "vfx"
)

// Priorities; lower numbers are more urgent. Items marked Preempting may
// displace a currently-visible item of a strictly higher number.
const (
	PriorityRaid         = 1
	PriorityGift         = 2
	PriorityNotification = 3
	PriorityChat         = 4
)

// VFXRef carries the effect an item fires when it becomes visible.
type VFXRef struct {
	Command    string
	CommandKey string
	Username   string
	UserID     string
}

type Item struct {
	ID         string
	Priority   int
	DurationMs int
	Type       ItemType
	Surface    Surface
	Platform   core.Platform

	Text       string
	SourceName string // overlay text source
	SceneName  string
	GroupName  string // optional group toggled visible while shown
	LogoSource string // optional platform logo source

	VFX       *VFXRef
	TTSStages []tts.Stage

	Preempting    bool
	CorrelationID string

	seq uint64
}

// itemHeap orders by priority, then FIFO by enqueue sequence.
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(*Item)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
