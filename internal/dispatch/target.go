package dispatch

import "sync/atomic"

// FallbackChatID is used when no chat was configured or learned.
const FallbackChatID int64 = -1002394763684

const (
	SourceConfig   = "config"
	SourceLearned  = "learned"
	SourceFallback = "fallback"
	SourceNone     = "none"
)

// Target resolves the conversation that receives scheduled polls.
// Resolution order is config override, then the learned chat, then the
// fallback. A chat is learned at most once per process.
type Target struct {
	fallback int64
	override atomic.Int64
	learned  atomic.Int64
}

func NewTarget(fallback int64) *Target {
	return &Target{fallback: fallback}
}

// Override pins the target. Zero clears the override.
func (t *Target) Override(chatID int64) { t.override.Store(chatID) }

// Learn records chatID if nothing was learned yet. It reports whether the
// value was stored.
func (t *Target) Learn(chatID int64) bool {
	if chatID == 0 {
		return false
	}
	return t.learned.CompareAndSwap(0, chatID)
}

// Learned returns the learned chat, or 0.
func (t *Target) Learned() int64 { return t.learned.Load() }

// Resolve returns the chat to post to, or 0 when nothing is available.
func (t *Target) Resolve() int64 {
	id, _ := t.resolve()
	return id
}

// Source names where Resolve's value comes from.
func (t *Target) Source() string {
	_, src := t.resolve()
	return src
}

func (t *Target) resolve() (int64, string) {
	if t == nil {
		return 0, SourceNone
	}
	if id := t.override.Load(); id != 0 {
		return id, SourceConfig
	}
	if id := t.learned.Load(); id != 0 {
		return id, SourceLearned
	}
	if t.fallback != 0 {
		return t.fallback, SourceFallback
	}
	return 0, SourceNone
}
