// Package recovery reconstructs a bounded-size resume window for a session
// under a model context-size budget. Each call is a one-shot computation
// over the session log: find the most recent summary, check the candidate
// window against the budget, and compress or degrade as needed.
package recovery

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pbellet/sessionlog/internal/metrics"
	"github.com/pbellet/sessionlog/pkg/conversation"
)

// DefaultCompressionThreshold is the fraction of the token limit above
// which compression is attempted.
const DefaultCompressionThreshold = 0.8

// TokenEstimator approximates the model-context cost of a set of messages.
// It is injected by the caller; this package never counts tokens itself.
type TokenEstimator func(messages []conversation.Message) int

// CompressFunc produces a summary message standing in for the given
// history. It is optional: without it recovery returns the candidate
// window unmodified regardless of cost.
type CompressFunc func(ctx context.Context, messages []conversation.Message) (conversation.Message, error)

// History is the data access the engine needs from the history manager.
type History interface {
	GetMessages(sessionID string) ([]conversation.Message, error)
	GetMetadata(sessionID string) (conversation.Metadata, error)
	AddMessage(sessionID string, msg conversation.Message) error
	MessagesSince(sessionID, fromUUID string) ([]conversation.Message, bool, error)
}

// Options configures an Engine. The zero value is usable.
type Options struct {
	// CompressionThreshold overrides DefaultCompressionThreshold when in
	// (0, 1].
	CompressionThreshold float64

	// Logger receives degradation warnings. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics receives compression and fallback counters. Nil disables
	// recording.
	Metrics *metrics.Metrics

	// Now is injectable for deterministic testing. Defaults to time.Now.
	Now func() time.Time
}

// Engine implements summary-point recovery over a history manager.
type Engine struct {
	history   History
	threshold float64
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewEngine creates an engine reading through the given history.
func NewEngine(h History, opts Options) *Engine {
	threshold := opts.CompressionThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultCompressionThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		history:   h,
		threshold: threshold,
		logger:    logger,
		metrics:   opts.Metrics,
		now:       now,
	}
}

// LoadSessionWithContextOptimization returns a resume window for the
// session that fits the token limit.
//
// The candidate window starts at the most recent summary message, or spans
// the whole log when none exists. When the estimated cost exceeds
// tokenLimit times the compression threshold and a compress callback is
// supplied, the candidate is compressed into a new summary message which is
// persisted and returned alone. A failing compress callback degrades to a
// sliding window of the most recent messages; that fallback never fails the
// caller's resume flow.
func (e *Engine) LoadSessionWithContextOptimization(ctx context.Context, sessionID string, tokenLimit int, estimate TokenEstimator, compress CompressFunc) ([]conversation.Message, error) {
	messages, err := e.history.GetMessages(sessionID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return []conversation.Message{}, nil
	}

	candidate := messages
	if k := latestSummaryIndex(messages); k >= 0 {
		candidate = messages[k:]
	}

	cost := estimate(candidate)
	if float64(cost) <= float64(tokenLimit)*e.threshold || compress == nil {
		return candidate, nil
	}

	summary, err := compress(ctx, candidate)
	if err != nil {
		e.logger.Warn("recovery: compression failed, degrading to sliding window",
			"session", sessionID,
			"cost", cost,
			"limit", tokenLimit,
			"error", err,
		)
		e.metrics.RecordRecoveryFallback()
		return slidingWindow(candidate, tokenLimit, cost), nil
	}

	summary = e.normalizeSummary(summary, sessionID, candidate)
	if err := e.history.AddMessage(sessionID, summary); err != nil {
		return nil, err
	}
	e.metrics.RecordCompression()
	return []conversation.Message{summary}, nil
}

// LoadSessionFromSummaryPoint is the fast resume path. It reads metadata
// first; when a summary pointer exists, it streams the log once from that
// uuid. A pointer that misses the log (metadata/log divergence after a
// crash mid-write) falls back to the full-log path with a warning rather
// than returning an incomplete result.
func (e *Engine) LoadSessionFromSummaryPoint(sessionID string) ([]conversation.Message, error) {
	meta, err := e.history.GetMetadata(sessionID)
	if err != nil {
		return nil, err
	}
	if !meta.HasSummary || meta.LastSummaryUUID == nil {
		return e.history.GetMessages(sessionID)
	}

	messages, found, err := e.history.MessagesSince(sessionID, *meta.LastSummaryUUID)
	if err != nil {
		return nil, err
	}
	if !found {
		e.logger.Warn("recovery: summary pointer missing from log, falling back to full scan",
			"session", sessionID,
			"summaryUuid", *meta.LastSummaryUUID,
		)
		e.metrics.RecordRecoveryFallback()
		return e.history.GetMessages(sessionID)
	}
	return messages, nil
}

// latestSummaryIndex scans backward for the most recent summary message.
// Returns -1 if none exists. Older summaries remain in the log for audit
// but are never re-evaluated.
func latestSummaryIndex(messages []conversation.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if conversation.IsSummary(messages[i]) {
			return i
		}
	}
	return -1
}

// slidingWindow returns the most recent floor(tokenLimit*0.8/avg) messages
// of the candidate, where avg is the candidate's mean per-message cost. At
// least one message is always returned so the resume flow has something to
// anchor on.
func slidingWindow(candidate []conversation.Message, tokenLimit, cost int) []conversation.Message {
	avg := float64(cost) / float64(len(candidate))
	if avg <= 0 {
		return candidate
	}
	n := int(math.Floor(float64(tokenLimit) * 0.8 / avg))
	if n < 1 {
		n = 1
	}
	if n >= len(candidate) {
		return candidate
	}
	return candidate[len(candidate)-n:]
}

// normalizeSummary fills in whatever identity the compress callback left
// blank and guarantees the result is recognizable as a summary message.
func (e *Engine) normalizeSummary(summary conversation.Message, sessionID string, candidate []conversation.Message) conversation.Message {
	summary.SessionID = sessionID
	summary.Type = conversation.TypeAssistant
	if summary.UUID == "" {
		summary.UUID = uuid.NewString()
	}
	if summary.ParentUUID == nil && len(candidate) > 0 {
		parent := candidate[len(candidate)-1].UUID
		summary.ParentUUID = &parent
	}
	if summary.Timestamp.IsZero() {
		summary.Timestamp = e.now()
	}
	if summary.Payload.Role == "" {
		summary.Payload.Role = "assistant"
	}
	if !strings.HasPrefix(summary.Payload.Content, conversation.SummaryMarker) {
		summary.Payload.Content = conversation.SummaryMarker + "\n" + summary.Payload.Content
	}
	if summary.UserType == "" {
		summary.UserType = conversation.DefaultUserType
	}
	if summary.Version == "" {
		summary.Version = conversation.FormatVersion
	}
	return summary
}
