package searchview

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wesm/vaultsearch/internal/metrics"
)

// Notice kinds.
const (
	NoticeFeatureUnavailable = "feature_unavailable"
	NoticeFailure            = "failure"
)

// maxNotices bounds the NoticeBoard backlog.
const maxNotices = 50

// Notice is a message shown to the user.
type Notice struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// NoticeBoard collects user-facing notices in memory, oldest first.
type NoticeBoard struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	notices []Notice
}

// NewNoticeBoard creates an empty board. Either argument may be nil.
func NewNoticeBoard(logger *slog.Logger, m *metrics.Metrics) *NoticeBoard {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoticeBoard{logger: logger, metrics: m}
}

func (n *NoticeBoard) FeatureUnavailable(feature string) {
	n.add(NoticeFeatureUnavailable, fmt.Sprintf("The %s is not available for this account.", feature))
}

func (n *NoticeBoard) Failure(err error) {
	n.logger.Warn("search view failure", "error", err)
	n.add(NoticeFailure, err.Error())
}

func (n *NoticeBoard) add(kind, message string) {
	n.metrics.RecordNotification(kind)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, Notice{Kind: kind, Message: message, At: time.Now()})
	if len(n.notices) > maxNotices {
		n.notices = n.notices[len(n.notices)-maxNotices:]
	}
}

// Notices returns the collected notices.
func (n *NoticeBoard) Notices() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

// Drain returns the collected notices and clears the board.
func (n *NoticeBoard) Drain() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.notices
	n.notices = nil
	return out
}

var _ Notifier = (*NoticeBoard)(nil)
