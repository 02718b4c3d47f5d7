package dashboard

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/modelshelf/modelshelf/internal/catalog/db"
	catsync "github.com/modelshelf/modelshelf/internal/catalog/sync"
)

// SyncStartedData is the payload of a sync_started message.
type SyncStartedData struct {
	Root string `json:"root"`
}

// SyncCompleteData is the payload of a sync_complete message.
type SyncCompleteData struct {
	Root         string   `json:"root"`
	Created      int      `json:"created"`
	Updated      int      `json:"updated"`
	Deleted      int      `json:"deleted"`
	Skipped      int      `json:"skipped"`
	Failed       []string `json:"failed,omitempty"`
	ThumbsCopied int      `json:"thumbs_copied"`
	DurationMs   int64    `json:"duration_ms"`
}

// SyncFailedData is the payload of a sync_failed message.
type SyncFailedData struct {
	Root  string `json:"root"`
	Error string `json:"error"`
}

// EntryUpdateData is the payload of an entry_update message.
type EntryUpdateData struct {
	Name   string   `json:"name"`
	Action string   `json:"action"` // created, updated, deleted
	Fields []string `json:"fields,omitempty"`
}

// StatsData is the payload of a stats message.
type StatsData struct {
	Entries    int        `json:"entries"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// Publisher receives dashboard messages.
type Publisher interface {
	Publish(msg Message)
}

// EntryCounter reports the catalog size. *db.DB satisfies it.
type EntryCounter interface {
	CountEntries(ctx context.Context, f db.EntryFilter) (int, error)
}

// Handler turns sync lifecycle callbacks into dashboard messages.
type Handler struct {
	pub     Publisher
	counter EntryCounter
	logger  *zap.Logger
}

// NewHandler creates a handler publishing to pub. counter may be nil, in
// which case no stats messages are sent.
func NewHandler(pub Publisher, counter EntryCounter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pub: pub, counter: counter, logger: logger}
}

// OnSyncStarted is called when a reconciliation run begins.
func (h *Handler) OnSyncStarted(root string) {
	h.publish(MessageTypeSyncStarted, SyncStartedData{Root: root})
}

// OnSyncFinished is called when a reconciliation run ends. err is the run
// error, if any; res may be partial or nil.
func (h *Handler) OnSyncFinished(ctx context.Context, res *catsync.Result, err error) {
	if res != nil {
		for _, name := range res.Created {
			h.publish(MessageTypeEntryUpdate, EntryUpdateData{Name: name, Action: "created"})
		}
		for _, u := range res.Updated {
			fields := make([]string, len(u.Fields))
			for i, f := range u.Fields {
				fields[i] = string(f)
			}
			h.publish(MessageTypeEntryUpdate, EntryUpdateData{Name: u.Name, Action: "updated", Fields: fields})
		}
		for _, name := range res.Deleted {
			h.publish(MessageTypeEntryUpdate, EntryUpdateData{Name: name, Action: "deleted"})
		}
	}

	if err != nil {
		root := ""
		if res != nil {
			root = res.Root
		}
		h.publish(MessageTypeSyncFailed, SyncFailedData{Root: root, Error: err.Error()})
	} else if res != nil {
		h.publish(MessageTypeSyncComplete, SyncCompleteData{
			Root:         res.Root,
			Created:      len(res.Created),
			Updated:      len(res.Updated),
			Deleted:      len(res.Deleted),
			Skipped:      len(res.Skipped),
			Failed:       res.FailedNames(),
			ThumbsCopied: res.ThumbsCopied,
			DurationMs:   res.Duration.Milliseconds(),
		})
	}

	if h.counter == nil {
		return
	}
	n, cerr := h.counter.CountEntries(ctx, db.EntryFilter{})
	if cerr != nil {
		h.logger.Warn("failed to count entries", zap.Error(cerr))
		return
	}
	stats := StatsData{Entries: n}
	if err == nil {
		now := time.Now().UTC()
		stats.LastSyncAt = &now
	}
	h.publish(MessageTypeStats, stats)
}

// NewMessage builds a message with the given payload.
func NewMessage(msgType MessageType, data interface{}) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Timestamp: time.Now(), Data: raw}, nil
}

func (h *Handler) publish(msgType MessageType, data interface{}) {
	msg, err := NewMessage(msgType, data)
	if err != nil {
		h.logger.Error("failed to marshal message data", zap.String("type", string(msgType)), zap.Error(err))
		return
	}
	h.pub.Publish(msg)
}
