// Package audit records state-mutating actions for taskgraph.
package audit

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"github.com/fentz26/taskgraph/internal/models"
	"github.com/oklog/ulid/v2"
)

// Sink receives audit entries. Implementations must not block the caller on
// failure; errors are theirs to log.
type Sink interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

// Writer persists audit entries.
type Writer interface {
	WriteAudit(ctx context.Context, entry *models.AuditEntry) error
}

// Recorder fills in identity and hash fields and persists entries.
type Recorder struct {
	w      Writer
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	entropy io.Reader
}

// NewRecorder creates a Recorder writing to w.
func NewRecorder(w Writer, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		w:       w,
		logger:  logger,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Record writes the entry. Failures are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, entry models.AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now().UTC()
	}
	if entry.ID == "" {
		r.mu.Lock()
		entry.ID = ulid.MustNew(ulid.Timestamp(entry.Timestamp), r.entropy).String()
		r.mu.Unlock()
	}
	if entry.InputsHash == "" {
		entry.InputsHash = hashInputs(map[string]string{
			"entity": entry.EntityID,
			"action": entry.Action,
			"old":    entry.OldValue,
			"new":    entry.NewValue,
			"actor":  entry.ActorID,
		})
	}
	if err := r.w.WriteAudit(ctx, &entry); err != nil {
		r.logger.Printf("audit: failed to record %s on %s %s: %v", entry.Action, entry.EntityType, entry.EntityID, err)
	}
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Multi fans an entry out to several sinks in order.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, entry models.AuditEntry) {
	for _, s := range m {
		s.Record(ctx, entry)
	}
}

// LogNotifier writes a one-line notice per entry. It stands in for an
// outbound notification channel.
type LogNotifier struct {
	Logger *log.Logger
}

// Record implements Sink.
func (n LogNotifier) Record(_ context.Context, e models.AuditEntry) {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	if e.OldValue != "" || e.NewValue != "" {
		logger.Printf("notify: %s %s %s %s -> %s (actor %s)", e.Action, e.EntityType, e.EntityID, e.OldValue, e.NewValue, e.ActorID)
		return
	}
	logger.Printf("notify: %s %s %s (actor %s)", e.Action, e.EntityType, e.EntityID, e.ActorID)
}
