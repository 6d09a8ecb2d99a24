// Package audit writes the append-only trail of dispatch decisions.
//
// Recording is fail-open: a failing sink is logged and never surfaces to the
// caller, because the notifications it describes have already gone out.
package audit

//go:generate mockgen -source=recorder.go -destination=mocks/mock_recorder.go -package=mocks

import (
	"context"
	"time"

	"github.com/shenikar/incident_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

const defaultWriteTimeout = 5 * time.Second

// Sink persists audit entries. Implementations fill in ID and, when empty, CreatedAt.
type Sink interface {
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
}

// Recorder wraps a Sink with fail-open semantics.
type Recorder struct {
	sink         Sink
	writeTimeout time.Duration
	logger       *logrus.Logger
}

func NewRecorder(sink Sink, writeTimeout time.Duration, logger *logrus.Logger) *Recorder {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Recorder{
		sink:         sink,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Record appends one entry. The write outlives cancellation of ctx so a
// dispatch cut short by its caller still leaves its record.
func (r *Recorder) Record(ctx context.Context, entry models.AuditEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()

	if err := r.sink.AppendAudit(writeCtx, &entry); err != nil {
		r.logger.WithFields(logrus.Fields{
			"service":   "audit",
			"method":    "Record",
			"action":    entry.Action,
			"entity":    entry.EntityName,
			"entity_id": entry.EntityID,
		}).WithError(err).Error("Failed to append audit entry")
		return
	}

	r.logger.WithFields(logrus.Fields{
		"action":    entry.Action,
		"entity_id": entry.EntityID,
		"audit_id":  entry.ID,
	}).Debug("Audit entry recorded")
}
