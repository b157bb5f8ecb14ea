package audit

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mavasquez/ferrevia-backend/pkg/db/models"
	"github.com/mavasquez/ferrevia-backend/pkg/logger"
)

// Sink records saga actions without ever blocking or failing the caller.
// Events go through a buffered channel to a single writer goroutine; when
// the buffer is full the event is dropped and counted, because losing an
// audit row is better than stalling a checkout.
type Sink struct {
	db     *gorm.DB
	write  func(event *models.AuditEvent) error
	log    *logger.Logger
	events chan models.AuditEvent

	mu      sync.Mutex
	dropped int64
	done    chan struct{}
	closed  bool
}

// NewSink starts the writer goroutine.
func NewSink(db *gorm.DB, bufferSize int, log *logger.Logger) *Sink {
	return newSink(db, func(event *models.AuditEvent) error {
		return db.Create(event).Error
	}, bufferSize, log)
}

func newSink(db *gorm.DB, write func(event *models.AuditEvent) error, bufferSize int, log *logger.Logger) *Sink {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	s := &Sink{
		db:     db,
		write:  write,
		log:    log,
		events: make(chan models.AuditEvent, bufferSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Record enqueues one event. Fire and forget: callers never see an error.
func (s *Sink) Record(ctx context.Context, action, entityType, entityID string, metadata map[string]any) {
	var raw json.RawMessage
	if metadata != nil {
		if encoded, err := json.Marshal(metadata); err == nil {
			raw = encoded
		}
	}
	event := models.AuditEvent{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   raw,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
		s.dropped++
		s.log.Warn(s.log.WithField(ctx, "action", action), "audit buffer full, event dropped")
	}
}

// Dropped reports how many events were lost to a full buffer.
func (s *Sink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close drains the buffer and stops the writer. Safe to call once during
// shutdown.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.events)
	<-s.done
}

func (s *Sink) run() {
	defer close(s.done)
	for event := range s.events {
		if err := s.write(&event); err != nil {
			s.log.Error(context.Background(), "audit event write failed", err)
		}
	}
}

// ListByEntity returns the trail for one entity, oldest first.
func (s *Sink) ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditEvent, error) {
	var rows []models.AuditEvent
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}
