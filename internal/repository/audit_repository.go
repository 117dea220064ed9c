package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/pkg/datastore"
)

// AuditRepository appends audit trail rows.
type AuditRepository struct {
	store *datastore.Store
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(store *datastore.Store) *AuditRepository {
	return &AuditRepository{store: store}
}

// Create stores an audit log entry.
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if err := r.store.Insert(ctx, "audit_logs", log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
