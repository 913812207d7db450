package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/rendezvous-server-go/internal/model"
)

type AuditEventRepository interface {
	Create(ctx context.Context, event model.AuditEvent) error
	FindRecent(ctx context.Context, limit int) ([]model.AuditEvent, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditEventRepo struct {
	db *sqlx.DB
}

func NewAuditEventRepository(db *sqlx.DB) AuditEventRepository {
	return &auditEventRepo{db: db}
}

var emptyDetails = json.RawMessage(`{}`)

func (r *auditEventRepo) Create(ctx context.Context, event model.AuditEvent) error {
	if len(event.Details) == 0 {
		event.Details = emptyDetails
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO audit_events (id, event_type, pc_id, smartphone_id, challenge_id, ip, details, created_at)
		VALUES (:id, :event_type, :pc_id, :smartphone_id, :challenge_id, :ip, :details, :created_at)
	`, event)
	return err
}

func (r *auditEventRepo) FindRecent(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	var events []model.AuditEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM audit_events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	return events, err
}

func (r *auditEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM audit_events WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
