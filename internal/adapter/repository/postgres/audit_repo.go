package postgres

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

const auditColumns = `id, user_id, action, resource_type, resource_id, request_id, after_state, status, error_message, created_at`

// AuditRepository implements audit log persistence
type AuditRepository struct {
	db DBTX
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateTx inserts a new audit log entry within a transaction
func (r *AuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	var afterStateJSON []byte
	if log.AfterState != nil {
		var err error
		afterStateJSON, err = json.Marshal(log.AfterState)
		if err != nil {
			return err
		}
	}

	_, err := txDB(tx).Exec(ctx, `
		INSERT INTO audit_logs (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		log.ID,
		log.UserID,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		log.RequestID,
		afterStateJSON,
		log.Status,
		log.ErrorMessage,
		timeToPgTimestamptz(log.CreatedAt),
	)

	return err
}

// List retrieves audit logs with filtering, newest first
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE 1=1`
	args := []any{}

	add := func(clause string, value any) {
		args = append(args, value)
		query += clause + strconv.Itoa(len(args))
	}

	if filter.UserID != "" {
		add(` AND user_id = $`, filter.UserID)
	}
	if filter.Action != "" {
		add(` AND action = $`, filter.Action)
	}
	if filter.ResourceType != "" {
		add(` AND resource_type = $`, filter.ResourceType)
	}
	if filter.ResourceID != "" {
		add(` AND resource_id = $`, filter.ResourceID)
	}

	query += ` ORDER BY created_at DESC, id DESC`

	if filter.Limit > 0 {
		add(` LIMIT $`, filter.Limit)
	}
	if filter.Offset > 0 {
		add(` OFFSET $`, filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return collect(rows, func(row rowScanner) (*domain.AuditLog, error) {
		var (
			log            domain.AuditLog
			afterStateJSON []byte
			createdAt      pgtype.Timestamptz
		)

		if err := row.Scan(&log.ID, &log.UserID, &log.Action, &log.ResourceType, &log.ResourceID,
			&log.RequestID, &afterStateJSON, &log.Status, &log.ErrorMessage, &createdAt); err != nil {
			return nil, err
		}

		if afterStateJSON != nil {
			_ = json.Unmarshal(afterStateJSON, &log.AfterState)
		}
		log.CreatedAt = createdAt.Time

		return &log, nil
	})
}
