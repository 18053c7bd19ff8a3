// Package store persists triage decisions and misclassification reports to
// PostgreSQL. Records are append-only; corrections reference the original
// record instead of mutating it.
package store

import (
	"context"
	"database/sql"
	"time"

	"helpdesk-triage/internal/common/errors"
	"helpdesk-triage/internal/common/logger"
	"helpdesk-triage/internal/engine/schema"
	"helpdesk-triage/internal/engine/sentiment"

	"github.com/google/uuid"
)

// Record is one persisted triage decision.
type Record struct {
	ID               string    `json:"id"`
	TicketID         string    `json:"ticket_id"`
	Subject          string    `json:"subject"`
	Body             string    `json:"body"`
	Category         string    `json:"category"`
	Subcategory      string    `json:"subcategory"`
	Summary          string    `json:"summary"`
	Response         string    `json:"response"`
	ConfidenceSource string    `json:"confidence_source"`
	Sentiment        string    `json:"sentiment"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewRecord assembles a Record from a ticket, its decision, and the
// sentiment label.
func NewRecord(ticket schema.TicketInput, decision schema.Decision, label sentiment.Label) *Record {
	return &Record{
		ID:               uuid.NewString(),
		TicketID:         ticket.ID,
		Subject:          ticket.Subject,
		Body:             ticket.Body,
		Category:         string(decision.Category),
		Subcategory:      decision.Subcategory,
		Summary:          decision.Summary,
		Response:         decision.Response,
		ConfidenceSource: decision.ConfidenceSource,
		Sentiment:        string(label),
		CreatedAt:        time.Now().UTC(),
	}
}

// TriageStore is the PostgreSQL-backed decision store.
type TriageStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewTriageStore(db *sql.DB, log logger.Logger) *TriageStore {
	return &TriageStore{
		db: db,
		logger: log.WithFields(map[string]interface{}{
			"component": "store",
		}),
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *TriageStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS triage_records (
			id UUID PRIMARY KEY,
			ticket_id TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			subcategory TEXT NOT NULL,
			summary TEXT NOT NULL,
			response TEXT NOT NULL,
			confidence_source TEXT NOT NULL,
			sentiment TEXT NOT NULL DEFAULT 'NEUTRAL',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_triage_records_created_at ON triage_records (created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS triage_corrections (
			id UUID PRIMARY KEY,
			ticket_id TEXT NOT NULL,
			predicted_category TEXT NOT NULL,
			corrected_category TEXT NOT NULL,
			ticket_text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.NewQueryExecutionFailedError(stmt, err)
		}
	}
	return nil
}

const insertRecordQuery = `INSERT INTO triage_records
	(id, ticket_id, subject, body, category, subcategory, summary, response, confidence_source, sentiment, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// SaveRecord inserts one decision record. A missing ID is generated.
func (s *TriageStore) SaveRecord(ctx context.Context, record *Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, insertRecordQuery,
		record.ID,
		record.TicketID,
		record.Subject,
		record.Body,
		record.Category,
		record.Subcategory,
		record.Summary,
		record.Response,
		record.ConfidenceSource,
		record.Sentiment,
		record.CreatedAt,
	)
	if err != nil {
		return errors.NewRecordInsertFailedError(err)
	}

	s.logger.Debug("triage record saved", map[string]interface{}{
		"recordId": record.ID,
		"ticketId": record.TicketID,
		"category": record.Category,
	})
	return nil
}

const listRecentQuery = `SELECT id, ticket_id, subject, body, category, subcategory, summary, response, confidence_source, sentiment, created_at
	FROM triage_records ORDER BY created_at DESC LIMIT $1`

// ListRecent returns the newest records first.
func (s *TriageStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, listRecentQuery, limit)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError(listRecentQuery, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.TicketID, &r.Subject, &r.Body,
			&r.Category, &r.Subcategory, &r.Summary, &r.Response,
			&r.ConfidenceSource, &r.Sentiment, &r.CreatedAt,
		); err != nil {
			return nil, errors.NewQueryExecutionFailedError(listRecentQuery, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError(listRecentQuery, err)
	}

	return records, nil
}

const categoryCountsQuery = `SELECT category, COUNT(*) FROM triage_records GROUP BY category`

// CategoryCounts returns the record count per category.
func (s *TriageStore) CategoryCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, categoryCountsQuery)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError(categoryCountsQuery, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, errors.NewQueryExecutionFailedError(categoryCountsQuery, err)
		}
		counts[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError(categoryCountsQuery, err)
	}

	return counts, nil
}

const insertCorrectionQuery = `INSERT INTO triage_corrections
	(id, ticket_id, predicted_category, corrected_category, ticket_text, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

// RecordCorrection logs an agent-reported misclassification so keyword rules
// and prompts can be tuned against real mistakes.
func (s *TriageStore) RecordCorrection(ctx context.Context, ticketID, predicted, corrected, ticketText string) error {
	_, err := s.db.ExecContext(ctx, insertCorrectionQuery,
		uuid.NewString(), ticketID, predicted, corrected, ticketText, time.Now().UTC(),
	)
	if err != nil {
		return errors.NewRecordInsertFailedError(err)
	}

	s.logger.Info("misclassification recorded", map[string]interface{}{
		"ticketId":  ticketID,
		"predicted": predicted,
		"corrected": corrected,
	})
	return nil
}
