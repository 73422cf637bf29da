package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"accredo/internal/accreditation/models"
	id "accredo/pkg/domain"
	"accredo/pkg/platform/sentinel"
)

// PostgresStore persists sessions in PostgreSQL with explicit columns and a
// version counter for optimistic writes. Evidence and voter details are typed
// documents serialized to jsonb, not an untyped blob.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed session store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type voterDetailsJSON struct {
	VIN         string `json:"vin"`
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	PollingUnit string `json:"polling_unit"`
	Ward        string `json:"ward,omitempty"`
	LGA         string `json:"lga,omitempty"`
}

type cardExtractionJSON struct {
	VIN         string `json:"vin"`
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

func (s *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	evidence, extraction, details, err := marshalDocs(session)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accreditation_sessions
			(id, path, step, status, evidence, extraction, voter_details, failure_reason, polling_unit, version, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		uuid.UUID(session.ID), string(session.Path), session.Step, string(session.Status),
		evidence, extraction, details, session.FailureReason, session.PollingUnit(),
		session.Version, session.CreatedAt, session.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID id.AccreditationID) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, step, status, evidence, extraction, voter_details, failure_reason, version, created_at, completed_at
		FROM accreditation_sessions
		WHERE id = $1
	`, uuid.UUID(sessionID))
	return scanSession(row)
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, sessionID id.AccreditationID, expectedVersion int64, session *models.Session) error {
	evidence, extraction, details, err := marshalDocs(session)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE accreditation_sessions
		SET path = $1, step = $2, status = $3, evidence = $4, extraction = $5,
		    voter_details = $6, failure_reason = $7, polling_unit = $8,
		    version = version + 1, completed_at = $9
		WHERE id = $10 AND version = $11
	`,
		string(session.Path), session.Step, string(session.Status), evidence, extraction,
		details, session.FailureReason, session.PollingUnit(), session.CompletedAt,
		uuid.UUID(sessionID), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a stale version from a missing row.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM accreditation_sessions WHERE id = $1)`,
			uuid.UUID(sessionID)).Scan(&exists); err != nil {
			return fmt.Errorf("check session existence: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionConflict
	}
	session.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter *models.ListFilter) ([]*models.Session, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT id, path, step, status, evidence, extraction, voter_details, failure_reason, version, created_at, completed_at
		FROM accreditation_sessions
	`)

	var conds []string
	var args []any
	if filter != nil {
		if filter.Status != nil {
			args = append(args, string(*filter.Status))
			conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
		}
		if filter.Path != nil {
			args = append(args, string(*filter.Path))
			conds = append(conds, fmt.Sprintf("path = $%d", len(args)))
		}
		if filter.PollingUnit != nil {
			args = append(args, *filter.PollingUnit)
			conds = append(conds, fmt.Sprintf("polling_unit = $%d", len(args)))
		}
	}
	if len(conds) > 0 {
		query.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	query.WriteString(" ORDER BY created_at")

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func marshalDocs(session *models.Session) (evidence, extraction, details []byte, err error) {
	evidenceMap := make(map[string]string, len(session.Evidence))
	for step, ref := range session.Evidence {
		evidenceMap[string(step)] = ref
	}
	evidence, err = json.Marshal(evidenceMap)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal evidence: %w", err)
	}
	if session.Extraction != nil {
		extraction, err = json.Marshal(cardExtractionJSON{
			VIN:         session.Extraction.VIN,
			FullName:    session.Extraction.FullName,
			DateOfBirth: session.Extraction.DateOfBirth,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal extraction: %w", err)
		}
	}
	if session.VoterDetails != nil {
		details, err = json.Marshal(voterDetailsJSON{
			VIN:         session.VoterDetails.VIN,
			FullName:    session.VoterDetails.FullName,
			DateOfBirth: session.VoterDetails.DateOfBirth,
			PollingUnit: session.VoterDetails.PollingUnit,
			Ward:        session.VoterDetails.Ward,
			LGA:         session.VoterDetails.LGA,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal voter details: %w", err)
		}
	}
	return evidence, extraction, details, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		sessionID   uuid.UUID
		path        string
		step        int
		status      string
		evidence    []byte
		extraction  []byte
		details     []byte
		failure     string
		version     int64
		createdAt   time.Time
		completedAt sql.NullTime
	)
	err := row.Scan(&sessionID, &path, &step, &status, &evidence, &extraction, &details, &failure, &version, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	session := &models.Session{
		ID:            id.AccreditationID(sessionID),
		Path:          models.Path(path),
		Step:          step,
		Status:        models.Status(status),
		Evidence:      make(map[models.StepName]string),
		FailureReason: failure,
		Version:       version,
		CreatedAt:     createdAt,
	}
	if completedAt.Valid {
		t := completedAt.Time
		session.CompletedAt = &t
	}

	var evidenceMap map[string]string
	if err := json.Unmarshal(evidence, &evidenceMap); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}
	for step, ref := range evidenceMap {
		session.Evidence[models.StepName(step)] = ref
	}

	if len(extraction) > 0 {
		var e cardExtractionJSON
		if err := json.Unmarshal(extraction, &e); err != nil {
			return nil, fmt.Errorf("decode extraction: %w", err)
		}
		session.Extraction = &models.CardExtraction{
			VIN:         e.VIN,
			FullName:    e.FullName,
			DateOfBirth: e.DateOfBirth,
		}
	}

	if len(details) > 0 {
		var d voterDetailsJSON
		if err := json.Unmarshal(details, &d); err != nil {
			return nil, fmt.Errorf("decode voter details: %w", err)
		}
		session.VoterDetails = &models.VoterDetails{
			VIN:         d.VIN,
			FullName:    d.FullName,
			DateOfBirth: d.DateOfBirth,
			PollingUnit: d.PollingUnit,
			Ward:        d.Ward,
			LGA:         d.LGA,
		}
	}
	return session, nil
}
