package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"accredo/internal/accreditation/models"
	id "accredo/pkg/domain"
	"accredo/pkg/platform/sentinel"
)

const sessionKeyPrefix = "accreditation:session:"

// RedisStore persists sessions as JSON documents in Redis. The CAS contract is
// implemented with WATCH/MULTI so concurrent writers on one key serialize the
// same way as with the other backends.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed session store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// sessionJSON is the serialized representation with explicit tags. Timestamps
// are Unix nanos to survive round-trips unchanged.
type sessionJSON struct {
	ID            string              `json:"id"`
	Path          string              `json:"path"`
	Step          int                 `json:"step"`
	Status        string              `json:"status"`
	Evidence      map[string]string   `json:"evidence"`
	Extraction    *cardExtractionJSON `json:"extraction,omitempty"`
	VoterDetails  *voterDetailsJSON   `json:"voter_details,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	Version       int64               `json:"version"`
	CreatedAt     int64               `json:"created_at"`
	CompletedAt   *int64              `json:"completed_at,omitempty"`
}

func sessionToJSON(s *models.Session) *sessionJSON {
	j := &sessionJSON{
		ID:            s.ID.String(),
		Path:          string(s.Path),
		Step:          s.Step,
		Status:        string(s.Status),
		Evidence:      make(map[string]string, len(s.Evidence)),
		FailureReason: s.FailureReason,
		Version:       s.Version,
		CreatedAt:     s.CreatedAt.UnixNano(),
	}
	for step, ref := range s.Evidence {
		j.Evidence[string(step)] = ref
	}
	if s.Extraction != nil {
		j.Extraction = &cardExtractionJSON{
			VIN:         s.Extraction.VIN,
			FullName:    s.Extraction.FullName,
			DateOfBirth: s.Extraction.DateOfBirth,
		}
	}
	if s.VoterDetails != nil {
		j.VoterDetails = &voterDetailsJSON{
			VIN:         s.VoterDetails.VIN,
			FullName:    s.VoterDetails.FullName,
			DateOfBirth: s.VoterDetails.DateOfBirth,
			PollingUnit: s.VoterDetails.PollingUnit,
			Ward:        s.VoterDetails.Ward,
			LGA:         s.VoterDetails.LGA,
		}
	}
	if s.CompletedAt != nil {
		ts := s.CompletedAt.UnixNano()
		j.CompletedAt = &ts
	}
	return j
}

func sessionFromJSON(j *sessionJSON) (*models.Session, error) {
	sessionID, err := uuid.Parse(j.ID)
	if err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	s := &models.Session{
		ID:            id.AccreditationID(sessionID),
		Path:          models.Path(j.Path),
		Step:          j.Step,
		Status:        models.Status(j.Status),
		Evidence:      make(map[models.StepName]string, len(j.Evidence)),
		FailureReason: j.FailureReason,
		Version:       j.Version,
		CreatedAt:     time.Unix(0, j.CreatedAt),
	}
	for step, ref := range j.Evidence {
		s.Evidence[models.StepName(step)] = ref
	}
	if j.Extraction != nil {
		s.Extraction = &models.CardExtraction{
			VIN:         j.Extraction.VIN,
			FullName:    j.Extraction.FullName,
			DateOfBirth: j.Extraction.DateOfBirth,
		}
	}
	if j.VoterDetails != nil {
		s.VoterDetails = &models.VoterDetails{
			VIN:         j.VoterDetails.VIN,
			FullName:    j.VoterDetails.FullName,
			DateOfBirth: j.VoterDetails.DateOfBirth,
			PollingUnit: j.VoterDetails.PollingUnit,
			Ward:        j.VoterDetails.Ward,
			LGA:         j.VoterDetails.LGA,
		}
	}
	if j.CompletedAt != nil {
		t := time.Unix(0, *j.CompletedAt)
		s.CompletedAt = &t
	}
	return s, nil
}

func (s *RedisStore) Create(ctx context.Context, session *models.Session) error {
	payload, err := json.Marshal(sessionToJSON(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, sessionKeyPrefix+session.ID.String(), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return sentinel.ErrAlreadyExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID id.AccreditationID) (*models.Session, error) {
	payload, err := s.client.Get(ctx, sessionKeyPrefix+sessionID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var j sessionJSON
	if err := json.Unmarshal(payload, &j); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return sessionFromJSON(&j)
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, sessionID id.AccreditationID, expectedVersion int64, session *models.Session) error {
	key := sessionKeyPrefix + sessionID.String()

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read session for cas: %w", err)
		}
		var current sessionJSON
		if err := json.Unmarshal(payload, &current); err != nil {
			return fmt.Errorf("decode session for cas: %w", err)
		}
		if current.Version != expectedVersion {
			return sentinel.ErrVersionConflict
		}

		next := sessionToJSON(session)
		next.Version = expectedVersion + 1
		nextPayload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal session for cas: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, nextPayload, 0)
			return nil
		})
		return err
	}, key)

	// A concurrent write between WATCH and EXEC aborts the transaction; that
	// is exactly a version conflict from the caller's point of view.
	if errors.Is(err, redis.TxFailedErr) {
		return sentinel.ErrVersionConflict
	}
	if err != nil {
		return err
	}
	session.Version = expectedVersion + 1
	return nil
}

func (s *RedisStore) List(ctx context.Context, filter *models.ListFilter) ([]*models.Session, error) {
	var out []*models.Session

	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 250).Iterator()
	for iter.Next(ctx) {
		payload, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		var j sessionJSON
		if err := json.Unmarshal(payload, &j); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		session, err := sessionFromJSON(&j)
		if err != nil {
			return nil, err
		}
		if filter.Matches(session) {
			out = append(out, session)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
