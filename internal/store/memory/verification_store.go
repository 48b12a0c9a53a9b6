package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adminphysiotech/physiotech/internal/models"
	"github.com/adminphysiotech/physiotech/internal/store"
)

// VerificationStore implements store.VerificationStore using in-memory
// storage. This implementation is for testing only - data is lost on restart.
type VerificationStore struct {
	mu sync.RWMutex

	sessions      map[uuid.UUID]*models.VerificationSession // verification_id -> session
	sessionsByOrg map[uuid.UUID]uuid.UUID                   // org_id -> verification_id
}

// NewVerificationStore creates a new in-memory verification store.
func NewVerificationStore() *VerificationStore {
	return &VerificationStore{
		sessions:      make(map[uuid.UUID]*models.VerificationSession),
		sessionsByOrg: make(map[uuid.UUID]uuid.UUID),
	}
}

// Create creates a new verification session in memory.
func (s *VerificationStore) Create(ctx context.Context, session *models.VerificationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.VerificationID]; exists {
		return store.ErrVerificationAlreadyExists
	}
	// one live session per organization
	if _, exists := s.sessionsByOrg[session.OrgID]; exists {
		return store.ErrVerificationAlreadyExists
	}

	clone := *session
	s.sessions[session.VerificationID] = &clone
	s.sessionsByOrg[session.OrgID] = session.VerificationID

	return nil
}

// Get retrieves a verification session by ID.
func (s *VerificationStore) Get(ctx context.Context, verificationID uuid.UUID) (*models.VerificationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[verificationID]
	if !exists {
		return nil, store.ErrVerificationNotFound
	}

	clone := *session
	return &clone, nil
}

// IncrementAttempts bumps one factor's attempt counter and returns the
// updated count.
func (s *VerificationStore) IncrementAttempts(ctx context.Context, verificationID uuid.UUID, factor models.Factor) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[verificationID]
	if !exists {
		return 0, store.ErrVerificationNotFound
	}

	session.UpdatedAt = time.Now()

	switch factor {
	case models.FactorEmail:
		session.EmailAttempts++
		return session.EmailAttempts, nil
	case models.FactorSMS:
		session.SMSAttempts++
		return session.SMSAttempts, nil
	case models.FactorTOTP:
		session.TOTPAttempts++
		return session.TOTPAttempts, nil
	}
	return 0, store.ErrVerificationNotFound
}

// MarkFactorVerified stamps one factor's verified-at timestamp.
func (s *VerificationStore) MarkFactorVerified(ctx context.Context, verificationID uuid.UUID, factor models.Factor, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[verificationID]
	if !exists {
		return store.ErrVerificationNotFound
	}

	session.UpdatedAt = time.Now()

	switch factor {
	case models.FactorEmail:
		session.EmailVerifiedAt = &at
	case models.FactorSMS:
		session.SMSVerifiedAt = &at
	case models.FactorTOTP:
		session.TOTPVerifiedAt = &at
	}
	return nil
}

// Delete removes a verification session by ID.
func (s *VerificationStore) Delete(ctx context.Context, verificationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[verificationID]
	if !exists {
		return store.ErrVerificationNotFound
	}

	delete(s.sessions, verificationID)
	delete(s.sessionsByOrg, session.OrgID)
	return nil
}

// deleteByOrg mirrors the FK cascade from organizations.
func (s *VerificationStore) deleteByOrg(orgID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if verificationID, exists := s.sessionsByOrg[orgID]; exists {
		delete(s.sessions, verificationID)
		delete(s.sessionsByOrg, orgID)
	}
}
