package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adminphysiotech/physiotech/internal/models"
	"github.com/adminphysiotech/physiotech/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory
// storage. This implementation is for testing only - data is lost on restart.
type OrganizationStore struct {
	mu sync.RWMutex

	orgs        map[uuid.UUID]*models.Organization // org_id -> Organization
	orgsByEmail map[string]*models.Organization    // email -> Organization

	sessions *VerificationStore // for transactional Activate
}

// NewOrganizationStore creates a new in-memory organization store. The
// verification store is needed so Activate can delete the session together
// with the organization update, mirroring the postgres transaction.
func NewOrganizationStore(sessions *VerificationStore) *OrganizationStore {
	return &OrganizationStore{
		orgs:        make(map[uuid.UUID]*models.Organization),
		orgsByEmail: make(map[string]*models.Organization),
		sessions:    sessions,
	}
}

// Create creates a new organization in memory.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orgs[org.OrgID]; exists {
		return store.ErrOrganizationAlreadyExists
	}
	if _, exists := s.orgsByEmail[org.Email]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *org
	s.orgs[org.OrgID] = &clone
	s.orgsByEmail[org.Email] = &clone

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.orgs[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}

// GetByEmail retrieves an organization by its contact email.
func (s *OrganizationStore) GetByEmail(ctx context.Context, email string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.orgsByEmail[email]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}

// UpdateStatus moves an organization to a new lifecycle status.
func (s *OrganizationStore) UpdateStatus(ctx context.Context, orgID uuid.UUID, status models.OrganizationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.orgs[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	org.Status = status
	org.UpdatedAt = time.Now()
	return nil
}

// Delete removes an organization and, like the FK cascade, any verification
// session that references it.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.orgs[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	delete(s.orgs, orgID)
	delete(s.orgsByEmail, org.Email)

	if s.sessions != nil {
		s.sessions.deleteByOrg(orgID)
	}

	return nil
}

// Activate persists the provisioned fields, stamps the organization
// active/verified and deletes the verification session atomically (under the
// store lock, standing in for the postgres transaction).
func (s *OrganizationStore) Activate(ctx context.Context, org *models.Organization, verificationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.orgs[org.OrgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	if s.sessions != nil {
		if err := s.sessions.Delete(ctx, verificationID); err != nil {
			return err
		}
	}

	clone := *org
	clone.UpdatedAt = time.Now()
	s.orgs[org.OrgID] = &clone
	delete(s.orgsByEmail, existing.Email)
	s.orgsByEmail[clone.Email] = &clone

	return nil
}
