package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"guardpost/pkg/biometric"
	"guardpost/pkg/errors"
	"guardpost/pkg/logging"
	"guardpost/pkg/models"
	"guardpost/pkg/repository"
)

// CreateAccountRequest carries the fields for a new staff identity
type CreateAccountRequest struct {
	Name              string        `json:"name"`
	Email             string        `json:"email"`
	Role              string        `json:"role"`
	BiometricRef      models.Vector `json:"biometric_ref,omitempty"`
	DeviceFingerprint string        `json:"device_fingerprint,omitempty"`
}

// AccountService manages staff identities and biometric enrollment
type AccountService interface {
	Create(ctx context.Context, req *CreateAccountRequest) (*models.Account, error)
	// SelfRegister creates an agent on site while the event's registration
	// buffer is open and immediately assigns them to it.
	SelfRegister(ctx context.Context, eventID string, req *CreateAccountRequest) (*models.Account, *models.Assignment, error)
	Get(ctx context.Context, id string) (*models.Account, error)
	List(ctx context.Context, role string, limit, offset int) ([]*models.Account, int64, error)
	EnrollBiometric(ctx context.Context, accountID string, reference models.Vector) error
	Suspend(ctx context.Context, accountID string) error
	SoftDelete(ctx context.Context, accountID string) error
	HardDelete(ctx context.Context, accountID string) error
}

// AccountServiceImpl implements AccountService
type AccountServiceImpl struct {
	accounts    repository.AccountRepository
	eventsRepo  repository.EventRepository
	assignments AssignmentService

	now func() time.Time
}

// NewAccountService creates a new account service
func NewAccountService(
	accounts repository.AccountRepository,
	eventsRepo repository.EventRepository,
	assignments AssignmentService,
) *AccountServiceImpl {
	return &AccountServiceImpl{
		accounts:    accounts,
		eventsRepo:  eventsRepo,
		assignments: assignments,
		now:         time.Now,
	}
}

// Create validates and persists a new account
func (s *AccountServiceImpl) Create(ctx context.Context, req *CreateAccountRequest) (*models.Account, error) {
	if err := validateAccountRequest(req); err != nil {
		return nil, err
	}

	account := &models.Account{
		ID:                uuid.New().String(),
		Name:              strings.TrimSpace(req.Name),
		Email:             strings.ToLower(strings.TrimSpace(req.Email)),
		Role:              req.Role,
		Status:            models.AccountActive,
		BiometricRef:      req.BiometricRef,
		DeviceFingerprint: req.DeviceFingerprint,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	logging.Infof("created %s account %s", account.Role, account.ID)
	return account, nil
}

// SelfRegister creates an agent during the event's on-site registration
// buffer and confirms an assignment in the same call.
func (s *AccountServiceImpl) SelfRegister(ctx context.Context, eventID string, req *CreateAccountRequest) (*models.Account, *models.Assignment, error) {
	event, err := s.eventsRepo.Get(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	if !event.RegistrationOpen(s.now()) {
		return nil, nil, errors.OutOfWindowErrorf("REGISTRATION_CLOSED",
			"on-site registration for event %s is not open", eventID)
	}

	req.Role = models.RoleAgent
	account, err := s.Create(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	assignment, _, err := s.assignments.CreateOrConfirm(ctx, account.ID, eventID, nil, account.ID)
	if err != nil {
		return nil, nil, err
	}

	return account, assignment, nil
}

// Get returns the account by id
func (s *AccountServiceImpl) Get(ctx context.Context, id string) (*models.Account, error) {
	return s.accounts.Get(ctx, id)
}

// List returns accounts, optionally filtered by role
func (s *AccountServiceImpl) List(ctx context.Context, role string, limit, offset int) ([]*models.Account, int64, error) {
	return s.accounts.List(ctx, role, limit, offset)
}

// EnrollBiometric stores or replaces the account's reference embedding
func (s *AccountServiceImpl) EnrollBiometric(ctx context.Context, accountID string, reference models.Vector) error {
	if len(reference) != biometric.VectorLength {
		return errors.ValidationErrorf("BAD_BIOMETRIC_REF",
			"reference embedding has length %d, want %d", len(reference), biometric.VectorLength)
	}

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}

	account.BiometricRef = reference
	if err := s.accounts.Update(ctx, account); err != nil {
		return err
	}

	logging.Infof("enrolled biometric reference for account %s", accountID)
	return nil
}

// Suspend marks the account suspended; suspended agents fail admission
func (s *AccountServiceImpl) Suspend(ctx context.Context, accountID string) error {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Status == models.AccountSuspended {
		return nil
	}

	account.Status = models.AccountSuspended
	return s.accounts.Update(ctx, account)
}

// SoftDelete retires the account. History referencing it stays intact.
func (s *AccountServiceImpl) SoftDelete(ctx context.Context, accountID string) error {
	return s.accounts.SoftDelete(ctx, accountID)
}

// HardDelete permanently removes the account row
func (s *AccountServiceImpl) HardDelete(ctx context.Context, accountID string) error {
	return s.accounts.HardDelete(ctx, accountID)
}

func validateAccountRequest(req *CreateAccountRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.ValidationErrorf("MISSING_NAME", "account name is required")
	}
	if !strings.Contains(req.Email, "@") {
		return errors.ValidationErrorf("BAD_EMAIL", "a valid email is required")
	}
	switch req.Role {
	case models.RoleAgent, models.RoleSupervisor, models.RoleAdmin:
	default:
		return errors.ValidationErrorf("BAD_ROLE", "unknown role %q", req.Role)
	}
	if len(req.BiometricRef) > 0 && len(req.BiometricRef) != biometric.VectorLength {
		return errors.ValidationErrorf("BAD_BIOMETRIC_REF",
			"reference embedding has length %d, want %d", len(req.BiometricRef), biometric.VectorLength)
	}
	return nil
}
