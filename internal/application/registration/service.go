package registration

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/patient-idv/internal/application/document"
	"github.com/patient-idv/internal/application/facematch"
	"github.com/patient-idv/internal/application/identity"
	"github.com/patient-idv/internal/domain"
	"github.com/patient-idv/internal/infrastructure/logger"
	"github.com/patient-idv/internal/infrastructure/metrics"
	"github.com/patient-idv/internal/pkg/id"
)

// StaleAfter is the age after which a pending registration for the same email
// is treated as an abandoned attempt and replaced.
const StaleAfter = 5 * time.Minute

var (
	ErrEmailTaken   = fmt.Errorf("email already registered: %w", domain.ErrConflict)
	ErrReceiptUsed  = fmt.Errorf("face verification receipt already used: %w", domain.ErrConflict)
	ErrUsernameUsed = fmt.Errorf("username already taken: %w", domain.ErrConflict)
)

// Input is a validated registration form.
type Input struct {
	Request  domain.RegisterRequest
	Document *domain.IDDocument
	Receipt  facematch.Receipt
}

type Service interface {
	Register(ctx context.Context, in Input) (*domain.Registration, error)
}

type registrationStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.Registration, error)
	GetByUsername(ctx context.Context, username string) (*domain.Registration, error)
	Put(ctx context.Context, reg *domain.Registration) error
	Delete(ctx context.Context, registrationID string) error
}

type receiptLock interface {
	Claim(ctx context.Context, fingerprint string) (bool, error)
	Release(ctx context.Context, fingerprint string) error
}

type service struct {
	repo       registrationStore
	documents  document.Service
	gate       identity.Gate
	locks      receiptLock
	binding    bool
	metrics    *metrics.Metrics
	now        func() time.Time
	bcryptCost int
}

type ServiceDeps struct {
	Repo      registrationStore
	Documents document.Service
	Gate      identity.Gate
	// Locks is optional; without it a receipt can be replayed until it is rejected elsewhere.
	Locks           receiptLock
	DocumentBinding bool
	Metrics         *metrics.Metrics
	Now             func() time.Time
	BcryptCost      int
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		repo:       deps.Repo,
		documents:  deps.Documents,
		gate:       deps.Gate,
		locks:      deps.Locks,
		binding:    deps.DocumentBinding,
		metrics:    deps.Metrics,
		now:        deps.Now,
		bcryptCost: deps.BcryptCost,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.bcryptCost == 0 {
		s.bcryptCost = bcrypt.DefaultCost
	}
	if s.gate == nil {
		s.gate = identity.All(deps.Metrics)
	}
	return s
}

func (s *service) Register(ctx context.Context, in Input) (*domain.Registration, error) {
	reg, err := s.register(ctx, in)
	s.metrics.IncrementRegistration(outcome(err))
	return reg, err
}

func (s *service) register(ctx context.Context, in Input) (*domain.Registration, error) {
	req := in.Request
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	stale, err := s.staleRegistration(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	// Only a complete receipt is claimed; incomplete or malformed ones are
	// rejected by the face gate and must not burn a shared fingerprint.
	claimed := false
	fingerprint := in.Receipt.Fingerprint()
	if s.locks != nil && in.Receipt.Verified && in.Receipt.WellFormed() == nil {
		ok, err := s.locks.Claim(ctx, fingerprint)
		if err != nil {
			return nil, fmt.Errorf("claim receipt: %w: %w", domain.ErrUnavailable, err)
		}
		if !ok {
			logger.Warning("face verification receipt replayed", logger.LoggerOptions{Key: "email", Data: req.Email})
			return nil, ErrReceiptUsed
		}
		claimed = true
	}

	reg, err := s.admit(ctx, req, in, stale)
	if err != nil && claimed && !errors.Is(err, domain.ErrIntegrity) {
		if rerr := s.locks.Release(ctx, fingerprint); rerr != nil {
			logger.Warning("receipt release failed",
				logger.LoggerOptions{Key: "email", Data: req.Email},
				logger.LoggerOptions{Key: "error", Data: rerr.Error()})
		}
	}
	return reg, err
}

// admit runs the identity gates and persists the registration. A stale pending
// registration for the same email is removed only once the gates pass.
func (s *service) admit(ctx context.Context, req domain.RegisterRequest, in Input, stale *domain.Registration) (*domain.Registration, error) {
	if err := s.gate.Evaluate(ctx, in.Document, identity.Claim{Email: req.Email, Receipt: in.Receipt}); err != nil {
		return nil, err
	}
	if stale != nil {
		if err := s.removeStale(ctx, stale); err != nil {
			return nil, err
		}
	}

	username, err := s.resolveUsername(ctx, req.Username, req.Email)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	reg := &domain.Registration{
		RegistrationID: id.New(),
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		Birthdate:      req.Birthdate,
		Gender:         req.Gender,
		Email:          req.Email,
		ContactNo:      strings.TrimSpace(req.ContactNo),
		Address:        strings.TrimSpace(req.Address),
		Username:       username,
		PasswordHash:   string(hash),
		IDType:         in.Document.Type,
		IDNumber:       in.Document.Number,
		Face:           faceVerification(in.Receipt, s.binding, now),
		EmailVerified:  true,
		Status:         domain.RegistrationPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	stored, err := s.documents.Store(ctx, reg.RegistrationID, in.Document)
	if err != nil {
		return nil, fmt.Errorf("store document: %w: %w", domain.ErrUnavailable, err)
	}
	reg.Document = *stored

	if err := s.repo.Put(ctx, reg); err != nil {
		s.documents.Discard(ctx, stored)
		return nil, err
	}
	logger.Info("patient registered",
		logger.LoggerOptions{Key: "registration_id", Data: reg.RegistrationID},
		logger.LoggerOptions{Key: "id_type", Data: string(reg.IDType)})
	return reg, nil
}

// staleRegistration returns an abandoned pending registration for email, nil
// when the email is free, and ErrEmailTaken for any other existing registration.
func (s *service) staleRegistration(ctx context.Context, email string) (*domain.Registration, error) {
	existing, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if existing.Status != domain.RegistrationPending || s.now().Sub(existing.CreatedAt) < StaleAfter {
		return nil, ErrEmailTaken
	}
	return existing, nil
}

func (s *service) removeStale(ctx context.Context, stale *domain.Registration) error {
	if err := s.repo.Delete(ctx, stale.RegistrationID); err != nil {
		return err
	}
	s.documents.Discard(ctx, &stale.Document)
	logger.Info("stale pending registration removed", logger.LoggerOptions{Key: "registration_id", Data: stale.RegistrationID})
	return nil
}

var usernameUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// resolveUsername returns the requested username if free, or derives one from
// the email local part with a random suffix on collision.
func (s *service) resolveUsername(ctx context.Context, requested, email string) (string, error) {
	if requested != "" {
		taken, err := s.usernameTaken(ctx, requested)
		if err != nil {
			return "", err
		}
		if taken {
			return "", ErrUsernameUsed
		}
		return requested, nil
	}

	candidate := usernameUnsafe.ReplaceAllString(strings.SplitN(email, "@", 2)[0], "")
	if candidate == "" {
		candidate = "user_" + strings.ToLower(id.New())
	}
	taken, err := s.usernameTaken(ctx, candidate)
	if err != nil {
		return "", err
	}
	if !taken {
		return candidate, nil
	}
	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	return candidate + "_" + hex.EncodeToString(suffix), nil
}

func (s *service) usernameTaken(ctx context.Context, username string) (bool, error) {
	_, err := s.repo.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func faceVerification(r facematch.Receipt, bound bool, at time.Time) domain.FaceVerification {
	d := facematch.Measure(r.Live1, r.Live2, r.Document)
	return domain.FaceVerification{
		Verified:      true,
		Live1Document: d.Live1Document,
		Live2Document: d.Live2Document,
		Live1Live2:    d.Live1Live2,
		DocumentBound: bound,
		VerifiedAt:    at,
	}
}

func outcome(err error) string {
	var rej *identity.Rejection
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrEmailTaken):
		return "duplicate_email"
	case errors.Is(err, ErrReceiptUsed):
		return "receipt_reused"
	case errors.Is(err, ErrUsernameUsed):
		return "duplicate_username"
	case errors.As(err, &rej):
		return "rejected"
	default:
		return "error"
	}
}
