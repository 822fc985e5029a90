package profiles

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

// Store is the persistence surface the service needs. *Repository
// implements it.
type Store interface {
	GetCredentials(ctx context.Context, doctorID string) (*Credentials, error)
	CreateCredentials(ctx context.Context, doctorID string, graduationYear int) (*Credentials, error)
	UpdateCredentials(ctx context.Context, doctorID string, u CredentialsUpdate) (*Credentials, error)
	SetVerified(ctx context.Context, doctorID string, verified bool) (*Credentials, error)
	GetMedicalHistory(ctx context.Context, patientID string) (*MedicalHistory, error)
	CreateMedicalHistory(ctx context.Context, patientID string) (*MedicalHistory, error)
	UpdateMedicalHistory(ctx context.Context, patientID string, u MedicalHistoryUpdate) (*MedicalHistory, error)
}

type Service struct {
	store  Store
	now    func() time.Time
	logger *logging.Logger
}

func NewService(store Store, logger *logging.Logger) *Service {
	if store == nil {
		panic("profiles: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, now: time.Now, logger: logger}
}

// Credentials returns the doctor's record, creating an empty unverified one
// on first read.
func (s *Service) Credentials(ctx context.Context, doctorID string) (*Credentials, error) {
	c, err := s.store.GetCredentials(ctx, doctorID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	s.logger.Info("creating empty credentials record", "doctor_id", doctorID)
	return s.store.CreateCredentials(ctx, doctorID, s.now().Year())
}

// UpdateCredentials replaces the owner-editable fields. Verification status
// is untouched.
func (s *Service) UpdateCredentials(ctx context.Context, doctorID string, u CredentialsUpdate) (*Credentials, error) {
	u.LicenseNumber = strings.TrimSpace(u.LicenseNumber)
	u.LicenseState = strings.TrimSpace(u.LicenseState)
	if u.LicenseNumber == "" || u.LicenseState == "" {
		return nil, apperr.Validation("license_number and license_state are required")
	}
	if u.YearsExperience < 0 {
		return nil, apperr.Validation("years_experience cannot be negative")
	}
	if u.GraduationYear != 0 && (u.GraduationYear < 1900 || u.GraduationYear > s.now().Year()) {
		return nil, apperr.Validation("graduation_year %d is out of range", u.GraduationYear)
	}
	u.MedicalSchool = strings.TrimSpace(u.MedicalSchool)
	u.Bio = strings.TrimSpace(u.Bio)
	u.Specialties = normalizeList(u.Specialties)
	u.BoardCertifications = normalizeList(u.BoardCertifications)

	if _, err := s.Credentials(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.store.UpdateCredentials(ctx, doctorID, u)
}

// SetVerified is the admin-only verification toggle.
func (s *Service) SetVerified(ctx context.Context, doctorID string, verified bool) (*Credentials, error) {
	c, err := s.store.SetVerified(ctx, doctorID, verified)
	if err != nil {
		return nil, err
	}
	s.logger.Info("doctor verification changed", "doctor_id", doctorID, "verified", verified)
	return c, nil
}

func (s *Service) MedicalHistory(ctx context.Context, patientID string) (*MedicalHistory, error) {
	h, err := s.store.GetMedicalHistory(ctx, patientID)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	return s.store.CreateMedicalHistory(ctx, patientID)
}

func (s *Service) UpdateMedicalHistory(ctx context.Context, patientID string, u MedicalHistoryUpdate) (*MedicalHistory, error) {
	u.BloodType = strings.ToUpper(strings.TrimSpace(u.BloodType))
	u.Allergies = normalizeList(u.Allergies)
	u.MedicalConditions = normalizeList(u.MedicalConditions)
	u.Medications = normalizeList(u.Medications)
	u.EmergencyContactName = strings.TrimSpace(u.EmergencyContactName)
	u.EmergencyContactPhone = strings.TrimSpace(u.EmergencyContactPhone)
	u.InsuranceProvider = strings.TrimSpace(u.InsuranceProvider)
	u.InsurancePolicyNumber = strings.TrimSpace(u.InsurancePolicyNumber)

	if _, err := s.MedicalHistory(ctx, patientID); err != nil {
		return nil, err
	}
	return s.store.UpdateMedicalHistory(ctx, patientID, u)
}
