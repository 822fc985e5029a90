package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
)

// Repository persists profile records through database/sql so the text[]
// columns can go through pq.Array.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const credentialColumns = `id, doctor_id, license_number, license_state,
	COALESCE(medical_school, ''), COALESCE(graduation_year, 0), COALESCE(years_experience, 0),
	specialties, board_certifications, COALESCE(bio, ''), COALESCE(verified, false),
	created_at, updated_at`

func scanCredentials(row interface{ Scan(...any) error }) (*Credentials, error) {
	var c Credentials
	if err := row.Scan(&c.ID, &c.DoctorID, &c.LicenseNumber, &c.LicenseState,
		&c.MedicalSchool, &c.GraduationYear, &c.YearsExperience,
		pq.Array(&c.Specialties), pq.Array(&c.BoardCertifications), &c.Bio, &c.Verified,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Specialties = orEmpty(c.Specialties)
	c.BoardCertifications = orEmpty(c.BoardCertifications)
	return &c, nil
}

func (r *Repository) GetCredentials(ctx context.Context, doctorID string) (*Credentials, error) {
	c, err := scanCredentials(r.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM medical_credentials WHERE doctor_id = $1`, doctorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("credentials not found")
	}
	if err != nil {
		return nil, fmt.Errorf("profiles: get credentials: %w", err)
	}
	return c, nil
}

// CreateCredentials inserts an empty unverified record unless one exists,
// then returns whatever is stored.
func (r *Repository) CreateCredentials(ctx context.Context, doctorID string, graduationYear int) (*Credentials, error) {
	c, err := scanCredentials(r.db.QueryRowContext(ctx, `
		INSERT INTO medical_credentials (doctor_id, license_number, license_state, graduation_year,
		    specialties, board_certifications, verified)
		VALUES ($1, '', '', $2, '{}', '{}', false)
		ON CONFLICT (doctor_id) DO UPDATE SET doctor_id = EXCLUDED.doctor_id
		RETURNING `+credentialColumns, doctorID, graduationYear))
	if err != nil {
		return nil, fmt.Errorf("profiles: create credentials: %w", err)
	}
	return c, nil
}

func (r *Repository) UpdateCredentials(ctx context.Context, doctorID string, u CredentialsUpdate) (*Credentials, error) {
	c, err := scanCredentials(r.db.QueryRowContext(ctx, `
		UPDATE medical_credentials SET
		    license_number = $2, license_state = $3, medical_school = $4, graduation_year = $5,
		    years_experience = $6, specialties = $7, board_certifications = $8, bio = $9,
		    updated_at = now()
		WHERE doctor_id = $1
		RETURNING `+credentialColumns,
		doctorID, u.LicenseNumber, u.LicenseState, u.MedicalSchool, u.GraduationYear,
		u.YearsExperience, pq.Array(u.Specialties), pq.Array(u.BoardCertifications), u.Bio))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("credentials not found")
	}
	if err != nil {
		return nil, fmt.Errorf("profiles: update credentials: %w", err)
	}
	return c, nil
}

func (r *Repository) SetVerified(ctx context.Context, doctorID string, verified bool) (*Credentials, error) {
	c, err := scanCredentials(r.db.QueryRowContext(ctx, `
		UPDATE medical_credentials SET verified = $2, updated_at = now()
		WHERE doctor_id = $1
		RETURNING `+credentialColumns, doctorID, verified))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("credentials not found")
	}
	if err != nil {
		return nil, fmt.Errorf("profiles: set verified: %w", err)
	}
	return c, nil
}

const historyColumns = `id, patient_id, COALESCE(blood_type, ''), allergies, medical_conditions,
	medications, COALESCE(emergency_contact_name, ''), COALESCE(emergency_contact_phone, ''),
	COALESCE(insurance_provider, ''), COALESCE(insurance_policy_number, ''), COALESCE(notes, ''),
	created_at, updated_at`

func scanHistory(row interface{ Scan(...any) error }) (*MedicalHistory, error) {
	var h MedicalHistory
	if err := row.Scan(&h.ID, &h.PatientID, &h.BloodType, pq.Array(&h.Allergies),
		pq.Array(&h.MedicalConditions), pq.Array(&h.Medications), &h.EmergencyContactName,
		&h.EmergencyContactPhone, &h.InsuranceProvider, &h.InsurancePolicyNumber, &h.Notes,
		&h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	h.Allergies = orEmpty(h.Allergies)
	h.MedicalConditions = orEmpty(h.MedicalConditions)
	h.Medications = orEmpty(h.Medications)
	return &h, nil
}

func (r *Repository) GetMedicalHistory(ctx context.Context, patientID string) (*MedicalHistory, error) {
	h, err := scanHistory(r.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM patient_medical_history WHERE patient_id = $1`, patientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("medical history not found")
	}
	if err != nil {
		return nil, fmt.Errorf("profiles: get medical history: %w", err)
	}
	return h, nil
}

func (r *Repository) CreateMedicalHistory(ctx context.Context, patientID string) (*MedicalHistory, error) {
	h, err := scanHistory(r.db.QueryRowContext(ctx, `
		INSERT INTO patient_medical_history (patient_id, allergies, medical_conditions, medications)
		VALUES ($1, '{}', '{}', '{}')
		ON CONFLICT (patient_id) DO UPDATE SET patient_id = EXCLUDED.patient_id
		RETURNING `+historyColumns, patientID))
	if err != nil {
		return nil, fmt.Errorf("profiles: create medical history: %w", err)
	}
	return h, nil
}

func (r *Repository) UpdateMedicalHistory(ctx context.Context, patientID string, u MedicalHistoryUpdate) (*MedicalHistory, error) {
	h, err := scanHistory(r.db.QueryRowContext(ctx, `
		UPDATE patient_medical_history SET
		    blood_type = $2, allergies = $3, medical_conditions = $4, medications = $5,
		    emergency_contact_name = $6, emergency_contact_phone = $7,
		    insurance_provider = $8, insurance_policy_number = $9, notes = $10,
		    updated_at = now()
		WHERE patient_id = $1
		RETURNING `+historyColumns,
		patientID, u.BloodType, pq.Array(u.Allergies), pq.Array(u.MedicalConditions),
		pq.Array(u.Medications), u.EmergencyContactName, u.EmergencyContactPhone,
		u.InsuranceProvider, u.InsurancePolicyNumber, u.Notes))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("medical history not found")
	}
	if err != nil {
		return nil, fmt.Errorf("profiles: update medical history: %w", err)
	}
	return h, nil
}
