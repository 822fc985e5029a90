package profiles

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doorstepdoctor/doorstep-api/internal/apperr"
)

var credentialRowColumns = []string{
	"id", "doctor_id", "license_number", "license_state", "medical_school", "graduation_year",
	"years_experience", "specialties", "board_certifications", "bio", "verified",
	"created_at", "updated_at",
}

var historyRowColumns = []string{
	"id", "patient_id", "blood_type", "allergies", "medical_conditions", "medications",
	"emergency_contact_name", "emergency_contact_phone", "insurance_provider",
	"insurance_policy_number", "notes", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestRepositoryGetCredentials(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM medical_credentials WHERE doctor_id = $1")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(credentialRowColumns).AddRow(
			"cred-1", "doc-1", "KMPDC-123", "Nairobi", "UoN", 2012, 12,
			"{Cardiology,Pediatrics}", "{}", "", true, now, now))

	c, err := repo.GetCredentials(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "KMPDC-123", c.LicenseNumber)
	assert.Equal(t, []string{"Cardiology", "Pediatrics"}, c.Specialties)
	assert.Equal(t, []string{}, c.BoardCertifications)
	assert.True(t, c.Verified)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetCredentialsMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM medical_credentials")).
		WithArgs("doc-2").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetCredentials(context.Background(), "doc-2")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateCredentials(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO medical_credentials")).
		WithArgs("doc-1", 2026).
		WillReturnRows(sqlmock.NewRows(credentialRowColumns).AddRow(
			"cred-1", "doc-1", "", "", "", 2026, 0, "{}", "{}", "", false, now, now))

	c, err := repo.CreateCredentials(context.Background(), "doc-1", 2026)
	require.NoError(t, err)
	assert.False(t, c.Verified)
	assert.Equal(t, 2026, c.GraduationYear)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdateCredentials(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE medical_credentials SET")).
		WithArgs("doc-1", "KMPDC-9", "Mombasa", "Moi", 2015, 8,
			sqlmock.AnyArg(), sqlmock.AnyArg(), "House calls").
		WillReturnRows(sqlmock.NewRows(credentialRowColumns).AddRow(
			"cred-1", "doc-1", "KMPDC-9", "Mombasa", "Moi", 2015, 8,
			"{Dermatology}", "{}", "House calls", false, now, now))

	c, err := repo.UpdateCredentials(context.Background(), "doc-1", CredentialsUpdate{
		LicenseNumber: "KMPDC-9", LicenseState: "Mombasa", MedicalSchool: "Moi",
		GraduationYear: 2015, YearsExperience: 8, Specialties: []string{"Dermatology"},
		BoardCertifications: []string{}, Bio: "House calls",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dermatology"}, c.Specialties)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositorySetVerifiedMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE medical_credentials SET verified")).
		WithArgs("doc-x", true).
		WillReturnRows(sqlmock.NewRows(credentialRowColumns))

	_, err := repo.SetVerified(context.Background(), "doc-x", true)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryMedicalHistory(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM patient_medical_history WHERE patient_id = $1")).
		WithArgs("pat-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO patient_medical_history")).
		WithArgs("pat-1").
		WillReturnRows(sqlmock.NewRows(historyRowColumns).AddRow(
			"hist-1", "pat-1", "", "{}", "{}", "{}", "", "", "", "", "", now, now))

	_, err := repo.GetMedicalHistory(context.Background(), "pat-1")
	require.True(t, errors.Is(err, apperr.ErrNotFound))

	h, err := repo.CreateMedicalHistory(context.Background(), "pat-1")
	require.NoError(t, err)
	assert.Equal(t, []string{}, h.Allergies)
	assert.Equal(t, []string{}, h.Medications)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdateMedicalHistory(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE patient_medical_history SET")).
		WithArgs("pat-1", "O+", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			"Jane", "0711000000", "NHIF", "P-1", "").
		WillReturnRows(sqlmock.NewRows(historyRowColumns).AddRow(
			"hist-1", "pat-1", "O+", "{Penicillin}", "{Asthma}", "{Salbutamol}",
			"Jane", "0711000000", "NHIF", "P-1", "", now, now))

	h, err := repo.UpdateMedicalHistory(context.Background(), "pat-1", MedicalHistoryUpdate{
		BloodType: "O+", Allergies: []string{"Penicillin"}, MedicalConditions: []string{"Asthma"},
		Medications: []string{"Salbutamol"}, EmergencyContactName: "Jane",
		EmergencyContactPhone: "0711000000", InsuranceProvider: "NHIF", InsurancePolicyNumber: "P-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Penicillin"}, h.Allergies)
	assert.Equal(t, "NHIF", h.InsuranceProvider)
	require.NoError(t, mock.ExpectationsWereMet())
}
