// Package profiles stores the clinical records attached to accounts: a
// doctor's licensing credentials and a patient's medical history.
package profiles

import (
	"strings"
	"time"
)

// Credentials is a doctor's licensing record. Verified is only ever set by
// an admin.
type Credentials struct {
	ID                  string    `json:"id"`
	DoctorID            string    `json:"doctor_id"`
	LicenseNumber       string    `json:"license_number"`
	LicenseState        string    `json:"license_state"`
	MedicalSchool       string    `json:"medical_school"`
	GraduationYear      int       `json:"graduation_year"`
	YearsExperience     int       `json:"years_experience"`
	Specialties         []string  `json:"specialties"`
	BoardCertifications []string  `json:"board_certifications"`
	Bio                 string    `json:"bio"`
	Verified            bool      `json:"verified"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// CredentialsUpdate holds the owner-editable fields.
type CredentialsUpdate struct {
	LicenseNumber       string   `json:"license_number"`
	LicenseState        string   `json:"license_state"`
	MedicalSchool       string   `json:"medical_school"`
	GraduationYear      int      `json:"graduation_year"`
	YearsExperience     int      `json:"years_experience"`
	Specialties         []string `json:"specialties"`
	BoardCertifications []string `json:"board_certifications"`
	Bio                 string   `json:"bio"`
}

// MedicalHistory is a patient's self-reported record.
type MedicalHistory struct {
	ID                    string    `json:"id"`
	PatientID             string    `json:"patient_id"`
	BloodType             string    `json:"blood_type"`
	Allergies             []string  `json:"allergies"`
	MedicalConditions     []string  `json:"medical_conditions"`
	Medications           []string  `json:"medications"`
	EmergencyContactName  string    `json:"emergency_contact_name"`
	EmergencyContactPhone string    `json:"emergency_contact_phone"`
	InsuranceProvider     string    `json:"insurance_provider"`
	InsurancePolicyNumber string    `json:"insurance_policy_number"`
	Notes                 string    `json:"notes"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// MedicalHistoryUpdate holds the patient-editable fields.
type MedicalHistoryUpdate struct {
	BloodType             string   `json:"blood_type"`
	Allergies             []string `json:"allergies"`
	MedicalConditions     []string `json:"medical_conditions"`
	Medications           []string `json:"medications"`
	EmergencyContactName  string   `json:"emergency_contact_name"`
	EmergencyContactPhone string   `json:"emergency_contact_phone"`
	InsuranceProvider     string   `json:"insurance_provider"`
	InsurancePolicyNumber string   `json:"insurance_policy_number"`
	Notes                 string   `json:"notes"`
}

// normalizeList trims entries, drops blanks and repeats, and keeps the
// first-seen order. The result is never nil.
func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func orEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
