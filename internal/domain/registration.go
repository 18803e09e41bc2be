package domain

import "time"

// Registration statuses. Rows wait for clinic approval before becoming patient accounts.
const (
	RegistrationPending = "pending"
)

// Registration is a patient self-registration awaiting approval.
type Registration struct {
	RegistrationID string           `json:"id" dynamodbav:"registration_id"`
	FirstName      string           `json:"first_name" dynamodbav:"first_name"`
	LastName       string           `json:"last_name" dynamodbav:"last_name"`
	Birthdate      string           `json:"birthdate" dynamodbav:"birthdate"` // YYYY-MM-DD
	Gender         string           `json:"gender" dynamodbav:"gender"`
	Email          string           `json:"email" dynamodbav:"email"`
	ContactNo      string           `json:"contact_no" dynamodbav:"contact_no"`
	Address        string           `json:"address" dynamodbav:"address"`
	Username       string           `json:"username" dynamodbav:"username"`
	PasswordHash   string           `json:"-" dynamodbav:"password_hash"`
	IDType         IDType           `json:"id_type" dynamodbav:"id_type"`
	IDNumber       string           `json:"id_number" dynamodbav:"id_number"`
	Document       StoredDocument   `json:"document" dynamodbav:"document"`
	Face           FaceVerification `json:"face" dynamodbav:"face"`
	EmailVerified  bool             `json:"email_verified" dynamodbav:"email_verified"`
	Status         string           `json:"status" dynamodbav:"status"`
	CreatedAt      time.Time        `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time        `json:"updated" dynamodbav:"updated_at"`
}

// StoredDocument describes the persisted identity document object.
type StoredDocument struct {
	Object  string `json:"object" dynamodbav:"object"`
	Name    string `json:"name" dynamodbav:"name"`
	Type    string `json:"type" dynamodbav:"type"`
	Size    int64  `json:"size" dynamodbav:"size"`
	Hash    string `json:"hash" dynamodbav:"hash"`
	Backend string `json:"backend" dynamodbav:"backend"` // "s3" | "azure"
}

// FaceVerification records the server-recomputed face match. Embeddings are not kept.
type FaceVerification struct {
	Verified      bool      `json:"verified" dynamodbav:"verified"`
	Live1Document float64   `json:"d1" dynamodbav:"live1_document"`
	Live2Document float64   `json:"d2" dynamodbav:"live2_document"`
	Live1Live2    float64   `json:"dlive" dynamodbav:"live1_live2"`
	DocumentBound bool      `json:"document_bound" dynamodbav:"document_bound"`
	VerifiedAt    time.Time `json:"verified_at" dynamodbav:"verified_at"`
}

// RegisterRequest is the validated form payload of a self-registration.
type RegisterRequest struct {
	FirstName string `validate:"required"`
	LastName  string `validate:"required"`
	Birthdate string `validate:"required,datetime=2006-01-02"`
	Gender    string `validate:"required"`
	Email     string `validate:"required,email"`
	ContactNo string `validate:"required"`
	Address   string `validate:"required"`
	Username  string `validate:"omitempty,min=3,max=50"`
	Password  string `validate:"required,min=8,max=72"`
	IDType    string `validate:"required"`
	IDNumber  string `validate:"required"`
}
