package record

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("record: not found")
	ErrValidation  = errors.New("record: invalid input")
	ErrDenied      = errors.New("record: access denied")
	ErrUnavailable = errors.New("record: store unavailable")
)

// Record is one medical document. The file body lives in blob storage keyed
// by the record id; metadata carries the storage reference.
type Record struct {
	ID         uuid.UUID              `db:"id" json:"id"`
	PatientID  uuid.UUID              `db:"patient_id" json:"patientId"`
	UploadedBy uuid.UUID              `db:"uploaded_by" json:"uploadedBy"`
	Category   string                 `db:"category" json:"category"`
	FileType   string                 `db:"file_type" json:"fileType"`
	Title      string                 `db:"title" json:"title"`
	Metadata   map[string]interface{} `db:"metadata" json:"metadata"`
	CreatedAt  time.Time              `db:"created_at" json:"createdAt"`
}

type ListFilter struct {
	Category string
	Search   string
	// Categories restricts a listing to a known-covered set. Set by the
	// service after consulting the consent gate, never from client input.
	Categories []string
}
