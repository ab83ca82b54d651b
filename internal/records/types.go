package records

import (
	"fmt"
	"strings"
	"time"
)

// BoxStatus is the lifecycle state of a box.
type BoxStatus string

const (
	StatusStored    BoxStatus = "stored"
	StatusRetrieved BoxStatus = "retrieved"
	StatusDestroyed BoxStatus = "destroyed"
)

func (s BoxStatus) Valid() bool {
	switch s {
	case StatusStored, StatusRetrieved, StatusDestroyed:
		return true
	}
	return false
}

func ParseBoxStatus(s string) (BoxStatus, error) {
	st := BoxStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: status must be stored, retrieved or destroyed", ErrInvalidInput)
	}
	return st, nil
}

const DefaultRetentionYears = 7

// Client is a tenant organization.
type Client struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// StorageLocation is a racking slot a box can be assigned to.
type StorageLocation struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Available bool      `json:"available"`
	CreatedAt time.Time `json:"created_at"`
}

type Box struct {
	ID              string    `json:"id"`
	Number          string    `json:"box_number"`
	ClientID        string    `json:"client_id"`
	LocationID      string    `json:"location_id,omitempty"`
	Description     string    `json:"description,omitempty"`
	DateReceived    time.Time `json:"date_received"`
	YearReceived    int       `json:"year_received"`
	RetentionYears  int       `json:"retention_years"`
	DestructionYear int       `json:"destruction_year"`
	Status          BoxStatus `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Retrieval records a request to take a box out of storage. It carries
// two independent signature slots; neither changes box status by itself
// except through SignRetrieval.
type Retrieval struct {
	ID              string    `json:"id"`
	ClientID        string    `json:"client_id"`
	BoxID           string    `json:"box_id"`
	BoxNumber       string    `json:"box_number,omitempty"`
	RetrievalDate   time.Time `json:"retrieval_date"`
	RetrievedBy     string    `json:"retrieved_by,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	StaffSignature  string    `json:"staff_signature,omitempty"`
	ClientSignature string    `json:"client_signature,omitempty"`
	ArtifactPath    string    `json:"pdf_path,omitempty"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}

func (r Retrieval) HasStaffSignature() bool  { return r.StaffSignature != "" }
func (r Retrieval) HasClientSignature() bool { return r.ClientSignature != "" }
