// Package jobs defines sync jobs: their payload, their lifecycle, the queue
// contract the workers consume, and the worker pool itself.
//
// Delivery is at-least-once. A claimed job whose worker disappears is put
// back in the queue once its lease expires, so every handler must converge
// to the same state when it runs a job twice.
package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

// Type names what a job does.
type Type string

const (
	TypeSaveCsvData    Type = "SaveCsvData"
	TypeSaveCloverData Type = "SaveCloverData"
	TypeTokenRefresh   Type = "TokenRefresh"
	TypeMenuTypeAdded  Type = "MenuTypeAdded"
	TypeTaxRateAdded   Type = "TaxRateAdded"
	TypeTaxRateUpdated Type = "TaxRateUpdated"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusValidating Status = "validating"
	StatusMerging    Status = "merging"
	StatusCommitted  Status = "committed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCommitted || s == StatusFailed
}

// InFlight reports whether a worker holds the job.
func (s Status) InFlight() bool {
	return s == StatusValidating || s == StatusMerging
}

var transitions = map[Status][]Status{
	StatusQueued:     {StatusValidating},
	StatusValidating: {StatusMerging, StatusFailed, StatusQueued},
	StatusMerging:    {StatusCommitted, StatusFailed, StatusQueued},
}

// ValidTransition reports whether a job may move from one status to
// another. In-flight jobs may return to queued when their lease expires.
func ValidTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Payload is the queue message. Which optional fields are set depends on
// JobType; Validate checks them.
type Payload struct {
	JobType          Type              `json:"jobType"`
	RestaurantID     string            `json:"restaurantId"`
	InitiatingUserID string            `json:"initiatingUserId,omitempty"`
	RowItems         []catalog.RowItem `json:"rowItems,omitempty"`
	MenuType         catalog.MenuType  `json:"menuType,omitempty"`
	MenuID           string            `json:"menuId,omitempty"`
	TaxRateID        string            `json:"taxRateId,omitempty"`
	CredentialsID    string            `json:"credentialsId,omitempty"`
	UploadID         string            `json:"uploadId,omitempty"`
}

// Validate checks that the fields JobType needs are present.
func (p Payload) Validate() error {
	var missing []string
	need := func(ok bool, field string) {
		if !ok {
			missing = append(missing, field)
		}
	}

	need(p.RestaurantID != "", "restaurantId")
	switch p.JobType {
	case TypeSaveCsvData:
		need(len(p.RowItems) > 0, "rowItems")
	case TypeSaveCloverData:
		need(len(p.RowItems) > 0 || p.CredentialsID != "", "rowItems or credentialsId")
	case TypeTokenRefresh:
		need(p.CredentialsID != "", "credentialsId")
	case TypeMenuTypeAdded:
		need(p.MenuType != "", "menuType")
	case TypeTaxRateAdded, TypeTaxRateUpdated:
		need(p.TaxRateID != "", "taxRateId")
	default:
		return catalog.Errorf(catalog.ErrValidation, "validate job", "unknown job type %q", p.JobType)
	}

	if len(missing) > 0 {
		return catalog.Errorf(catalog.ErrValidation, "validate job", "%s job is missing %v", p.JobType, missing)
	}
	return nil
}

// DedupeKey groups jobs of which at most one should be pending at a time.
// An empty key disables deduplication.
func (p Payload) DedupeKey() string {
	switch p.JobType {
	case TypeTokenRefresh:
		return "token-refresh:" + p.CredentialsID
	case TypeMenuTypeAdded:
		return fmt.Sprintf("menu-type:%s:%s", p.RestaurantID, p.MenuType)
	}
	return ""
}

// Job is a queued payload plus its bookkeeping.
type Job struct {
	ID         string
	Payload    Payload
	Status     Status
	Attempts   int
	WorkerID   string
	LastError  string
	Summary    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ClaimedAt  *time.Time
	FinishedAt *time.Time
}

var (
	// ErrEmpty is returned by Claim when no job is ready.
	ErrEmpty = errors.New("jobs: no job ready")

	// ErrLeaseLost is returned by Transition when the job is no longer in
	// the expected state, usually because its lease expired.
	ErrLeaseLost = errors.New("jobs: job is no longer held by this worker")
)
