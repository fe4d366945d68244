// Package notify reports finished and failed jobs to the people who
// started them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/engine"
	"github.com/JonMunkholm/catalogsync/internal/logging"
)

// ImportReport describes a committed import job.
type ImportReport struct {
	JobID        string
	JobType      string
	RestaurantID string
	UserID       string
	Summary      engine.Summary
}

// FailureReport describes a job that ended in the failed state.
type FailureReport struct {
	JobID        string
	JobType      string
	RestaurantID string
	UserID       string
	Err          error
}

// Sender delivers job outcomes. Delivery problems are returned but never
// change the outcome of the job.
type Sender interface {
	ImportCompleted(ctx context.Context, r ImportReport) error
	JobFailed(ctx context.Context, r FailureReport) error
}

var kindLabels = map[catalog.Kind]string{
	catalog.KindItem:          "Items",
	catalog.KindCategory:      "Categories",
	catalog.KindSubCategory:   "Sub-categories",
	catalog.KindModifierGroup: "Modifier groups",
	catalog.KindModifier:      "Modifiers",
}

// Items, categories and sub-categories are always listed.
var alwaysListed = map[catalog.Kind]bool{
	catalog.KindItem:        true,
	catalog.KindCategory:    true,
	catalog.KindSubCategory: true,
}

// FormatImportSummary renders the post-import message.
func FormatImportSummary(r ImportReport) string {
	var b strings.Builder
	b.WriteString("Catalog import finished\n")
	fmt.Fprintf(&b, "Restaurant: %s\n", r.RestaurantID)
	fmt.Fprintf(&b, "Job: %s (%s)\n", r.JobID, r.JobType)
	fmt.Fprintf(&b, "Rows: %d\n", r.Summary.Rows)
	for _, kind := range catalog.TalliedKinds {
		c := r.Summary.Tally[kind]
		if c == (engine.Count{}) && !alwaysListed[kind] {
			continue
		}
		fmt.Fprintf(&b, "%s: %d created, %d updated\n", kindLabels[kind], c.Created, c.Updated)
	}
	return b.String()
}

// FormatFailure renders the message sent when a job fails.
func FormatFailure(r FailureReport) string {
	return fmt.Sprintf("Job %s (%s) for restaurant %s failed: %v\n", r.JobID, r.JobType, r.RestaurantID, r.Err)
}

// LogSender writes outcomes to the structured log.
type LogSender struct{}

func (LogSender) ImportCompleted(ctx context.Context, r ImportReport) error {
	args := []any{
		"job_id", r.JobID,
		"job_type", r.JobType,
		"restaurant_id", r.RestaurantID,
		"user_id", r.UserID,
		"rows", r.Summary.Rows,
	}
	for _, kind := range catalog.TalliedKinds {
		c := r.Summary.Tally[kind]
		args = append(args, string(kind)+"_created", c.Created, string(kind)+"_updated", c.Updated)
	}
	logging.FromContext(ctx).Info("import completed", args...)
	return nil
}

func (LogSender) JobFailed(ctx context.Context, r FailureReport) error {
	logging.FromContext(ctx).Error("job failed",
		"job_id", r.JobID,
		"job_type", r.JobType,
		"restaurant_id", r.RestaurantID,
		"user_id", r.UserID,
		"error", r.Err,
	)
	return nil
}

// Multi delivers to every sender and joins their errors.
type Multi []Sender

func (m Multi) ImportCompleted(ctx context.Context, r ImportReport) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.ImportCompleted(ctx, r))
	}
	return errors.Join(errs...)
}

func (m Multi) JobFailed(ctx context.Context, r FailureReport) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.JobFailed(ctx, r))
	}
	return errors.Join(errs...)
}
