package ingest

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

// ValidationError is a single problem with an import. Row is the 1-based
// spreadsheet line or POS element index, or 0 for problems with the whole
// batch.
type ValidationError struct {
	Row     int    `json:"row,omitempty"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Row > 0 {
		fmt.Fprintf(&b, "row %d: ", e.Row)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "%s: ", e.Field)
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e *ValidationError) Is(target error) bool { return target == catalog.ErrValidation }

// IssueList holds every problem found on the first failing row. The batch
// is rejected as a whole.
type IssueList struct {
	Row    int
	Issues []ValidationError
}

func (l *IssueList) Error() string {
	msgs := make([]string, len(l.Issues))
	for i := range l.Issues {
		msgs[i] = l.Issues[i].Error()
	}
	return strings.Join(msgs, "; ")
}

func (l *IssueList) Is(target error) bool { return target == catalog.ErrValidation }

func (l *IssueList) add(field, value, message string) {
	l.Issues = append(l.Issues, ValidationError{Row: l.Row, Field: field, Value: value, Message: message})
}

func (l *IssueList) err() error {
	if len(l.Issues) == 0 {
		return nil
	}
	return l
}

func batchError(message string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(message, args...)}
}
