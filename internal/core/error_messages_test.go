package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/ingest"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "invalid csv",
			err:      &ingest.ValidationError{Message: "file is not valid CSV: bare quote"},
			wantCode: "FILE002",
		},
		{
			name:     "header mismatch",
			err:      &ingest.ValidationError{Field: "header", Message: "header mismatch, expected: Category"},
			wantCode: "FILE005",
		},
		{
			name:     "row issues",
			err:      &ingest.IssueList{Row: 3, Issues: []ingest.ValidationError{{Row: 3, Field: "Item Price", Message: "must be a number"}}},
			wantCode: "VAL001",
		},
		{
			name:     "duplicate names beat the conflict kind",
			err:      catalog.Errorf(catalog.ErrConflict, "validate rows", "item name %q appears on rows 2 and 3", "Fries"),
			wantCode: "VAL002",
		},
		{
			name:     "limiter timeout",
			err:      ErrTooManyUploads,
			wantCode: "UPL001",
		},
		{
			name:     "wrapped deadline",
			err:      fmt.Errorf("parse upload: %w", context.DeadlineExceeded),
			wantCode: "UPL003",
		},
		{
			name:     "authorization kind",
			err:      catalog.Errorf(catalog.ErrAuthorization, "enqueue import", "missing capability"),
			wantCode: "AUTH001",
		},
		{
			name:     "not found kind",
			err:      catalog.Errorf(catalog.ErrNotFound, "load menu", "menu %q", "m1"),
			wantCode: "NF001",
		},
		{
			name:     "inconsistent graph is a conflict",
			err:      fmt.Errorf("row 2 (Burger): %w", catalog.ErrInconsistent),
			wantCode: "CON001",
		},
		{
			name:     "transaction kind",
			err:      catalog.E(catalog.ErrTransaction, "apply batch", errors.New("disk full")),
			wantCode: "TX001",
		},
		{
			name:     "external service kind",
			err:      catalog.Errorf(catalog.ErrExternalService, "fetch items", "status 502"),
			wantCode: "EXT001",
		},
		{
			name:     "unknown error returns default",
			err:      errors.New("some random internal error"),
			wantCode: "ERR000",
		},
		{
			name:     "case insensitive matching",
			err:      errors.New("FILE TOO LARGE"),
			wantCode: "FILE001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Error("MapError() message is empty")
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	err := catalog.Errorf(catalog.ErrNotFound, "load menu", "menu %q", "m1")
	result := FormatUserError(err)

	expected := "Referenced record does not exist (Code: NF001). Check the id and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}
