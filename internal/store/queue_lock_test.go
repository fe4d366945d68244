package store

import (
	"strings"
	"testing"
)

func TestRestaurantLockQuery(t *testing.T) {
	tests := []struct {
		dialect Dialect
		want    string
	}{
		{Postgres, "pg_try_advisory_xact_lock"},
		{SQLite, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			got := restaurantLockQuery(tt.dialect)
			if tt.want == "" {
				if got != "" {
					t.Errorf("restaurantLockQuery(%s) = %q, want empty", tt.dialect, got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("restaurantLockQuery(%s) = %q, want it to use %s", tt.dialect, got, tt.want)
			}
		})
	}
}
