package stores

import (
	"fmt"
	"time"

	"github.com/oarkflow/date"

	"github.com/oarkflow/permit"
)

func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// scanTime normalizes the driver-dependent representations of a timestamp
// column. sqlite hands back strings, postgres hands back time.Time.
func scanTime(raw interface{}) *time.Time {
	switch v := raw.(type) {
	case time.Time:
		return &v
	case string:
		if t, err := parseFlexibleTime(v); err == nil {
			return &t
		}
	case []byte:
		if t, err := parseFlexibleTime(string(v)); err == nil {
			return &t
		}
	}
	return nil
}

// infra tags a driver error as a store failure so the engine propagates it
// instead of denying.
func infra(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", permit.ErrStoreUnavailable, err)
}
