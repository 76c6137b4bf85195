package payment

import (
	"errors"
	"testing"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name      string
		amount    float64
		remaining float64
		wantErr   error
	}{
		{"full balance", 100, 100, nil},
		{"partial", 40, 100, nil},
		{"zero", 0, 100, ErrInvalidAmount},
		{"negative", -5, 100, ErrInvalidAmount},
		{"over balance", 120, 100, ErrExceedsBalance},
		{"nothing remaining", 1, 0, ErrExceedsBalance},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAmount(tc.amount, tc.remaining)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidateMethod(t *testing.T) {
	for _, method := range Methods {
		if err := ValidateMethod(method); err != nil {
			t.Fatalf("method %s should be valid, got %v", method, err)
		}
	}
	if err := ValidateMethod("CHEQUE"); !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod, got %v", err)
	}
	if err := ValidateMethod(""); !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod for empty method, got %v", err)
	}
}
