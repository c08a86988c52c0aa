package validation

import (
	"strings"
	"testing"

	"github.com/mmeshcher/kassa-system/internal/model"
)

func TestIsValidInvoiceStatus(t *testing.T) {
	tests := []struct {
		status model.InvoiceStatus
		want   bool
	}{
		{model.InvoiceStatusPaid, true},
		{model.InvoiceStatusPending, true},
		{model.InvoiceStatusCanceled, true},
		{model.InvoiceStatusWithdrawn, true},
		{"refunded", false},
		{"", false},
		{"PAID", false},
	}

	for _, tt := range tests {
		if got := IsValidInvoiceStatus(tt.status); got != tt.want {
			t.Errorf("IsValidInvoiceStatus(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestStructReadableErrors(t *testing.T) {
	type draft struct {
		Name   string  `validate:"required"`
		Amount float64 `validate:"required,gt=0"`
	}

	val := New()

	if err := val.Struct(&draft{Name: "x", Amount: 1}); err != nil {
		t.Fatalf("valid struct: %v", err)
	}

	err := val.Struct(&draft{Amount: -5})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "Name is required") {
		t.Errorf("error %q must mention missing Name", err)
	}
	if !strings.Contains(err.Error(), "Amount must be greater than 0") {
		t.Errorf("error %q must mention non-positive Amount", err)
	}
}
