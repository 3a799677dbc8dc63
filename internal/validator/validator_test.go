package validator

import "testing"

type sample struct {
	Kind   string `validate:"required,budget_kind"`
	Date   string `validate:"required,budget_date"`
	Status string `validate:"omitempty,meter_status"`
}

func TestCustomTags(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		in      sample
		wantErr bool
	}{
		{"valid_parent", sample{Kind: "parent", Date: "2024-01-01"}, false},
		{"valid_child_rfc3339", sample{Kind: "child", Date: "2024-01-01T00:00:00Z", Status: "under_maintenance"}, false},
		{"unknown_kind", sample{Kind: "grandchild", Date: "2024-01-01"}, true},
		{"bad_date", sample{Kind: "parent", Date: "2024-02-30"}, true},
		{"unknown_status", sample{Kind: "parent", Date: "2024-01-01", Status: "broken"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("Struct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
