package formatting

import (
	"strings"
	"testing"
	"time"

	"steward/internal/model"
)

func TestPrettyJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{
			name:     "option values",
			input:    map[string]interface{}{"db_user": "odoo", "workers": 4},
			expected: "{\n  \"db_user\": \"odoo\",\n  \"workers\": 4\n}",
		},
		{
			name:     "container ids",
			input:    []string{"c1", "c2"},
			expected: "[\n  \"c1\",\n  \"c2\"\n]",
		},
		{
			name:     "nil",
			input:    nil,
			expected: "null",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PrettyJSON(tt.input); got != tt.expected {
				t.Errorf("PrettyJSON() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPrettyJSON_Record(t *testing.T) {
	s := model.Save{
		ID:         "s1",
		Name:       "prod",
		Expiration: time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC),
	}
	got := PrettyJSON(s)

	for _, want := range []string{`"ID": "s1"`, `"Name": "prod"`, `"Expiration": "2026-03-06T10:00:00Z"`} {
		if !strings.Contains(got, want) {
			t.Errorf("PrettyJSON() = %s, missing %s", got, want)
		}
	}
}

func TestPrettyJSON_Unmarshalable(t *testing.T) {
	got := PrettyJSON(make(chan int))
	if !strings.HasPrefix(got, "0x") {
		t.Errorf("PrettyJSON() fallback = %q, want a %%v rendering", got)
	}
}
