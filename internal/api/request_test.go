package api

import (
	"net/http/httptest"
	"strings"
	"testing"
)

type decodeTarget struct {
	Details string `json:"details"`
}

func TestDecodeJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/incidents", strings.NewReader(`{"details":"DB down"}`))

	var dst decodeTarget
	if err := DecodeJSON(req, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Details != "DB down" {
		t.Errorf("details = %q", dst.Details)
	}
}

func TestDecodeJSON_FriendlyErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty body", "", "request body is empty"},
		{"malformed JSON", `{"details":`, "not valid JSON"},
		{"wrong field type", `{"details":42}`, `field "details" must be a`},
		{"unknown field", `{"detials":"typo"}`, "unexpected field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/incidents", strings.NewReader(tt.body))

			var dst decodeTarget
			err := DecodeJSON(req, &dst)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestDecodeJSON_OversizedBody(t *testing.T) {
	body := `{"details":"` + strings.Repeat("x", maxBodySize) + `"}`
	req := httptest.NewRequest("POST", "/incidents", strings.NewReader(body))

	var dst decodeTarget
	err := DecodeJSON(req, &dst)
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("expected size error, got %v", err)
	}
}
