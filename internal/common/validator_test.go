package common

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type testRequest struct {
	Title string `json:"title" validate:"required,max=5"`
	Note  string `json:"note,omitempty" validate:"max=3"`
}

func TestGenericEchoValidator(t *testing.T) {
	tests := []struct {
		name    string
		req     testRequest
		wantMsg string
	}{
		{"valid", testRequest{Title: "ok"}, ""},
		{"missing title", testRequest{}, "title is required"},
		{"title too long", testRequest{Title: "toolong"}, "title must be at most 5 characters"},
		{"note too long", testRequest{Title: "ok", Note: "long"}, "note must be at most 3 characters"},
	}

	v := &GenericEchoValidator{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.req)
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}

			var httpErr *echo.HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("Expected *echo.HTTPError, got %T", err)
			}
			if httpErr.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", httpErr.Code)
			}
			if msg, _ := httpErr.Message.(string); !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("Expected message containing %q, got %q", tt.wantMsg, msg)
			}
		})
	}
}
