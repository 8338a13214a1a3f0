package ipc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	exterrors "github.com/odvcencio/extbridge/pkg/errors"
)

func TestDecodeJSONBody(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		maxBytes   int64
		wantStatus int
	}{
		{"valid", `{"what":"x"}`, 1024, 0},
		{"empty", ``, 1024, http.StatusBadRequest},
		{"malformed", `{"what":`, 1024, http.StatusBadRequest},
		{"too large", `{"what":"` + strings.Repeat("x", 64) + `"}`, 16, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/broadcast", strings.NewReader(tt.body))
			var dst map[string]any
			status, err := decodeJSONBody(httptest.NewRecorder(), req, &dst, tt.maxBytes)
			if status != tt.wantStatus {
				t.Fatalf("status=%d want %d (err=%v)", status, tt.wantStatus, err)
			}
			if (err == nil) != (tt.wantStatus == 0) {
				t.Fatalf("unexpected err=%v", err)
			}
		})
	}
}

func TestRespondErrorCarriesErrorCode(t *testing.T) {
	rr := httptest.NewRecorder()
	err := exterrors.New(exterrors.ErrCodePortClosed, "port send queue full").WithRetryable(true)
	respondError(rr, http.StatusServiceUnavailable, fmt.Errorf("post: %w", err))

	var body struct {
		Status    int    `json:"status"`
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != http.StatusServiceUnavailable || body.Code != string(exterrors.ErrCodePortClosed) {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Message != "port send queue full" || !body.Retryable {
		t.Fatalf("unexpected body %+v", body)
	}
	if got := rr.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("cache-control=%q", got)
	}
}
