package respond

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"inbound-backend/internal/shared/telemetry"
)

func TestErrorLogsDetailWithoutShadowingMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	restore := telemetry.SetOutput(&buf)
	defer restore()

	router := gin.New()
	router.POST("/webhook/resend/", func(c *gin.Context) {
		Error(c, http.StatusServiceUnavailable, "enqueue_failed", "Failed to enqueue webhook event")
	})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/webhook/resend/", strings.NewReader(`{}`)))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	if got := strings.TrimSpace(resp.Body.String()); got != `{"error":"Failed to enqueue webhook event"}` {
		t.Fatalf("unexpected body %s", got)
	}

	line := strings.TrimSpace(buf.String())
	if n := strings.Count(line, `"message":`); n != 1 {
		t.Fatalf("expected one message key, got %d in %s", n, line)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if payload["message"] != "http.error" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
	if payload["detail"] != "Failed to enqueue webhook event" {
		t.Fatalf("unexpected detail: %v", payload["detail"])
	}
	if payload["code"] != "enqueue_failed" {
		t.Fatalf("unexpected code: %v", payload["code"])
	}
}
