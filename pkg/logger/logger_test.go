package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf, zerolog.DebugLevel)
	t.Cleanup(func() { Init("info") })
	return &buf
}

func TestInit_Levels(t *testing.T) {
	defer Init("info")

	Init("debug")
	if got := Level(); got != zerolog.DebugLevel {
		t.Errorf("level = %v, expected debug", got)
	}

	Init("not-a-level")
	if got := Level(); got != zerolog.InfoLevel {
		t.Errorf("invalid level should fall back to info, got %v", got)
	}

	Init("")
	if got := Level(); got != zerolog.InfoLevel {
		t.Errorf("empty level should fall back to info, got %v", got)
	}
}

func TestComponent_TagsEntries(t *testing.T) {
	buf := captureOutput(t)

	log := Component("hub")
	log.Info().Str("project_id", "p1").Msg("room opened")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["component"] != "hub" {
		t.Errorf("component = %v, expected hub", entry["component"])
	}
	if entry["project_id"] != "p1" || entry["message"] != "room opened" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestGinLogger_RedactsTokenAndSkipsPaths(t *testing.T) {
	buf := captureOutput(t)

	router := gin.New()
	router.Use(GinLogger("/health"))
	router.GET("/ws", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ws?projectId=p1&token=secret.jwt.value", nil)
	router.ServeHTTP(w, req)

	out := buf.String()
	if strings.Contains(out, "secret.jwt.value") {
		t.Errorf("token leaked into request log: %s", out)
	}
	if !strings.Contains(out, "projectId=p1") || !strings.Contains(out, "REDACTED") {
		t.Errorf("query not logged as expected: %s", out)
	}
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("4xx should log at warn: %s", out)
	}

	buf.Reset()
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)
	if buf.Len() != 0 {
		t.Errorf("skipped path was logged: %s", buf.String())
	}
}

func TestGinRecovery_Returns500(t *testing.T) {
	captureOutput(t)

	router := gin.New()
	router.Use(GinLogger(), GinRecovery())
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/panic", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	var body struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Code != http.StatusInternalServerError {
		t.Errorf("body = %s, expected error shape with code 500", w.Body.String())
	}
}

func TestRedactQuery(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"projectId=p1", "projectId=p1"},
		{"token=abc", "token=REDACTED"},
		{"%zz", "[unparsed]"},
	}
	for _, tt := range tests {
		if got := redactQuery(tt.raw); got != tt.want {
			t.Errorf("redactQuery(%q) = %q, expected %q", tt.raw, got, tt.want)
		}
	}
}
