package handlers_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/vigil/pkg/handlers"
)

func TestRespondJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	handlers.RespondJSON(rec, http.StatusCreated, map[string]int{"flags": 2})

	res := rec.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		t.Errorf("status: got %d, want 201", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type: got %s", ct)
	}

	var parsed map[string]int
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if parsed["flags"] != 2 {
		t.Errorf("flags = %d, want 2", parsed["flags"])
	}
}

func TestRespondError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()

	handlers.RespondError(rec, logger, http.StatusBadRequest, errors.New("invalid sensitivity"))

	var parsed map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if parsed["error"] != "invalid sensitivity" {
		t.Errorf("error = %q", parsed["error"])
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Level string `json:"level"`
	}

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest("PUT", "/", strings.NewReader(`{"level":"detailed"}`))
		got, err := handlers.DecodeJSON[body](req)
		if err != nil {
			t.Fatalf("DecodeJSON: %v", err)
		}
		if got.Level != "detailed" {
			t.Errorf("Level = %q", got.Level)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest("PUT", "/", strings.NewReader(`{"level":"all","extra":1}`))
		if _, err := handlers.DecodeJSON[body](req); !errors.Is(err, handlers.ErrInvalidBody) {
			t.Errorf("err = %v, want ErrInvalidBody", err)
		}
	})
}
