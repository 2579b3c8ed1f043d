package storage_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/JaimeStill/vigil/pkg/storage"
)

func TestFinalize(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := storage.Config{ConnectionString: "UseDevelopmentStorage=true"}
		if err := cfg.Finalize(nil); err != nil {
			t.Fatalf("finalize failed: %v", err)
		}
		if cfg.ContainerName != "screenshots" {
			t.Errorf("container_name = %s, want screenshots", cfg.ContainerName)
		}
		if cfg.MaxDownloadSizeBytes() != 20*1024*1024 {
			t.Errorf("max download = %d, want 20MB", cfg.MaxDownloadSizeBytes())
		}
	})

	t.Run("service url satisfies validation", func(t *testing.T) {
		t.Setenv("TEST_SERVICE_URL", "https://vigil.blob.core.windows.net/")

		cfg := storage.Config{}
		if err := cfg.Finalize(&storage.Env{ServiceURL: "TEST_SERVICE_URL"}); err != nil {
			t.Fatalf("finalize failed: %v", err)
		}
		if cfg.ServiceURL == "" {
			t.Error("service_url not loaded from env")
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		cfg := storage.Config{}
		err := cfg.Finalize(nil)
		if err == nil || !strings.Contains(err.Error(), "service_url") {
			t.Errorf("err = %v, want credential error", err)
		}
	})

	t.Run("invalid size", func(t *testing.T) {
		cfg := storage.Config{ConnectionString: "x", MaxDownloadSize: "lots"}
		if err := cfg.Finalize(nil); err == nil {
			t.Error("expected size validation error")
		}
	})
}

func TestMediaType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	tests := []struct {
		name   string
		stored string
		data   []byte
		want   string
	}{
		{"stored image type", "image/jpeg", png, "image/jpeg"},
		{"stored type normalized", " IMAGE/WEBP ", nil, "image/webp"},
		{"generic stored type sniffed", "application/octet-stream", png, "image/png"},
		{"missing stored type sniffed", "", png, "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := storage.MediaType(tt.stored, tt.data); got != tt.want {
				t.Errorf("MediaType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{storage.ErrInvalidKey, http.StatusBadRequest},
		{storage.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{errors.New("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := storage.MapHTTPStatus(tt.err); got != tt.want {
			t.Errorf("MapHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
