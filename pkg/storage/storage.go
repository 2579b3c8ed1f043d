// Package storage provides read access to screenshot blobs with an Azure Blob Storage implementation.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/JaimeStill/vigil/pkg/lifecycle"
)

// Blob is a downloaded blob stream with its stored metadata.
// The caller must close Body.
type Blob struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// System manages blob storage reads and lifecycle coordination.
type System interface {
	// Start registers a startup hook that verifies the storage container.
	Start(lc *lifecycle.Coordinator) error
	// Download returns a stream for the blob at the given key.
	// Returns ErrNotFound if the blob does not exist.
	Download(ctx context.Context, key string) (*Blob, error)
	// ReadAll downloads the blob at key into memory, bounded by the configured
	// maximum size, and returns the bytes with a resolved media type.
	ReadAll(ctx context.Context, key string) ([]byte, string, error)
	// Exists reports whether a blob exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)
}

type azure struct {
	client    *azblob.Client
	container string
	maxSize   int64
	logger    *slog.Logger
}

// New creates a storage system from the given configuration.
// A connection string takes precedence; otherwise the service URL is used
// with the default Azure credential chain. No connection is made until Start.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &azure{
		client:    client,
		container: cfg.ContainerName,
		maxSize:   cfg.MaxDownloadSizeBytes(),
		logger:    logger.With("system", "storage"),
	}, nil
}

func newClient(cfg *Config) (*azblob.Client, error) {
	if cfg.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("default credential: %w", err)
	}

	return azblob.NewClient(cfg.ServiceURL, cred, nil)
}

func (a *azure) Start(lc *lifecycle.Coordinator) error {
	a.logger.Info("starting storage system")

	lc.OnStartup(func() {
		container := a.client.ServiceClient().NewContainerClient(a.container)
		if _, err := container.GetProperties(lc.Context(), nil); err != nil {
			if bloberror.HasCode(err, bloberror.ContainerNotFound) {
				a.logger.Error("storage container missing", "container", a.container)
				return
			}
			a.logger.Error("storage container check failed", "error", err)
			return
		}

		a.logger.Info("storage container ready", "container", a.container)
	})

	return nil
}

func (a *azure) Download(ctx context.Context, key string) (*Blob, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download blob %s: %w", key, err)
	}

	blob := &Blob{Body: resp.Body}
	if resp.ContentType != nil {
		blob.ContentType = *resp.ContentType
	}
	if resp.ContentLength != nil {
		blob.ContentLength = *resp.ContentLength
	}

	return blob, nil
}

func (a *azure) ReadAll(ctx context.Context, key string) ([]byte, string, error) {
	blob, err := a.Download(ctx, key)
	if err != nil {
		return nil, "", err
	}
	defer blob.Body.Close()

	return readBounded(blob, a.maxSize)
}

func (a *azure) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	blobClient := a.client.
		ServiceClient().
		NewContainerClient(a.container).
		NewBlobClient(key)

	_, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check blob existence %s: %w", key, err)
	}

	return true, nil
}

func readBounded(blob *Blob, maxSize int64) ([]byte, string, error) {
	if maxSize > 0 && blob.ContentLength > maxSize {
		return nil, "", ErrTooLarge
	}

	reader := io.Reader(blob.Body)
	if maxSize > 0 {
		reader = io.LimitReader(blob.Body, maxSize+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("read blob: %w", err)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, "", ErrTooLarge
	}

	return data, MediaType(blob.ContentType, data), nil
}

// MediaType resolves an image media type, preferring the stored content
// type and sniffing the bytes when it is missing or generic.
func MediaType(stored string, data []byte) string {
	stored = strings.TrimSpace(strings.ToLower(stored))
	if strings.HasPrefix(stored, "image/") {
		return stored
	}
	return http.DetectContentType(data)
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}
