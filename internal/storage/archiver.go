package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"orderbot_backend/internal/events"
	"orderbot_backend/platform/logger"
)

// Archiver copies the files of a confirmed order into the orders bucket,
// under <clientCode>/<yyyy-mm-dd>/.
type Archiver struct {
	store  StorageService
	bucket string
	log    *logger.Logger
}

func NewArchiver(store StorageService, bucket string, log *logger.Logger) *Archiver {
	return &Archiver{store: store, bucket: bucket, log: log}
}

// Init makes sure the bucket exists.
func (a *Archiver) Init(ctx context.Context) error {
	return a.store.EnsureBucketExists(ctx, a.bucket)
}

// ArchiveOrder uploads the document and, when present, the spreadsheet, and
// returns a presigned download link per object written. A link that cannot be
// signed is returned with its key and an empty URL.
func (a *Archiver) ArchiveOrder(ctx context.Context, e events.OrderConfirmed) ([]PresignedURL, error) {
	folder := filepath.ToSlash(filepath.Join(e.ClientCode, e.OccurredAt().Format("2006-01-02")))

	var files []PresignedURL
	var errs []error
	for _, path := range []string{e.DocumentPath, e.SpreadsheetPath} {
		if path == "" {
			continue
		}
		key, err := a.upload(ctx, folder, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		link, err := a.store.GenerateDownloadURL(ctx, a.bucket, key)
		if err != nil {
			a.log.Warn("could not sign archive link", "key", key, "error", err)
			files = append(files, PresignedURL{FileKey: key})
			continue
		}
		files = append(files, *link)
	}
	if len(errs) == 0 {
		a.log.Info("order archived", "clientId", e.ClientID, "objects", len(files))
	}
	return files, errors.Join(errs...)
}

func (a *Archiver) upload(ctx context.Context, folder, path string) (string, error) {
	contentType, err := ContentTypeFor(path)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	return a.store.UploadFile(ctx, a.bucket, folder, filepath.Base(path), contentType, f, info.Size())
}
