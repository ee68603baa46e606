package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"securesend/internal/server/crypto"
	"securesend/internal/server/database"
	"securesend/internal/server/storage"
)

// DownloadService meters file retrievals against a download request's
// per-file retrieval cap and serves decrypted file bodies.
type DownloadService struct {
	repo  Repository
	store storage.Store
	vault *crypto.Vault
	now   func() time.Time
}

// NewDownloadService creates a download service.
func NewDownloadService(repo Repository, store storage.Store, vault *crypto.Vault) *DownloadService {
	return &DownloadService{repo: repo, store: store, vault: vault, now: time.Now}
}

// Fetch serves one file under a download request. The per-(request, file)
// counter gates access: once it reaches max_downloads the fetch is denied
// with no side effect. An allowed fetch consumes one unit up front, so an
// interrupted transfer still counts against the cap.
func (s *DownloadService) Fetch(ctx context.Context, dr *database.DownloadRequest, fileID string) (*database.File, []byte, error) {
	file, err := s.repo.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	// A file is only reachable through download requests of its own box.
	if file.UploadRequestID != dr.UploadRequestID {
		return nil, nil, ErrNotFound
	}
	if !s.store.Exists(dr.UploadRequestID, fileID) {
		return nil, nil, ErrNotFound
	}

	count, err := s.repo.GetDownloadCount(ctx, dr.ID, fileID)
	if err != nil {
		return nil, nil, err
	}
	if count >= dr.MaxDownloads {
		return nil, nil, ErrDownloadLimitReached
	}
	if err := s.repo.IncrementDownloadCount(ctx, dr.ID, fileID); err != nil {
		return nil, nil, err
	}

	plaintext, err := s.readDecrypted(dr.UploadRequestID, fileID)
	if err != nil {
		return nil, nil, err
	}
	return file, plaintext, nil
}

// FetchDirect serves one file without metering, for authenticated internal
// users working inside their own drop box.
func (s *DownloadService) FetchDirect(ctx context.Context, uploadRequestID, fileID string) (*database.File, []byte, error) {
	file, err := s.repo.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	if file.UploadRequestID != uploadRequestID {
		return nil, nil, ErrNotFound
	}
	if !s.store.Exists(uploadRequestID, fileID) {
		return nil, nil, ErrNotFound
	}

	plaintext, err := s.readDecrypted(uploadRequestID, fileID)
	if err != nil {
		return nil, nil, err
	}
	return file, plaintext, nil
}

// WriteArchive streams a zip of every file still under quota to w. Files
// already at their cap are filtered out before the archive is built; when
// none remain the whole operation is denied. Counters are incremented for
// every included file once the archive has been written.
func (s *DownloadService) WriteArchive(ctx context.Context, dr *database.DownloadRequest, w io.Writer) error {
	files, err := s.repo.ListFiles(ctx, dr.UploadRequestID)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return ErrNotFound
	}

	var available []*database.File
	for _, f := range files {
		count, err := s.repo.GetDownloadCount(ctx, dr.ID, f.FileID)
		if err != nil {
			return err
		}
		if count < dr.MaxDownloads {
			available = append(available, f)
		}
	}
	if len(available) == 0 {
		return ErrDownloadLimitReached
	}

	zw := zip.NewWriter(w)
	for _, f := range available {
		plaintext, err := s.readDecrypted(dr.UploadRequestID, f.FileID)
		if err != nil {
			// An unreadable file is skipped, not fatal to the archive.
			slog.Error("skipping file in archive", "file_id", f.FileID, "error", err)
			continue
		}
		entry, err := zw.Create(f.OriginalName)
		if err != nil {
			return fmt.Errorf("failed to create archive entry: %w", err)
		}
		if _, err := entry.Write(plaintext); err != nil {
			return fmt.Errorf("failed to write archive entry: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}

	for _, f := range available {
		if err := s.repo.IncrementDownloadCount(ctx, dr.ID, f.FileID); err != nil {
			slog.Error("failed to increment download count", "file_id", f.FileID, "error", err)
		}
	}
	return nil
}

// ArchiveName builds the attachment name for a bulk download.
func (s *DownloadService) ArchiveName() string {
	return fmt.Sprintf("ssend_download_%s.zip", s.now().Format("20060102_150405"))
}

func (s *DownloadService) readDecrypted(uploadRequestID, fileID string) ([]byte, error) {
	encrypted, err := s.store.Read(uploadRequestID, fileID)
	if err != nil {
		return nil, err
	}
	plaintext, err := s.vault.Decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt file %s: %w", fileID, err)
	}
	return plaintext, nil
}
