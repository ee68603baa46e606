package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"securesend/internal/server/crypto"
	"securesend/internal/server/database"
	"securesend/internal/server/storage"
)

const mib = 1024 * 1024

// UploadService enforces the quotas of a drop box. All accept attempts for
// one upload request run inside a per-request critical section, so the
// replace / recount / compare / persist sequence is atomic with respect to
// concurrent uploads into the same request.
type UploadService struct {
	repo  Repository
	store storage.Store
	vault *crypto.Vault
	locks keyedMutex
	now   func() time.Time
}

// NewUploadService creates an upload service.
func NewUploadService(repo Repository, store storage.Store, vault *crypto.Vault) *UploadService {
	return &UploadService{repo: repo, store: store, vault: vault, now: time.Now}
}

// Accept runs one upload attempt against the request's quotas:
//
//  1. a file with the same original name replaces the existing one (bytes
//     and record are removed first, so the size recount sees only survivors)
//  2. the attempt is rejected if the file-count ceiling is already met
//  3. the attempt is rejected if the new total would exceed the size ceiling
//  4. otherwise the body is encrypted, stored, and recorded
//
// A rejection or failure leaves no partial state behind: the record is only
// written after the bytes are fully on disk, and the bytes are removed again
// if the record cannot be written.
func (s *UploadService) Accept(ctx context.Context, req *database.UploadRequest, filename string, data []byte) (*database.File, error) {
	unlock := s.locks.lock(req.ID)
	defer unlock()

	files, err := s.repo.ListFiles(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	for i, f := range files {
		if f.OriginalName != filename {
			continue
		}
		if err := s.store.Delete(req.ID, f.FileID); err != nil {
			return nil, err
		}
		if err := s.repo.DeleteFile(ctx, f.FileID); err != nil {
			return nil, err
		}
		files = append(files[:i], files[i+1:]...)
		break
	}

	var totalSize int64
	for _, f := range files {
		totalSize += f.FileSize
	}

	if len(files) >= req.MaxFiles {
		return nil, ErrMaxFilesReached
	}
	if totalSize+int64(len(data)) > req.MaxTotalSize*mib {
		return nil, ErrMaxTotalSizeExceeded
	}

	encrypted, err := s.vault.Encrypt(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt upload: %w", err)
	}

	file := &database.File{
		FileID:          uuid.NewString(),
		UploadRequestID: req.ID,
		OriginalName:    filename,
		FileSize:        int64(len(data)),
		UploadedAt:      s.now().UTC(),
	}

	if err := s.store.Save(req.ID, file.FileID, encrypted); err != nil {
		return nil, err
	}
	if err := s.repo.CreateFile(ctx, file); err != nil {
		s.store.Delete(req.ID, file.FileID)
		return nil, err
	}

	return file, nil
}

// keyedMutex serializes work per key. Entries are reference counted and
// removed when the last holder releases, so the map does not grow with the
// number of upload requests ever seen.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*lockEntry)
	}
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
