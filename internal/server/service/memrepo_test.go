package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"securesend/internal/server/database"
)

// memRepo is an in-memory Repository used by the engine tests. It mirrors
// the SQL semantics the real repository relies on: the still-null guard on
// StartDownloadExpiry, upsert download counters, newest-first unverified
// challenge lookup, and keep-password-on-conflict user upserts.
type memRepo struct {
	mu               sync.Mutex
	uploadRequests   map[string]*database.UploadRequest
	files            map[string]*database.File
	downloadRequests map[int64]*database.DownloadRequest
	downloadCounts   map[string]int
	challenges       []*database.OTPChallenge
	users            map[string]*database.User
	accessLogs       []*database.AccessLog
	nextID           int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		uploadRequests:   make(map[string]*database.UploadRequest),
		files:            make(map[string]*database.File),
		downloadRequests: make(map[int64]*database.DownloadRequest),
		downloadCounts:   make(map[string]int),
		users:            make(map[string]*database.User),
	}
}

func countKey(drID int64, fileID string) string {
	return fmt.Sprintf("%d/%s", drID, fileID)
}

func (m *memRepo) CreateUploadRequest(ctx context.Context, req *database.UploadRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.uploadRequests[req.ID] = &cp
	return nil
}

func (m *memRepo) GetUploadRequest(ctx context.Context, id string) (*database.UploadRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.uploadRequests[id]
	if !ok {
		return nil, database.ErrUploadRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (m *memRepo) GetUploadRequestByToken(ctx context.Context, token string) (*database.UploadRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.uploadRequests {
		if req.UploadToken == token {
			cp := *req
			return &cp, nil
		}
	}
	return nil, database.ErrUploadRequestNotFound
}

func (m *memRepo) ListUploadRequests(ctx context.Context, createdBy string, limit, offset int) ([]*database.UploadRequestSummary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.UploadRequestSummary
	for _, req := range m.uploadRequests {
		if req.CreatedBy != createdBy {
			continue
		}
		s := &database.UploadRequestSummary{UploadRequest: *req}
		for _, f := range m.files {
			if f.UploadRequestID == req.ID {
				s.FileCount++
			}
		}
		for _, dr := range m.downloadRequests {
			if dr.UploadRequestID == req.ID {
				s.DownloadURLCount++
			}
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *memRepo) DeleteUploadRequest(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.uploadRequests[id]; !ok {
		return database.ErrUploadRequestNotFound
	}
	delete(m.uploadRequests, id)
	// Foreign-key cascades.
	for fid, f := range m.files {
		if f.UploadRequestID == id {
			delete(m.files, fid)
		}
	}
	for drID, dr := range m.downloadRequests {
		if dr.UploadRequestID == id {
			delete(m.downloadRequests, drID)
			prefix := fmt.Sprintf("%d/", drID)
			for key := range m.downloadCounts {
				if strings.HasPrefix(key, prefix) {
					delete(m.downloadCounts, key)
				}
			}
		}
	}
	return nil
}

func (m *memRepo) CreateFile(ctx context.Context, f *database.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.files[f.FileID] = &cp
	return nil
}

func (m *memRepo) GetFile(ctx context.Context, fileID string) (*database.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok {
		return nil, database.ErrFileNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memRepo) ListFiles(ctx context.Context, uploadRequestID string) ([]*database.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.File
	for _, f := range m.files {
		if f.UploadRequestID == uploadRequestID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) DeleteFile(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[fileID]; !ok {
		return database.ErrFileNotFound
	}
	delete(m.files, fileID)
	return nil
}

func (m *memRepo) CreateDownloadRequest(ctx context.Context, dr *database.DownloadRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	dr.ID = m.nextID
	cp := *dr
	m.downloadRequests[dr.ID] = &cp
	return nil
}

func (m *memRepo) GetDownloadRequest(ctx context.Context, id int64) (*database.DownloadRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dr, ok := m.downloadRequests[id]
	if !ok {
		return nil, database.ErrDownloadRequestNotFound
	}
	cp := *dr
	return &cp, nil
}

func (m *memRepo) GetDownloadRequestByToken(ctx context.Context, token string) (*database.DownloadRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, dr := range m.downloadRequests {
		if dr.DownloadToken == token {
			cp := *dr
			return &cp, nil
		}
	}
	return nil, database.ErrDownloadRequestNotFound
}

func (m *memRepo) ListDownloadRequests(ctx context.Context, uploadRequestID string) ([]*database.DownloadRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.DownloadRequest
	for _, dr := range m.downloadRequests {
		if dr.UploadRequestID == uploadRequestID {
			cp := *dr
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) DeleteDownloadRequest(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.downloadRequests[id]; !ok {
		return database.ErrDownloadRequestNotFound
	}
	delete(m.downloadRequests, id)
	return nil
}

func (m *memRepo) StartDownloadExpiry(ctx context.Context, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, dr := range m.downloadRequests {
		if dr.DownloadToken == token && dr.ExpiresAt == nil && dr.ExpireDays != nil {
			t := expiresAt
			dr.ExpiresAt = &t
		}
	}
	return nil
}

func (m *memRepo) GetDownloadCount(ctx context.Context, downloadRequestID int64, fileID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downloadCounts[countKey(downloadRequestID, fileID)], nil
}

func (m *memRepo) IncrementDownloadCount(ctx context.Context, downloadRequestID int64, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadCounts[countKey(downloadRequestID, fileID)]++
	return nil
}

func (m *memRepo) CreateOTPChallenge(ctx context.Context, c *database.OTPChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	cp := *c
	m.challenges = append(m.challenges, &cp)
	return nil
}

func (m *memRepo) LatestUnverifiedChallenge(ctx context.Context, token, email string) (*database.OTPChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *database.OTPChallenge
	for _, c := range m.challenges {
		if c.Token != token || c.Email != email || c.Verified {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) || (c.CreatedAt.Equal(latest.CreatedAt) && c.ID > latest.ID) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memRepo) PurgeChallenges(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*database.OTPChallenge
	var purged int64
	for _, c := range m.challenges {
		if c.ExpiresAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, c)
	}
	m.challenges = kept
	return purged, nil
}

func (m *memRepo) MarkChallengeVerified(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.challenges {
		if c.ID == id {
			c.Verified = true
		}
	}
	return nil
}

func (m *memRepo) GetUserByLogin(ctx context.Context, loginID string) (*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[loginID]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) ListUsers(ctx context.Context) ([]*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.User
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memRepo) SaveUser(ctx context.Context, u *database.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.LoginID]
	cp := *u
	if ok {
		cp.ID = existing.ID
		if cp.PasswordHash == nil {
			cp.PasswordHash = existing.PasswordHash
		}
	} else {
		m.nextID++
		cp.ID = m.nextID
	}
	m.users[u.LoginID] = &cp
	return nil
}

func (m *memRepo) DeleteUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for login, u := range m.users {
		if u.ID == id {
			delete(m.users, login)
			return nil
		}
	}
	return database.ErrUserNotFound
}

func (m *memRepo) InsertAccessLog(ctx context.Context, e *database.AccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.accessLogs = append(m.accessLogs, &cp)
	return nil
}

func (m *memRepo) ListAccessLogs(ctx context.Context, uploadRequestID string, limit, offset int) ([]*database.AccessLogDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.AccessLogDetail
	for _, e := range m.accessLogs {
		if e.UploadRequestID != nil && *e.UploadRequestID == uploadRequestID {
			out = append(out, &database.AccessLogDetail{AccessLog: *e})
		}
	}
	return out, nil
}
