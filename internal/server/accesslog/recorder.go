// Package accesslog implements the audit trail. An Entry is accumulated
// while a request is handled and flushed at most once at the end; a failure
// to persist it is swallowed so logging can never abort a business operation.
package accesslog

import (
	"context"
	"log/slog"
	"time"

	"securesend/internal/server/database"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Entry collects the audit fields of one request lifecycle.
type Entry struct {
	accessedAt        time.Time
	actor             string
	action            string
	uploadRequestID   string
	downloadRequestID int64
	fileID            string
	httpStatus        int
	ip                string
	userAgent         string
	flushed           bool
}

// NewEntry starts an entry for one request.
func NewEntry(ip, userAgent string) *Entry {
	return &Entry{
		accessedAt: time.Now().UTC(),
		ip:         ip,
		userAgent:  userAgent,
	}
}

// SetActor records who acted: an internal login ID or a guest mail address.
func (e *Entry) SetActor(actor string) { e.actor = actor }

// SetAction marks the entry as security-relevant; unset actions are only
// flushed when the request failed.
func (e *Entry) SetAction(action string) { e.action = action }

func (e *Entry) SetUploadRequest(id string)  { e.uploadRequestID = id }
func (e *Entry) SetDownloadRequest(id int64) { e.downloadRequestID = id }
func (e *Entry) SetFile(id string)           { e.fileID = id }

// Finish records the final HTTP status.
func (e *Entry) Finish(status int) { e.httpStatus = status }

// ShouldRecord reports whether the entry is worth persisting: an action was
// set, or the request ended in an error. Action-less successful requests
// (static assets, listings polled by the UI) are not logged.
func (e *Entry) ShouldRecord() bool {
	return e.action != "" || e.httpStatus >= 400
}

func (e *Entry) toRow() *database.AccessLog {
	row := &database.AccessLog{
		AccessedAt: e.accessedAt,
		Result:     ResultSuccess,
		HTTPStatus: e.httpStatus,
		IPAddress:  e.ip,
		UserAgent:  e.userAgent,
	}
	if e.httpStatus >= 400 {
		row.Result = ResultError
	}
	if e.actor != "" {
		row.Actor = &e.actor
	}
	if e.action != "" {
		row.Action = &e.action
	}
	if e.uploadRequestID != "" {
		row.UploadRequestID = &e.uploadRequestID
	}
	if e.downloadRequestID != 0 {
		row.DownloadRequestID = &e.downloadRequestID
	}
	if e.fileID != "" {
		row.FileID = &e.fileID
	}
	return row
}

// Sink persists audit entries.
type Sink interface {
	InsertAccessLog(ctx context.Context, e *database.AccessLog) error
}

// Recorder writes entries to a sink, fire-and-forget.
type Recorder struct {
	sink Sink
}

// NewRecorder creates a recorder over the given sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Record flushes an entry exactly once. Entries that are not worth recording
// are dropped; persistence failures are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, e *Entry) {
	if e == nil || e.flushed || !e.ShouldRecord() {
		return
	}
	e.flushed = true

	// The flush must survive a client that has already gone away.
	ctx = context.WithoutCancel(ctx)
	if err := r.sink.InsertAccessLog(ctx, e.toRow()); err != nil {
		slog.Debug("access log write failed", "error", err)
	}
}
