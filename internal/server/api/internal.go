package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"securesend/internal/server/database"
	"securesend/internal/server/service"
	"securesend/internal/server/session"
)

type loginRequest struct {
	LoginID  string `json:"login_id"`
	Password string `json:"password"`
}

// HandleLogin handles POST /api/login.
func (h *Handler) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	entry := audit(c)
	entry.SetAction("login")
	entry.SetActor(req.LoginID)

	u, err := h.users.Login(c.Request().Context(), req.LoginID, req.Password)
	if err != nil {
		return mapServiceError(c, err)
	}

	if err := h.saveInternalSession(c, &session.Internal{UserID: u.LoginID, Admin: u.Admin}); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"login_id": u.LoginID,
		"name":     u.Name,
		"admin":    u.Admin,
	})
}

// HandleLogout handles POST /api/logout.
func (h *Handler) HandleLogout(c echo.Context) error {
	h.clearInternalSession(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// ownedUploadRequest loads an upload request and verifies the caller may act
// on it. Someone else's box reads as not found, same as a missing one.
func (h *Handler) ownedUploadRequest(c echo.Context, id string) (*database.UploadRequest, error) {
	req, err := h.life.GetUploadRequest(c.Request().Context(), id)
	if err != nil {
		return nil, mapServiceError(c, err)
	}
	sess := currentUser(c)
	if req.CreatedBy != sess.UserID && !sess.Admin {
		return nil, c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	return req, nil
}

type createUploadRequestBody struct {
	Title        string `json:"title"`
	ExpiresAt    string `json:"expires_at"` // YYYY-MM-DD, empty means no expiration
	MaxFiles     int    `json:"max_files"`
	MaxTotalSize int64  `json:"max_total_size"` // MiB
}

// HandleCreateUploadRequest handles POST /api/upload_requests.
func (h *Handler) HandleCreateUploadRequest(c echo.Context) error {
	var body createUploadRequestBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	var expiresAt *time.Time
	if body.ExpiresAt != "" {
		d, err := time.Parse("2006-01-02", body.ExpiresAt)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "expires_at must be a YYYY-MM-DD date"})
		}
		expiresAt = &d
	}

	sess := currentUser(c)
	entry := audit(c)
	entry.SetAction("create_upload_request")
	entry.SetActor(sess.UserID)

	req, err := h.life.CreateUploadRequest(c.Request().Context(),
		body.Title, expiresAt, body.MaxFiles, body.MaxTotalSize, sess.UserID)
	if err != nil {
		return mapServiceError(c, err)
	}
	entry.SetUploadRequest(req.ID)

	return c.JSON(http.StatusCreated, uploadRequestJSON(req))
}

// HandleListUploadRequests handles GET /api/upload_requests.
func (h *Handler) HandleListUploadRequests(c echo.Context) error {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	sess := currentUser(c)

	list, total, err := h.life.ListUploadRequests(c.Request().Context(), sess.UserID, limit, offset)
	if err != nil {
		return mapServiceError(c, err)
	}

	out := make([]echo.Map, 0, len(list))
	now := time.Now()
	for _, s := range list {
		m := uploadRequestJSON(&s.UploadRequest)
		m["file_count"] = s.FileCount
		m["download_url_count"] = s.DownloadURLCount
		m["is_expired"] = service.UploadRequestExpired(&s.UploadRequest, now)
		out = append(out, m)
	}
	return c.JSON(http.StatusOK, echo.Map{"upload_requests": out, "total": total})
}

// HandleGetUploadRequest handles GET /api/upload_requests/:id.
// Returns the box with its files and retrieval links.
func (h *Handler) HandleGetUploadRequest(c echo.Context) error {
	ctx := c.Request().Context()
	req, err := h.ownedUploadRequest(c, c.Param("id"))
	if req == nil {
		return err
	}

	files, err := h.life.ListFiles(ctx, req.ID)
	if err != nil {
		return mapServiceError(c, err)
	}
	links, err := h.life.ListDownloadRequests(ctx, req.ID)
	if err != nil {
		return mapServiceError(c, err)
	}

	fileList := make([]echo.Map, 0, len(files))
	for _, f := range files {
		fileList = append(fileList, fileJSON(f))
	}
	linkList := make([]echo.Map, 0, len(links))
	for _, dr := range links {
		linkList = append(linkList, downloadRequestJSON(dr))
	}

	body := uploadRequestJSON(req)
	body["files"] = fileList
	body["download_requests"] = linkList
	return c.JSON(http.StatusOK, body)
}

// HandleDeleteUploadRequest handles DELETE /api/upload_requests/:id.
func (h *Handler) HandleDeleteUploadRequest(c echo.Context) error {
	req, err := h.ownedUploadRequest(c, c.Param("id"))
	if req == nil {
		return err
	}

	entry := audit(c)
	entry.SetAction("delete_upload_request")
	entry.SetActor(currentUser(c).UserID)
	entry.SetUploadRequest(req.ID)

	if err := h.life.DeleteUploadRequest(c.Request().Context(), req.ID); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "upload request deleted"})
}

// HandleInternalUpload handles POST /api/upload_requests/:id/files.
// The owner deposits a file into their own box, under the same quota engine
// as guest uploads.
func (h *Handler) HandleInternalUpload(c echo.Context) error {
	ctx := c.Request().Context()
	req, err := h.ownedUploadRequest(c, c.Param("id"))
	if req == nil {
		return err
	}

	entry := audit(c)
	entry.SetAction("upload_file")
	entry.SetActor(currentUser(c).UserID)
	entry.SetUploadRequest(req.ID)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "file is required (use form field 'file')",
		})
	}
	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}

	f, err := h.uploads.Accept(ctx, req, fileHeader.Filename, data)
	if err != nil {
		return mapServiceError(c, err)
	}
	entry.SetFile(f.FileID)

	return c.JSON(http.StatusCreated, fileJSON(f))
}

// HandleInternalDownload handles GET /api/files/:file_id.
// The owner retrieves a file from their own box; no download quota applies.
func (h *Handler) HandleInternalDownload(c echo.Context) error {
	ctx := c.Request().Context()
	f, err := h.life.GetFile(ctx, c.Param("file_id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	req, errResp := h.ownedUploadRequest(c, f.UploadRequestID)
	if req == nil {
		return errResp
	}

	entry := audit(c)
	entry.SetAction("download_file")
	entry.SetActor(currentUser(c).UserID)
	entry.SetUploadRequest(req.ID)
	entry.SetFile(f.FileID)

	f, data, err := h.downloads.FetchDirect(ctx, req.ID, f.FileID)
	if err != nil {
		return mapServiceError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, f.OriginalName))
	return c.Blob(http.StatusOK, "application/octet-stream", data)
}

// HandleDeleteFile handles DELETE /api/files/:file_id.
func (h *Handler) HandleDeleteFile(c echo.Context) error {
	ctx := c.Request().Context()
	f, err := h.life.GetFile(ctx, c.Param("file_id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	req, errResp := h.ownedUploadRequest(c, f.UploadRequestID)
	if req == nil {
		return errResp
	}

	entry := audit(c)
	entry.SetAction("delete_file")
	entry.SetActor(currentUser(c).UserID)
	entry.SetUploadRequest(req.ID)
	entry.SetFile(f.FileID)

	if _, err := h.life.DeleteFile(ctx, f.FileID); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "file deleted"})
}

type createDownloadRequestBody struct {
	ExpireDays   *int   `json:"expire_days"`
	MaxDownloads int    `json:"max_downloads"`
	AuthType     string `json:"auth_type"`
	Password     string `json:"password"`
	AuthEmail    string `json:"auth_email"`
}

// HandleCreateDownloadRequest handles POST /api/upload_requests/:id/download_requests.
func (h *Handler) HandleCreateDownloadRequest(c echo.Context) error {
	req, errResp := h.ownedUploadRequest(c, c.Param("id"))
	if req == nil {
		return errResp
	}

	var body createDownloadRequestBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	entry := audit(c)
	entry.SetAction("create_download_request")
	entry.SetActor(currentUser(c).UserID)
	entry.SetUploadRequest(req.ID)

	dr, err := h.life.CreateDownloadRequest(c.Request().Context(), service.DownloadRequestParams{
		UploadRequestID: req.ID,
		ExpireDays:      body.ExpireDays,
		MaxDownloads:    body.MaxDownloads,
		AuthType:        body.AuthType,
		Password:        body.Password,
		AuthEmail:       body.AuthEmail,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	entry.SetDownloadRequest(dr.ID)

	resp := downloadRequestJSON(dr)
	if body.AuthType == database.AuthPass {
		// Shown once at creation; only the hash is kept.
		resp["password"] = body.Password
	}
	return c.JSON(http.StatusCreated, resp)
}

// HandleDeleteDownloadRequest handles DELETE /api/download_requests/:id.
func (h *Handler) HandleDeleteDownloadRequest(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}

	dr, err := h.life.GetDownloadRequest(ctx, id)
	if err != nil {
		return mapServiceError(c, err)
	}
	req, errResp := h.ownedUploadRequest(c, dr.UploadRequestID)
	if req == nil {
		return errResp
	}

	entry := audit(c)
	entry.SetAction("delete_download_request")
	entry.SetActor(currentUser(c).UserID)
	entry.SetUploadRequest(req.ID)
	entry.SetDownloadRequest(dr.ID)

	if _, err := h.life.DeleteDownloadRequest(ctx, dr.ID); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "download request deleted"})
}

// HandleListAccessLogs handles GET /api/upload_requests/:id/access_logs.
func (h *Handler) HandleListAccessLogs(c echo.Context) error {
	req, errResp := h.ownedUploadRequest(c, c.Param("id"))
	if req == nil {
		return errResp
	}

	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)

	logs, err := h.life.ListAccessLogs(c.Request().Context(), req.ID, limit, offset)
	if err != nil {
		return mapServiceError(c, err)
	}

	out := make([]echo.Map, 0, len(logs))
	for _, l := range logs {
		out = append(out, echo.Map{
			"accessed_at": l.AccessedAt,
			"actor":       l.Actor,
			"action":      l.Action,
			"file_name":   l.FileName,
			"auth_type":   l.DownloadRequestAuth,
			"result":      l.Result,
			"http_status": l.HTTPStatus,
			"ip_address":  l.IPAddress,
			"user_agent":  l.UserAgent,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"access_logs": out})
}

// HandleListUsers handles GET /api/users (admin only).
func (h *Handler) HandleListUsers(c echo.Context) error {
	users, err := h.users.ListUsers(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}

	out := make([]echo.Map, 0, len(users))
	for _, u := range users {
		out = append(out, echo.Map{
			"id":       u.ID,
			"login_id": u.LoginID,
			"name":     u.Name,
			"mail":     u.Mail,
			"external": u.External,
			"admin":    u.Admin,
			"disabled": u.Disabled,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"users": out})
}

type saveUserRequest struct {
	LoginID  string `json:"login_id"`
	Name     string `json:"name"`
	Mail     string `json:"mail"`
	Password string `json:"password"`
	Admin    bool   `json:"admin"`
	Disabled bool   `json:"disabled"`
}

// HandleSaveUser handles POST /api/users (admin only).
// Creates or updates a local account; an empty password keeps the current one.
func (h *Handler) HandleSaveUser(c echo.Context) error {
	var req saveUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	entry := audit(c)
	entry.SetAction("save_user")
	entry.SetActor(currentUser(c).UserID)

	err := h.users.SaveUser(c.Request().Context(),
		req.LoginID, req.Name, req.Mail, req.Password, req.Admin, req.Disabled)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "user saved"})
}

// HandleDeleteUser handles DELETE /api/users/:id (admin only).
func (h *Handler) HandleDeleteUser(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}

	entry := audit(c)
	entry.SetAction("delete_user")
	entry.SetActor(currentUser(c).UserID)

	if err := h.users.DeleteUser(c.Request().Context(), id); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "user deleted"})
}

func uploadRequestJSON(req *database.UploadRequest) echo.Map {
	return echo.Map{
		"id":             req.ID,
		"upload_token":   req.UploadToken,
		"title":          req.Title,
		"expires_at":     req.ExpiresAt,
		"max_files":      req.MaxFiles,
		"max_total_size": req.MaxTotalSize,
		"created_by":     req.CreatedBy,
		"created_at":     req.CreatedAt,
	}
}

func downloadRequestJSON(dr *database.DownloadRequest) echo.Map {
	return echo.Map{
		"id":             dr.ID,
		"download_token": dr.DownloadToken,
		"expire_days":    dr.ExpireDays,
		"expires_at":     dr.ExpiresAt,
		"max_downloads":  dr.MaxDownloads,
		"auth_type":      dr.AuthType,
		"auth_email":     dr.AuthEmail,
		"created_at":     dr.CreatedAt,
	}
}

func queryInt(c echo.Context, name string, fallback int) int {
	if val := c.QueryParam(name); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}
