package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"securesend/internal/server/service"
)

// resolveGuest resolves the :token param and enforces the auth gate. When the
// gate has not been passed yet, the request stops with a 401 describing the
// required challenge.
func (h *Handler) resolveGuest(c echo.Context) (*service.GuestAuth, error) {
	a, err := h.gate.Resolve(c.Request().Context(), c.Param("token"))
	if err != nil {
		return nil, mapServiceError(c, err)
	}

	entry := audit(c)
	entry.SetUploadRequest(a.UploadRequestID)
	if a.Kind == service.TokenDownload {
		entry.SetDownloadRequest(a.DownloadRequestID)
	}

	sess := h.guestSession(c)
	if h.gate.NeedsAuth(a, sess.HasToken) {
		return nil, c.JSON(http.StatusUnauthorized, echo.Map{
			"error":     "authentication required",
			"auth_type": a.AuthType,
			"emails":    maskAll(a.Emails),
		})
	}
	return a, nil
}

// HandleGuestShow handles GET /api/guest/:token.
// Returns the drop box (upload tokens) or the retrievable file list (download
// tokens). The first authorized access to a download token starts its expiry
// clock.
func (h *Handler) HandleGuestShow(c echo.Context) error {
	ctx := c.Request().Context()
	a, err := h.resolveGuest(c)
	if a == nil {
		return err
	}
	if err := h.gate.StartClock(ctx, a); err != nil {
		return mapServiceError(c, err)
	}

	req, err := h.life.GetUploadRequest(ctx, a.UploadRequestID)
	if err != nil {
		return mapServiceError(c, err)
	}
	files, err := h.life.ListFiles(ctx, a.UploadRequestID)
	if err != nil {
		return mapServiceError(c, err)
	}

	list := make([]echo.Map, 0, len(files))
	for _, f := range files {
		list = append(list, fileJSON(f))
	}

	body := echo.Map{
		"kind":  a.Kind,
		"title": req.Title,
		"files": list,
	}
	if a.Kind == service.TokenUpload {
		body["max_files"] = req.MaxFiles
		body["max_total_size"] = req.MaxTotalSize
	}
	return c.JSON(http.StatusOK, body)
}

type guestAuthRequest struct {
	Password string `json:"password"`
	Email    string `json:"email"`
	Code     string `json:"code"`
}

// HandleGuestAuth handles POST /api/guest/:token/auth.
// Runs the challenge for the token's auth type: a static password in one
// step, or the mail flow in two (address first, then the emailed code). A
// passed gate is remembered in the guest session cookie.
func (h *Handler) HandleGuestAuth(c echo.Context) error {
	ctx := c.Request().Context()
	a, err := h.gate.Resolve(ctx, c.Param("token"))
	if err != nil {
		return mapServiceError(c, err)
	}

	entry := audit(c)
	entry.SetUploadRequest(a.UploadRequestID)
	if a.Kind == service.TokenDownload {
		entry.SetDownloadRequest(a.DownloadRequestID)
	}
	entry.SetAction("guest_auth")

	var req guestAuthRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	switch {
	case req.Password != "":
		if err := h.gate.VerifyPassword(a, req.Password); err != nil {
			return mapServiceError(c, err)
		}
	case req.Email != "" && req.Code == "":
		entry.SetActor(req.Email)
		if err := h.gate.RequestOTP(ctx, a, req.Email); err != nil {
			return mapServiceError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"message": "a one-time passcode has been sent"})
	case req.Email != "" && req.Code != "":
		entry.SetActor(req.Email)
		if err := h.gate.ConfirmOTP(ctx, a, req.Email, req.Code); err != nil {
			return mapServiceError(c, err)
		}
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "a password or mail address is required"})
	}

	sess := h.guestSession(c)
	sess.AddToken(a.Token)
	if err := h.saveGuestSession(c, sess); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "authenticated"})
}

// HandleGuestUpload handles POST /api/guest/:token/files.
// Accepts exactly one file part per call and deposits it into the drop box
// under the quota rules.
func (h *Handler) HandleGuestUpload(c echo.Context) error {
	ctx := c.Request().Context()
	a, err := h.resolveGuest(c)
	if a == nil {
		return err
	}
	if a.Kind != service.TokenUpload {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}

	entry := audit(c)
	entry.SetAction("guest_upload")

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

	req, err := h.life.GetUploadRequest(ctx, a.UploadRequestID)
	if err != nil {
		return mapServiceError(c, err)
	}

	f, err := h.uploads.Accept(ctx, req, fileHeader.Filename, data)
	if err != nil {
		return mapServiceError(c, err)
	}
	entry.SetFile(f.FileID)

	return c.JSON(http.StatusCreated, fileJSON(f))
}

// HandleGuestDownload handles GET /api/guest/:token/files/:file_id.
// Streams one decrypted file as an attachment, consuming download quota.
func (h *Handler) HandleGuestDownload(c echo.Context) error {
	ctx := c.Request().Context()
	a, err := h.resolveGuest(c)
	if a == nil {
		return err
	}
	if a.Kind != service.TokenDownload {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	if err := h.gate.StartClock(ctx, a); err != nil {
		return mapServiceError(c, err)
	}

	entry := audit(c)
	entry.SetAction("guest_download")
	entry.SetFile(c.Param("file_id"))

	dr, err := h.life.GetDownloadRequest(ctx, a.DownloadRequestID)
	if err != nil {
		return mapServiceError(c, err)
	}

	f, data, err := h.downloads.Fetch(ctx, dr, c.Param("file_id"))
	if err != nil {
		return mapServiceError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, f.OriginalName))
	return c.Blob(http.StatusOK, "application/octet-stream", data)
}

// HandleGuestArchive handles GET /api/guest/:token/archive.
// Streams every still-retrievable file as one zip archive.
func (h *Handler) HandleGuestArchive(c echo.Context) error {
	ctx := c.Request().Context()
	a, err := h.resolveGuest(c)
	if a == nil {
		return err
	}
	if a.Kind != service.TokenDownload {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	if err := h.gate.StartClock(ctx, a); err != nil {
		return mapServiceError(c, err)
	}

	entry := audit(c)
	entry.SetAction("guest_download_zip")

	dr, err := h.life.GetDownloadRequest(ctx, a.DownloadRequestID)
	if err != nil {
		return mapServiceError(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/zip")
	res.Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, h.downloads.ArchiveName()))

	if err := h.downloads.WriteArchive(ctx, dr, res); err != nil {
		if !res.Committed {
			res.Header().Del(echo.HeaderContentDisposition)
			return mapServiceError(c, err)
		}
		return err
	}
	return nil
}

func maskAll(emails []string) []string {
	masked := make([]string, 0, len(emails))
	for _, e := range emails {
		masked = append(masked, service.MaskEmail(e))
	}
	return masked
}
