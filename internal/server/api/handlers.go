package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"

	"cumulus/internal/server/database"
	"cumulus/internal/server/service"
)

// Handler contains the HTTP handlers for the Cumulus API.
type Handler struct {
	identity  *service.IdentityService
	sessions  *service.SessionService
	hierarchy *service.HierarchyService
	shares    *service.ShareService
	db        *database.DB
}

// NewHandler creates a new handler with the given service dependencies.
func NewHandler(identity *service.IdentityService, sessions *service.SessionService, hierarchy *service.HierarchyService, shares *service.ShareService, db *database.DB) *Handler {
	return &Handler{
		identity:  identity,
		sessions:  sessions,
		hierarchy: hierarchy,
		shares:    shares,
		db:        db,
	}
}

type signupRequest struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Birthdate string `json:"birthdate"` // optional, YYYY-MM-DD
	Password  string `json:"password"`
}

// HandleSignup handles POST /api/signup.
// Always answers 202; the actual outcome (verification link or
// already-taken notice) is delivered by mail.
func (h *Handler) HandleSignup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	var birthdate *time.Time
	if req.Birthdate != "" {
		t, err := time.Parse("2006-01-02", req.Birthdate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "birthdate must be YYYY-MM-DD"})
		}
		birthdate = &t
	}

	if err := h.identity.BeginSignup(c.Request().Context(), req.Email, req.Name, birthdate, req.Password); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "check your email to verify your address"})
}

type tokenRequest struct {
	Token string `json:"token"`
}

// HandleCompleteSignup handles POST /api/signup/complete.
func (h *Handler) HandleCompleteSignup(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	userID, err := h.identity.CompleteSignup(c.Request().Context(), req.Token)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"user_id": userID})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

// HandleLogin handles POST /api/sessions.
func (h *Handler) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	user, err := h.identity.Authenticate(c.Request().Context(), req.Email, req.Password, req.TOTPCode)
	if err != nil {
		return mapServiceError(c, err)
	}

	token, err := h.sessions.Create(c.Request().Context(), user.ID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"token": token})
}

// HandleLogout handles DELETE /api/sessions.
func (h *Handler) HandleLogout(c echo.Context) error {
	if err := h.sessions.Revoke(c.Request().Context(), sessionToken(c)); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// HandleLogoutAll handles DELETE /api/sessions/all.
func (h *Handler) HandleLogoutAll(c echo.Context) error {
	if err := h.sessions.RevokeAll(c.Request().Context(), userID(c)); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "all sessions revoked"})
}

type emailRequest struct {
	Email string `json:"email"`
}

// HandleRequestPasswordReset handles POST /api/password-reset.
// Always answers 202; an unknown address learns so by mail only.
func (h *Handler) HandleRequestPasswordReset(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}

	if err := h.identity.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "check your email for a reset link"})
}

type completeResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// HandleCompletePasswordReset handles POST /api/password-reset/complete.
func (h *Handler) HandleCompletePasswordReset(c echo.Context) error {
	var req completeResetRequest
	if err := c.Bind(&req); err != nil || req.Token == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token and password are required"})
	}

	if err := h.identity.CompletePasswordReset(c.Request().Context(), req.Token, req.Password); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// HandleGetAccount handles GET /api/account.
func (h *Handler) HandleGetAccount(c echo.Context) error {
	user, err := h.identity.GetUser(c.Request().Context(), userID(c))
	if err != nil {
		return mapServiceError(c, err)
	}

	resp := echo.Map{
		"id":           user.ID,
		"email":        user.Email,
		"name":         user.Name,
		"totp_enabled": user.TOTPSecret != nil,
		"created_at":   user.CreatedAt,
	}
	if user.Birthdate != nil {
		resp["birthdate"] = user.Birthdate.Format("2006-01-02")
	}
	return c.JSON(http.StatusOK, resp)
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// HandleChangePassword handles POST /api/account/password.
func (h *Handler) HandleChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil || req.OldPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "old and new password are required"})
	}

	err := h.identity.ChangePassword(c.Request().Context(), userID(c), req.OldPassword, req.NewPassword, sessionToken(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed, other sessions revoked"})
}

// HandleRequestEmailChange handles POST /api/account/email.
func (h *Handler) HandleRequestEmailChange(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}

	if err := h.identity.RequestEmailChange(c.Request().Context(), userID(c), req.Email); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "check the new address for a verification link"})
}

// HandleCompleteEmailChange handles POST /api/account/email/complete.
// No session required: the verification token is the credential.
func (h *Handler) HandleCompleteEmailChange(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	if err := h.identity.CompleteEmailChange(c.Request().Context(), req.Token); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "email updated"})
}

// HandleEnrollTOTP handles POST /api/account/totp.
// Returns a provisioning secret that only takes effect after activation.
func (h *Handler) HandleEnrollTOTP(c echo.Context) error {
	key, err := h.identity.EnrollTOTP(c.Request().Context(), userID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"secret": key.Secret(),
		"url":    key.String(),
	})
}

type activateTOTPRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

// HandleActivateTOTP handles POST /api/account/totp/activate.
func (h *Handler) HandleActivateTOTP(c echo.Context) error {
	var req activateTOTPRequest
	if err := c.Bind(&req); err != nil || req.Secret == "" || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "secret and code are required"})
	}

	if err := h.identity.ActivateTOTP(c.Request().Context(), userID(c), req.Secret, req.Code); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "two-factor authentication enabled"})
}

type passwordRequest struct {
	Password string `json:"password"`
}

// HandleRemoveTOTP handles DELETE /api/account/totp.
func (h *Handler) HandleRemoveTOTP(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password is required"})
	}

	if err := h.identity.RemoveTOTP(c.Request().Context(), userID(c), req.Password); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "two-factor authentication disabled"})
}

// HandleDeleteAccount handles DELETE /api/account.
func (h *Handler) HandleDeleteAccount(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password is required"})
	}

	if err := h.identity.DeleteAccount(c.Request().Context(), userID(c), req.Password); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "account deleted"})
}

type createFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

// HandleCreateFolder handles POST /api/folders.
func (h *Handler) HandleCreateFolder(c echo.Context) error {
	var req createFolderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	node, err := h.hierarchy.CreateFolder(c.Request().Context(), userID(c), req.ParentID, req.Name)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, node)
}

// HandleGetFolder handles GET /api/folders/:id.
func (h *Handler) HandleGetFolder(c echo.Context) error {
	node, err := h.hierarchy.GetFolderNode(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, node)
}

// HandleListNodes handles GET /api/nodes.
// Lists the direct children of ?parent_id, or of the root when absent.
func (h *Handler) HandleListNodes(c echo.Context) error {
	var parentID *string
	if id := c.QueryParam("parent_id"); id != "" {
		parentID = &id
	}

	nodes, err := h.hierarchy.ListChildren(c.Request().Context(), userID(c), parentID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"nodes": nodes})
}

// HandleListSubtree handles GET /api/folders/:id/tree.
func (h *Handler) HandleListSubtree(c echo.Context) error {
	nodes, err := h.hierarchy.ListSubtree(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"nodes": nodes})
}

// HandleUpload handles POST /api/files.
// Accepts a multipart form with a "file" field and optional "parent_id".
func (h *Handler) HandleUpload(c echo.Context) error {
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

	var parentID *string
	if id := c.FormValue("parent_id"); id != "" {
		parentID = &id
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(fileHeader.Filename)); byExt != "" {
			contentType = byExt
		} else {
			contentType = "application/octet-stream"
		}
	}

	node, err := h.hierarchy.UploadFile(c.Request().Context(), userID(c), parentID, fileHeader.Filename, contentType, src)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, node)
}

// HandleDownload handles GET /api/files/:id.
func (h *Handler) HandleDownload(c echo.Context) error {
	file, rc, err := h.hierarchy.DownloadFile(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	defer rc.Close()

	return streamFile(c, file, rc)
}

type renameRequest struct {
	Name string `json:"name"`
}

// HandleRenameFile handles POST /api/files/:id/rename.
func (h *Handler) HandleRenameFile(c echo.Context) error {
	var req renameRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := h.hierarchy.RenameFile(c.Request().Context(), userID(c), c.Param("id"), req.Name); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "renamed"})
}

// HandleRenameFolder handles POST /api/folders/:id/rename.
func (h *Handler) HandleRenameFolder(c echo.Context) error {
	var req renameRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := h.hierarchy.RenameFolder(c.Request().Context(), userID(c), c.Param("id"), req.Name); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "renamed"})
}

type moveRequest struct {
	ParentID *string `json:"parent_id"` // nil moves to the root
}

// HandleMoveFile handles POST /api/files/:id/move.
func (h *Handler) HandleMoveFile(c echo.Context) error {
	var req moveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := h.hierarchy.MoveFile(c.Request().Context(), userID(c), c.Param("id"), req.ParentID); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "moved"})
}

// HandleMoveFolder handles POST /api/folders/:id/move.
func (h *Handler) HandleMoveFolder(c echo.Context) error {
	var req moveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := h.hierarchy.MoveFolder(c.Request().Context(), userID(c), c.Param("id"), req.ParentID); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "moved"})
}

// HandleDeleteFile handles DELETE /api/files/:id.
func (h *Handler) HandleDeleteFile(c echo.Context) error {
	if err := h.hierarchy.DeleteFile(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "file deleted"})
}

// HandleDeleteFolder handles DELETE /api/folders/:id.
func (h *Handler) HandleDeleteFolder(c echo.Context) error {
	if err := h.hierarchy.DeleteFolder(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "folder deleted"})
}

// HandleShareFolder handles POST /api/folders/:id/share.
// Returns the capability key; it is shown exactly once.
func (h *Handler) HandleShareFolder(c echo.Context) error {
	key, err := h.shares.Share(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"key": key})
}

// HandleUnshareFolder handles DELETE /api/folders/:id/share.
func (h *Handler) HandleUnshareFolder(c echo.Context) error {
	if err := h.shares.Unshare(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "folder unshared"})
}

// HandleResolveShare handles GET /s/:key.
// No session required: the key is the credential.
func (h *Handler) HandleResolveShare(c echo.Context) error {
	view, err := h.shares.Resolve(c.Request().Context(), c.Param("key"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// HandleSharedDownload handles GET /s/:key/files/:id.
func (h *Handler) HandleSharedDownload(c echo.Context) error {
	file, rc, err := h.shares.OpenSharedFile(c.Request().Context(), c.Param("key"), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	defer rc.Close()

	return streamFile(c, file, rc)
}

// HandleRepairSizes handles POST /api/repair-sizes.
func (h *Handler) HandleRepairSizes(c echo.Context) error {
	if err := h.hierarchy.RepairSizes(c.Request().Context(), userID(c)); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "folder sizes recomputed"})
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

func streamFile(c echo.Context, file *database.File, rc io.Reader) error {
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, file.Name))
	return c.Stream(http.StatusOK, file.Type, rc)
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "node not found"})
	case errors.Is(err, service.ErrParentNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "parent folder not found"})
	case errors.Is(err, service.ErrInvalidName):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid name"})
	case errors.Is(err, service.ErrNameConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "a node with that name already exists"})
	case errors.Is(err, service.ErrCyclicMove):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot move a folder into its own subtree"})
	case errors.Is(err, service.ErrConflict), errors.Is(err, database.ErrTxConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "operation kept conflicting, try again"})
	case errors.Is(err, service.ErrEmailTaken):
		return c.JSON(http.StatusConflict, echo.Map{"error": "email is already taken"})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, service.ErrInvalidSession):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session"})
	case errors.Is(err, service.ErrInvalidToken):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid or expired token"})
	case errors.Is(err, service.ErrInvalidShareKey):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "invalid share key"})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "file exceeds maximum allowed size",
		})
	case errors.Is(err, database.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	default:
		slog.Error("internal error", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}
