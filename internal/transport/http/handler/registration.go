package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/patient-idv/internal/application/facematch"
	"github.com/patient-idv/internal/application/identity"
	"github.com/patient-idv/internal/application/registration"
	"github.com/patient-idv/internal/domain"
	"github.com/patient-idv/internal/infrastructure/logger"
	"github.com/patient-idv/internal/pkg/imaging"
	"github.com/patient-idv/internal/pkg/validate"
	"github.com/patient-idv/internal/transport/http/middleware"
)

// User-facing registration messages.
const (
	MsgRegistered    = "Patient registered successfully!"
	MsgAllFields     = "All fields are required."
	MsgInvalidFile   = "Please upload a valid ID file."
	MsgFileType      = "Invalid file type. Only JPG, PNG, PDF allowed."
	MsgEmailTaken    = "This email is already registered. Please use a different email or log in."
	MsgUsernameTaken = "This username is already taken. Please choose another."
	MsgReceiptUsed   = "This face verification was already used. Please verify your face again."
	MsgServerError   = "Server error. Please try again later."
)

// LoginRedirect is where the client goes after a successful registration.
const LoginRedirect = "/auth/login.html"

// formOverhead bounds the non-file part of the multipart body.
const formOverhead = 1 << 20

var allowedMimeTypes = []string{domain.MimeJPEG, domain.MimePNG, domain.MimePDF}

// RegistrationHandler handles patient self-registration.
type RegistrationHandler struct {
	svc      registration.Service
	maxBytes int64
}

func NewRegistrationHandler(svc registration.Service, maxDocumentBytes int64) *RegistrationHandler {
	return &RegistrationHandler{svc: svc, maxBytes: maxDocumentBytes}
}

func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formOverhead)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, MsgInvalidFile)
			return
		}
		writeError(w, http.StatusBadRequest, MsgAllFields)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := domain.RegisterRequest{
		FirstName: strings.TrimSpace(r.FormValue("first_name")),
		LastName:  strings.TrimSpace(r.FormValue("last_name")),
		Birthdate: strings.TrimSpace(r.FormValue("birthdate")),
		Gender:    strings.TrimSpace(r.FormValue("gender")),
		Email:     strings.TrimSpace(r.FormValue("email")),
		ContactNo: strings.TrimSpace(r.FormValue("contact_no")),
		Address:   strings.TrimSpace(r.FormValue("address")),
		Username:  strings.TrimSpace(r.FormValue("username")),
		Password:  r.FormValue("password"),
		IDType:    strings.TrimSpace(r.FormValue("id_type")),
		IDNumber:  strings.TrimSpace(r.FormValue("id_number")),
	}
	if err := validate.Struct(req); err != nil {
		logger.Info("registration form rejected", logger.LoggerOptions{Key: "error", Data: err.Error()})
		writeError(w, http.StatusBadRequest, MsgAllFields)
		return
	}

	ticket, ok := middleware.TicketFromContext(r.Context())
	if !ok || !strings.EqualFold(ticket.Email, req.Email) {
		writeError(w, http.StatusUnauthorized, middleware.MsgVerifyEmail)
		return
	}

	idType, err := domain.ParseIDType(req.IDType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ID: Unknown ID type.")
		return
	}
	number := idType.Normalize(req.IDNumber)
	if err := idType.ValidateNumber(number); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ID: "+idType.FormatMessage())
		return
	}

	doc, status, msg := h.readDocument(r, idType, number)
	if doc == nil {
		writeError(w, status, msg)
		return
	}

	receipt, err := facematch.ParseReceiptForm(r.FormValue)
	if err != nil {
		logger.Warning("malformed face verification receipt",
			logger.LoggerOptions{Key: "email", Data: req.Email},
			logger.LoggerOptions{Key: "error", Data: err.Error()})
		writeError(w, http.StatusUnprocessableEntity, identity.MsgFaceThresholds)
		return
	}

	if _, err := h.svc.Register(r.Context(), registration.Input{Request: req, Document: doc, Receipt: receipt}); err != nil {
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Error("registration failed", logger.LoggerOptions{Key: "error", Data: err.Error()})
		}
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusCreated, ResultEnvelope{Status: "success", Message: MsgRegistered, Redirect: LoginRedirect})
}

// readDocument loads the uploaded ID file and optional number crop. On failure
// it returns a nil document with the response status and message.
func (h *RegistrationHandler) readDocument(r *http.Request, idType domain.IDType, number string) (*domain.IDDocument, int, string) {
	file, header, err := r.FormFile("idFile")
	if err != nil {
		return nil, http.StatusBadRequest, MsgInvalidFile
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil || len(data) == 0 {
		return nil, http.StatusBadRequest, MsgInvalidFile
	}
	if int64(len(data)) > h.maxBytes {
		return nil, http.StatusRequestEntityTooLarge, MsgInvalidFile
	}
	mime := mimetype.Detect(data)
	if !mimetype.EqualsAny(mime.String(), allowedMimeTypes...) {
		return nil, http.StatusBadRequest, MsgFileType
	}

	doc := &domain.IDDocument{
		Type:     idType,
		Number:   number,
		MimeType: mime.String(),
		Name:     header.Filename,
		Bytes:    data,
	}
	if raw := r.FormValue("id_crop"); raw != "" {
		crop, _, err := imaging.DecodeDataURL(raw)
		if err != nil {
			logger.Info("ignoring malformed id crop", logger.LoggerOptions{Key: "error", Data: err.Error()})
		} else {
			doc.Crop = crop
		}
	}
	return doc, 0, ""
}

func statusFor(err error) (int, string) {
	var rej *identity.Rejection
	switch {
	case errors.Is(err, registration.ErrEmailTaken):
		return http.StatusConflict, MsgEmailTaken
	case errors.Is(err, registration.ErrUsernameUsed):
		return http.StatusConflict, MsgUsernameTaken
	case errors.Is(err, registration.ErrReceiptUsed):
		return http.StatusConflict, MsgReceiptUsed
	case errors.As(err, &rej):
		if errors.Is(err, domain.ErrUnavailable) {
			return http.StatusServiceUnavailable, rej.Message
		}
		return http.StatusUnprocessableEntity, rej.Message
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, MsgServerError
	default:
		return http.StatusInternalServerError, MsgServerError
	}
}
