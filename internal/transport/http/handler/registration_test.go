package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patient-idv/internal/application/facematch"
	"github.com/patient-idv/internal/application/identity"
	"github.com/patient-idv/internal/application/ocr"
	"github.com/patient-idv/internal/application/registration"
	"github.com/patient-idv/internal/domain"
	jwtinfra "github.com/patient-idv/internal/infrastructure/jwt"
	"github.com/patient-idv/internal/transport/http/middleware"
)

// --- mock ---

type mockRegistrationSvc struct{ mock.Mock }

func (m *mockRegistrationSvc) Register(ctx context.Context, in registration.Input) (*domain.Registration, error) {
	args := m.Called(ctx, in)
	if r, _ := args.Get(0).(*domain.Registration); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

const maxDoc = 5 << 20

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func embeddingJSON(x float64) string {
	e := make(facematch.Embedding, 128)
	e[0] = x
	b, _ := json.Marshal(e)
	return string(b)
}

func formFields() map[string]string {
	return map[string]string{
		"first_name": "Juan", "last_name": "Dela Cruz", "birthdate": "1990-01-02", "gender": "male",
		"email": "Juan@Example.com", "contact_no": "09171234567", "address": "Manila",
		"password": "correct horse", "id_type": "National", "id_number": "1234-5678-9012",
		facematch.FieldVerified: "1",
		facematch.FieldLive1:    embeddingJSON(0),
		facematch.FieldLive2:    embeddingJSON(0.3),
		facematch.FieldDocument: embeddingJSON(0.4),
	}
}

func multipartRequest(t *testing.T, fields map[string]string, fileName string, file []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("idFile", fileName)
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/registrations", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req.WithContext(middleware.WithTicket(req.Context(), &jwtinfra.Claims{Email: "juan@example.com"}))
}

func serve(h *RegistrationHandler, req *http.Request) (*httptest.ResponseRecorder, ResultEnvelope) {
	rr := httptest.NewRecorder()
	h.Register(rr, req)
	var env ResultEnvelope
	_ = json.Unmarshal(rr.Body.Bytes(), &env)
	return rr, env
}

// --- tests ---

func TestRegister_Success(t *testing.T) {
	svc := &mockRegistrationSvc{}
	svc.On("Register", mock.Anything, mock.MatchedBy(func(in registration.Input) bool {
		return in.Document.Type == domain.IDNational &&
			in.Document.Number == "123456789012" &&
			in.Document.MimeType == domain.MimePNG &&
			in.Document.Name == "front.png" &&
			in.Receipt.Verified && len(in.Receipt.Live1) == 128
	})).Return(&domain.Registration{RegistrationID: "r1"}, nil)
	h := NewRegistrationHandler(svc, maxDoc)

	rr, env := serve(h, multipartRequest(t, formFields(), "front.png", pngBytes(t)))
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, ResultEnvelope{Status: "success", Message: MsgRegistered, Redirect: LoginRedirect}, env)
	svc.AssertExpectations(t)
}

func TestRegister_ValidationFailures(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(map[string]string)
		file     []byte
		fileName string
		status   int
		msg      string
	}{
		{"missing field", func(f map[string]string) { delete(f, "address") }, nil, "", http.StatusBadRequest, MsgAllFields},
		{"ticket for another email", func(f map[string]string) { f["email"] = "other@example.com" }, nil, "", http.StatusUnauthorized, middleware.MsgVerifyEmail},
		{"unknown id type", func(f map[string]string) { f["id_type"] = "library" }, nil, "", http.StatusBadRequest, "Invalid ID: Unknown ID type."},
		{"bad id number", func(f map[string]string) { f["id_number"] = "12345" }, nil, "", http.StatusBadRequest, "Invalid ID: " + domain.IDNational.FormatMessage()},
		{"no file", func(map[string]string) {}, nil, "", http.StatusBadRequest, MsgInvalidFile},
		{"text file", func(map[string]string) {}, []byte("just some text"), "id.png", http.StatusBadRequest, MsgFileType},
		{"broken receipt", func(f map[string]string) { f[facematch.FieldLive1] = "[1,2" }, nil, "", http.StatusUnprocessableEntity, identity.MsgFaceThresholds},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockRegistrationSvc{}
			h := NewRegistrationHandler(svc, maxDoc)
			fields := formFields()
			tc.mutate(fields)
			file, name := tc.file, tc.fileName
			if file == nil && tc.name != "no file" {
				file, name = pngBytes(t), "id.png"
			}

			rr, env := serve(h, multipartRequest(t, fields, name, file))
			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, "error", env.Status)
			assert.Equal(t, tc.msg, env.Message)
			svc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
		})
	}
}

func TestRegister_FileTooLarge(t *testing.T) {
	svc := &mockRegistrationSvc{}
	h := NewRegistrationHandler(svc, 64)
	big := append(pngBytes(t), bytes.Repeat([]byte{0}, 128)...)

	rr, env := serve(h, multipartRequest(t, formFields(), "id.png", big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, MsgInvalidFile, env.Message)
}

func TestRegister_PDFAccepted(t *testing.T) {
	svc := &mockRegistrationSvc{}
	svc.On("Register", mock.Anything, mock.MatchedBy(func(in registration.Input) bool {
		return in.Document.MimeType == domain.MimePDF
	})).Return(&domain.Registration{}, nil)
	h := NewRegistrationHandler(svc, maxDoc)

	rr, _ := serve(h, multipartRequest(t, formFields(), "id.pdf", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n")))
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestRegister_CropIsForwarded(t *testing.T) {
	crop := pngBytes(t)
	svc := &mockRegistrationSvc{}
	svc.On("Register", mock.Anything, mock.MatchedBy(func(in registration.Input) bool {
		return bytes.Equal(in.Document.Crop, crop)
	})).Return(&domain.Registration{}, nil)
	h := NewRegistrationHandler(svc, maxDoc)

	fields := formFields()
	fields["id_crop"] = "data:image/png;base64," + base64.StdEncoding.EncodeToString(crop)
	rr, _ := serve(h, multipartRequest(t, fields, "id.png", pngBytes(t)))
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestRegister_ServiceErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{registration.ErrEmailTaken, http.StatusConflict, MsgEmailTaken},
		{registration.ErrReceiptUsed, http.StatusConflict, MsgReceiptUsed},
		{registration.ErrUsernameUsed, http.StatusConflict, MsgUsernameTaken},
		{&identity.Rejection{Gate: "face", Message: identity.MsgFaceThresholds, Err: fmt.Errorf("d1=0.61: %w", facematch.ErrThresholds)}, http.StatusUnprocessableEntity, identity.MsgFaceThresholds},
		{&identity.Rejection{Gate: "ocr", Message: identity.MsgOCRUnavailable, Err: ocr.ErrEngineUnavailable}, http.StatusServiceUnavailable, identity.MsgOCRUnavailable},
		{fmt.Errorf("store document: %w", domain.ErrUnavailable), http.StatusServiceUnavailable, MsgServerError},
		{fmt.Errorf("dynamo: throttled"), http.StatusInternalServerError, MsgServerError},
	}
	for _, tc := range tests {
		t.Run(tc.err.Error(), func(t *testing.T) {
			svc := &mockRegistrationSvc{}
			svc.On("Register", mock.Anything, mock.Anything).Return(nil, tc.err)
			h := NewRegistrationHandler(svc, maxDoc)

			rr, env := serve(h, multipartRequest(t, formFields(), "id.png", pngBytes(t)))
			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, tc.msg, env.Message)
			assert.NotContains(t, rr.Body.String(), "0.61")
		})
	}
}
