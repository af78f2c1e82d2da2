package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthgyan/onboarding/internal/apperr"
	"github.com/arthgyan/onboarding/internal/config"
	"github.com/arthgyan/onboarding/internal/logging"
	"github.com/arthgyan/onboarding/internal/notification"
	"github.com/arthgyan/onboarding/internal/provider"
	"github.com/arthgyan/onboarding/internal/subject"
)

type fakeProvider struct {
	mu        sync.Mutex
	kycSeq    int
	kycCalls  []provider.KycRequest
	uploads   []provider.Upload
	pincodes  int
	failKyc   error
	docsCalls int
}

func (f *fakeProvider) CreateKycRequest(_ context.Context, req provider.KycRequest) (provider.KycRequestResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKyc != nil {
		return provider.KycRequestResource{}, f.failKyc
	}
	f.kycSeq++
	f.kycCalls = append(f.kycCalls, req)
	return provider.KycRequestResource{
		ID:         "kyc_" + strconv.Itoa(f.kycSeq),
		Status:     "pending",
		ExpiresAt:  time.Now().Add(time.Hour),
		KycRequest: req,
	}, nil
}

func (f *fakeProvider) GetKycRequest(_ context.Context, id string) (provider.KycRequestResource, error) {
	return provider.KycRequestResource{ID: id, Status: "pending", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeProvider) UpdateKycRequest(_ context.Context, id string, req provider.KycRequest) (provider.KycRequestResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kycCalls = append(f.kycCalls, req)
	return provider.KycRequestResource{ID: id, Status: "pending", ExpiresAt: time.Now().Add(time.Hour), KycRequest: req}, nil
}

func (f *fakeProvider) CreateIdentityDocument(_ context.Context, req provider.IdentityDocumentRequest) (provider.IdentityDocument, error) {
	f.mu.Lock()
	f.docsCalls++
	f.mu.Unlock()
	return provider.IdentityDocument{ID: "doc_1", KycRequest: req.KycRequest, Type: req.Type, PostbackURL: req.PostbackURL}, nil
}

func (f *fakeProvider) CreateEsign(_ context.Context, req provider.EsignRequest) (provider.Esign, error) {
	f.mu.Lock()
	f.docsCalls++
	f.mu.Unlock()
	return provider.Esign{ID: "esign_1", KycRequest: req.KycRequest, PostbackURL: req.PostbackURL}, nil
}

func (f *fakeProvider) CreateInvestorProfile(_ context.Context, req provider.InvestorProfileRequest) (provider.InvestorProfile, error) {
	return provider.InvestorProfile{ID: "invp_1", Raw: json.RawMessage(`{"id":"invp_1","name":"` + req.Name + `"}`)}, nil
}

func (f *fakeProvider) LookupPincode(_ context.Context, pin string) (json.RawMessage, error) {
	f.mu.Lock()
	f.pincodes++
	f.mu.Unlock()
	return json.RawMessage(`{"pincode":"` + pin + `","state":"MAHARASHTRA"}`), nil
}

func (f *fakeProvider) UploadFile(_ context.Context, upload provider.Upload) (provider.File, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, upload)
	f.mu.Unlock()
	return provider.File{ID: "file_1", Raw: json.RawMessage(`{"id":"file_1"}`)}, nil
}

type capturingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (n *capturingNotifier) Send(_ context.Context, m notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, m)
	return nil
}

type testEnv struct {
	app      *fiber.App
	repo     subject.Repository
	provider *fakeProvider
	notifier *capturingNotifier
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Config{
		AppEnv: "development",
		OTP: config.OTP{
			TTL:        time.Minute,
			Digits:     6,
			ExposeCode: true,
		},
		Callback: config.Callback{
			PublicBaseURL:  "https://api.example.test",
			DeepLinkScheme: "app.test",
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	logger := logging.Discard()
	env := &testEnv{
		app:      fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)}),
		repo:     subject.NewMemoryRepository(),
		provider: &fakeProvider{},
		notifier: &capturingNotifier{},
	}
	err := Setup(env.app, Deps{
		Cfg:      cfg,
		Subjects: env.repo,
		Provider: env.provider,
		Notifier: env.notifier,
		Logger:   logger,
		Checks: map[string]HealthCheck{
			"store": func(context.Context) error { return nil },
		},
	})
	require.NoError(t, err)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any, *http.Response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(payload) > 0 && json.Valid(payload) {
		require.NoError(t, json.Unmarshal(payload, &out))
	}
	return resp.StatusCode, out, resp
}

func (e *testEnv) register(t *testing.T, phone, email string) {
	t.Helper()
	status, body, _ := e.do(t, http.MethodPost, "/api/auth/register", fiber.Map{
		"name": "Asha Rao", "phoneNumber": phone, "email": email,
	})
	require.Equal(t, http.StatusOK, status, body)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "9876543210", "asha@example.com")

	status, body, _ := env.do(t, http.MethodPost, "/api/auth/register", fiber.Map{
		"name": "Other", "phoneNumber": "9876543210", "email": "other@example.com",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body["error"], "phone")

	status, body, _ = env.do(t, http.MethodPost, "/api/auth/register", fiber.Map{"name": "No Contact"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["details"], "phoneNumber")
}

func TestSendOTPRequiresRegistration(t *testing.T) {
	env := newTestEnv(t)
	status, _, _ := env.do(t, http.MethodPost, "/api/auth/send-otp", fiber.Map{"phoneNumber": "9000000000"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Empty(t, env.notifier.messages)
}

func TestOTPIssueAndVerify(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "9876543210", "asha@example.com")

	status, body, _ := env.do(t, http.MethodPost, "/api/auth/send-otp", fiber.Map{"phoneNumber": "9876543210"})
	require.Equal(t, http.StatusOK, status, body)
	code, _ := body["otp"].(string)
	require.Len(t, code, 6)
	require.Len(t, env.notifier.messages, 1)
	assert.Equal(t, notification.ChannelSMS, env.notifier.messages[0].Channel)
	assert.Contains(t, env.notifier.messages[0].Body, code)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	status, body, _ = env.do(t, http.MethodPost, "/api/auth/verify-otp", fiber.Map{"phoneNumber": "9876543210", "otp": wrong})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperr.ErrInvalidCode.Error(), body["error"])

	status, body, _ = env.do(t, http.MethodPost, "/api/auth/verify-otp", fiber.Map{"phoneNumber": "9876543210", "otp": code})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, false, body["hasPin"])

	// Codes are single use.
	status, _, _ = env.do(t, http.MethodPost, "/api/auth/verify-otp", fiber.Map{"phoneNumber": "9876543210", "otp": code})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRequestOTPCreatesSubject(t *testing.T) {
	env := newTestEnv(t)
	status, body, _ := env.do(t, http.MethodPost, "/api/auth/request-otp", fiber.Map{"identifier": "new@example.com", "name": "New"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["isNewUser"])
	require.Len(t, env.notifier.messages, 1)
	assert.Equal(t, notification.ChannelEmail, env.notifier.messages[0].Channel)

	_, err := env.repo.FindByIdentifier(context.Background(), subject.Email("new@example.com"))
	assert.NoError(t, err)
}

func TestOTPCodeHiddenUnlessExposed(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.OTP.ExposeCode = false })
	env.register(t, "9876543210", "asha@example.com")

	status, body, _ := env.do(t, http.MethodPost, "/api/auth/send-otp", fiber.Map{"phoneNumber": "9876543210"})
	require.Equal(t, http.StatusOK, status)
	_, ok := body["otp"]
	assert.False(t, ok)
}

func TestPINLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "9876543210", "asha@example.com")

	status, _, _ := env.do(t, http.MethodPost, "/api/auth/update-pin", fiber.Map{"identifier": "9876543210", "pin": "12a4"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = env.do(t, http.MethodPost, "/api/auth/update-pin", fiber.Map{"identifier": "9876543210", "pin": "1234"})
	require.Equal(t, http.StatusOK, status)

	status, _, _ = env.do(t, http.MethodPost, "/api/auth/verify-pin", fiber.Map{"identifier": "asha@example.com", "pin": "1234"})
	assert.Equal(t, http.StatusOK, status)
	status, _, _ = env.do(t, http.MethodPost, "/api/auth/verify-pin", fiber.Map{"identifier": "9876543210", "pin": "4321"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUserViewHidesSecrets(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "9876543210", "asha@example.com")
	env.do(t, http.MethodPost, "/api/auth/update-pin", fiber.Map{"identifier": "9876543210", "pin": "1234"})
	env.do(t, http.MethodPost, "/api/auth/send-otp", fiber.Map{"phoneNumber": "9876543210"})

	status, body, _ := env.do(t, http.MethodGet, "/api/auth/user/9876543210", nil)
	require.Equal(t, http.StatusOK, status)
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, user["hasPin"])
	for _, key := range []string{"pin", "pinHash", "PINHash", "otp", "pendingOtp", "PendingOTP"} {
		assert.NotContains(t, user, key)
	}
}

func TestProfileUpdates(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "9876543210", "asha@example.com")

	status, _, _ := env.do(t, http.MethodPost, "/api/auth/update-pan", fiber.Map{"phoneNumber": "9876543210", "panNumber": "abcde1234f"})
	require.Equal(t, http.StatusOK, status)
	status, _, _ = env.do(t, http.MethodPost, "/api/auth/update-pan", fiber.Map{"phoneNumber": "9876543210", "panNumber": "short"})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _, _ = env.do(t, http.MethodPost, "/api/auth/update-occupation", fiber.Map{"phoneNumber": "9876543210", "occupation": "salaried"})
	require.Equal(t, http.StatusOK, status)
	status, _, _ = env.do(t, http.MethodPut, "/api/auth/user/9876543210", fiber.Map{"city": "Pune", "pincode": "411001"})
	require.Equal(t, http.StatusOK, status)

	subj, err := env.repo.FindByIdentifier(context.Background(), subject.Phone("9876543210"))
	require.NoError(t, err)
	assert.Equal(t, "ABCDE1234F", subj.PAN)
	assert.NotNil(t, subj.PANUpdatedAt)
	assert.Equal(t, "salaried", subj.Occupation)
	assert.Equal(t, "Pune", subj.City)

	status, _, _ = env.do(t, http.MethodPost, "/api/auth/update-income", fiber.Map{"phoneNumber": "9000000000", "income": "1-5L"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdateUserCreatesInvestorProfile(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "9876543210", "asha@example.com")

	status, body, _ := env.do(t, http.MethodPost, "/api/auth/user/updateUser", fiber.Map{
		"email": "asha@example.com",
		"updatedUser": fiber.Map{
			"name":       "Asha R",
			"occupation": "business",
			"pan":        "ABCDE1234F",
			"tax_status": "resident_individual",
		},
	})
	require.Equal(t, http.StatusOK, status, body)
	ext, ok := body["externalApiResponse"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "invp_1", ext["id"])

	subj, err := env.repo.FindByIdentifier(context.Background(), subject.Email("asha@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "invp_1", subj.InvestorProfileID)
	assert.Equal(t, "business", subj.Occupation)
	assert.Equal(t, "ABCDE1234F", subj.PAN)
}

func TestKycRequestThenDocuments(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "9876543210", "asha@example.com")

	status, _, _ := env.do(t, http.MethodPost, "/api/auth/generate-identity-document", fiber.Map{"email": "asha@example.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Zero(t, env.provider.docsCalls)

	status, body, _ := env.do(t, http.MethodPost, "/api/auth/kyc-request", fiber.Map{"email": "asha@example.com"})
	assert.Equal(t, http.StatusBadRequest, status, body)

	status, body, _ = env.do(t, http.MethodPost, "/api/auth/kyc-request", fiber.Map{
		"email":       "asha@example.com",
		"jsonRequest": fiber.Map{"gender": "female"},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "created", body["action"])

	status, body, _ = env.do(t, http.MethodPost, "/api/auth/kyc-request", fiber.Map{
		"email":       "asha@example.com",
		"jsonRequest": fiber.Map{"gender": "female"},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "updated", body["action"])
	assert.Equal(t, "KYC request updated successfully", body["message"])

	status, body, _ = env.do(t, http.MethodPost, "/api/auth/generate-identity-document", fiber.Map{"email": "asha@example.com"})
	require.Equal(t, http.StatusOK, status, body)
	data := body["data"].(map[string]any)
	assert.Equal(t, "https://api.example.test/api/auth/callback", data["postback_url"])

	status, body, _ = env.do(t, http.MethodPost, "/api/auth/create-esign", fiber.Map{
		"email":       "asha@example.com",
		"postbackUrl": "https://hooks.example.test/esign",
	})
	require.Equal(t, http.StatusOK, status, body)
	data = body["data"].(map[string]any)
	assert.Equal(t, "https://hooks.example.test/esign", data["postback_url"])

	subj, err := env.repo.FindByIdentifier(context.Background(), subject.Email("asha@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "kyc_1", subj.KycRequestID)
	assert.Equal(t, "doc_1", subj.IdentityDocumentID)
	assert.Equal(t, "esign_1", subj.EsignID)

	status, body, _ = env.do(t, http.MethodGet, "/api/auth/kyc/kyc_1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "kyc_1", body["id"])
}

func TestKycRequestUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "9876543210", "asha@example.com")
	env.provider.failKyc = &apperr.UpstreamError{
		Kind:    apperr.ErrUpstream,
		Op:      "create kyc request",
		Status:  http.StatusUnprocessableEntity,
		Message: "pan is invalid",
		Body:    []byte(`{"error":{"message":"pan is invalid"}}`),
	}

	status, body, _ := env.do(t, http.MethodPost, "/api/auth/kyc-request", fiber.Map{
		"email":       "asha@example.com",
		"jsonRequest": fiber.Map{"pan": "X"},
	})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, apperr.ErrUpstreamKyc.Error(), body["error"])
	assert.NotNil(t, body["details"])
}

func TestCallbackRedirects(t *testing.T) {
	env := newTestEnv(t)

	_, _, resp := env.do(t, http.MethodGet, "/api/auth/callback?identity_document=doc_1&status=successful", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "app.test://callback?identity_document=doc_1&status=successful", resp.Header.Get(fiber.HeaderLocation))

	_, _, resp = env.do(t, http.MethodPost, "/api/auth/callback-esign?esign=esign_1&status=signed", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "app.test://callback-esign?esign=esign_1&status=signed", resp.Header.Get(fiber.HeaderLocation))

	status, body, _ := env.do(t, http.MethodGet, "/api/auth/callback-esign?esign=esign_1", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperr.ErrMissingFields.Error(), body["error"])
}

func TestStrictCallbackRejectsUnknownArtifact(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Callback.Strict = true })
	status, _, _ := env.do(t, http.MethodGet, "/api/auth/callback?identity_document=doc_404&status=successful", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPincodeLookup(t *testing.T) {
	env := newTestEnv(t)
	status, body, _ := env.do(t, http.MethodGet, "/api/auth/pincode/411001", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "MAHARASHTRA", body["state"])

	status, _, _ = env.do(t, http.MethodGet, "/api/auth/pincode/41", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 1, env.provider.pincodes)
}

func TestUploadFileForwardsMultipart(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "pan.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("purpose", "pan"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/upload-file", &buf)
	req.Header.Set(fiber.HeaderContentType, mw.FormDataContentType())
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, env.provider.uploads, 1)
	assert.Equal(t, "pan.jpg", env.provider.uploads[0].Filename)
	assert.Equal(t, "pan", env.provider.uploads[0].Purpose)
	assert.Equal(t, []byte("jpeg-bytes"), env.provider.uploads[0].Content)

	status, body, _ := env.do(t, http.MethodPost, "/api/auth/upload-file", fiber.Map{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No file uploaded", body["error"])
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	status, body, _ := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"store": "ok"}, body["status"])
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/boom", func(*fiber.Ctx) error { return errors.New("pq: connection refused") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.False(t, strings.Contains(string(raw), "connection refused"))
}
