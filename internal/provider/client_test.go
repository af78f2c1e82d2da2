package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthgyan/onboarding/internal/apperr"
	"github.com/arthgyan/onboarding/internal/logging"
)

type fakeProvider struct {
	*httptest.Server
	mux    *http.ServeMux
	issued atomic.Int32
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{mux: http.NewServeMux()}
	fp.mux.HandleFunc("/v2/auth/arthgyan/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("grant_type") != "client_credentials" ||
			r.PostForm.Get("client_id") != "id" ||
			r.PostForm.Get("client_secret") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid client"}}`))
			return
		}
		n := fp.issued.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"access_token": fmt.Sprintf("tok-%d", n), "expires_in": 3600})
	})
	fp.Server = httptest.NewServer(fp.mux)
	t.Cleanup(fp.Close)
	return fp
}

func (fp *fakeProvider) client(t *testing.T, metrics *Metrics) *Client {
	t.Helper()
	issuer := ClientCredentials{
		TokenURL:     fp.URL + "/v2/auth/arthgyan/token",
		ClientID:     "id",
		ClientSecret: "secret",
		Timeout:      time.Second,
	}
	cache := NewCredentialCache(issuer, WithCacheMetrics(metrics))
	return NewClient(cache, Options{
		BaseURL: fp.URL,
		Timeout: time.Second,
		Metrics: metrics,
		Logger:  logging.Discard(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClientCreateKycRequestSendsBearerAndPayload(t *testing.T) {
	fp := newFakeProvider(t)
	var got KycRequest
	var auth string
	fp.mux.HandleFunc("/v2/kyc_requests", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":         "kyc_1",
			"object":     "kyc_request",
			"status":     "pending",
			"expires_at": "2030-01-01T00:00:00Z",
			"pan":        got.PAN,
		})
	})

	metrics := NewMetrics(prometheus.NewRegistry())
	client := fp.client(t, metrics)
	res, err := client.CreateKycRequest(context.Background(), KycRequest{
		Name:   "Asha Rao",
		PAN:    "ABCDE1234F",
		Mobile: &Mobile{ISD: "+91", Number: "9876543210"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-1", auth)
	assert.Equal(t, "ABCDE1234F", got.PAN)
	assert.Equal(t, "9876543210", got.Mobile.Number)
	assert.Equal(t, "kyc_1", res.ID)
	assert.Equal(t, "ABCDE1234F", res.PAN)
	assert.True(t, res.ExpiresAt.Equal(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1.0, counterValue(t, metrics.requests.WithLabelValues("create kyc request", "201")))
	assert.Equal(t, 1.0, counterValue(t, metrics.refreshes.WithLabelValues("ok")))
}

func TestClientReusesTokenAcrossCalls(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("/v2/kyc_requests/kyc_1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "kyc_1", "expires_at": "2030-01-01T00:00:00Z"})
	})

	client := fp.client(t, nil)
	for i := 0; i < 3; i++ {
		_, err := client.GetKycRequest(context.Background(), "kyc_1")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, fp.issued.Load())
}

func TestClientMapsErrorStatusToTypedError(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("/v2/identity_documents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": map[string]any{"message": "kyc_request is not editable"}})
	})

	client := fp.client(t, nil)
	_, err := client.CreateIdentityDocument(context.Background(), IdentityDocumentRequest{KycRequest: "kyc_1", Type: "aadhaar"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstreamDocument)

	var ue *apperr.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusUnprocessableEntity, ue.Status)
	assert.Equal(t, "kyc_request is not editable", ue.Message)
}

func TestClientUnauthorizedInvalidatesCredentialWithoutRetry(t *testing.T) {
	fp := newFakeProvider(t)
	var hits atomic.Int32
	fp.mux.HandleFunc("/v2/esigns", func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token expired"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": "esg_1"})
	})

	client := fp.client(t, nil)
	_, err := client.CreateEsign(context.Background(), EsignRequest{KycRequest: "kyc_1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstreamDocument)
	assert.EqualValues(t, 1, hits.Load())

	res, err := client.CreateEsign(context.Background(), EsignRequest{KycRequest: "kyc_1"})
	require.NoError(t, err)
	assert.Equal(t, "esg_1", res.ID)
	assert.EqualValues(t, 2, fp.issued.Load())
}

func TestClientTokenFailureIsUpstreamAuth(t *testing.T) {
	fp := newFakeProvider(t)
	issuer := ClientCredentials{TokenURL: fp.URL + "/v2/auth/arthgyan/token", ClientID: "id", ClientSecret: "wrong"}
	client := NewClient(NewCredentialCache(issuer), Options{BaseURL: fp.URL, Logger: logging.Discard()})

	_, err := client.GetKycRequest(context.Background(), "kyc_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstreamAuth)
	assert.Contains(t, err.Error(), "invalid client")
}

func TestClientHonoursCallerDeadline(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("/api/onb/pincodes/560001", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]any{"pincode": "560001"})
	})

	client := fp.client(t, nil)
	_, err := client.tokens.Token(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = client.LookupPincode(ctx, "560001")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestClientLookupPincodePassthrough(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("/api/onb/pincodes/560001", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"pincode": "560001", "city": "Bengaluru"})
	})

	client := fp.client(t, nil)
	raw, err := client.LookupPincode(context.Background(), "560001")
	require.NoError(t, err)
	assert.JSONEq(t, `{"pincode":"560001","city":"Bengaluru"}`, string(raw))
}

func TestClientUploadFileSendsMultipart(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "signature", r.FormValue("purpose"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		content, _ := io.ReadAll(f)
		assert.Equal(t, "sign.png", hdr.Filename)
		assert.Equal(t, "png-bytes", string(content))
		writeJSON(w, http.StatusCreated, map[string]any{"id": "file_1", "filename": hdr.Filename})
	})

	client := fp.client(t, nil)
	file, err := client.UploadFile(context.Background(), Upload{Filename: "sign.png", Content: []byte("png-bytes"), Purpose: "signature"})
	require.NoError(t, err)
	assert.Equal(t, "file_1", file.ID)
	assert.Contains(t, string(file.Raw), "sign.png")
}

func TestClientCreateWithoutIDFails(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("/v2/kyc_requests", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"status": "pending"})
	})

	client := fp.client(t, nil)
	_, err := client.CreateKycRequest(context.Background(), KycRequest{})
	assert.ErrorIs(t, err, apperr.ErrUpstreamKyc)
}

func TestErrorMessageShapes(t *testing.T) {
	assert.Equal(t, "nested", errorMessage([]byte(`{"error":{"message":"nested"}}`)))
	assert.Equal(t, "flat", errorMessage([]byte(`{"error":"flat"}`)))
	assert.Equal(t, "top", errorMessage([]byte(`{"message":"top"}`)))
	assert.Equal(t, "plain text", errorMessage([]byte("plain text")))
	assert.Equal(t, "", errorMessage(nil))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

// blockingTokens never issues a credential; callers wait until their ctx ends.
type blockingTokens struct{}

func (blockingTokens) Token(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingTokens) Invalidate() {}

func TestClientCallerAbortIsNotAuthFailure(t *testing.T) {
	client := NewClient(blockingTokens{}, Options{BaseURL: "http://127.0.0.1:1", Logger: logging.Discard()})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.GetKycRequest(ctx, "kyc_1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, apperr.IsUpstream(err))
	assert.NotErrorIs(t, err, apperr.ErrUpstreamAuth)
	assert.Equal(t, http.StatusGatewayTimeout, apperr.HTTPStatus(err))

	canceled, stop := context.WithCancel(context.Background())
	stop()
	_, err = client.LookupPincode(canceled, "560001")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, apperr.StatusClientClosedRequest, apperr.HTTPStatus(err))
}
