package server_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eid-tools/dds-hashcode/internal/api"
	"github.com/eid-tools/dds-hashcode/internal/config"
	"github.com/eid-tools/dds-hashcode/internal/container"
	"github.com/eid-tools/dds-hashcode/internal/crypto"
	"github.com/eid-tools/dds-hashcode/internal/dds"
	"github.com/eid-tools/dds-hashcode/internal/dds/ddstest"
	"github.com/eid-tools/dds-hashcode/internal/server"
	"github.com/eid-tools/dds-hashcode/internal/server/handlers"
	"github.com/eid-tools/dds-hashcode/internal/services"
	"github.com/eid-tools/dds-hashcode/internal/sessionstore"
	"github.com/eid-tools/dds-hashcode/internal/signing"
)

type testServer struct {
	url   string
	fake  *ddstest.Server
	token *crypto.LocalToken
}

func newTestServer(t *testing.T, withToken bool) *testServer {
	t.Helper()

	fake := ddstest.NewServer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	service, err := signing.NewService(dds.NewClient(dds.Config{Endpoint: fake.URL()}, logger),
		sessionstore.NewMemory(), signing.Config{UploadDir: t.TempDir(), SigningProfile: "LT_TM"}, logger)
	require.NoError(t, err)

	svc := &services.Services{Signing: service, StoreName: "memory"}
	ts := &testServer{fake: fake}
	if withToken {
		ts.token = ddstest.NewSigner(t)
		jwks, err := crypto.PublicKeyToJWKSet(ts.token)
		require.NoError(t, err)
		svc.Token = ts.token
		svc.JWKS = jwks
	}

	cfg := &config.ServerEnvironment{
		Environment:          "test",
		MaxRequestSize:       64 << 10,
		RequestTimeout:       30 * time.Second,
		SessionMaxAge:        30 * time.Minute,
		SessionSweepInterval: time.Minute,
	}

	srv := httptest.NewServer(server.NewServer(cfg, svc, logger).Router())
	t.Cleanup(srv.Close)
	ts.url = srv.URL
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, contentType string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.url+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (ts *testServer) doJSON(t *testing.T, method, path string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return ts.do(t, method, path, "application/json", body)
}

func (ts *testServer) upload(t *testing.T, path, field, filename string, content []byte, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return ts.do(t, http.MethodPost, path, mw.FormDataContentType(), &buf)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func requireAPIError(t *testing.T, resp *http.Response, status int, code api.ErrorCode) {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, code, body.Errors[0].ErrorCode, "message: %s", body.Errors[0].ErrorCodeMessage)
	assert.NotEmpty(t, body.ProviderCorrelationReference, "request id is reported")
}

func bdocContainer(t *testing.T, files map[string]string) []byte {
	t.Helper()
	c, err := container.New(container.FormatBDOC)
	require.NoError(t, err)
	for name, body := range files {
		_, err := c.Add(name, "text/plain", []byte(body))
		require.NoError(t, err)
	}
	data, err := container.Serialize(c)
	require.NoError(t, err)
	return data
}

func TestInfrastructureEndpoints(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp = ts.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/version", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v := decode[handlers.VersionResponse](t, resp)
	assert.Equal(t, "hashcode-server", v.Service)
	assert.NotEmpty(t, v.Version)

	resp = ts.do(t, http.MethodGet, "/.well-known/jwks.json", "", nil)
	requireAPIError(t, resp, http.StatusNotFound, api.ErrCodeNotFound)
}

func TestJWKSWithToken(t *testing.T) {
	ts := newTestServer(t, true)

	resp := ts.do(t, http.MethodGet, "/.well-known/jwks.json", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jwks := decode[handlers.JWKSResponse](t, resp)
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, "EC", jwks.Keys[0]["kty"])
}

func TestSigningWorkflowOverHTTP(t *testing.T) {
	ts := newTestServer(t, false)
	signer := ddstest.NewSigner(t)

	// upload
	resp := ts.upload(t, "/v1/sessions", "container", "contract.bdoc", bdocContainer(t, map[string]string{"contract.txt": "contract body"}), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sess := decode[handlers.SessionResponse](t, resp)
	assert.Equal(t, signing.StateDataFilesRegistered, sess.State)
	assert.Equal(t, "contract.bdoc", sess.ContainerFilename)
	assert.Equal(t, "D1", sess.NextDataFileID)
	sessionPath := "/v1/sessions/" + sess.ID.String()

	// add a data file
	resp = ts.upload(t, sessionPath+"/datafiles", "file", "annex.txt", []byte("annex body"), map[string]string{"mimeType": "text/plain"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	added := decode[handlers.AddDataFileResponse](t, resp)
	assert.Equal(t, "D1", added.DataFile.ID)
	assert.Equal(t, "annex.txt", added.DataFile.Name)
	assert.Len(t, added.Session.DataFiles, 2)

	// removal is local
	resp = ts.do(t, http.MethodDelete, sessionPath+"/datafiles/"+url.PathEscape("annex.txt"), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	removed := decode[handlers.RemoveDataFileResponse](t, resp)
	require.Len(t, removed.DataFiles, 1)
	assert.Equal(t, "contract.txt", removed.DataFiles[0].Name)

	// prepare
	resp = ts.doJSON(t, http.MethodPost, sessionPath+"/signatures", signing.SignerInfo{
		Certificate: crypto.CertificateHex(signer.Certificate()),
		City:        "Tallinn",
		Country:     "EE",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	prepared := decode[handlers.PrepareSignatureResponse](t, resp)
	assert.Equal(t, "S0", prepared.SignatureID)
	assert.Equal(t, crypto.SHA256, prepared.DigestAlgorithm)

	// sign externally and finalize
	digest, err := hex.DecodeString(prepared.SignedInfoDigest)
	require.NoError(t, err)
	value, err := signer.SignDigest(prepared.DigestAlgorithm, digest)
	require.NoError(t, err)

	resp = ts.doJSON(t, http.MethodPut, sessionPath+"/signatures/"+prepared.SignatureID, handlers.FinalizeSignatureRequest{SignatureValue: value})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess = decode[handlers.SessionResponse](t, resp)
	assert.Equal(t, signing.StateSignatureFinalized, sess.State)
	require.Len(t, sess.Signatures, 1)

	// download
	resp = ts.do(t, http.MethodGet, sessionPath+"/container", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.etsi.asic-e+zip", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="contract.bdoc"`)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	signed, err := container.Parse("contract.bdoc", data)
	require.NoError(t, err)
	assert.Equal(t, 1, signed.SignatureCount())
	require.Len(t, signed.DataFiles, 2)

	// close
	resp = ts.do(t, http.MethodDelete, sessionPath, "", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, ts.fake.OpenSessions())

	resp = ts.do(t, http.MethodGet, sessionPath, "", nil)
	requireAPIError(t, resp, http.StatusNotFound, api.ErrCodeNoActiveSession)
	resp = ts.do(t, http.MethodDelete, sessionPath, "", nil)
	requireAPIError(t, resp, http.StatusNotFound, api.ErrCodeNoActiveSession)
}

func TestCreateSessionAndSignWithToken(t *testing.T) {
	ts := newTestServer(t, true)

	resp := ts.doJSON(t, http.MethodPost, "/v1/sessions/new", handlers.CreateSessionRequest{Format: "DDOC", Filename: "agreement.ddoc"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sess := decode[handlers.SessionResponse](t, resp)
	assert.Equal(t, container.FormatDDOC, sess.Format)
	assert.Equal(t, signing.StateSessionStarted, sess.State)
	assert.Equal(t, "D0", sess.NextDataFileID)
	sessionPath := "/v1/sessions/" + sess.ID.String()

	// nothing to sign yet
	resp = ts.do(t, http.MethodPost, sessionPath+"/signatures/token", "application/json", nil)
	requireAPIError(t, resp, http.StatusConflict, api.ErrCodeInvalidState)

	resp = ts.upload(t, sessionPath+"/datafiles", "file", "test.txt", []byte("abc"), map[string]string{"mimeType": "text/plain"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	added := decode[handlers.AddDataFileResponse](t, resp)
	assert.Equal(t, "VqNUJvqUvw2OmalMsVydxk3PeAo=", added.DataFile.DigestValue)

	resp = ts.doJSON(t, http.MethodPost, sessionPath+"/signatures/token", signing.SignerInfo{Role: "Director"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	signed := decode[handlers.TokenSignatureResponse](t, resp)
	assert.Equal(t, "S0", signed.SignatureID)
	assert.Equal(t, signing.StateSignatureFinalized, signed.Session.State)

	resp = ts.do(t, http.MethodGet, sessionPath+"/container", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ddoc", resp.Header.Get("Content-Type"))
}

func TestSignWithTokenNotConfigured(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.doJSON(t, http.MethodPost, "/v1/sessions/new", handlers.CreateSessionRequest{Format: "BDOC"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sess := decode[handlers.SessionResponse](t, resp)
	assert.Equal(t, "container.bdoc", sess.ContainerFilename)

	resp = ts.do(t, http.MethodPost, "/v1/sessions/"+sess.ID.String()+"/signatures/token", "application/json", nil)
	requireAPIError(t, resp, http.StatusNotFound, api.ErrCodeNotFound)
}

func TestRequestErrors(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.upload(t, "/v1/sessions", "container", "contract.bdoc", bdocContainer(t, map[string]string{"a.txt": "a"}), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionPath := "/v1/sessions/" + decode[handlers.SessionResponse](t, resp).ID.String()

	tests := []struct {
		name       string
		send       func() *http.Response
		wantStatus int
		wantCode   api.ErrorCode
	}{
		{
			name:       "invalid session ID",
			send:       func() *http.Response { return ts.do(t, http.MethodGet, "/v1/sessions/not-a-uuid", "", nil) },
			wantStatus: http.StatusBadRequest,
			wantCode:   api.ErrCodeMalformedRequest,
		},
		{
			name:       "unknown session",
			send:       func() *http.Response { return ts.do(t, http.MethodGet, "/v1/sessions/6f1c1a52-3c57-4c64-9d0a-0b1b5b1f2a11", "", nil) },
			wantStatus: http.StatusNotFound,
			wantCode:   api.ErrCodeNoActiveSession,
		},
		{
			name: "unsupported container",
			send: func() *http.Response {
				return ts.upload(t, "/v1/sessions", "container", "contract.zip", []byte("PK"), nil)
			},
			wantStatus: http.StatusUnsupportedMediaType,
			wantCode:   api.ErrCodeUnsupportedContainer,
		},
		{
			name: "malformed container",
			send: func() *http.Response {
				return ts.upload(t, "/v1/sessions", "container", "contract.bdoc", []byte("not a zip"), nil)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   api.ErrCodeMalformedContainer,
		},
		{
			name:       "missing container field",
			send:       func() *http.Response { return ts.upload(t, "/v1/sessions", "", "", nil, map[string]string{"x": "y"}) },
			wantStatus: http.StatusBadRequest,
			wantCode:   api.ErrCodeInvalidRequest,
		},
		{
			name:       "not multipart",
			send:       func() *http.Response { return ts.do(t, http.MethodPost, "/v1/sessions", "text/plain", strings.NewReader("x")) },
			wantStatus: http.StatusBadRequest,
			wantCode:   api.ErrCodeMalformedRequest,
		},
		{
			name: "unknown format",
			send: func() *http.Response {
				return ts.doJSON(t, http.MethodPost, "/v1/sessions/new", handlers.CreateSessionRequest{Format: "PDF"})
			},
			wantStatus: http.StatusUnsupportedMediaType,
			wantCode:   api.ErrCodeUnsupportedContainer,
		},
		{
			name:       "invalid JSON",
			send:       func() *http.Response { return ts.do(t, http.MethodPost, "/v1/sessions/new", "application/json", strings.NewReader("{")) },
			wantStatus: http.StatusBadRequest,
			wantCode:   api.ErrCodeMalformedRequest,
		},
		{
			name: "finalize before prepare",
			send: func() *http.Response {
				return ts.doJSON(t, http.MethodPut, sessionPath+"/signatures/S0", handlers.FinalizeSignatureRequest{SignatureValue: "00"})
			},
			wantStatus: http.StatusConflict,
			wantCode:   api.ErrCodeInvalidState,
		},
		{
			name: "prepare without certificate",
			send: func() *http.Response {
				return ts.doJSON(t, http.MethodPost, sessionPath+"/signatures", signing.SignerInfo{})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   api.ErrCodeInvalidRequest,
		},
		{
			name: "prepare with an invalid certificate",
			send: func() *http.Response {
				return ts.doJSON(t, http.MethodPost, sessionPath+"/signatures", signing.SignerInfo{Certificate: "00ff"})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   api.ErrCodeBadCertificate,
		},
		{
			name: "duplicate data file",
			send: func() *http.Response {
				return ts.upload(t, sessionPath+"/datafiles", "file", "a.txt", []byte("again"), nil)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   api.ErrCodeInvalidRequest,
		},
		{
			name: "data file named after the parent directory",
			send: func() *http.Response {
				return ts.upload(t, sessionPath+"/datafiles", "file", "..", []byte("x"), nil)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   api.ErrCodeInvalidRequest,
		},
		{
			name: "request too large",
			send: func() *http.Response {
				return ts.upload(t, "/v1/sessions", "container", "big.bdoc", bytes.Repeat([]byte("x"), 100<<10), nil)
			},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   api.ErrCodeRequestTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireAPIError(t, tt.send(), tt.wantStatus, tt.wantCode)
		})
	}
}

func TestSigningServiceErrors(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.doJSON(t, http.MethodPost, "/v1/sessions/new", handlers.CreateSessionRequest{Format: "BDOC"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionPath := "/v1/sessions/" + decode[handlers.SessionResponse](t, resp).ID.String()

	ts.fake.FailNext(dds.OpAddDataFile, ddstest.Failure{HTTPStatus: http.StatusServiceUnavailable})
	resp = ts.upload(t, sessionPath+"/datafiles", "file", "a.txt", []byte("a"), nil)
	requireAPIError(t, resp, http.StatusBadGateway, api.ErrCodeSigningServiceUnavailable)

	ts.fake.FailNext(dds.OpAddDataFile, ddstest.Failure{FaultString: ddstest.FaultGeneral, Message: "service busy"})
	resp = ts.upload(t, sessionPath+"/datafiles", "file", "a.txt", []byte("a"), nil)
	requireAPIError(t, resp, http.StatusUnprocessableEntity, api.ErrCodeSigningServiceRejected)

	// the failures left the session as it was
	resp = ts.do(t, http.MethodGet, sessionPath, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess := decode[handlers.SessionResponse](t, resp)
	assert.Equal(t, signing.StateSessionStarted, sess.State)
	assert.Empty(t, sess.DataFiles)
}
