package handlers

// sessions.go implements the /v1/sessions endpoints: the signing workflow over HTTP

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eid-tools/dds-hashcode/internal/api"
	"github.com/eid-tools/dds-hashcode/internal/container"
	"github.com/eid-tools/dds-hashcode/internal/crypto"
	"github.com/eid-tools/dds-hashcode/internal/logger"
	"github.com/eid-tools/dds-hashcode/internal/signing"
)

// multipart parts above this size are kept in temporary files
const multipartMemory = 8 << 20

// SessionHandler serves the signing session endpoints
type SessionHandler struct {
	signing *signing.Service

	// token is the local signing token (nil when not configured)
	token crypto.TokenSigner
}

// NewSessionHandler creates the session handler. token may be nil.
func NewSessionHandler(service *signing.Service, token crypto.TokenSigner) *SessionHandler {
	return &SessionHandler{signing: service, token: token}
}

// SessionResponse is the public view of a signing session
type SessionResponse struct {
	ID                 uuid.UUID            `json:"id"`
	Sesscode           int64                `json:"sesscode"`
	Format             container.Format     `json:"format"`
	State              signing.State        `json:"state"`
	ContainerFilename  string               `json:"containerFilename"`
	DataFiles          []container.DataFile `json:"dataFiles"`
	Signatures         []signing.Signature  `json:"signatures"`
	PendingSignatureID string               `json:"pendingSignatureId,omitempty"`
	NextDataFileID     string               `json:"nextDataFileId"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

// CreateSessionRequest is the request body for POST /v1/sessions/new
type CreateSessionRequest struct {
	// Format is BDOC or DDOC
	Format string `json:"format" example:"BDOC"`

	// Filename of the container produced by the session (optional)
	Filename string `json:"filename,omitempty" example:"contract.bdoc"`
}

// AddDataFileResponse is returned by POST /v1/sessions/{sessionID}/datafiles
type AddDataFileResponse struct {
	DataFile container.DataFile `json:"dataFile"`
	Session  SessionResponse    `json:"session"`
}

// RemoveDataFileResponse lists the data files without the removed one
type RemoveDataFileResponse struct {
	DataFiles []container.DataFile `json:"dataFiles"`
}

// PrepareSignatureResponse carries the digest the signer must sign
type PrepareSignatureResponse struct {
	SignatureID      string           `json:"signatureId" example:"S0"`
	SignedInfoDigest string           `json:"signedInfoDigest"`
	DigestAlgorithm  crypto.Algorithm `json:"digestAlgorithm" example:"sha256"`
}

// FinalizeSignatureRequest is the request body for PUT /v1/sessions/{sessionID}/signatures/{signatureID}
type FinalizeSignatureRequest struct {
	// SignatureValue is the hex encoded signature over the SignedInfo digest
	SignatureValue string `json:"signatureValue"`
}

// TokenSignatureResponse is returned by POST /v1/sessions/{sessionID}/signatures/token
type TokenSignatureResponse struct {
	SignatureID string          `json:"signatureId" example:"S0"`
	Session     SessionResponse `json:"session"`
}

func (h *SessionHandler) sessionResponse(sess *signing.SigningSession) SessionResponse {
	return SessionResponse{
		ID:                 sess.ID,
		Sesscode:           sess.Sesscode,
		Format:             sess.Format,
		State:              sess.State,
		ContainerFilename:  sess.ContainerFilename,
		DataFiles:          sess.DataFiles,
		Signatures:         sess.Signatures,
		PendingSignatureID: sess.PendingSignatureID,
		NextDataFileID:     h.signing.NextDataFileID(sess),
		CreatedAt:          sess.CreatedAt,
		UpdatedAt:          sess.UpdatedAt,
	}
}

// lookup loads the session named by the sessionID URL parameter and adds it to the request log
func (h *SessionHandler) lookup(r *http.Request) (*signing.SigningSession, error) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		return nil, api.WrapMalformedRequestError(err, "invalid session ID")
	}
	sess, err := h.signing.Lookup(r.Context(), id)
	if err != nil {
		return nil, err
	}
	logger.ContextWithLogAttrs(r.Context(),
		slog.String("session_id", sess.ID.String()),
		slog.Int64("sesscode", sess.Sesscode),
	)
	return sess, nil
}

// HandleStartSession godoc
//
//	@Summary		Start a signing session with an existing container
//	@Description	Upload a BDOC (.bdoc, .asice, .sce) or DDOC (.ddoc) container as the multipart field `container`.
//	@Description	Only the data file digests are sent to DigiDocService.
//	@Tags			Sessions
//	@Accept			multipart/form-data
//	@Produce		json
//	@Success		201	{object}	SessionResponse
//	@Failure		400	{object}	api.ErrorResponse	"Malformed request or container"
//	@Failure		415	{object}	api.ErrorResponse	"Unsupported container"
//	@Failure		502	{object}	api.ErrorResponse	"Signing service unavailable"
//	@Router			/v1/sessions [post]
func (h *SessionHandler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	filename, data, err := readUpload(r, "container")
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	sess, err := h.signing.StartSession(r.Context(), filename, data)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	logger.ContextWithLogAttrs(r.Context(), slog.String("session_id", sess.ID.String()))
	api.RespondWithJSONPayload(w, http.StatusCreated, h.sessionResponse(sess))
}

// HandleCreateSession godoc
//
//	@Summary	Start a signing session with a new empty container
//	@Tags		Sessions
//	@Accept		json
//	@Produce	json
//	@Param		body	body		CreateSessionRequest	true	"Container format and filename"
//	@Success	201		{object}	SessionResponse
//	@Router		/v1/sessions/new [post]
func (h *SessionHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}
	if req.Format == "" {
		api.RespondWithErrorResponse(w, r, api.NewInvalidRequestError("format is required"))
		return
	}

	format, err := container.ParseFormat(req.Format)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	sess, err := h.signing.CreateSession(r.Context(), format, req.Filename)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	logger.ContextWithLogAttrs(r.Context(), slog.String("session_id", sess.ID.String()))
	api.RespondWithJSONPayload(w, http.StatusCreated, h.sessionResponse(sess))
}

// HandleGetSession godoc
//
//	@Summary	Get a signing session
//	@Tags		Sessions
//	@Produce	json
//	@Param		sessionID	path		string	true	"Session ID (UUID)"
//	@Success	200			{object}	SessionResponse
//	@Failure	404			{object}	api.ErrorResponse	"No active session"
//	@Router		/v1/sessions/{sessionID} [get]
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.lookup(r)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}
	api.RespondWithJSONPayload(w, http.StatusOK, h.sessionResponse(sess))
}

// HandleCloseSession godoc
//
//	@Summary	Close a signing session
//	@Description	Closes the DigiDocService session and deletes the uploaded files.
//	@Tags		Sessions
//	@Param		sessionID	path	string	true	"Session ID (UUID)"
//	@Success	204
//	@Failure	404	{object}	api.ErrorResponse	"No active session"
//	@Router		/v1/sessions/{sessionID} [delete]
func (h *SessionHandler) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.lookup(r)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}
	if err := h.signing.CloseSession(r.Context(), sess); err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}
	api.RespondWithStatusCodeOnly(w, http.StatusNoContent)
}

// HandleAddDataFile godoc
//
//	@Summary		Add a data file
//	@Description	Upload the file as the multipart field `file`. The optional field `mimeType` overrides the detected media type.
//	@Tags			Sessions
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			sessionID	path		string	true	"Session ID (UUID)"
//	@Success		201			{object}	AddDataFileResponse
//	@Failure		400			{object}	api.ErrorResponse	"Missing file field, duplicate or invalid file name"
//	@Failure		409			{object}	api.ErrorResponse	"The container is already signed"
//	@Router			/v1/sessions/{sessionID}/datafiles [post]
func (h *SessionHandler) HandleAddDataFile(w http.ResponseWriter, r *http.Request) {
	sess, err := h.lookup(r)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	filename, data, err := readUpload(r, "file")
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	name := filepath.Base(filename)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		api.RespondWithErrorResponse(w, r, api.NewInvalidRequestError(fmt.Sprintf("invalid data file name %q", filename)))
		return
	}

	// AddDataFile reads from a path; the file keeps its uploaded base name
	tmpDir, err := os.MkdirTemp("", "datafile-*")
	if err != nil {
		api.RespondWithErrorResponse(w, r, api.WrapInternalError(err, "failed to create temporary directory"))
		return
	}
	defer func() {
		_ = os.RemoveAll(tmpDir)
	}()

	path := filepath.Join(tmpDir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		api.RespondWithErrorResponse(w, r, api.WrapInternalError(err, "failed to store upload"))
		return
	}

	df, err := h.signing.AddDataFile(r.Context(), sess, path, r.FormValue("mimeType"))
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	api.RespondWithJSONPayload(w, http.StatusCreated, AddDataFileResponse{
		DataFile: df,
		Session:  h.sessionResponse(sess),
	})
}

// HandleRemoveDataFile godoc
//
//	@Summary		List the data files without one of them
//	@Description	The session and the DigiDocService container are not changed.
//	@Tags			Sessions
//	@Produce		json
//	@Param			sessionID	path		string	true	"Session ID (UUID)"
//	@Param			name		path		string	true	"Data file name"
//	@Success		200			{object}	RemoveDataFileResponse
//	@Router			/v1/sessions/{sessionID}/datafiles/{name} [delete]
func (h *SessionHandler) HandleRemoveDataFile(w http.ResponseWriter, r *http.Request) {
	sess, err := h.lookup(r)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		api.RespondWithErrorResponse(w, r, api.WrapMalformedRequestError(err, "invalid data file name"))
		return
	}

	remaining, err := h.signing.RemoveDataFile(sess, name)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}
	api.RespondWithJSONPayload(w, http.StatusOK, RemoveDataFileResponse{DataFiles: remaining})
}

// HandlePrepareSignature godoc
//
//	@Summary		Prepare a signature
//	@Description	Returns the hex encoded SignedInfo digest the signer must sign with the private key of the certificate.
//	@Tags			Sessions
//	@Accept			json
//	@Produce		json
//	@Param			sessionID	path		string				true	"Session ID (UUID)"
//	@Param			body		body		signing.SignerInfo	true	"Signer certificate and production place"
//	@Success		201			{object}	PrepareSignatureResponse
//	@Router			/v1/sessions/{sessionID}/signatures [post]
func (h *SessionHandler) HandlePrepareSignature(w http.ResponseWriter, r *http.Request) {
	sess, err := h.lookup(r)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	var signer signing.SignerInfo
	if err := decodeJSON(r, &signer, false); err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}
	if signer.Certificate == "" {
		api.RespondWithErrorResponse(w, r, api.NewInvalidRequestError("certificate is required"))
		return
	}

	signatureID, digest, err := h.signing.PrepareSignature(r.Context(), sess, signer)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	api.RespondWithJSONPayload(w, http.StatusCreated, PrepareSignatureResponse{
		SignatureID:      signatureID,
		SignedInfoDigest: digest,
		DigestAlgorithm:  crypto.AlgorithmFromHex(digest),
	})
}

// HandleFinalizeSignature godoc
//
//	@Summary	Finalize a prepared signature
//	@Tags		Sessions
//	@Accept		json
//	@Produce	json
//	@Param		sessionID	path		string						true	"Session ID (UUID)"
//	@Param		signatureID	path		string						true	"Signature ID returned by prepare"
//	@Param		body		body		FinalizeSignatureRequest	true	"Signature value"
//	@Success	200			{object}	SessionResponse
//	@Failure	422			{object}	api.ErrorResponse	"Signature rejected"
//	@Router		/v1/sessions/{sessionID}/signatures/{signatureID} [put]
func (h *SessionHandler) HandleFinalizeSignature(w http.ResponseWriter, r *http.Request) {
	sess, err := h.lookup(r)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	var req FinalizeSignatureRequest
	if err := decodeJSON(r, &req, false); err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	if err := h.signing.FinalizeSignature(r.Context(), sess, chi.URLParam(r, "signatureID"), req.SignatureValue); err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}
	api.RespondWithJSONPayload(w, http.StatusOK, h.sessionResponse(sess))
}

// HandleSignWithToken godoc
//
//	@Summary		Sign with the service token
//	@Description	Prepares, signs and finalizes a signature with the PKCS#12 token configured on the server.
//	@Description	The body is optional and only the production place and role are used.
//	@Tags			Sessions
//	@Accept			json
//	@Produce		json
//	@Param			sessionID	path		string	true	"Session ID (UUID)"
//	@Success		201			{object}	TokenSignatureResponse
//	@Failure		404			{object}	api.ErrorResponse	"No active session or no signing token configured"
//	@Router			/v1/sessions/{sessionID}/signatures/token [post]
func (h *SessionHandler) HandleSignWithToken(w http.ResponseWriter, r *http.Request) {
	if h.token == nil {
		api.RespondWithErrorResponse(w, r, api.NewNotFoundError("no signing token is configured"))
		return
	}

	sess, err := h.lookup(r)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	var signer signing.SignerInfo
	if err := decodeJSON(r, &signer, true); err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	signatureID, err := h.signing.SignWithToken(r.Context(), sess, h.token, signer)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	api.RespondWithJSONPayload(w, http.StatusCreated, TokenSignatureResponse{
		SignatureID: signatureID,
		Session:     h.sessionResponse(sess),
	})
}

// HandleGetContainer godoc
//
//	@Summary		Download the signed container
//	@Description	Fetches the container from DigiDocService and restores the data file contents.
//	@Tags			Sessions
//	@Produce		application/vnd.etsi.asic-e+zip
//	@Produce		application/x-ddoc
//	@Param			sessionID	path	string	true	"Session ID (UUID)"
//	@Success		200
//	@Router			/v1/sessions/{sessionID}/container [get]
func (h *SessionHandler) HandleGetContainer(w http.ResponseWriter, r *http.Request) {
	sess, err := h.lookup(r)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	path, err := h.signing.GetSignedContainer(r.Context(), sess)
	if err != nil {
		api.RespondWithErrorResponse(w, r, err)
		return
	}

	f, err := os.Open(path) // #nosec G304 -- path is the session container written by the signing service
	if err != nil {
		api.RespondWithErrorResponse(w, r, api.WrapInternalError(err, "failed to open container"))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		api.RespondWithErrorResponse(w, r, api.WrapInternalError(err, "failed to stat container"))
		return
	}

	w.Header().Set("Content-Type", containerMediaType(sess.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sess.ContainerFilename))
	http.ServeContent(w, r, sess.ContainerFilename, info.ModTime(), f)
}

func containerMediaType(format container.Format) string {
	if format == container.FormatDDOC {
		return "application/x-ddoc"
	}
	return "application/vnd.etsi.asic-e+zip"
}

// readUpload returns the filename and content of a multipart file field
func readUpload(r *http.Request, field string) (string, []byte, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if tooLarge(err) {
			return "", nil, api.NewRequestTooLargeError("request body exceeds the maximum allowed size")
		}
		return "", nil, api.WrapMalformedRequestError(err, "invalid multipart request")
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil, api.NewInvalidRequestError(fmt.Sprintf("multipart field %q is required", field))
		}
		return "", nil, api.WrapMalformedRequestError(err, "invalid multipart request")
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, api.WrapInternalError(err, "failed to read upload")
	}
	return header.Filename, data, nil
}

// decodeJSON decodes the request body into v. An empty body is accepted when optional is set.
func decodeJSON(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		if tooLarge(err) {
			return api.NewRequestTooLargeError("request body exceeds the maximum allowed size")
		}
		return api.WrapMalformedRequestError(err, "invalid JSON request body")
	}
	return nil
}

func tooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}
