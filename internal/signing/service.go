package signing

// service.go - the signing workflow operations.
//
// Each operation checks the session state, calls DigiDocService and only then applies the result to a copy of
// the session, saves it and copies it back. A rejected or failed call therefore leaves both the caller's session
// value and the stored record untouched.

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eid-tools/dds-hashcode/internal/container"
	"github.com/eid-tools/dds-hashcode/internal/crypto"
	"github.com/eid-tools/dds-hashcode/internal/dds"
)

// Remote is the part of the DigiDocService client used by the workflow. *dds.Client implements it.
type Remote interface {
	StartSession(ctx context.Context, req dds.StartSessionRequest) (*dds.StartSessionResponse, error)
	CreateSignedDoc(ctx context.Context, req dds.CreateSignedDocRequest) (*dds.CreateSignedDocResponse, error)
	AddDataFile(ctx context.Context, req dds.AddDataFileRequest) (*dds.AddDataFileResponse, error)
	PrepareSignature(ctx context.Context, req dds.PrepareSignatureRequest) (*dds.PrepareSignatureResponse, error)
	FinalizeSignature(ctx context.Context, req dds.FinalizeSignatureRequest) (*dds.FinalizeSignatureResponse, error)
	GetSignedDoc(ctx context.Context, req dds.GetSignedDocRequest) (*dds.GetSignedDocResponse, error)
	CloseSession(ctx context.Context, req dds.CloseSessionRequest) (*dds.CloseSessionResponse, error)
}

// Store persists signing sessions.
//
// Get returns ErrSessionNotFound for an unknown ID. Delete of an unknown ID is not an error.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*SigningSession, error)
	Save(ctx context.Context, sess *SigningSession) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*SigningSession, error)
}

// Config configures a Service
type Config struct {
	// UploadDir is the root of the per-session upload directories
	UploadDir string

	// SigningProfile is passed to StartSession and PrepareSignature (e.g. LT_TM)
	SigningProfile string

	// BDOCDigest is the primary digest of BDOC hashcode entries (sha256 when empty)
	BDOCDigest crypto.Algorithm

	// Now overrides the clock (tests)
	Now func() time.Time
}

// SignerInfo identifies the signer of a new signature. The production place and role are optional.
type SignerInfo struct {
	// Certificate is the signer certificate as PEM, hex or base64 DER
	Certificate string `json:"certificate"`

	// TokenID identifies the certificate on a multi-certificate token
	TokenID string `json:"tokenId,omitempty"`

	Role       string `json:"role,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

var errSessionExpired = errors.New("signing session expired")

// Service runs the signing workflow
type Service struct {
	remote         Remote
	store          Store
	uploadDir      string
	signingProfile string
	bdocDigest     crypto.Algorithm
	now            func() time.Time
	logger         *slog.Logger
}

// NewService creates the workflow service and the upload root directory
func NewService(remote Remote, store Store, cfg Config, logger *slog.Logger) (*Service, error) {
	if remote == nil || store == nil {
		return nil, NewInternalError("remote and store are required")
	}
	if cfg.UploadDir == "" {
		return nil, NewValidationError("upload directory is required")
	}

	bdocDigest := cfg.BDOCDigest
	if bdocDigest == "" {
		bdocDigest = container.DefaultBDOCDigest
	}
	if bdocDigest != crypto.SHA256 && bdocDigest != crypto.SHA512 {
		return nil, NewValidationError(fmt.Sprintf("unsupported BDOC digest %q (use sha256 or sha512)", bdocDigest))
	}

	uploadDir, err := filepath.Abs(cfg.UploadDir)
	if err != nil {
		return nil, WrapInternalError(err, "failed to resolve upload directory")
	}
	if err := os.MkdirAll(uploadDir, 0o750); err != nil {
		return nil, WrapInternalError(err, "failed to create upload directory")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		remote:         remote,
		store:          store,
		uploadDir:      uploadDir,
		signingProfile: cfg.SigningProfile,
		bdocDigest:     bdocDigest,
		now:            now,
		logger:         logger.With(slog.String("component", "signing")),
	}, nil
}

// StartSession parses an uploaded container, registers its hashcode form with DigiDocService and stores the
// original container and its data file bodies in the session upload directory.
func (s *Service) StartSession(ctx context.Context, filename string, data []byte) (*SigningSession, error) {
	name, err := containerFilename(filename)
	if err != nil {
		return nil, err
	}

	c, err := container.Parse(name, data)
	if err != nil {
		return nil, err
	}
	for _, df := range c.DataFiles {
		if !df.HasContent() {
			return nil, NewValidationError(fmt.Sprintf("data file %q has no content (hashcode containers cannot be uploaded)", df.Name))
		}
	}

	hashcode, err := container.ToHashcodeForm(c, container.WithBDOCDigest(s.bdocDigest))
	if err != nil {
		return nil, err
	}
	sigDoc, err := container.EncodeForSession(hashcode)
	if err != nil {
		return nil, err
	}

	resp, err := s.remote.StartSession(ctx, dds.StartSessionRequest{
		SigningProfile: s.signingProfile,
		SigDocXML:      sigDoc,
		HoldSession:    true,
	})
	if err != nil {
		return nil, err
	}

	sess := s.newSession(resp.Sesscode, name, c.Format)
	sess.applyDocInfo(resp.SignedDocInfo)
	sess.State = sess.uploadedState()

	if err := s.prepareUploadDir(sess, data, c.DataFiles); err != nil {
		s.Abort(ctx, sess, err)
		return nil, err
	}
	if err := s.store.Save(ctx, sess); err != nil {
		s.Abort(ctx, sess, err)
		return nil, WrapInternalError(err, "failed to save signing session")
	}

	s.sessionLogger(sess).Info("signing session started",
		slog.String("format", string(sess.Format)),
		slog.Int("data_files", len(sess.DataFiles)),
		slog.Int("signatures", len(sess.Signatures)),
	)
	return sess, nil
}

// CreateSession starts a DigiDocService session with a new empty container of the given format.
// filename is the name of the container produced by GetSignedContainer; a default is used when it is empty.
func (s *Service) CreateSession(ctx context.Context, format container.Format, filename string) (*SigningSession, error) {
	if format != container.FormatBDOC && format != container.FormatDDOC {
		return nil, container.NewFormatError(fmt.Sprintf("unknown container format %q", format))
	}
	if filename == "" {
		filename = "container" + format.Extension()
	}
	name, err := containerFilename(filename)
	if err != nil {
		return nil, err
	}
	detected, err := container.DetectFormat(name)
	if err != nil {
		return nil, err
	}
	if detected != format {
		return nil, NewValidationError(fmt.Sprintf("filename %q does not match container format %s", name, format))
	}

	resp, err := s.remote.StartSession(ctx, dds.StartSessionRequest{
		SigningProfile: s.signingProfile,
		HoldSession:    true,
	})
	if err != nil {
		return nil, err
	}
	sess := s.newSession(resp.Sesscode, name, format)

	created, err := s.remote.CreateSignedDoc(ctx, dds.CreateSignedDocRequest{
		Sesscode:       resp.Sesscode,
		Format:         format.Name(),
		Version:        format.Version(),
		SigningProfile: s.signingProfile,
	})
	if err != nil {
		s.Abort(ctx, sess, err)
		return nil, err
	}
	sess.applyDocInfo(created.SignedDocInfo)

	if err := s.prepareUploadDir(sess, nil, nil); err != nil {
		s.Abort(ctx, sess, err)
		return nil, err
	}
	if err := s.store.Save(ctx, sess); err != nil {
		s.Abort(ctx, sess, err)
		return nil, WrapInternalError(err, "failed to save signing session")
	}

	s.sessionLogger(sess).Info("signing session created", slog.String("format", string(format)))
	return sess, nil
}

// NextDataFileID returns the identifier the next data file of the session gets
func (s *Service) NextDataFileID(sess *SigningSession) string {
	return NextDataFileID(sess.DataFileIDs())
}

// AddDataFile registers the file at path with the session. Only the digest is sent (ContentType HASHCODE):
// BDOC uses the configured digest of the file content, DDOC the sha1 of the canonical DataFile element.
// The MIME type is detected from the content when mimeType is empty.
func (s *Service) AddDataFile(ctx context.Context, sess *SigningSession, path, mimeType string) (container.DataFile, error) {
	if err := sess.check(opAddDataFile); err != nil {
		return container.DataFile{}, err
	}

	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) {
		return container.DataFile{}, NewValidationError(fmt.Sprintf("invalid data file path %q", path))
	}
	if slices.ContainsFunc(sess.DataFiles, func(df container.DataFile) bool { return df.Name == name }) {
		return container.DataFile{}, NewValidationError(fmt.Sprintf("data file %q already exists in the container", name))
	}

	df, content, err := s.hashcodeDataFile(sess, name, path, mimeType)
	if err != nil {
		return container.DataFile{}, err
	}

	resp, err := s.remote.AddDataFile(ctx, dds.AddDataFileRequest{
		Sesscode:    sess.Sesscode,
		FileName:    df.Name,
		MimeType:    df.MimeType,
		ContentType: dds.ContentTypeHashcode,
		Size:        df.Size,
		DigestType:  string(df.DigestType),
		DigestValue: df.DigestValue,
	})
	if err != nil {
		return container.DataFile{}, err
	}

	if content != nil {
		err = s.storeDataFile(sess, name, content)
	} else {
		err = s.copyDataFile(sess, df, path)
	}
	if err != nil {
		return container.DataFile{}, err
	}

	next := sess.clone()
	next.applyDocInfo(resp.SignedDocInfo)
	next.State = StateDataFilesRegistered
	if err := s.commit(ctx, sess, next); err != nil {
		return container.DataFile{}, err
	}

	s.sessionLogger(sess).Info("data file added",
		slog.String("data_file_id", df.ID),
		slog.String("digest_type", string(df.DigestType)),
		slog.Int64("size", df.Size),
	)
	return df, nil
}

// hashcodeDataFile builds the hashcode entry of the file at path.
// BDOC files are hashed from disk and content is nil. A DDOC entry embeds the base64 body in its
// canonical form, so the file is read and returned as content.
func (s *Service) hashcodeDataFile(sess *SigningSession, name, path, mimeType string) (container.DataFile, []byte, error) {
	if sess.Format != container.FormatBDOC {
		content, err := os.ReadFile(path) // #nosec G304 -- path is a file written by this service
		if err != nil {
			return container.DataFile{}, nil, WrapValidationError(err, "failed to read data file")
		}
		if mimeType == "" {
			mimeType = container.DetectMimeType(content)
		}
		df, err := container.HashcodeDataFile(sess.Format, s.NextDataFileID(sess), name, mimeType, content, s.bdocDigest)
		return df, content, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return container.DataFile{}, nil, WrapValidationError(err, "failed to read data file")
	}
	if !info.Mode().IsRegular() {
		return container.DataFile{}, nil, NewValidationError(fmt.Sprintf("data file %q is not a regular file", name))
	}

	algs := container.BDOCHashcodeAlgorithms()
	digests := make(map[crypto.Algorithm]string, len(algs))
	for _, alg := range algs {
		digest, err := crypto.DigestFileBase64(alg, path)
		if err != nil {
			return container.DataFile{}, nil, WrapValidationError(err, "failed to digest data file")
		}
		digests[alg] = digest
	}
	if mimeType == "" {
		if mimeType, err = container.DetectMimeTypeFile(path); err != nil {
			return container.DataFile{}, nil, WrapValidationError(err, "failed to read data file")
		}
	}

	df, err := container.BDOCHashcodeDataFile(s.NextDataFileID(sess), name, mimeType, info.Size(), digests, s.bdocDigest)
	return df, nil, err
}

// RemoveDataFile returns the data files of the session without the named one.
//
// The session and the DigiDocService container are not changed.
func (s *Service) RemoveDataFile(sess *SigningSession, name string) ([]container.DataFile, error) {
	if err := sess.check(opRemoveDataFile); err != nil {
		return nil, err
	}

	idx := slices.IndexFunc(sess.DataFiles, func(df container.DataFile) bool { return df.Name == name })
	if idx < 0 {
		return nil, NewValidationError(fmt.Sprintf("data file %q not found", name))
	}
	return slices.Delete(slices.Clone(sess.DataFiles), idx, idx+1), nil
}

// PrepareSignature adds a signature for the signer certificate and returns the signature ID and the
// hex encoded SignedInfo digest to be signed.
func (s *Service) PrepareSignature(ctx context.Context, sess *SigningSession, signer SignerInfo) (string, string, error) {
	if err := sess.check(opPrepareSignature); err != nil {
		return "", "", err
	}

	cert, err := crypto.ParseCertificate(signer.Certificate)
	if err != nil {
		return "", "", err
	}

	resp, err := s.remote.PrepareSignature(ctx, dds.PrepareSignatureRequest{
		Sesscode:           sess.Sesscode,
		SignersCertificate: crypto.CertificateHex(cert),
		SignersTokenID:     signer.TokenID,
		Role:               signer.Role,
		City:               signer.City,
		State:              signer.State,
		PostalCode:         signer.PostalCode,
		Country:            signer.Country,
		SigningProfile:     s.signingProfile,
	})
	if err != nil {
		return "", "", err
	}

	digest := strings.ToLower(resp.SignedInfoDigest)
	if crypto.AlgorithmFromHex(digest) == "" {
		return "", "", dds.NewProtocolError(dds.OpPrepareSignature,
			fmt.Errorf("SignedInfoDigest %q is not a sha1, sha256 or sha512 hex digest", resp.SignedInfoDigest))
	}
	if resp.SignatureID == "" {
		return "", "", dds.NewProtocolError(dds.OpPrepareSignature, errors.New("response has no SignatureId"))
	}

	next := sess.clone()
	next.State = StateSignaturePrepared
	next.PendingSignatureID = resp.SignatureID
	if err := s.commit(ctx, sess, next); err != nil {
		return "", "", err
	}

	s.sessionLogger(sess).Info("signature prepared",
		slog.String("signature_id", resp.SignatureID),
		slog.String("signer", cert.Subject.CommonName),
	)
	return resp.SignatureID, digest, nil
}

// FinalizeSignature completes the prepared signature with the hex encoded signature value
func (s *Service) FinalizeSignature(ctx context.Context, sess *SigningSession, signatureID, signatureValue string) error {
	if err := sess.check(opFinalizeSignature); err != nil {
		return err
	}
	if signatureID != sess.PendingSignatureID {
		return NewValidationError(fmt.Sprintf("signature %q is not the prepared signature", signatureID))
	}
	if !crypto.IsHexDigest(signatureValue) {
		return NewValidationError("signature value must be hex encoded")
	}

	resp, err := s.remote.FinalizeSignature(ctx, dds.FinalizeSignatureRequest{
		Sesscode:       sess.Sesscode,
		SignatureID:    signatureID,
		SignatureValue: signatureValue,
	})
	if err != nil {
		return err
	}

	next := sess.clone()
	next.applyDocInfo(resp.SignedDocInfo)
	next.State = StateSignatureFinalized
	next.PendingSignatureID = ""
	if err := s.commit(ctx, sess, next); err != nil {
		return err
	}

	s.sessionLogger(sess).Info("signature finalized",
		slog.String("signature_id", signatureID),
		slog.Int("signatures", len(sess.Signatures)),
	)
	return nil
}

// SignWithToken signs the container with a token held by this service: the signature is prepared for the
// token certificate, the SignedInfo digest is signed locally and the signature is finalized.
// It returns the signature ID.
func (s *Service) SignWithToken(ctx context.Context, sess *SigningSession, token crypto.TokenSigner, signer SignerInfo) (string, error) {
	if token == nil {
		return "", NewValidationError("no signing token is configured")
	}
	if err := sess.check(opPrepareSignature); err != nil {
		return "", err
	}

	cert := token.Certificate()
	if cert == nil {
		return "", crypto.NewCertificateError("signing token has no certificate")
	}
	if err := crypto.CheckSigningCertificate(cert, cert.PublicKey, s.now()); err != nil {
		return "", err
	}
	signer.Certificate = crypto.CertificateHex(cert)

	signatureID, digestHex, err := s.PrepareSignature(ctx, sess, signer)
	if err != nil {
		return "", err
	}

	digest, err := hex.DecodeString(digestHex)
	if err != nil {
		return "", WrapInternalError(err, "failed to decode SignedInfo digest")
	}
	value, err := token.SignDigest(crypto.AlgorithmFromHex(digestHex), digest)
	if err != nil {
		return "", err
	}

	if err := s.FinalizeSignature(ctx, sess, signatureID, value); err != nil {
		return "", err
	}
	return signatureID, nil
}

// GetSignedContainer downloads the session container from DigiDocService and writes it in full form
// (data file bodies from the upload directory) over the session container file. It returns the file path.
func (s *Service) GetSignedContainer(ctx context.Context, sess *SigningSession) (string, error) {
	if err := sess.check(opGetSignedContainer); err != nil {
		return "", err
	}

	resp, err := s.remote.GetSignedDoc(ctx, dds.GetSignedDocRequest{Sesscode: sess.Sesscode})
	if err != nil {
		return "", err
	}

	files, err := s.loadDataFiles(sess)
	if err != nil {
		return "", err
	}
	return s.CreateContainerWithFiles(sess, resp.SignedDocData, files)
}

// CreateContainerWithFiles converts a hashcode container (as returned by GetSignedDoc) to full form with the
// given data file bodies (keyed by data file name) and atomically replaces the session container file.
func (s *Service) CreateContainerWithFiles(sess *SigningSession, containerData string, dataFiles map[string][]byte) (string, error) {
	if !sess.Active() {
		return "", NewNoActiveSessionError("no active signing session")
	}

	hashcode, err := container.DecodeSessionData(sess.Format, containerData)
	if err != nil {
		return "", err
	}
	full, err := container.ToFullForm(hashcode, dataFiles)
	if err != nil {
		return "", err
	}
	data, err := container.Serialize(full)
	if err != nil {
		return "", err
	}

	path, err := writeFileAtomic(sess.UploadDir, sess.ContainerFilename, data)
	if err != nil {
		return "", WrapInternalError(err, "failed to write container")
	}

	s.sessionLogger(sess).Info("container written",
		slog.Int("data_files", len(full.DataFiles)),
		slog.Int("signatures", full.SignatureCount()),
	)
	return path, nil
}

// CloseSession closes the DigiDocService session, deletes the upload directory and the session record.
// A failure to delete the directory is logged.
func (s *Service) CloseSession(ctx context.Context, sess *SigningSession) error {
	if err := sess.check(opCloseSession); err != nil {
		return err
	}

	if _, err := s.remote.CloseSession(ctx, dds.CloseSessionRequest{Sesscode: sess.Sesscode}); err != nil {
		return err
	}

	s.removeUploadDir(sess)
	sess.State = StateSessionClosed
	sess.PendingSignatureID = ""
	sess.UpdatedAt = s.now()

	if err := s.store.Delete(ctx, sess.ID); err != nil {
		return WrapInternalError(err, "failed to delete signing session")
	}

	s.sessionLogger(sess).Info("signing session closed")
	return nil
}

// Abort ends a session after a failure: the DigiDocService session is closed (failures are logged),
// the upload directory and the session record are deleted.
func (s *Service) Abort(ctx context.Context, sess *SigningSession, cause error) {
	if sess == nil || sess.State == StateSessionClosed {
		return
	}

	reqLogger := s.sessionLogger(sess)
	if cause != nil {
		reqLogger.Warn("aborting signing session", slog.String("cause", cause.Error()))
	}

	if sess.Sesscode > 0 {
		if _, err := s.remote.CloseSession(ctx, dds.CloseSessionRequest{Sesscode: sess.Sesscode}); err != nil {
			reqLogger.Warn("failed to close DigiDocService session", slog.String("error", err.Error()))
		}
	}
	s.removeUploadDir(sess)
	if err := s.store.Delete(ctx, sess.ID); err != nil {
		reqLogger.Warn("failed to delete signing session", slog.String("error", err.Error()))
	}

	sess.State = StateSessionClosed
	sess.PendingSignatureID = ""
	sess.UpdatedAt = s.now()
}

// Lookup returns the active session with the given ID
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (*SigningSession, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, NewNoActiveSessionError(fmt.Sprintf("signing session %s not found", id))
		}
		return nil, WrapInternalError(err, "failed to load signing session")
	}
	if !sess.Active() {
		return nil, NewNoActiveSessionError(fmt.Sprintf("signing session %s is closed", id))
	}
	return sess, nil
}

// SweepExpired aborts the sessions that were not updated for maxAge and returns how many were removed
func (s *Service) SweepExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	expired, err := s.store.ListUpdatedBefore(ctx, s.now().Add(-maxAge))
	if err != nil {
		return 0, WrapInternalError(err, "failed to list expired signing sessions")
	}

	removed := 0
	for _, sess := range expired {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		s.Abort(ctx, sess, errSessionExpired)
		removed++
	}
	if removed > 0 {
		s.logger.Info("expired signing sessions removed", slog.Int("count", removed))
	}
	return removed, nil
}

func (s *Service) newSession(sesscode int64, filename string, format container.Format) *SigningSession {
	now := s.now()
	return &SigningSession{
		ID:                uuid.New(),
		Sesscode:          sesscode,
		UploadDir:         s.sessionDir(sesscode),
		ContainerFilename: filename,
		Format:            format,
		State:             StateSessionStarted,
		DataFiles:         []container.DataFile{},
		Signatures:        []Signature{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// commit saves next and copies it into sess
func (s *Service) commit(ctx context.Context, sess, next *SigningSession) error {
	next.UpdatedAt = s.now()
	if err := s.store.Save(ctx, next); err != nil {
		return WrapInternalError(err, "failed to save signing session")
	}
	*sess = *next
	return nil
}

func (s *Service) sessionLogger(sess *SigningSession) *slog.Logger {
	return s.logger.With(
		slog.String("session_id", sess.ID.String()),
		slog.Int64("sesscode", sess.Sesscode),
	)
}

// containerFilename reduces an uploaded filename to its base name
func containerFilename(filename string) (string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "." || name == ".." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		return "", NewValidationError(fmt.Sprintf("invalid container filename %q", filename))
	}
	return name, nil
}
