// Package ddstest provides an in-process DigiDocService for tests.
//
// The server keeps each session's container in hashcode form, prepares signatures over a synthetic SignedInfo
// digest and verifies the signature values it is given against the signer certificate, so a test can run the
// complete signing workflow including signing with a local token.
//
// Failures can be injected per operation with FailNext.
package ddstest

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eid-tools/dds-hashcode/internal/container"
	"github.com/eid-tools/dds-hashcode/internal/crypto"
	"github.com/eid-tools/dds-hashcode/internal/dds"
)

// DigiDocService error codes used by the fake
const (
	FaultGeneral        = dds.FaultGeneral
	FaultBadParameters  = dds.FaultBadParameters
	FaultSessionUnknown = dds.FaultSessionUnknown
	FaultBadSignature   = dds.FaultBadSignature
)

// Failure describes an injected failure
type Failure struct {
	// Status is returned in a normal response instead of "OK"
	Status string

	// FaultString, when set, is returned as a SOAP fault
	FaultString string
	Message     string

	// HTTPStatus, when set, is returned with a non-SOAP body (a transport failure)
	HTTPStatus int
}

type pendingSignature struct {
	digest []byte
	cert   string
}

type session struct {
	container  *container.Container
	pending    map[string]pendingSignature
	signatures []dds.SignatureInfo
	nextSig    int
}

// Server is a fake DigiDocService
type Server struct {
	srv *httptest.Server

	mu           sync.Mutex
	nextSesscode int64
	sessions     map[int64]*session
	failures     map[string]Failure
	calls        []string
}

// NewServer starts a fake DigiDocService that is closed when the test ends
func NewServer(t testing.TB) *Server {
	s := &Server{
		nextSesscode: 100000,
		sessions:     map[int64]*session{},
		failures:     map[string]Failure{},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

// URL is the SOAP endpoint
func (s *Server) URL() string {
	return s.srv.URL
}

// FailNext makes the next call of operation fail
func (s *Server) FailNext(operation string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[operation] = f
}

// Calls returns the operations received so far
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// OpenSessions returns the number of sessions that were not closed
func (s *Server) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Container returns a copy of the container held by a session
func (s *Server) Container(sesscode int64) (*container.Container, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sesscode]
	if !ok || sess.container == nil {
		return nil, false
	}
	return sess.container.Clone(), true
}

type faultError struct {
	code    string
	message string
}

func (e *faultError) Error() string { return e.code + ": " + e.message }

func fault(code, format string, args ...any) error {
	return &faultError{code: code, message: fmt.Sprintf(format, args...)}
}

// statusResponse is used for injected non-OK statuses
type statusResponse struct {
	XMLName xml.Name
	Status  string `xml:"Status"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	op, decode, err := dds.DecodeRequest(body)
	if err != nil {
		writeEnvelope(w, http.StatusInternalServerError, &dds.Fault{Code: "SOAP-ENV:Client", String: FaultGeneral})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op)

	if f, ok := s.failures[op]; ok {
		delete(s.failures, op)
		switch {
		case f.HTTPStatus != 0:
			http.Error(w, "upstream unavailable", f.HTTPStatus)
		case f.FaultString != "":
			writeFault(w, f.FaultString, f.Message)
		default:
			writeEnvelope(w, http.StatusOK, &statusResponse{
				XMLName: xml.Name{Space: dds.Namespace, Local: op + "Response"},
				Status:  f.Status,
			})
		}
		return
	}

	resp, err := s.dispatch(op, decode)
	if err != nil {
		if fe, ok := err.(*faultError); ok {
			writeFault(w, fe.code, fe.message)
			return
		}
		writeFault(w, FaultBadParameters, err.Error())
		return
	}
	writeEnvelope(w, http.StatusOK, resp)
}

func writeFault(w http.ResponseWriter, code, message string) {
	f := &dds.Fault{Code: "SOAP-ENV:Client", String: code}
	f.Detail.Message = message
	writeEnvelope(w, http.StatusInternalServerError, f)
}

func writeEnvelope(w http.ResponseWriter, status int, content any) {
	data, err := dds.MarshalEnvelope(content)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) dispatch(op string, decode func(any) error) (any, error) {
	switch op {
	case dds.OpStartSession:
		var req dds.StartSessionRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		return s.startSession(req)

	case dds.OpCreateSignedDoc:
		var req dds.CreateSignedDocRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		sess, err := s.session(req.Sesscode)
		if err != nil {
			return nil, err
		}
		if sess.container != nil {
			return nil, fault(FaultBadParameters, "session already holds a container")
		}
		format, err := container.ParseFormat(req.Format + " " + req.Version)
		if err != nil || format.Version() != req.Version {
			return nil, fault(FaultBadParameters, "unsupported format %s %s", req.Format, req.Version)
		}
		sess.container, _ = container.New(format)
		sess.container.Hashcode = true
		return &dds.CreateSignedDocResponse{Result: ok(), SignedDocInfo: sess.info()}, nil

	case dds.OpAddDataFile:
		var req dds.AddDataFileRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		sess, err := s.containerSession(req.Sesscode)
		if err != nil {
			return nil, err
		}
		if err := sess.addDataFile(req); err != nil {
			return nil, err
		}
		return &dds.AddDataFileResponse{Result: ok(), SignedDocInfo: sess.info()}, nil

	case dds.OpRemoveDataFile:
		var req dds.RemoveDataFileRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		sess, err := s.containerSession(req.Sesscode)
		if err != nil {
			return nil, err
		}
		idx := slices.IndexFunc(sess.container.DataFiles, func(df container.DataFile) bool { return df.ID == req.DataFileID })
		if idx < 0 {
			return nil, fault(FaultBadParameters, "data file %s not found", req.DataFileID)
		}
		sess.container.DataFiles = slices.Delete(sess.container.DataFiles, idx, idx+1)
		for i := range sess.container.DataFiles {
			sess.container.DataFiles[i].ID = container.DataFileID(i)
		}
		return &dds.RemoveDataFileResponse{Result: ok(), SignedDocInfo: sess.info()}, nil

	case dds.OpGetSignedDoc:
		var req dds.GetSignedDocRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		sess, err := s.containerSession(req.Sesscode)
		if err != nil {
			return nil, err
		}
		data, err := container.EncodeForSession(sess.container)
		if err != nil {
			return nil, fault(FaultGeneral, "%v", err)
		}
		return &dds.GetSignedDocResponse{Result: ok(), SignedDocData: data}, nil

	case dds.OpGetSignedDocInfo:
		var req dds.GetSignedDocInfoRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		sess, err := s.containerSession(req.Sesscode)
		if err != nil {
			return nil, err
		}
		return &dds.GetSignedDocInfoResponse{Result: ok(), SignedDocInfo: sess.info()}, nil

	case dds.OpPrepareSignature:
		var req dds.PrepareSignatureRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		sess, err := s.containerSession(req.Sesscode)
		if err != nil {
			return nil, err
		}
		return sess.prepareSignature(req)

	case dds.OpFinalizeSignature:
		var req dds.FinalizeSignatureRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		sess, err := s.containerSession(req.Sesscode)
		if err != nil {
			return nil, err
		}
		if err := sess.finalizeSignature(req); err != nil {
			return nil, err
		}
		return &dds.FinalizeSignatureResponse{Result: ok(), SignedDocInfo: sess.info()}, nil

	case dds.OpRemoveSignature:
		var req dds.RemoveSignatureRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		sess, err := s.containerSession(req.Sesscode)
		if err != nil {
			return nil, err
		}
		idx := slices.IndexFunc(sess.signatures, func(si dds.SignatureInfo) bool { return si.ID == req.SignatureID })
		if idx < 0 {
			return nil, fault(FaultBadParameters, "signature %s not found", req.SignatureID)
		}
		if err := sess.container.RemoveSignature(idx); err != nil {
			return nil, fault(FaultGeneral, "%v", err)
		}
		sess.signatures = slices.Delete(sess.signatures, idx, idx+1)
		return &dds.RemoveSignatureResponse{Result: ok(), SignedDocInfo: sess.info()}, nil

	case dds.OpCloseSession:
		var req dds.CloseSessionRequest
		if err := decode(&req); err != nil {
			return nil, err
		}
		if _, err := s.session(req.Sesscode); err != nil {
			return nil, err
		}
		delete(s.sessions, req.Sesscode)
		return &dds.CloseSessionResponse{Result: ok()}, nil
	}

	return nil, fault(FaultGeneral, "unknown operation %s", op)
}

func ok() dds.Result {
	return dds.Result{Status: dds.StatusOK}
}

func (s *Server) session(sesscode int64) (*session, error) {
	sess, ok := s.sessions[sesscode]
	if !ok {
		return nil, fault(FaultSessionUnknown, "session %d not found", sesscode)
	}
	return sess, nil
}

func (s *Server) containerSession(sesscode int64) (*session, error) {
	sess, err := s.session(sesscode)
	if err != nil {
		return nil, err
	}
	if sess.container == nil {
		return nil, fault(FaultBadParameters, "session %d holds no container", sesscode)
	}
	return sess, nil
}

func (s *Server) startSession(req dds.StartSessionRequest) (any, error) {
	sess := &session{pending: map[string]pendingSignature{}}

	if data := strings.TrimSpace(req.SigDocXML); data != "" {
		format := container.FormatBDOC
		if strings.HasPrefix(data, "<") {
			format = container.FormatDDOC
		}
		c, err := container.DecodeSessionData(format, data)
		if err != nil {
			return nil, fault(FaultBadParameters, "invalid SigDocXML: %v", err)
		}
		for _, df := range c.DataFiles {
			if df.HasContent() {
				return nil, fault(FaultBadParameters, "container must be in hashcode form")
			}
		}
		c.Hashcode = true
		sess.container = c
		sess.nextSig = c.SignatureCount()
		for i := range c.SignatureCount() {
			sess.signatures = append(sess.signatures, dds.SignatureInfo{ID: "S" + strconv.Itoa(i), Status: dds.StatusOK})
		}
	}

	s.nextSesscode++
	s.sessions[s.nextSesscode] = sess

	resp := &dds.StartSessionResponse{Result: ok(), Sesscode: s.nextSesscode}
	if sess.container != nil {
		resp.SignedDocInfo = sess.info()
	}
	return resp, nil
}

func (sess *session) info() dds.SignedDocInfo {
	c := sess.container
	info := dds.SignedDocInfo{
		Format:        c.Format.Name(),
		Version:       c.Format.Version(),
		SignatureInfo: slices.Clone(sess.signatures),
	}
	for _, df := range c.DataFiles {
		info.DataFileInfo = append(info.DataFileInfo, dds.DataFileInfo{
			ID:          df.ID,
			Filename:    df.Name,
			MimeType:    df.MimeType,
			ContentType: dds.ContentTypeHashcode,
			Size:        df.Size,
			DigestType:  string(df.DigestType),
			DigestValue: df.DigestValue,
		})
	}
	return info
}

func (sess *session) addDataFile(req dds.AddDataFileRequest) error {
	c := sess.container
	if req.ContentType != dds.ContentTypeHashcode {
		return fault(FaultBadParameters, "only HASHCODE data files are supported")
	}
	if c.SignatureCount() > 0 {
		return fault(FaultBadParameters, "cannot add data files to a signed container")
	}
	if _, exists := c.FindDataFile(req.FileName); exists {
		return fault(FaultBadParameters, "data file %s already exists", req.FileName)
	}

	alg, err := crypto.ParseAlgorithm(req.DigestType)
	if err != nil {
		return fault(FaultBadParameters, "unsupported DigestType %s", req.DigestType)
	}
	if (c.Format == container.FormatDDOC) != (alg == crypto.SHA1) || alg == crypto.SHA224 || alg == crypto.SHA384 {
		return fault(FaultBadParameters, "DigestType %s is not valid for %s", req.DigestType, c.Format)
	}
	if _, err := crypto.DecodeDigest(alg, req.DigestValue); err != nil {
		return fault(FaultBadParameters, "invalid DigestValue")
	}

	c.DataFiles = append(c.DataFiles, container.DataFile{
		ID:          container.DataFileID(len(c.DataFiles)),
		Name:        req.FileName,
		MimeType:    req.MimeType,
		Size:        req.Size,
		DigestType:  alg,
		DigestValue: req.DigestValue,
		Digests:     map[crypto.Algorithm]string{alg: req.DigestValue},
	})
	return nil
}

func (sess *session) prepareSignature(req dds.PrepareSignatureRequest) (any, error) {
	if len(sess.container.DataFiles) == 0 {
		return nil, fault(FaultBadParameters, "container has no data files")
	}
	if _, err := crypto.ParseCertificate(req.SignersCertificate); err != nil {
		return nil, fault(FaultBadParameters, "invalid SignersCertificate: %v", err)
	}

	id := "S" + strconv.Itoa(sess.nextSig)
	sess.nextSig++

	h := sha256.New()
	h.Write([]byte(id))
	h.Write([]byte(req.SignersCertificate))
	for _, df := range sess.container.DataFiles {
		h.Write([]byte(df.Name))
		h.Write([]byte(df.DigestValue))
	}
	digest := h.Sum(nil)

	sess.pending[id] = pendingSignature{digest: digest, cert: req.SignersCertificate}
	return &dds.PrepareSignatureResponse{
		Result:           ok(),
		SignatureID:      id,
		SignedInfoDigest: hex.EncodeToString(digest),
	}, nil
}

func (sess *session) finalizeSignature(req dds.FinalizeSignatureRequest) error {
	pending, exists := sess.pending[req.SignatureID]
	if !exists {
		return fault(FaultBadParameters, "signature %s was not prepared", req.SignatureID)
	}

	value, err := hex.DecodeString(req.SignatureValue)
	if err != nil {
		return fault(FaultBadParameters, "SignatureValue is not hex")
	}

	cert, err := crypto.ParseCertificate(pending.cert)
	if err != nil {
		return fault(FaultGeneral, "stored certificate is invalid")
	}
	if !verify(cert.PublicKey, pending.digest, value) {
		return fault(FaultBadSignature, "signature value does not verify")
	}

	delete(sess.pending, req.SignatureID)

	encodedValue := base64.StdEncoding.EncodeToString(value)
	var raw string
	if sess.container.Format == container.FormatDDOC {
		raw = fmt.Sprintf(`<Signature Id="%s" xmlns="http://www.w3.org/2000/09/xmldsig#"><SignatureValue Id="%s-SIG">%s</SignatureValue></Signature>`,
			req.SignatureID, req.SignatureID, encodedValue)
	} else {
		raw = fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><asic:XAdESSignatures xmlns:asic="http://uri.etsi.org/02918/v1.2.1#" xmlns:ds="http://www.w3.org/2000/09/xmldsig#"><ds:Signature Id="%s"><ds:SignatureValue>%s</ds:SignatureValue></ds:Signature></asic:XAdESSignatures>`,
			req.SignatureID, encodedValue)
	}
	sess.container.AppendSignature([]byte(raw))

	sess.signatures = append(sess.signatures, dds.SignatureInfo{
		ID:          req.SignatureID,
		Status:      dds.StatusOK,
		SigningTime: time.Now().UTC().Format(time.RFC3339),
		Signer: dds.SignerInfo{
			CommonName: cert.Subject.CommonName,
			IDCode:     cert.Subject.SerialNumber,
		},
	})
	return nil
}

// verify checks a PKCS#1 v1.5 (RSA) or r||s (ECDSA) signature over a sha256 digest
func verify(publicKey any, digest, sig []byte) bool {
	switch key := publicKey.(type) {
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(key, crypto.SHA256.Hash(), digest, sig) == nil
	case *ecdsa.PublicKey:
		size := (key.Curve.Params().BitSize + 7) / 8
		if len(sig) != 2*size {
			return false
		}
		r := new(big.Int).SetBytes(sig[:size])
		s := new(big.Int).SetBytes(sig[size:])
		return ecdsa.Verify(key, digest, r, s)
	}
	return false
}
