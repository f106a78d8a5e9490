package signing

// session.go - the signing session record and its state machine.

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/eid-tools/dds-hashcode/internal/container"
	"github.com/eid-tools/dds-hashcode/internal/crypto"
	"github.com/eid-tools/dds-hashcode/internal/dds"
)

// State is the position of a session in the signing workflow
type State string

const (
	StateNoSession           State = "no_session"
	StateSessionStarted      State = "session_started"
	StateDataFilesRegistered State = "data_files_registered"
	StateSignaturePrepared   State = "signature_prepared"
	StateSignatureFinalized  State = "signature_finalized"
	StateSessionClosed       State = "session_closed"
)

// allowedStates lists the states each operation may start from
var allowedStates = map[string][]State{
	opAddDataFile:        {StateSessionStarted, StateDataFilesRegistered},
	opRemoveDataFile:     {StateSessionStarted, StateDataFilesRegistered},
	opPrepareSignature:   {StateDataFilesRegistered, StateSignaturePrepared, StateSignatureFinalized},
	opFinalizeSignature:  {StateSignaturePrepared},
	opGetSignedContainer: {StateDataFilesRegistered, StateSignaturePrepared, StateSignatureFinalized},
	opCloseSession: {
		StateSessionStarted, StateDataFilesRegistered, StateSignaturePrepared, StateSignatureFinalized,
	},
}

const (
	opAddDataFile        = "AddDataFile"
	opRemoveDataFile     = "RemoveDataFile"
	opPrepareSignature   = "PrepareSignature"
	opFinalizeSignature  = "FinalizeSignature"
	opGetSignedContainer = "GetSignedContainer"
	opCloseSession       = "CloseSession"
)

// Signature summarises a signature reported by DigiDocService
type Signature struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	SigningTime  string `json:"signingTime,omitempty"`
	SignerName   string `json:"signerName,omitempty"`
	SignerIDCode string `json:"signerIdCode,omitempty"`
}

// SigningSession binds a container to a DigiDocService session and to its upload directory.
//
// DataFiles and Signatures mirror the SignedDocInfo last returned by the service.
type SigningSession struct {
	ID                 uuid.UUID            `json:"id"`
	Sesscode           int64                `json:"sesscode"`
	UploadDir          string               `json:"uploadDir"`
	ContainerFilename  string               `json:"containerFilename"`
	Format             container.Format     `json:"format"`
	State              State                `json:"state"`
	DataFiles          []container.DataFile `json:"dataFiles"`
	Signatures         []Signature          `json:"signatures"`
	PendingSignatureID string               `json:"pendingSignatureId,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

// Active reports whether the session can still be used
func (s *SigningSession) Active() bool {
	return s != nil && s.State != StateSessionClosed && s.State != StateNoSession && s.State != ""
}

// DataFileIDs returns the identifiers of the registered data files
func (s *SigningSession) DataFileIDs() []string {
	ids := make([]string, len(s.DataFiles))
	for i, df := range s.DataFiles {
		ids[i] = df.ID
	}
	return ids
}

// clone returns a deep copy used to prepare a state change
func (s *SigningSession) clone() *SigningSession {
	c := *s
	c.DataFiles = slices.Clone(s.DataFiles)
	c.Signatures = slices.Clone(s.Signatures)
	return &c
}

// check returns an error when operation is not allowed on the session
func (s *SigningSession) check(operation string) error {
	if !s.Active() {
		return NewNoActiveSessionError("no active signing session")
	}
	if !slices.Contains(allowedStates[operation], s.State) {
		return NewInvalidStateError(operation, s.State)
	}
	return nil
}

// applyDocInfo mirrors the SignedDocInfo returned by DigiDocService into the session
func (s *SigningSession) applyDocInfo(info dds.SignedDocInfo) {
	s.DataFiles = make([]container.DataFile, 0, len(info.DataFileInfo))
	for _, df := range info.DataFileInfo {
		s.DataFiles = append(s.DataFiles, container.DataFile{
			ID:          df.ID,
			Name:        df.Filename,
			MimeType:    df.MimeType,
			Size:        df.Size,
			DigestType:  digestType(df.DigestType),
			DigestValue: df.DigestValue,
		})
	}

	s.Signatures = make([]Signature, 0, len(info.SignatureInfo))
	for _, si := range info.SignatureInfo {
		s.Signatures = append(s.Signatures, Signature{
			ID:           si.ID,
			Status:       si.Status,
			SigningTime:  si.SigningTime,
			SignerName:   si.Signer.CommonName,
			SignerIDCode: si.Signer.IDCode,
		})
	}
}

// uploadedState is the state of a session started from an existing container.
// A signed container no longer accepts data files, so it starts as finalized.
func (s *SigningSession) uploadedState() State {
	switch {
	case len(s.Signatures) > 0:
		return StateSignatureFinalized
	case len(s.DataFiles) > 0:
		return StateDataFilesRegistered
	}
	return StateSessionStarted
}

// NextDataFileID returns the identifier for a new data file: D0 when there are none,
// otherwise the lowest free index, otherwise the index after the highest one.
// Identifiers that are not of the form D<n> are ignored.
func NextDataFileID(ids []string) string {
	used := make(map[int]bool, len(ids))
	for _, id := range ids {
		if n, ok := container.ParseDataFileID(id); ok {
			used[n] = true
		}
	}
	for n := 0; ; n++ {
		if !used[n] {
			return container.DataFileID(n)
		}
	}
}

// digestType maps the DigestType reported by the service; unknown names are dropped
func digestType(name string) crypto.Algorithm {
	alg, err := crypto.ParseAlgorithm(name)
	if err != nil {
		return ""
	}
	return alg
}
