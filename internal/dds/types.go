package dds

// types.go - request and response messages of the DigiDocService operations used by the signing workflow.
//
// Every operation has its own request and response struct. Requests are validated before they are sent.

import (
	"encoding/xml"
	"fmt"
)

// Namespace is the target namespace of the DigiDocService 2.3 WSDL
const Namespace = "http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl"

// StatusOK is the Status value of a successful response
const StatusOK = "OK"

// Operation names
const (
	OpStartSession      = "StartSession"
	OpCreateSignedDoc   = "CreateSignedDoc"
	OpAddDataFile       = "AddDataFile"
	OpRemoveDataFile    = "RemoveDataFile"
	OpGetSignedDoc      = "GetSignedDoc"
	OpGetSignedDocInfo  = "GetSignedDocInfo"
	OpPrepareSignature  = "PrepareSignature"
	OpFinalizeSignature = "FinalizeSignature"
	OpRemoveSignature   = "RemoveSignature"
	OpCloseSession      = "CloseSession"
)

// ContentTypeHashcode registers a data file by digest only
const ContentTypeHashcode = "HASHCODE"

// Result is embedded in every response
type Result struct {
	Status string `xml:"Status"`
}

func (r Result) status() string { return r.Status }

// SignedDocInfo describes the container held in the service session
type SignedDocInfo struct {
	Format        string          `xml:"format"`
	Version       string          `xml:"version"`
	DataFileInfo  []DataFileInfo  `xml:"DataFileInfo"`
	SignatureInfo []SignatureInfo `xml:"SignatureInfo"`
}

type DataFileInfo struct {
	ID          string `xml:"Id"`
	Filename    string `xml:"Filename"`
	MimeType    string `xml:"MimeType"`
	ContentType string `xml:"ContentType"`
	Size        int64  `xml:"Size"`
	DigestType  string `xml:"DigestType,omitempty"`
	DigestValue string `xml:"DigestValue,omitempty"`
}

type SignatureInfo struct {
	ID          string     `xml:"Id"`
	Status      string     `xml:"Status"`
	SigningTime string     `xml:"SigningTime,omitempty"`
	Signer      SignerInfo `xml:"Signer"`
}

type SignerInfo struct {
	CommonName string `xml:"CommonName"`
	IDCode     string `xml:"IDCode"`
}

// StartSession opens a service session, optionally with an existing container (SigDocXML)
type StartSessionRequest struct {
	XMLName        xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl StartSession"`
	SigningProfile string   `xml:"SigningProfile"`
	SigDocXML      string   `xml:"SigDocXML,omitempty"`
	HoldSession    bool     `xml:"bHoldSession"`
}

type StartSessionResponse struct {
	XMLName xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl StartSessionResponse"`
	Result
	Sesscode      int64         `xml:"Sesscode"`
	SignedDocInfo SignedDocInfo `xml:"SignedDocInfo"`
}

func (r StartSessionRequest) validate() error {
	if !r.HoldSession {
		return fmt.Errorf("bHoldSession must be set for a multi step signing session")
	}
	return nil
}

// CreateSignedDoc creates an empty container in a session started without one
type CreateSignedDocRequest struct {
	XMLName        xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl CreateSignedDoc"`
	Sesscode       int64    `xml:"Sesscode"`
	Format         string   `xml:"Format"`
	Version        string   `xml:"Version"`
	SigningProfile string   `xml:"SigningProfile,omitempty"`
}

type CreateSignedDocResponse struct {
	XMLName xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl CreateSignedDocResponse"`
	Result
	SignedDocInfo SignedDocInfo `xml:"SignedDocInfo"`
}

func (r CreateSignedDocRequest) validate() error {
	if err := checkSesscode(r.Sesscode); err != nil {
		return err
	}
	if r.Format == "" || r.Version == "" {
		return fmt.Errorf("format and version are required")
	}
	return nil
}

// AddDataFile registers a data file. With ContentType HASHCODE only the digest is sent.
type AddDataFileRequest struct {
	XMLName     xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl AddDataFile"`
	Sesscode    int64    `xml:"Sesscode"`
	FileName    string   `xml:"FileName"`
	MimeType    string   `xml:"MimeType"`
	ContentType string   `xml:"ContentType"`
	Size        int64    `xml:"Size"`
	DigestType  string   `xml:"DigestType,omitempty"`
	DigestValue string   `xml:"DigestValue,omitempty"`
	Content     string   `xml:"Content,omitempty"`
}

type AddDataFileResponse struct {
	XMLName xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl AddDataFileResponse"`
	Result
	SignedDocInfo SignedDocInfo `xml:"SignedDocInfo"`
}

func (r AddDataFileRequest) validate() error {
	if err := checkSesscode(r.Sesscode); err != nil {
		return err
	}
	if r.FileName == "" {
		return fmt.Errorf("FileName is required")
	}
	if r.ContentType == ContentTypeHashcode && (r.DigestType == "" || r.DigestValue == "") {
		return fmt.Errorf("DigestType and DigestValue are required for HASHCODE data files")
	}
	return nil
}

type RemoveDataFileRequest struct {
	XMLName    xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl RemoveDataFile"`
	Sesscode   int64    `xml:"Sesscode"`
	DataFileID string   `xml:"DataFileId"`
}

type RemoveDataFileResponse struct {
	XMLName xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl RemoveDataFileResponse"`
	Result
	SignedDocInfo SignedDocInfo `xml:"SignedDocInfo"`
}

func (r RemoveDataFileRequest) validate() error {
	if err := checkSesscode(r.Sesscode); err != nil {
		return err
	}
	if r.DataFileID == "" {
		return fmt.Errorf("DataFileId is required")
	}
	return nil
}

// GetSignedDoc returns the container of the session (hashcode BDOC base64 encoded, DDOC as XML)
type GetSignedDocRequest struct {
	XMLName  xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl GetSignedDoc"`
	Sesscode int64    `xml:"Sesscode"`
}

type GetSignedDocResponse struct {
	XMLName xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl GetSignedDocResponse"`
	Result
	SignedDocData string `xml:"SignedDocData"`
}

func (r GetSignedDocRequest) validate() error { return checkSesscode(r.Sesscode) }

type GetSignedDocInfoRequest struct {
	XMLName  xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl GetSignedDocInfo"`
	Sesscode int64    `xml:"Sesscode"`
}

type GetSignedDocInfoResponse struct {
	XMLName xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl GetSignedDocInfoResponse"`
	Result
	SignedDocInfo SignedDocInfo `xml:"SignedDocInfo"`
}

func (r GetSignedDocInfoRequest) validate() error { return checkSesscode(r.Sesscode) }

// PrepareSignature adds an unfinished signature and returns the digest the signer has to sign
type PrepareSignatureRequest struct {
	XMLName            xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl PrepareSignature"`
	Sesscode           int64    `xml:"Sesscode"`
	SignersCertificate string   `xml:"SignersCertificate"`
	SignersTokenID     string   `xml:"SignersTokenId"`
	Role               string   `xml:"Role,omitempty"`
	City               string   `xml:"City,omitempty"`
	State              string   `xml:"State,omitempty"`
	PostalCode         string   `xml:"PostalCode,omitempty"`
	Country            string   `xml:"Country,omitempty"`
	SigningProfile     string   `xml:"SigningProfile,omitempty"`
}

type PrepareSignatureResponse struct {
	XMLName xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl PrepareSignatureResponse"`
	Result
	SignatureID      string `xml:"SignatureId"`
	SignedInfoDigest string `xml:"SignedInfoDigest"`
}

func (r PrepareSignatureRequest) validate() error {
	if err := checkSesscode(r.Sesscode); err != nil {
		return err
	}
	if r.SignersCertificate == "" {
		return fmt.Errorf("SignersCertificate is required")
	}
	return nil
}

// FinalizeSignature completes a prepared signature with the hex encoded signature value
type FinalizeSignatureRequest struct {
	XMLName        xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl FinalizeSignature"`
	Sesscode       int64    `xml:"Sesscode"`
	SignatureID    string   `xml:"SignatureId"`
	SignatureValue string   `xml:"SignatureValue"`
}

type FinalizeSignatureResponse struct {
	XMLName xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl FinalizeSignatureResponse"`
	Result
	SignedDocInfo SignedDocInfo `xml:"SignedDocInfo"`
}

func (r FinalizeSignatureRequest) validate() error {
	if err := checkSesscode(r.Sesscode); err != nil {
		return err
	}
	if r.SignatureID == "" || r.SignatureValue == "" {
		return fmt.Errorf("SignatureId and SignatureValue are required")
	}
	return nil
}

type RemoveSignatureRequest struct {
	XMLName     xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl RemoveSignature"`
	Sesscode    int64    `xml:"Sesscode"`
	SignatureID string   `xml:"SignatureId"`
}

type RemoveSignatureResponse struct {
	XMLName xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl RemoveSignatureResponse"`
	Result
	SignedDocInfo SignedDocInfo `xml:"SignedDocInfo"`
}

func (r RemoveSignatureRequest) validate() error {
	if err := checkSesscode(r.Sesscode); err != nil {
		return err
	}
	if r.SignatureID == "" {
		return fmt.Errorf("SignatureId is required")
	}
	return nil
}

type CloseSessionRequest struct {
	XMLName  xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl CloseSession"`
	Sesscode int64    `xml:"Sesscode"`
}

type CloseSessionResponse struct {
	XMLName xml.Name `xml:"http://www.sk.ee/DigiDocService/DigiDocService_2_3.wsdl CloseSessionResponse"`
	Result
}

func (r CloseSessionRequest) validate() error { return checkSesscode(r.Sesscode) }

func checkSesscode(sesscode int64) error {
	if sesscode <= 0 {
		return fmt.Errorf("Sesscode is required")
	}
	return nil
}
