package dds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxResponseSize bounds the SOAP response (GetSignedDoc returns the whole hashcode container)
const maxResponseSize = 64 << 20

// Config configures a Client
type Config struct {
	// Endpoint is the DigiDocService URL
	Endpoint string

	// Timeout applies to each call when HTTPClient is nil
	Timeout time.Duration

	// HTTPClient overrides the default client
	HTTPClient *http.Client
}

// Client calls DigiDocService.
//
// Calls are never retried: the service holds the signing session and a repeated call could add a data file or
// a signature twice. Callers decide whether to repeat an operation.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a DigiDocService client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "dds")),
	}
}

type statusResponse interface {
	status() string
}

type validatedRequest interface {
	validate() error
}

// call sends one SOAP request and decodes the response into resp.
func (c *Client) call(ctx context.Context, operation string, req validatedRequest, resp statusResponse) error {
	if err := req.validate(); err != nil {
		return NewInvalidRequestError(operation, err.Error())
	}

	payload, err := MarshalEnvelope(req)
	if err != nil {
		return NewInvalidRequestError(operation, fmt.Sprintf("failed to encode request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return NewTransportError(operation, err)
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", `""`)

	start := time.Now()

	// #nosec G704 -- the endpoint comes from server configuration
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("DigiDocService call failed",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return NewTransportError(operation, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return NewTransportError(operation, fmt.Errorf("failed to read response: %w", err))
	}

	fault, decodeErr := unmarshalEnvelope(body, resp)

	logAttrs := []any{
		slog.String("operation", operation),
		slog.Int("http_status", httpResp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	}

	switch {
	case fault != nil:
		// SOAP 1.1 faults are sent with HTTP 500
		c.logger.Info("DigiDocService fault", append(logAttrs, slog.String("fault", fault.String))...)
		return NewServiceError(operation, fault.String, fault.Message())

	case httpResp.StatusCode != http.StatusOK:
		c.logger.Warn("DigiDocService unexpected HTTP status", logAttrs...)
		return NewTransportError(operation, fmt.Errorf("unexpected HTTP status %d", httpResp.StatusCode))

	case decodeErr != nil:
		return NewProtocolError(operation, decodeErr)

	case resp.status() != StatusOK:
		c.logger.Info("DigiDocService error status", append(logAttrs, slog.String("status", resp.status()))...)
		return NewServiceError(operation, resp.status(), "")
	}

	c.logger.Debug("DigiDocService call completed", logAttrs...)
	return nil
}

// StartSession opens a signing session. When SigDocXML is set the container is loaded into the session
// (a hashcode BDOC base64 encoded or a hashcode DDOC as XML).
func (c *Client) StartSession(ctx context.Context, req StartSessionRequest) (*StartSessionResponse, error) {
	resp := &StartSessionResponse{}
	if err := c.call(ctx, OpStartSession, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateSignedDoc creates an empty container of the given format in the session
func (c *Client) CreateSignedDoc(ctx context.Context, req CreateSignedDocRequest) (*CreateSignedDocResponse, error) {
	resp := &CreateSignedDocResponse{}
	if err := c.call(ctx, OpCreateSignedDoc, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// AddDataFile registers a data file with the session
func (c *Client) AddDataFile(ctx context.Context, req AddDataFileRequest) (*AddDataFileResponse, error) {
	resp := &AddDataFileResponse{}
	if err := c.call(ctx, OpAddDataFile, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// RemoveDataFile removes a data file from the session container
func (c *Client) RemoveDataFile(ctx context.Context, req RemoveDataFileRequest) (*RemoveDataFileResponse, error) {
	resp := &RemoveDataFileResponse{}
	if err := c.call(ctx, OpRemoveDataFile, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetSignedDoc returns the session container
func (c *Client) GetSignedDoc(ctx context.Context, req GetSignedDocRequest) (*GetSignedDocResponse, error) {
	resp := &GetSignedDocResponse{}
	if err := c.call(ctx, OpGetSignedDoc, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetSignedDocInfo describes the session container
func (c *Client) GetSignedDocInfo(ctx context.Context, req GetSignedDocInfoRequest) (*GetSignedDocInfoResponse, error) {
	resp := &GetSignedDocInfoResponse{}
	if err := c.call(ctx, OpGetSignedDocInfo, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// PrepareSignature adds an unfinished signature for the signer certificate and returns the SignedInfo digest (hex)
func (c *Client) PrepareSignature(ctx context.Context, req PrepareSignatureRequest) (*PrepareSignatureResponse, error) {
	resp := &PrepareSignatureResponse{}
	if err := c.call(ctx, OpPrepareSignature, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// FinalizeSignature completes a prepared signature
func (c *Client) FinalizeSignature(ctx context.Context, req FinalizeSignatureRequest) (*FinalizeSignatureResponse, error) {
	resp := &FinalizeSignatureResponse{}
	if err := c.call(ctx, OpFinalizeSignature, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// RemoveSignature removes a signature from the session container
func (c *Client) RemoveSignature(ctx context.Context, req RemoveSignatureRequest) (*RemoveSignatureResponse, error) {
	resp := &RemoveSignatureResponse{}
	if err := c.call(ctx, OpRemoveSignature, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CloseSession ends the session; the service discards the session container
func (c *Client) CloseSession(ctx context.Context, req CloseSessionRequest) (*CloseSessionResponse, error) {
	resp := &CloseSessionResponse{}
	if err := c.call(ctx, OpCloseSession, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
