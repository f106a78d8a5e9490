package dds

// soap.go - SOAP 1.1 envelope handling.
//
// Requests are wrapped in a SOAP 1.1 envelope with the operation element in the DigiDocService namespace.
// The response element is matched by local name: its namespace is replaced with the DigiDocService namespace
// before decoding, so both qualified and unqualified response parts are accepted.

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// SOAPNamespace is the SOAP 1.1 envelope namespace
const SOAPNamespace = "http://schemas.xmlsoap.org/soap/envelope/"

// Envelope is the outgoing SOAP envelope. Body.Content is a request (or, in test servers, a response or Fault).
type Envelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    Body     `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
}

type Body struct {
	Content any `xml:",omitempty"`
}

// Fault is a SOAP 1.1 fault. DigiDocService puts its numeric error code in faultstring
// and the description in detail/message.
type Fault struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Fault"`
	Code    string   `xml:"faultcode"`
	String  string   `xml:"faultstring"`
	Detail  struct {
		Message string `xml:"message"`
	} `xml:"detail"`
}

// Message returns the most descriptive text of the fault
func (f *Fault) Message() string {
	if f.Detail.Message != "" {
		return f.Detail.Message
	}
	return f.String
}

// MarshalEnvelope returns the SOAP document carrying content
func MarshalEnvelope(content any) ([]byte, error) {
	out, err := xml.Marshal(Envelope{Body: Body{Content: content}})
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// bodyElement positions a decoder on the first element inside the SOAP Body.
// The decoder keeps the namespace declarations of the envelope in scope.
func bodyElement(data []byte) (*xml.Decoder, xml.StartElement, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	depth := 0
	inBody := false
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, xml.StartElement{}, fmt.Errorf("no SOAP body element found")
			}
			return nil, xml.StartElement{}, fmt.Errorf("failed to parse SOAP envelope: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1 && t.Name.Local != "Envelope":
				return nil, xml.StartElement{}, fmt.Errorf("unexpected root element %q (expected Envelope)", t.Name.Local)
			case depth == 2 && t.Name.Local == "Body":
				inBody = true
			case inBody && depth == 3:
				return dec, t, nil
			}
		case xml.EndElement:
			depth--
			if inBody && depth < 2 {
				return nil, xml.StartElement{}, fmt.Errorf("empty SOAP body")
			}
		}
	}
}

// unmarshalEnvelope decodes a SOAP response into resp.
// A fault is returned as a *Fault with a nil error.
func unmarshalEnvelope(data []byte, resp any) (*Fault, error) {
	dec, start, err := bodyElement(data)
	if err != nil {
		return nil, err
	}
	if start.Name.Local == "Fault" {
		fault := &Fault{}
		if err := dec.DecodeElement(fault, &start); err != nil {
			return nil, fmt.Errorf("failed to parse SOAP fault: %w", err)
		}
		return fault, nil
	}
	start.Name.Space = Namespace
	if err := dec.DecodeElement(resp, &start); err != nil {
		return nil, fmt.Errorf("failed to parse SOAP body: %w", err)
	}
	return nil, nil
}

// DecodeRequest returns the operation name of a SOAP request and a function that decodes the
// operation element into a request struct. Used by servers to dispatch requests.
func DecodeRequest(data []byte) (string, func(req any) error, error) {
	dec, start, err := bodyElement(data)
	if err != nil {
		return "", nil, err
	}
	return start.Name.Local, func(req any) error {
		return dec.DecodeElement(req, &start)
	}, nil
}
