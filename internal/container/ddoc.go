package container

// ddoc.go - DIGIDOC-XML 1.3 containers.
//
// A DDOC container is a flat XML document:
//
//	<SignedDoc format="DIGIDOC-XML" version="1.3" xmlns="http://www.sk.ee/DigiDoc/v1.3.0#">
//	  <DataFile ContentType="EMBEDDED_BASE64" Filename="a.txt" Id="D0" MimeType="text/plain" Size="3">YWJj</DataFile>
//	  <Signature Id="S0" xmlns="http://www.w3.org/2000/09/xmldsig#">...</Signature>
//	</SignedDoc>
//
// In hashcode form the DataFile body is dropped and the element carries ContentType="HASHCODE",
// DigestType="sha1" and DigestValue, the base64 sha1 digest of the canonical form of the full DataFile element.
// The format predates SHA-2 support so the digest algorithm is fixed.
//
// Signatures reference the data files by digest and are kept as raw bytes.

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/eid-tools/dds-hashcode/internal/crypto"
)

const (
	ddocNamespace = "http://www.sk.ee/DigiDoc/v1.3.0#"
	ddocFormat    = "DIGIDOC-XML"
	ddocVersion   = "1.3"

	ddocContentEmbedded = "EMBEDDED_BASE64"
	ddocContentHashcode = "HASHCODE"

	// base64 content is wrapped at 64 columns
	ddocLineLength = 64
)

type ddocDataFileXML struct {
	ContentType string `xml:"ContentType,attr"`
	Filename    string `xml:"Filename,attr"`
	ID          string `xml:"Id,attr"`
	MimeType    string `xml:"MimeType,attr"`
	Size        string `xml:"Size,attr"`
	DigestType  string `xml:"DigestType,attr"`
	DigestValue string `xml:"DigestValue,attr"`
	Body        string `xml:",chardata"`
}

func decodeDDOC(data []byte) (*Container, error) {
	c := &Container{Format: FormatDDOC, DataFiles: []DataFile{}}

	var (
		dec      = xml.NewDecoder(bytes.NewReader(data))
		sawRoot  bool
		embedded int
	)

	for {
		start := dec.InputOffset()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, WrapMalformedError(err, "failed to parse DDOC XML")
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {
		case "SignedDoc":
			if err := checkSignedDocAttrs(se); err != nil {
				return nil, err
			}
			sawRoot = true

		case "DataFile":
			if !sawRoot {
				return nil, NewMalformedError("DataFile outside of SignedDoc")
			}
			var x ddocDataFileXML
			if err := dec.DecodeElement(&x, &se); err != nil {
				return nil, WrapMalformedError(err, "failed to parse DataFile element")
			}
			df, err := x.toDataFile()
			if err != nil {
				return nil, err
			}
			if df.Content != nil {
				embedded++
			}
			c.DataFiles = append(c.DataFiles, df)

		case "Signature":
			if !sawRoot {
				return nil, NewMalformedError("Signature outside of SignedDoc")
			}
			if err := dec.Skip(); err != nil {
				return nil, WrapMalformedError(err, "failed to parse Signature element")
			}
			c.ddocSignatures = append(c.ddocSignatures, slices.Clone(data[start:dec.InputOffset()]))

		default:
			if !sawRoot {
				return nil, NewMalformedError(fmt.Sprintf("unexpected root element %q (expected SignedDoc)", se.Name.Local))
			}
		}
	}

	if !sawRoot {
		return nil, NewMalformedError("SignedDoc element not found")
	}
	if embedded > 0 && embedded != len(c.DataFiles) {
		return nil, NewMalformedError("DDOC mixes embedded and hashcode data files")
	}
	c.Hashcode = len(c.DataFiles) > 0 && embedded == 0
	return c, nil
}

func checkSignedDocAttrs(se xml.StartElement) error {
	var format, version string
	for _, a := range se.Attr {
		switch a.Name.Local {
		case "format":
			format = a.Value
		case "version":
			version = a.Value
		}
	}
	if format != ddocFormat || version != ddocVersion {
		return NewMalformedError(fmt.Sprintf("unsupported DDOC format %s %s (expected %s %s)", format, version, ddocFormat, ddocVersion))
	}
	return nil
}

func (x ddocDataFileXML) toDataFile() (DataFile, error) {
	df := DataFile{
		ID:       x.ID,
		Name:     x.Filename,
		MimeType: x.MimeType,
	}

	var size int64 = -1
	if x.Size != "" {
		n, err := strconv.ParseInt(x.Size, 10, 64)
		if err != nil || n < 0 {
			return DataFile{}, NewMalformedError(fmt.Sprintf("data file %s has invalid Size %q", x.ID, x.Size))
		}
		size = n
	}

	switch x.ContentType {
	case ddocContentEmbedded:
		content, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(x.Body), ""))
		if err != nil {
			return DataFile{}, WrapMalformedError(err, fmt.Sprintf("data file %s content is not base64", x.ID))
		}
		if size >= 0 && size != int64(len(content)) {
			return DataFile{}, NewMalformedError(fmt.Sprintf("data file %s Size %d does not match content length %d", x.ID, size, len(content)))
		}
		df.Size = int64(len(content))
		df.Content = content

	case ddocContentHashcode:
		if !strings.EqualFold(x.DigestType, string(crypto.SHA1)) {
			return DataFile{}, NewMalformedError(fmt.Sprintf("data file %s has unsupported DigestType %q (DDOC hashcodes are sha1)", x.ID, x.DigestType))
		}
		if _, err := crypto.DecodeDigest(crypto.SHA1, x.DigestValue); err != nil {
			return DataFile{}, WrapMalformedError(err, fmt.Sprintf("data file %s has an invalid DigestValue", x.ID))
		}
		if size < 0 {
			return DataFile{}, NewMalformedError(fmt.Sprintf("hashcode data file %s has no Size", x.ID))
		}
		df.Size = size
		df.DigestType = crypto.SHA1
		df.DigestValue = x.DigestValue
		df.Digests = map[crypto.Algorithm]string{crypto.SHA1: x.DigestValue}

	default:
		return DataFile{}, NewMalformedError(fmt.Sprintf("data file %s has unsupported ContentType %q", x.ID, x.ContentType))
	}
	return df, nil
}

func encodeDDOC(c *Container) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	fmt.Fprintf(&b, `<SignedDoc format="%s" version="%s" xmlns="%s">`+"\n", ddocFormat, ddocVersion, ddocNamespace)

	for _, df := range c.DataFiles {
		if df.Content != nil {
			b.Write(canonicalDDOCDataFile(df, df.Content))
		} else {
			b.WriteString("<DataFile")
			writeAttr(&b, "ContentType", ddocContentHashcode)
			writeAttr(&b, "DigestType", string(crypto.SHA1))
			writeAttr(&b, "DigestValue", df.DigestValue)
			writeAttr(&b, "Filename", df.Name)
			writeAttr(&b, "Id", df.ID)
			writeAttr(&b, "MimeType", df.MimeType)
			writeAttr(&b, "Size", strconv.FormatInt(df.Size, 10))
			b.WriteString("></DataFile>")
		}
		b.WriteByte('\n')
	}

	for _, sig := range c.ddocSignatures {
		b.Write(sig)
		b.WriteByte('\n')
	}

	b.WriteString("</SignedDoc>\n")
	return b.Bytes(), nil
}

// canonicalDDOCDataFile returns the canonical (C14N) form of the full DataFile element:
// namespace declaration first, attributes sorted by name, base64 content wrapped at 64 columns.
func canonicalDDOCDataFile(df DataFile, content []byte) []byte {
	var b bytes.Buffer
	b.WriteString(`<DataFile xmlns="` + ddocNamespace + `"`)
	writeAttr(&b, "ContentType", ddocContentEmbedded)
	writeAttr(&b, "Filename", df.Name)
	writeAttr(&b, "Id", df.ID)
	writeAttr(&b, "MimeType", df.MimeType)
	writeAttr(&b, "Size", strconv.Itoa(len(content)))
	b.WriteByte('>')

	encoded := base64.StdEncoding.EncodeToString(content)
	for len(encoded) > 0 {
		n := min(ddocLineLength, len(encoded))
		b.WriteString(encoded[:n])
		b.WriteByte('\n')
		encoded = encoded[n:]
	}

	b.WriteString("</DataFile>")
	return b.Bytes()
}

func ddocDataFileDigest(df DataFile, content []byte) (string, error) {
	digest, err := crypto.DigestBase64(crypto.SHA1, canonicalDDOCDataFile(df, content))
	if err != nil {
		return "", WrapInternalError(err, "failed to digest DDOC data file")
	}
	return digest, nil
}

// attribute value escaping as required by canonical XML
var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	`"`, "&quot;",
	"\t", "&#x9;",
	"\n", "&#xA;",
	"\r", "&#xD;",
)

func writeAttr(b *bytes.Buffer, name, value string) {
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteString(`="`)
	b.WriteString(attrEscaper.Replace(value))
	b.WriteByte('"')
}
