package container

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eid-tools/dds-hashcode/internal/crypto"
)

type testFile struct {
	name     string
	mimeType string
	content  []byte
}

var sampleFiles = []testFile{
	{"test.txt", "text/plain", []byte("abc")},
	{"empty.bin", "application/octet-stream", []byte{}},
	{"docs/report & summary.pdf", "application/pdf", bytes.Repeat([]byte("%PDF-1.7 data "), 100)},
}

func newTestContainer(t *testing.T, format Format, files []testFile) *Container {
	t.Helper()
	c, err := New(format)
	require.NoError(t, err)
	for _, f := range files {
		_, err := c.Add(f.name, f.mimeType, f.content)
		require.NoError(t, err)
	}
	return c
}

func originals(files []testFile) map[string][]byte {
	out := make(map[string][]byte, len(files))
	for _, f := range files {
		out[f.name] = f.content
	}
	return out
}

func requireContainerCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var containerErr *ContainerError
	require.True(t, errors.As(err, &containerErr), "expected *ContainerError, got %T: %v", err, err)
	assert.Equal(t, code, containerErr.Code(), "error: %v", err)
}

func TestHashcodeRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatBDOC, FormatDDOC} {
		for n := 0; n <= len(sampleFiles); n++ {
			t.Run(fmt.Sprintf("%s with %d data files", format.Name(), n), func(t *testing.T) {
				files := sampleFiles[:n]
				c := newTestContainer(t, format, files)

				hashcode, err := ToHashcodeForm(c)
				require.NoError(t, err)
				assert.True(t, hashcode.Hashcode)
				for _, df := range hashcode.DataFiles {
					assert.Nil(t, df.Content)
					assert.NotEmpty(t, df.DigestValue)
				}

				full, err := ToFullForm(hashcode, originals(files))
				require.NoError(t, err)
				assert.Equal(t, c, full)

				// the input container is not modified
				assert.False(t, c.Hashcode)
			})
		}
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatBDOC, FormatDDOC} {
		t.Run(format.Name(), func(t *testing.T) {
			c := newTestContainer(t, format, sampleFiles)

			data, err := Serialize(c)
			require.NoError(t, err)
			parsed, err := Parse("container"+format.Extension(), data)
			require.NoError(t, err)
			assert.Equal(t, c, parsed)

			hashcode, err := ToHashcodeForm(c)
			require.NoError(t, err)
			encoded, err := EncodeForSession(hashcode)
			require.NoError(t, err)

			decoded, err := DecodeSessionData(format, encoded)
			require.NoError(t, err)
			assert.Equal(t, hashcode, decoded)
		})
	}
}

func TestEncodeForSessionBase64(t *testing.T) {
	bdoc := newTestContainer(t, FormatBDOC, sampleFiles[:1])
	encoded, err := EncodeForSession(bdoc)
	require.NoError(t, err)
	assert.NotContains(t, encoded, "mimetype", "BDOC session data must be base64 encoded")

	ddoc := newTestContainer(t, FormatDDOC, sampleFiles[:1])
	encoded, err = EncodeForSession(ddoc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "<?xml"))
}

func TestBDOCHashcodeDigests(t *testing.T) {
	c := newTestContainer(t, FormatBDOC, sampleFiles[:1])

	hashcode, err := ToHashcodeForm(c)
	require.NoError(t, err)
	df := hashcode.DataFiles[0]
	assert.Equal(t, crypto.SHA256, df.DigestType)
	assert.Equal(t, "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0=", df.DigestValue)
	assert.Len(t, df.Digests, 2)

	hashcode512, err := ToHashcodeForm(c, WithBDOCDigest(crypto.SHA512))
	require.NoError(t, err)
	assert.Equal(t, crypto.SHA512, hashcode512.DataFiles[0].DigestType)
	assert.Equal(t, df.Digests[crypto.SHA512], hashcode512.DataFiles[0].DigestValue)

	_, err = ToHashcodeForm(c, WithBDOCDigest(crypto.SHA1))
	requireContainerCode(t, err, ErrCodeMalformed)

	data, err := Serialize(hashcode)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"mimetype",
		"META-INF/manifest.xml",
		"META-INF/hashcodes-sha256.xml",
		"META-INF/hashcodes-sha512.xml",
	}, names)
	assert.Equal(t, zip.Store, zr.File[0].Method)
}

func TestDDOCHashcodeDigest(t *testing.T) {
	c := newTestContainer(t, FormatDDOC, sampleFiles[:1])

	hashcode, err := ToHashcodeForm(c)
	require.NoError(t, err)

	// sha1 of the canonical DataFile element, not of the content
	df := hashcode.DataFiles[0]
	assert.Equal(t, crypto.SHA1, df.DigestType)
	assert.Equal(t, "VqNUJvqUvw2OmalMsVydxk3PeAo=", df.DigestValue)

	data, err := Serialize(hashcode)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ContentType="HASHCODE" DigestType="sha1" DigestValue="VqNUJvqUvw2OmalMsVydxk3PeAo="`)
	assert.NotContains(t, string(data), "YWJj")
}

func TestToFullFormErrors(t *testing.T) {
	for _, format := range []Format{FormatBDOC, FormatDDOC} {
		t.Run(format.Name(), func(t *testing.T) {
			hashcode, err := ToHashcodeForm(newTestContainer(t, format, sampleFiles))
			require.NoError(t, err)

			missing := originals(sampleFiles)
			delete(missing, "test.txt")
			_, err = ToFullForm(hashcode, missing)
			requireContainerCode(t, err, ErrCodeMissingDataFile)

			tampered := originals(sampleFiles)
			tampered["test.txt"] = []byte("abd")
			_, err = ToFullForm(hashcode, tampered)
			requireContainerCode(t, err, ErrCodeDigestMismatch)

			resized := originals(sampleFiles)
			resized["test.txt"] = []byte("abcd")
			_, err = ToFullForm(hashcode, resized)
			requireContainerCode(t, err, ErrCodeDigestMismatch)
		})
	}
}

func TestBDOCSignatureEntriesPreserved(t *testing.T) {
	signature := []byte(`<?xml version="1.0"?><asic:XAdESSignatures xmlns:asic="http://uri.etsi.org/02918/v1.2.1#"><ds:Signature Id="S0"/></asic:XAdESSignatures>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name string, method uint16, data []byte) {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	write("mimetype", zip.Store, []byte(bdocMimeType))
	write("test.txt", zip.Deflate, []byte("abc"))
	write("META-INF/manifest.xml", zip.Deflate, []byte(`<?xml version="1.0" encoding="UTF-8"?>
<manifest:manifest xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0">
  <manifest:file-entry manifest:full-path="/" manifest:media-type="application/vnd.etsi.asic-e+zip"/>
  <manifest:file-entry manifest:full-path="test.txt" manifest:media-type="text/plain"/>
</manifest:manifest>`))
	write("META-INF/signatures0.xml", zip.Deflate, signature)
	require.NoError(t, zw.Close())

	c, err := Parse("signed.asice", buf.Bytes())
	require.NoError(t, err)
	require.Len(t, c.DataFiles, 1)
	assert.Equal(t, "D0", c.DataFiles[0].ID)
	assert.Equal(t, "text/plain", c.DataFiles[0].MimeType)
	assert.Equal(t, 1, c.SignatureCount())

	hashcode, err := ToHashcodeForm(c)
	require.NoError(t, err)
	encoded, err := EncodeForSession(hashcode)
	require.NoError(t, err)
	fromService, err := DecodeSessionData(FormatBDOC, encoded)
	require.NoError(t, err)

	full, err := ToFullForm(fromService, map[string][]byte{"test.txt": []byte("abc")})
	require.NoError(t, err)
	assert.Equal(t, 1, full.SignatureCount())
	assert.Equal(t, signature, full.bdocEntries[0].Data)
	assert.Equal(t, c, full)
}

func TestDDOCSignaturesPreserved(t *testing.T) {
	signature := `<Signature Id="S0" xmlns="http://www.w3.org/2000/09/xmldsig#"><SignedInfo><Reference URI="#D0"/></SignedInfo><SignatureValue Id="S0-SIG">AAAA</SignatureValue></Signature>`
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<SignedDoc format="DIGIDOC-XML" version="1.3" xmlns="http://www.sk.ee/DigiDoc/v1.3.0#">
<DataFile ContentType="HASHCODE" DigestType="sha1" DigestValue="VqNUJvqUvw2OmalMsVydxk3PeAo=" Filename="test.txt" Id="D0" MimeType="text/plain" Size="3"></DataFile>
` + signature + `
</SignedDoc>`

	c, err := DecodeSessionData(FormatDDOC, doc)
	require.NoError(t, err)
	assert.True(t, c.Hashcode)
	assert.Equal(t, 1, c.SignatureCount())
	assert.Equal(t, signature, string(c.ddocSignatures[0]))

	full, err := ToFullForm(c, map[string][]byte{"test.txt": []byte("abc")})
	require.NoError(t, err)

	data, err := Serialize(full)
	require.NoError(t, err)
	assert.Contains(t, string(data), signature)
	assert.Contains(t, string(data), ">YWJj\n</DataFile>")
}

func TestDecodeDDOCErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "not xml",
			doc:  "PK\x03\x04",
		},
		{
			name: "wrong root",
			doc:  `<Document/>`,
		},
		{
			name: "unsupported version",
			doc:  `<SignedDoc format="DIGIDOC-XML" version="1.2" xmlns="http://www.sk.ee/DigiDoc/v1.3.0#"></SignedDoc>`,
		},
		{
			name: "non contiguous identifiers",
			doc: `<SignedDoc format="DIGIDOC-XML" version="1.3" xmlns="http://www.sk.ee/DigiDoc/v1.3.0#">` +
				`<DataFile ContentType="EMBEDDED_BASE64" Filename="a.txt" Id="D0" MimeType="text/plain" Size="3">YWJj</DataFile>` +
				`<DataFile ContentType="EMBEDDED_BASE64" Filename="b.txt" Id="D2" MimeType="text/plain" Size="3">YWJj</DataFile>` +
				`</SignedDoc>`,
		},
		{
			name: "size mismatch",
			doc: `<SignedDoc format="DIGIDOC-XML" version="1.3" xmlns="http://www.sk.ee/DigiDoc/v1.3.0#">` +
				`<DataFile ContentType="EMBEDDED_BASE64" Filename="a.txt" Id="D0" MimeType="text/plain" Size="4">YWJj</DataFile>` +
				`</SignedDoc>`,
		},
		{
			name: "sha256 hashcode",
			doc: `<SignedDoc format="DIGIDOC-XML" version="1.3" xmlns="http://www.sk.ee/DigiDoc/v1.3.0#">` +
				`<DataFile ContentType="HASHCODE" DigestType="sha256" DigestValue="ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0=" Filename="a.txt" Id="D0" MimeType="text/plain" Size="3"></DataFile>` +
				`</SignedDoc>`,
		},
		{
			name: "mixed embedded and hashcode",
			doc: `<SignedDoc format="DIGIDOC-XML" version="1.3" xmlns="http://www.sk.ee/DigiDoc/v1.3.0#">` +
				`<DataFile ContentType="EMBEDDED_BASE64" Filename="a.txt" Id="D0" MimeType="text/plain" Size="3">YWJj</DataFile>` +
				`<DataFile ContentType="HASHCODE" DigestType="sha1" DigestValue="VqNUJvqUvw2OmalMsVydxk3PeAo=" Filename="b.txt" Id="D1" MimeType="text/plain" Size="3"></DataFile>` +
				`</SignedDoc>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("broken.ddoc", []byte(tt.doc))
			requireContainerCode(t, err, ErrCodeMalformed)
		})
	}
}

func TestDecodeBDOCErrors(t *testing.T) {
	_, err := Parse("broken.bdoc", []byte("not a zip"))
	requireContainerCode(t, err, ErrCodeMalformed)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("test.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Parse("no-mimetype.bdoc", buf.Bytes())
	requireContainerCode(t, err, ErrCodeMalformed)
}

func TestAdd(t *testing.T) {
	c, err := New(FormatDDOC)
	require.NoError(t, err)

	df, err := c.Add("a.txt", "", []byte("plain text"))
	require.NoError(t, err)
	assert.Equal(t, "D0", df.ID)
	assert.Equal(t, "text/plain", df.MimeType)

	_, err = c.Add("a.txt", "text/plain", []byte("again"))
	requireContainerCode(t, err, ErrCodeMalformed)

	hashcode, err := ToHashcodeForm(c)
	require.NoError(t, err)
	_, err = hashcode.Add("b.txt", "text/plain", []byte("x"))
	requireContainerCode(t, err, ErrCodeMalformed)

	_, err = New(Format("PDF"))
	requireContainerCode(t, err, ErrCodeUnknownFormat)
}

func TestParseDataFileID(t *testing.T) {
	tests := []struct {
		id     string
		want   int
		wantOK bool
	}{
		{"D0", 0, true},
		{"D12", 12, true},
		{"D", 0, false},
		{"D01", 0, false},
		{"S0", 0, false},
		{"D-1", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, ok := ParseDataFileID(tt.id)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestAppendAndRemoveSignature(t *testing.T) {
	for _, format := range []Format{FormatBDOC, FormatDDOC} {
		t.Run(format.Name(), func(t *testing.T) {
			c := newTestContainer(t, format, sampleFiles[:1])
			c.AppendSignature([]byte(`<Signature Id="S0"/>`))
			c.AppendSignature([]byte(`<Signature Id="S1"/>`))
			require.Equal(t, 2, c.SignatureCount())

			data, err := Serialize(c)
			require.NoError(t, err)
			parsed, err := Parse("signed"+format.Extension(), data)
			require.NoError(t, err)
			assert.Equal(t, c.Signatures(), parsed.Signatures())

			require.NoError(t, c.RemoveSignature(0))
			assert.Equal(t, [][]byte{[]byte(`<Signature Id="S1"/>`)}, c.Signatures())
			requireContainerCode(t, c.RemoveSignature(5), ErrCodeMalformed)
		})
	}
}

func TestBDOCHashcodeDataFile(t *testing.T) {
	content := []byte("streamed body")
	fromContent, err := HashcodeDataFile(FormatBDOC, "D0", "a.txt", "text/plain", content, crypto.SHA512)
	require.NoError(t, err)

	digests := make(map[crypto.Algorithm]string)
	for _, alg := range BDOCHashcodeAlgorithms() {
		digests[alg], err = crypto.DigestBase64(alg, content)
		require.NoError(t, err)
	}
	fromDigests, err := BDOCHashcodeDataFile("D0", "a.txt", "text/plain", int64(len(content)), digests, crypto.SHA512)
	require.NoError(t, err)
	assert.Equal(t, fromContent, fromDigests)
	assert.Equal(t, crypto.SHA512, fromDigests.DigestType)

	_, err = BDOCHashcodeDataFile("D0", "a.txt", "text/plain", 1, digests, crypto.SHA1)
	requireContainerCode(t, err, ErrCodeMalformed)

	delete(digests, crypto.SHA256)
	_, err = BDOCHashcodeDataFile("D0", "a.txt", "text/plain", 1, digests, crypto.SHA512)
	requireContainerCode(t, err, ErrCodeMalformed)
}
