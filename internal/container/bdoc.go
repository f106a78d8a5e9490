package container

// bdoc.go - BDOC 2.1 (ASiC-E) containers.
//
// A BDOC container is a zip archive:
//   - "mimetype" (first entry, stored): application/vnd.etsi.asic-e+zip
//   - "META-INF/manifest.xml": the media type of every data file
//   - "META-INF/signatures*.xml": XAdES signatures, kept verbatim
//   - data files at any other path
//
// The hashcode form used with DigiDocService removes the data files and adds
// META-INF/hashcodes-sha256.xml and META-INF/hashcodes-sha512.xml:
//
//	<hashcodes>
//	  <file-entry full-path="a.txt" hash="base64 digest" size="3"/>
//	</hashcodes>

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/eid-tools/dds-hashcode/internal/crypto"
)

const (
	bdocMimeType      = "application/vnd.etsi.asic-e+zip"
	bdocMimeTypeEntry = "mimetype"
	bdocManifestEntry = "META-INF/manifest.xml"
	bdocMetaInf       = "META-INF/"

	manifestNamespace = "urn:oasis:names:tc:opendocument:xmlns:manifest:1.0"

	defaultMimeType = "application/octet-stream"

	// upper bound for a single entry when reading an archive
	maxEntrySize = 1 << 30
)

func hashcodesEntryName(alg crypto.Algorithm) string {
	return bdocMetaInf + "hashcodes-" + string(alg) + ".xml"
}

func isSignatureEntry(name string) bool {
	base := path.Base(name)
	return strings.HasPrefix(name, bdocMetaInf) && strings.Contains(strings.ToLower(base), "signatures") && strings.HasSuffix(base, ".xml")
}

type manifestXML struct {
	XMLName xml.Name            `xml:"urn:oasis:names:tc:opendocument:xmlns:manifest:1.0 manifest"`
	Entries []manifestEntryXML `xml:"urn:oasis:names:tc:opendocument:xmlns:manifest:1.0 file-entry"`
}

type manifestEntryXML struct {
	FullPath  string `xml:"urn:oasis:names:tc:opendocument:xmlns:manifest:1.0 full-path,attr"`
	MediaType string `xml:"urn:oasis:names:tc:opendocument:xmlns:manifest:1.0 media-type,attr"`
}

type hashcodesXML struct {
	XMLName xml.Name            `xml:"hashcodes"`
	Entries []hashcodeEntryXML `xml:"file-entry"`
}

type hashcodeEntryXML struct {
	FullPath string `xml:"full-path,attr"`
	Hash     string `xml:"hash,attr"`
	Size     int64  `xml:"size,attr"`
}

func decodeBDOC(data []byte) (*Container, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, WrapMalformedError(err, "BDOC container is not a zip archive")
	}

	var (
		manifest  *manifestXML
		hashcodes = map[crypto.Algorithm]*hashcodesXML{}
		bodies    = map[string][]byte{}
		order     []string
		c         = &Container{Format: FormatBDOC, DataFiles: []DataFile{}}
		sawMime   bool
	)

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		content, err := readZipEntry(f)
		if err != nil {
			return nil, err
		}

		switch {
		case f.Name == bdocMimeTypeEntry:
			if strings.TrimSpace(string(content)) != bdocMimeType {
				return nil, NewMalformedError(fmt.Sprintf("unexpected mimetype %q (expected %s)", content, bdocMimeType))
			}
			sawMime = true

		case f.Name == bdocManifestEntry:
			manifest = &manifestXML{}
			if err := xml.Unmarshal(content, manifest); err != nil {
				return nil, WrapMalformedError(err, "failed to parse META-INF/manifest.xml")
			}

		case f.Name == hashcodesEntryName(crypto.SHA256) || f.Name == hashcodesEntryName(crypto.SHA512):
			alg := crypto.SHA256
			if f.Name == hashcodesEntryName(crypto.SHA512) {
				alg = crypto.SHA512
			}
			hc := &hashcodesXML{}
			if err := xml.Unmarshal(content, hc); err != nil {
				return nil, WrapMalformedError(err, fmt.Sprintf("failed to parse %s", f.Name))
			}
			hashcodes[alg] = hc

		case strings.HasPrefix(f.Name, bdocMetaInf):
			c.bdocEntries = append(c.bdocEntries, zipEntry{Name: f.Name, Data: content})

		default:
			if _, dup := bodies[f.Name]; dup {
				return nil, NewMalformedError(fmt.Sprintf("duplicate archive entry %q", f.Name))
			}
			bodies[f.Name] = content
			order = append(order, f.Name)
		}
	}

	if !sawMime {
		return nil, NewMalformedError("BDOC container has no mimetype entry")
	}

	mediaTypes := map[string]string{}
	if manifest != nil {
		for _, e := range manifest.Entries {
			if e.FullPath == "/" || strings.HasSuffix(e.FullPath, "/") {
				continue
			}
			mediaTypes[e.FullPath] = e.MediaType
			if !slices.Contains(order, e.FullPath) {
				order = append(order, e.FullPath)
			}
		}
	}

	if len(hashcodes) > 0 {
		if len(bodies) > 0 {
			return nil, NewMalformedError("BDOC hashcode container also contains data files")
		}
		c.Hashcode = true
		return c, addHashcodeDataFiles(c, hashcodes, mediaTypes)
	}

	// full form: archive order, then manifest entries that are missing from the archive (an error)
	for _, name := range order {
		body, ok := bodies[name]
		if !ok {
			return nil, NewMalformedError(fmt.Sprintf("data file %q is listed in the manifest but not present in the archive", name))
		}
		mt := mediaTypes[name]
		if mt == "" {
			mt = DetectMimeType(body)
		}
		c.DataFiles = append(c.DataFiles, DataFile{
			ID:       DataFileID(len(c.DataFiles)),
			Name:     name,
			MimeType: mt,
			Size:     int64(len(body)),
			Content:  body,
		})
	}
	return c, nil
}

// addHashcodeDataFiles builds the data files of a hashcode container. The sha256 file is preferred for
// ordering; both files must list the same entries.
func addHashcodeDataFiles(c *Container, hashcodes map[crypto.Algorithm]*hashcodesXML, mediaTypes map[string]string) error {
	primary := crypto.SHA256
	if _, ok := hashcodes[primary]; !ok {
		primary = crypto.SHA512
	}

	for _, e := range hashcodes[primary].Entries {
		df := DataFile{
			ID:          DataFileID(len(c.DataFiles)),
			Name:        e.FullPath,
			MimeType:    mediaTypes[e.FullPath],
			Size:        e.Size,
			DigestType:  primary,
			DigestValue: e.Hash,
			Digests:     map[crypto.Algorithm]string{},
		}
		if df.MimeType == "" {
			df.MimeType = defaultMimeType
		}

		for alg, hc := range hashcodes {
			idx := slices.IndexFunc(hc.Entries, func(x hashcodeEntryXML) bool { return x.FullPath == e.FullPath })
			if idx < 0 {
				return NewMalformedError(fmt.Sprintf("data file %q is missing from %s", e.FullPath, hashcodesEntryName(alg)))
			}
			entry := hc.Entries[idx]
			if entry.Size != e.Size {
				return NewMalformedError(fmt.Sprintf("data file %q has different sizes in the hashcode files", e.FullPath))
			}
			if _, err := crypto.DecodeDigest(alg, entry.Hash); err != nil {
				return WrapMalformedError(err, fmt.Sprintf("data file %q has an invalid %s hash", e.FullPath, alg))
			}
			df.Digests[alg] = entry.Hash
		}
		c.DataFiles = append(c.DataFiles, df)
	}

	for alg, hc := range hashcodes {
		if len(hc.Entries) != len(c.DataFiles) {
			return NewMalformedError(fmt.Sprintf("%s lists %d data files, expected %d", hashcodesEntryName(alg), len(hc.Entries), len(c.DataFiles)))
		}
	}
	return nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxEntrySize {
		return nil, NewMalformedError(fmt.Sprintf("archive entry %q is too large", f.Name))
	}
	rc, err := f.Open()
	if err != nil {
		return nil, WrapMalformedError(err, fmt.Sprintf("failed to open archive entry %q", f.Name))
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, WrapMalformedError(err, fmt.Sprintf("failed to read archive entry %q", f.Name))
	}
	return content, nil
}

// DetectMimeType sniffs the media type of a data file body (without parameters such as charset)
func DetectMimeType(body []byte) string {
	mt, _, _ := strings.Cut(mimetype.Detect(body).String(), ";")
	if mt == "" {
		return defaultMimeType
	}
	return mt
}

// DetectMimeTypeFile detects the MIME type of the file at path from its leading bytes
func DetectMimeTypeFile(path string) (string, error) {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return "", WrapInternalError(err, "failed to detect MIME type")
	}
	mt, _, _ := strings.Cut(m.String(), ";")
	if mt == "" {
		return defaultMimeType, nil
	}
	return mt, nil
}

func encodeBDOC(c *Container) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	// the mimetype entry must be first and uncompressed
	w, err := zw.CreateHeader(&zip.FileHeader{Name: bdocMimeTypeEntry, Method: zip.Store})
	if err != nil {
		return nil, WrapInternalError(err, "failed to write mimetype entry")
	}
	if _, err := io.WriteString(w, bdocMimeType); err != nil {
		return nil, WrapInternalError(err, "failed to write mimetype entry")
	}

	if err := writeZipEntry(zw, bdocManifestEntry, encodeManifest(c)); err != nil {
		return nil, err
	}

	if c.Hashcode {
		algs := hashcodeAlgorithms(c)
		if len(algs) == 0 {
			return nil, NewMalformedError("data files have no common hashcode digest algorithm")
		}
		for _, alg := range algs {
			data, err := encodeHashcodes(c, alg)
			if err != nil {
				return nil, err
			}
			if err := writeZipEntry(zw, hashcodesEntryName(alg), data); err != nil {
				return nil, err
			}
		}
	} else {
		for _, df := range c.DataFiles {
			if err := writeZipEntry(zw, df.Name, df.Content); err != nil {
				return nil, err
			}
		}
	}

	for _, e := range c.bdocEntries {
		if err := writeZipEntry(zw, e.Name, e.Data); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, WrapInternalError(err, "failed to finish zip archive")
	}
	return buf.Bytes(), nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return WrapInternalError(err, fmt.Sprintf("failed to create archive entry %q", name))
	}
	if _, err := w.Write(data); err != nil {
		return WrapInternalError(err, fmt.Sprintf("failed to write archive entry %q", name))
	}
	return nil
}

// encodeManifest writes the manifest with the prefixed element names other implementations expect.
// encoding/xml cannot emit namespace prefixes, so the document is written directly.
func encodeManifest(c *Container) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="no" ?>` + "\n")
	b.WriteString(`<manifest:manifest xmlns:manifest="` + manifestNamespace + `" manifest:version="1.2">` + "\n")
	writeManifestEntry(&b, "/", bdocMimeType)
	for _, df := range c.DataFiles {
		mt := df.MimeType
		if mt == "" {
			mt = defaultMimeType
		}
		writeManifestEntry(&b, df.Name, mt)
	}
	b.WriteString("</manifest:manifest>\n")
	return b.Bytes()
}

func writeManifestEntry(b *bytes.Buffer, fullPath, mediaType string) {
	b.WriteString("  <manifest:file-entry")
	writeAttr(b, "manifest:full-path", fullPath)
	writeAttr(b, "manifest:media-type", mediaType)
	b.WriteString("/>\n")
}

// hashcodeAlgorithms returns the hashcode algorithms every data file has a digest for
func hashcodeAlgorithms(c *Container) []crypto.Algorithm {
	var algs []crypto.Algorithm
	for _, alg := range bdocHashcodeAlgorithms {
		ok := true
		for _, df := range c.DataFiles {
			if df.Digests[alg] == "" && (df.DigestType != alg || df.DigestValue == "") {
				ok = false
				break
			}
		}
		if ok {
			algs = append(algs, alg)
		}
	}
	return algs
}

func encodeHashcodes(c *Container, alg crypto.Algorithm) ([]byte, error) {
	doc := hashcodesXML{}
	for _, df := range c.DataFiles {
		hash, ok := df.Digests[alg]
		if !ok && df.DigestType == alg {
			hash = df.DigestValue
		}
		if hash == "" {
			return nil, NewMalformedError(fmt.Sprintf("data file %q has no %s hashcode", df.Name, alg))
		}
		doc.Entries = append(doc.Entries, hashcodeEntryXML{FullPath: df.Name, Hash: hash, Size: df.Size})
	}

	out, err := xml.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, WrapInternalError(err, "failed to encode hashcodes")
	}
	return append([]byte(xml.Header), out...), nil
}
