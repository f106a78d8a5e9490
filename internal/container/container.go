package container

import (
	"encoding/base64"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/eid-tools/dds-hashcode/internal/crypto"
)

// DataFile is a single file entry of a container.
//
// In full form Content holds the file body and the digest fields are empty (they are derivable from the content).
// In hashcode form Content is nil and the digest fields hold the values DigiDocService works with.
type DataFile struct {
	// ID is the data file identifier (D0, D1, ...)
	ID string `json:"id"`

	// Name is the file name (BDOC: path inside the zip archive)
	Name string `json:"name"`

	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`

	// DigestType and DigestValue (base64) are the primary digest of the hashcode entry
	DigestType  crypto.Algorithm `json:"digestType,omitempty"`
	DigestValue string           `json:"digestValue,omitempty"`

	// Digests holds every digest known for the entry. BDOC hashcode containers carry both sha256 and sha512.
	Digests map[crypto.Algorithm]string `json:"digests,omitempty"`

	Content []byte `json:"-"`
}

// HasContent reports whether the data file is in full form
func (d DataFile) HasContent() bool {
	return d.Content != nil
}

func (d DataFile) clone() DataFile {
	c := d
	if d.Content != nil {
		c.Content = slices.Clone(d.Content)
	}
	if d.Digests != nil {
		c.Digests = maps.Clone(d.Digests)
	}
	return c
}

// zipEntry is an archive entry kept verbatim (BDOC signatures and other META-INF files)
type zipEntry struct {
	Name string
	Data []byte
}

// Container is a BDOC or DDOC signed document container.
type Container struct {
	Format    Format
	DataFiles []DataFile

	// Hashcode is true when the data files carry digests instead of content
	Hashcode bool

	// bdocEntries are META-INF entries other than the manifest and the hashcode files
	bdocEntries []zipEntry

	// ddocSignatures are the raw <Signature> elements of a DDOC container
	ddocSignatures [][]byte
}

// New returns an empty full form container of the given format
func New(format Format) (*Container, error) {
	if !format.valid() {
		return nil, NewFormatError(fmt.Sprintf("unknown container format %q", format))
	}
	return &Container{Format: format, DataFiles: []DataFile{}}, nil
}

// Add appends a full form data file with the next contiguous identifier.
// The MIME type is sniffed from the content when empty.
func (c *Container) Add(name, mimeType string, content []byte) (DataFile, error) {
	if c.Hashcode {
		return DataFile{}, NewMalformedError("cannot add content to a hashcode container")
	}
	if name == "" {
		return DataFile{}, NewMalformedError("data file name is empty")
	}
	if _, exists := c.FindDataFile(name); exists {
		return DataFile{}, NewMalformedError(fmt.Sprintf("data file %q already exists", name))
	}
	if mimeType == "" {
		mimeType = DetectMimeType(content)
	}

	df := DataFile{
		ID:       DataFileID(len(c.DataFiles)),
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(content)),
		Content:  append([]byte{}, content...),
	}
	c.DataFiles = append(c.DataFiles, df)
	return df, nil
}

// SignatureCount returns the number of signatures in the container
func (c *Container) SignatureCount() int {
	if c.Format == FormatDDOC {
		return len(c.ddocSignatures)
	}
	n := 0
	for _, e := range c.bdocEntries {
		if isSignatureEntry(e.Name) {
			n++
		}
	}
	return n
}

// Signatures returns copies of the raw signatures: BDOC signature entries or DDOC <Signature> elements
func (c *Container) Signatures() [][]byte {
	var out [][]byte
	if c.Format == FormatDDOC {
		for _, s := range c.ddocSignatures {
			out = append(out, slices.Clone(s))
		}
		return out
	}
	for _, e := range c.bdocEntries {
		if isSignatureEntry(e.Name) {
			out = append(out, slices.Clone(e.Data))
		}
	}
	return out
}

// AppendSignature adds a raw signature. BDOC signatures are stored as META-INF/signatures<n>.xml,
// DDOC signatures must be a complete <Signature> element.
func (c *Container) AppendSignature(raw []byte) {
	if c.Format == FormatDDOC {
		c.ddocSignatures = append(c.ddocSignatures, slices.Clone(raw))
		return
	}
	n := c.SignatureCount()
	name := fmt.Sprintf("%ssignatures%d.xml", bdocMetaInf, n)
	for c.hasEntry(name) {
		n++
		name = fmt.Sprintf("%ssignatures%d.xml", bdocMetaInf, n)
	}
	c.bdocEntries = append(c.bdocEntries, zipEntry{Name: name, Data: slices.Clone(raw)})
}

// RemoveSignature removes the i-th signature (in the order returned by Signatures)
func (c *Container) RemoveSignature(i int) error {
	if i < 0 || i >= c.SignatureCount() {
		return NewMalformedError(fmt.Sprintf("signature %d does not exist", i))
	}
	if c.Format == FormatDDOC {
		c.ddocSignatures = slices.Delete(c.ddocSignatures, i, i+1)
		return nil
	}
	n := -1
	for j, e := range c.bdocEntries {
		if isSignatureEntry(e.Name) {
			n++
			if n == i {
				c.bdocEntries = slices.Delete(c.bdocEntries, j, j+1)
				return nil
			}
		}
	}
	return nil
}

func (c *Container) hasEntry(name string) bool {
	return slices.ContainsFunc(c.bdocEntries, func(e zipEntry) bool { return e.Name == name })
}

// DataFileIDs returns the data file identifiers in container order
func (c *Container) DataFileIDs() []string {
	ids := make([]string, 0, len(c.DataFiles))
	for _, df := range c.DataFiles {
		ids = append(ids, df.ID)
	}
	return ids
}

// FindDataFile returns the data file with the given name
func (c *Container) FindDataFile(name string) (DataFile, bool) {
	for _, df := range c.DataFiles {
		if df.Name == name {
			return df, true
		}
	}
	return DataFile{}, false
}

// Clone returns a deep copy of the container
func (c *Container) Clone() *Container {
	out := &Container{
		Format:    c.Format,
		Hashcode:  c.Hashcode,
		DataFiles: make([]DataFile, 0, len(c.DataFiles)),
	}
	for _, df := range c.DataFiles {
		out.DataFiles = append(out.DataFiles, df.clone())
	}
	for _, e := range c.bdocEntries {
		out.bdocEntries = append(out.bdocEntries, zipEntry{Name: e.Name, Data: slices.Clone(e.Data)})
	}
	for _, s := range c.ddocSignatures {
		out.ddocSignatures = append(out.ddocSignatures, slices.Clone(s))
	}
	return out
}

// Validate checks the container invariants:
//   - data file identifiers and names are unique
//   - DDOC identifiers are contiguous D0..Dn in container order
//   - hashcode entries carry a digest, full form entries carry content
func (c *Container) Validate() error {
	if !c.Format.valid() {
		return NewFormatError(fmt.Sprintf("unknown container format %q", c.Format))
	}

	ids := make(map[string]bool, len(c.DataFiles))
	names := make(map[string]bool, len(c.DataFiles))
	for i, df := range c.DataFiles {
		if df.ID == "" {
			return NewMalformedError(fmt.Sprintf("data file %d has no identifier", i))
		}
		if df.Name == "" {
			return NewMalformedError(fmt.Sprintf("data file %s has no name", df.ID))
		}
		if ids[df.ID] {
			return NewMalformedError(fmt.Sprintf("duplicate data file identifier %s", df.ID))
		}
		if names[df.Name] {
			return NewMalformedError(fmt.Sprintf("duplicate data file name %q", df.Name))
		}
		ids[df.ID] = true
		names[df.Name] = true

		if c.Format == FormatDDOC && df.ID != DataFileID(i) {
			return NewMalformedError(fmt.Sprintf("DDOC data file identifiers must be contiguous: expected %s, got %s", DataFileID(i), df.ID))
		}
		if c.Hashcode && df.DigestValue == "" {
			return NewMalformedError(fmt.Sprintf("hashcode data file %s has no digest", df.ID))
		}
		if !c.Hashcode && df.Content == nil {
			return NewMalformedError(fmt.Sprintf("data file %s has no content", df.ID))
		}
	}
	return nil
}

// DataFileID returns the identifier of the data file at index i
func DataFileID(i int) string {
	return "D" + strconv.Itoa(i)
}

// ParseDataFileID returns the index of a "D<n>" identifier
func ParseDataFileID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "D")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 || strconv.Itoa(n) != rest {
		return 0, false
	}
	return n, true
}

// Parse detects the container format from filename and parses data
func Parse(filename string, data []byte) (*Container, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}
	return Decode(format, data)
}

// Decode parses container bytes of a known format
func Decode(format Format, data []byte) (*Container, error) {
	var (
		c   *Container
		err error
	)
	switch format {
	case FormatBDOC:
		c, err = decodeBDOC(data)
	case FormatDDOC:
		c, err = decodeDDOC(data)
	default:
		return nil, NewFormatError(fmt.Sprintf("unknown container format %q", format))
	}
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Serialize returns the container file bytes
func Serialize(c *Container) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Format {
	case FormatBDOC:
		return encodeBDOC(c)
	default:
		return encodeDDOC(c)
	}
}

// EncodeForSession serializes the container for the DigiDocService text transport.
// BDOC archives are base64 encoded, DDOC is passed as XML text.
func EncodeForSession(c *Container) (string, error) {
	data, err := Serialize(c)
	if err != nil {
		return "", err
	}
	if c.Format == FormatBDOC {
		return base64.StdEncoding.EncodeToString(data), nil
	}
	return string(data), nil
}

// DecodeSessionData parses a container returned by DigiDocService (the inverse of EncodeForSession)
func DecodeSessionData(format Format, data string) (*Container, error) {
	if format != FormatBDOC {
		return Decode(format, []byte(data))
	}
	raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(data), ""))
	if err != nil {
		return nil, WrapMalformedError(err, "BDOC session data is not base64")
	}
	return Decode(format, raw)
}

// HashcodeOption configures ToHashcodeForm
type HashcodeOption func(*hashcodeOptions)

type hashcodeOptions struct {
	bdocDigest crypto.Algorithm
}

// WithBDOCDigest selects the primary digest algorithm of BDOC hashcode entries (sha256 or sha512).
// DDOC entries always use sha1.
func WithBDOCDigest(alg crypto.Algorithm) HashcodeOption {
	return func(o *hashcodeOptions) {
		o.bdocDigest = alg
	}
}

// DefaultBDOCDigest is the primary BDOC hashcode digest algorithm
const DefaultBDOCDigest = crypto.SHA256

// bdocHashcodeAlgorithms are written as META-INF/hashcodes-<alg>.xml
var bdocHashcodeAlgorithms = []crypto.Algorithm{crypto.SHA256, crypto.SHA512}

// ToHashcodeForm returns a copy of c whose data files carry digests instead of content.
func ToHashcodeForm(c *Container, opts ...HashcodeOption) (*Container, error) {
	o := hashcodeOptions{bdocDigest: DefaultBDOCDigest}
	for _, opt := range opts {
		opt(&o)
	}
	if c.Format == FormatBDOC && !slices.Contains(bdocHashcodeAlgorithms, o.bdocDigest) {
		return nil, NewMalformedError(fmt.Sprintf("unsupported BDOC hashcode digest %q", o.bdocDigest))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	out := c.Clone()
	out.Hashcode = true
	for i, df := range out.DataFiles {
		if df.Content == nil {
			continue
		}
		hashed, err := HashcodeDataFile(c.Format, df.ID, df.Name, df.MimeType, df.Content, o.bdocDigest)
		if err != nil {
			return nil, err
		}
		out.DataFiles[i] = hashed
	}
	return out, nil
}

// ToFullForm returns a copy of c with the content of every data file restored from files (keyed by data file name).
// Every hashcode entry must be supplied and must match its digest.
func ToFullForm(c *Container, files map[string][]byte) (*Container, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	out := c.Clone()
	out.Hashcode = false
	for i, df := range out.DataFiles {
		if df.Content != nil {
			continue
		}
		body, ok := files[df.Name]
		if !ok {
			return nil, NewMissingDataFileError(df.Name)
		}
		if err := verifyDataFile(c.Format, df, body); err != nil {
			return nil, err
		}
		out.DataFiles[i] = DataFile{
			ID:       df.ID,
			Name:     df.Name,
			MimeType: df.MimeType,
			Size:     int64(len(body)),
			Content:  append([]byte{}, body...),
		}
	}
	return out, nil
}

// HashcodeDataFile builds the hashcode entry of a data file.
//
// BDOC entries carry sha256 and sha512 digests of the content with bdocDigest as the primary one.
// DDOC entries carry the sha1 digest of the canonical <DataFile> element, which depends on the identifier.
func HashcodeDataFile(format Format, id, name, mimeType string, content []byte, bdocDigest crypto.Algorithm) (DataFile, error) {
	df := DataFile{
		ID:       id,
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(content)),
	}

	switch format {
	case FormatBDOC:
		digests := make(map[crypto.Algorithm]string, len(bdocHashcodeAlgorithms))
		for _, alg := range bdocHashcodeAlgorithms {
			digest, err := crypto.DigestBase64(alg, content)
			if err != nil {
				return DataFile{}, WrapInternalError(err, "failed to digest data file")
			}
			digests[alg] = digest
		}
		return BDOCHashcodeDataFile(id, name, mimeType, df.Size, digests, bdocDigest)

	case FormatDDOC:
		digest, err := ddocDataFileDigest(df, content)
		if err != nil {
			return DataFile{}, err
		}
		df.DigestType = crypto.SHA1
		df.DigestValue = digest
		df.Digests = map[crypto.Algorithm]string{crypto.SHA1: digest}

	default:
		return DataFile{}, NewFormatError(fmt.Sprintf("unknown container format %q", format))
	}
	return df, nil
}

// BDOCHashcodeAlgorithms returns the digest algorithms of a BDOC hashcode entry
func BDOCHashcodeAlgorithms() []crypto.Algorithm {
	return slices.Clone(bdocHashcodeAlgorithms)
}

// BDOCHashcodeDataFile builds a BDOC hashcode entry from digests calculated by the caller.
// digests must hold every algorithm of BDOCHashcodeAlgorithms; primary is the one sent to DigiDocService.
func BDOCHashcodeDataFile(id, name, mimeType string, size int64, digests map[crypto.Algorithm]string, primary crypto.Algorithm) (DataFile, error) {
	if !slices.Contains(bdocHashcodeAlgorithms, primary) {
		return DataFile{}, NewMalformedError(fmt.Sprintf("unsupported BDOC hashcode digest %q", primary))
	}
	for _, alg := range bdocHashcodeAlgorithms {
		if digests[alg] == "" {
			return DataFile{}, NewMalformedError(fmt.Sprintf("data file %q: missing %s digest", name, alg))
		}
	}
	return DataFile{
		ID:          id,
		Name:        name,
		MimeType:    mimeType,
		Size:        size,
		DigestType:  primary,
		DigestValue: digests[primary],
		Digests:     maps.Clone(digests),
	}, nil
}

func verifyDataFile(format Format, df DataFile, body []byte) error {
	if df.Size != int64(len(body)) {
		return NewDigestMismatchError(fmt.Sprintf("data file %q: size %d does not match hashcode entry size %d", df.Name, len(body), df.Size))
	}

	if format == FormatDDOC {
		digest, err := ddocDataFileDigest(df, body)
		if err != nil {
			return err
		}
		if digest != df.DigestValue {
			return NewDigestMismatchError(fmt.Sprintf("data file %q does not match its sha1 hashcode", df.Name))
		}
		return nil
	}

	digests := df.Digests
	if len(digests) == 0 {
		digests = map[crypto.Algorithm]string{df.DigestType: df.DigestValue}
	}
	for alg, want := range digests {
		if !crypto.VerifyDigestBase64(alg, body, want) {
			return NewDigestMismatchError(fmt.Sprintf("data file %q does not match its %s hashcode", df.Name, alg))
		}
	}
	return nil
}
