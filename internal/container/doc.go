// Package container reads and writes BDOC 2.1 and DIGIDOC-XML 1.3 signed document containers
// and converts them between full form and hashcode form.
//
// In hashcode form the data file bodies are replaced by their digests so the container can be handed to
// DigiDocService without uploading the files. Once the service has added a signature the full container is
// restored with ToFullForm, which checks every supplied body against the digest it replaces.
//
// Signatures are never parsed: BDOC signature entries and DDOC <Signature> elements are carried through
// every conversion byte for byte.
package container
