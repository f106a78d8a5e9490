package container

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies a container format and version as DigiDocService names them
type Format string

const (
	FormatBDOC Format = "BDOC 2.1"
	FormatDDOC Format = "DIGIDOC-XML 1.3"
)

// extensions recognised by DetectFormat
var formatExtensions = map[string]Format{
	".bdoc":  FormatBDOC,
	".asice": FormatBDOC,
	".sce":   FormatBDOC,
	".ddoc":  FormatDDOC,
}

// DetectFormat determines the container format from the filename extension (case-insensitive).
func DetectFormat(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if f, ok := formatExtensions[ext]; ok {
		return f, nil
	}
	return "", NewFormatError(fmt.Sprintf("unknown container format for %q (expected .bdoc, .asice, .sce or .ddoc)", filename))
}

// ParseFormat accepts a format name ("BDOC", "DDOC", "DIGIDOC-XML") with or without version
func ParseFormat(name string) (Format, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	switch {
	case n == "BDOC" || n == string(FormatBDOC) || n == "ASICE":
		return FormatBDOC, nil
	case n == "DDOC" || n == "DIGIDOC-XML" || n == string(FormatDDOC):
		return FormatDDOC, nil
	}
	return "", NewFormatError(fmt.Sprintf("unknown container format %q", name))
}

// Name returns the format name without version ("BDOC" or "DIGIDOC-XML")
func (f Format) Name() string {
	name, _, _ := strings.Cut(string(f), " ")
	return name
}

// Version returns the format version ("2.1" or "1.3")
func (f Format) Version() string {
	_, version, _ := strings.Cut(string(f), " ")
	return version
}

// Extension returns the default filename extension for the format
func (f Format) Extension() string {
	if f == FormatDDOC {
		return ".ddoc"
	}
	return ".bdoc"
}

func (f Format) String() string {
	return string(f)
}

func (f Format) valid() bool {
	return f == FormatBDOC || f == FormatDDOC
}
