package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/eid-tools/dds-hashcode/internal/container"
	"github.com/eid-tools/dds-hashcode/internal/crypto"
)

var (
	digestFormat    string
	digestID        string
	digestMimeType  string
	digestAlgorithm string
	digestName      string
)

var digestCmd = &cobra.Command{
	Use:   "digest <file>",
	Short: "Compute the hashcode entry of a data file",
	Long: `Compute the digests DigiDocService receives for a data file instead of its content.

BDOC entries carry the sha256 and sha512 digests of the file. DDOC entries carry the sha1 digest of the
canonical DataFile element, which also covers the identifier, name and mime type.

Example:
  dds-hashcode digest --format bdoc report.pdf
  dds-hashcode digest --format ddoc --id D2 --mime-type text/plain notes.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		df, err := digestDataFile(args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(df)
	},
}

func init() {
	digestCmd.Flags().StringVarP(&digestFormat, "format", "f", "bdoc", "container format: bdoc or ddoc")
	digestCmd.Flags().StringVar(&digestID, "id", "D0", "data file identifier")
	digestCmd.Flags().StringVar(&digestMimeType, "mime-type", "", "mime type (default: detected from the content)")
	digestCmd.Flags().StringVar(&digestAlgorithm, "alg", "sha256", "primary BDOC digest: sha256 or sha512")
	digestCmd.Flags().StringVar(&digestName, "name", "", "data file name (default: the base name of the file)")
}

func digestDataFile(path string) (container.DataFile, error) {
	format, err := container.ParseFormat(digestFormat)
	if err != nil {
		return container.DataFile{}, err
	}
	if _, ok := container.ParseDataFileID(digestID); !ok {
		return container.DataFile{}, fmt.Errorf("invalid data file identifier %q (expected D<n>)", digestID)
	}
	alg, err := crypto.ParseAlgorithm(digestAlgorithm)
	if err != nil {
		return container.DataFile{}, err
	}
	if !slices.Contains([]crypto.Algorithm{crypto.SHA256, crypto.SHA512}, alg) {
		return container.DataFile{}, fmt.Errorf("unsupported BDOC digest %q (use sha256 or sha512)", digestAlgorithm)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return container.DataFile{}, fmt.Errorf("failed to read data file: %w", err)
	}

	name := digestName
	if name == "" {
		name = filepath.Base(path)
	}
	mimeType := digestMimeType
	if mimeType == "" {
		mimeType = container.DetectMimeType(content)
	}

	return container.HashcodeDataFile(format, digestID, name, mimeType, content, alg)
}
