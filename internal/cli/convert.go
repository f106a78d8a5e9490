package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eid-tools/dds-hashcode/internal/container"
	"github.com/eid-tools/dds-hashcode/internal/crypto"
)

const (
	formHashcode = "hashcode"
	formFull     = "full"
)

var (
	convertTo     string
	convertOut    string
	convertFiles  string
	convertDigest string
)

var convertCmd = &cobra.Command{
	Use:   "convert <container>",
	Short: "Convert a container between the full form and the hashcode form",
	Long: `Convert a container to the hashcode form (data file contents replaced by digests) or back to the
full form.

--to hashcode writes the data file contents to --files when it is set.
--to full reads the data file contents from --files and checks them against the hashcode entries.

Example:
  dds-hashcode convert --to hashcode --files ./contents --out contract-hashcode.bdoc contract.bdoc
  dds-hashcode convert --to full --files ./contents --out contract-signed.bdoc contract-hashcode.bdoc`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := readContainer(args[0])
		if err != nil {
			return err
		}

		out, err := convertContainer(c, convertTo, convertFiles, convertDigest, convertOut)
		if err != nil {
			return err
		}

		data, err := container.Serialize(out)
		if err != nil {
			return err
		}
		if err := os.WriteFile(convertOut, data, 0o644); err != nil {
			return fmt.Errorf("failed to write container: %w", err)
		}

		appLogger.Info("container converted",
			slog.String("from", args[0]),
			slog.String("to", convertOut),
			slog.String("form", convertTo),
			slog.Int("data_files", len(out.DataFiles)),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s form, %d data files)\n", convertOut, convertTo, len(out.DataFiles))
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVar(&convertTo, "to", "", "target form: hashcode or full [required]")
	convertCmd.Flags().StringVarP(&convertOut, "out", "o", "", "output container path [required]")
	convertCmd.Flags().StringVar(&convertFiles, "files", "", "directory holding the data file contents")
	convertCmd.Flags().StringVar(&convertDigest, "digest", "sha256", "primary BDOC hashcode digest: sha256 or sha512")
	_ = convertCmd.MarkFlagRequired("to")
	_ = convertCmd.MarkFlagRequired("out")
}

// convertContainer returns c in the requested form. The output path must carry an extension of the same format.
func convertContainer(c *container.Container, form, filesDir, digest, outPath string) (*container.Container, error) {
	outFormat, err := container.DetectFormat(outPath)
	if err != nil {
		return nil, err
	}
	if outFormat != c.Format {
		return nil, fmt.Errorf("output %s is a %s file but the container is %s", outPath, outFormat, c.Format)
	}

	switch form {
	case formHashcode:
		alg, err := crypto.ParseAlgorithm(digest)
		if err != nil {
			return nil, err
		}
		if filesDir != "" {
			if err := extractDataFiles(c, filesDir); err != nil {
				return nil, err
			}
		}
		return container.ToHashcodeForm(c, container.WithBDOCDigest(alg))

	case formFull:
		if !c.Hashcode {
			return c, nil
		}
		if filesDir == "" {
			return nil, fmt.Errorf("--files is required to convert a hashcode container to the full form")
		}
		files, err := loadDataFiles(c, filesDir)
		if err != nil {
			return nil, err
		}
		return container.ToFullForm(c, files)
	}
	return nil, fmt.Errorf("invalid --to %q (use %s or %s)", form, formHashcode, formFull)
}

// extractDataFiles writes the content of every full form data file below dir.
// Names are resolved through an os.Root so a data file name cannot point outside dir.
func extractDataFiles(c *container.Container, dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dir, err)
	}
	defer root.Close()

	for _, df := range c.DataFiles {
		if !df.HasContent() {
			continue
		}
		name := filepath.FromSlash(df.Name)
		if err := root.MkdirAll(filepath.Dir(name), 0o750); err != nil {
			return fmt.Errorf("data file %q: %w", df.Name, err)
		}
		if err := root.WriteFile(name, df.Content, 0o644); err != nil {
			return fmt.Errorf("data file %q: %w", df.Name, err)
		}
		appLogger.Debug("data file extracted", slog.String("id", df.ID), slog.String("name", df.Name))
	}
	return nil
}

// loadDataFiles reads the contents of the hashcode entries of c from dir. Missing files are left out.
func loadDataFiles(c *container.Container, dir string) (map[string][]byte, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dir, err)
	}
	defer root.Close()

	files := make(map[string][]byte, len(c.DataFiles))
	for _, df := range c.DataFiles {
		if df.HasContent() {
			continue
		}
		data, err := root.ReadFile(filepath.FromSlash(df.Name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("data file %q: %w", df.Name, err)
		}
		files[df.Name] = data
	}
	return files, nil
}
