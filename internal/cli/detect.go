package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eid-tools/dds-hashcode/internal/container"
	"github.com/eid-tools/dds-hashcode/internal/signing"
)

var detectJSON bool

var detectCmd = &cobra.Command{
	Use:   "detect <container>",
	Short: "Show the format, form and data files of a container",
	Long: `Parse a .bdoc, .asice, .sce or .ddoc container and print its format, whether it is a hashcode
container, its data files and the number of signatures.

Example:
  dds-hashcode detect contract.bdoc
  dds-hashcode detect --json contract.ddoc`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := readContainer(args[0])
		if err != nil {
			return err
		}

		summary := summarize(args[0], c)
		if detectJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}
		return printSummary(cmd.OutOrStdout(), summary)
	},
}

func init() {
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "print the result as JSON")
}

type containerSummary struct {
	File           string               `json:"file"`
	Format         container.Format     `json:"format"`
	Hashcode       bool                 `json:"hashcode"`
	DataFiles      []container.DataFile `json:"dataFiles"`
	Signatures     int                  `json:"signatures"`
	NextDataFileID string               `json:"nextDataFileId"`
}

func summarize(path string, c *container.Container) containerSummary {
	return containerSummary{
		File:           filepath.Base(path),
		Format:         c.Format,
		Hashcode:       c.Hashcode,
		DataFiles:      c.DataFiles,
		Signatures:     c.SignatureCount(),
		NextDataFileID: signing.NextDataFileID(c.DataFileIDs()),
	}
}

func printSummary(w io.Writer, s containerSummary) error {
	form := "full"
	if s.Hashcode {
		form = "hashcode"
	}
	fmt.Fprintf(w, "file:       %s\n", s.File)
	fmt.Fprintf(w, "format:     %s\n", s.Format)
	fmt.Fprintf(w, "form:       %s\n", form)
	fmt.Fprintf(w, "signatures: %d\n", s.Signatures)
	fmt.Fprintf(w, "next id:    %s\n", s.NextDataFileID)

	if len(s.DataFiles) == 0 {
		fmt.Fprintln(w, "data files: none")
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMIME TYPE\tSIZE\tDIGEST")
	for _, df := range s.DataFiles {
		digest := "-"
		if df.DigestValue != "" {
			digest = fmt.Sprintf("%s:%s", df.DigestType, df.DigestValue)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", df.ID, df.Name, df.MimeType, df.Size, digest)
	}
	return tw.Flush()
}

// readContainer loads a container file, the format is taken from the file extension
func readContainer(path string) (*container.Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read container: %w", err)
	}

	c, err := container.Parse(filepath.Base(path), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	appLogger.Debug("container parsed",
		slog.String("file", path),
		slog.String("format", c.Format.String()),
		slog.Bool("hashcode", c.Hashcode),
		slog.Int("data_files", len(c.DataFiles)),
		slog.String("ids", strings.Join(c.DataFileIDs(), ",")),
	)
	return c, nil
}
