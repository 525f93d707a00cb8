package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/beam-cloud/untar/pkg/extract"
	"github.com/beam-cloud/untar/pkg/ustar"
	"github.com/spf13/cobra"
)

var listOpts = &SourceOptions{}

var ListCmd = &cobra.Command{
	Use:   "list <archive>",
	Short: "List the entries of a ustar archive without extracting it",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func init() {
	addSourceFlags(ListCmd, listOpts)
}

func runList(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	src, err := openSource(args[0], *listOpts)
	if err != nil {
		return err
	}

	rc, err := src.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer rc.Close()

	return List(rc, cmd.OutOrStdout())
}

// List writes one line per entry header: type, mode, size, mtime and path.
func List(r io.Reader, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 1, ' ', 0)
	defer tw.Flush()

	s := extract.NewScanner(r)
	for {
		hdr, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		var herr *ustar.HeaderError
		if err != nil && !errors.As(err, &herr) {
			return err
		}
		if herr != nil && hdr.Type == ustar.TypeRegular && herr.Has(ustar.FieldSize) {
			return fmt.Errorf("entry %q at offset %d: %w", hdr.Path(), s.Offset(), herr)
		}

		name := hdr.Path()
		if hdr.Type == ustar.TypeHardLink || hdr.Type == ustar.TypeSymlink {
			name = fmt.Sprintf("%s -> %s", name, hdr.Linkname)
		}

		fmt.Fprintf(tw, "%s\t%04o\t%d\t%s\t%s\n",
			hdr.Type, hdr.Mode&0o7777, hdr.Size, hdr.ModTime().UTC().Format("2006-01-02 15:04"), name)
	}
}
