package commands

import (
	"github.com/spf13/cobra"
)

var rootOpts = &ExtractOptions{}

// RootCmd extracts the archive given as its only argument; the subcommands
// expose the same operation and a listing mode.
var RootCmd = &cobra.Command{
	Use:   "untar [flags] <archive>",
	Short: "Extract ustar archives from files, stdin, S3 or HTTP",
	Long: `Extract a ustar archive into the destination directory.

The archive may be a local path, "-" for stdin, an s3:// URI or an http(s) URL.
Subcommand names are matched before the archive argument, so a local archive
named "extract" or "list" must be given through the subcommand or with a path
prefix: "untar extract ./list".`,
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		*extractOpts = *rootOpts
		return runExtract(cmd, args)
	},
}

func init() {
	addExtractFlags(RootCmd, rootOpts)
	RootCmd.AddCommand(ExtractCmd)
	RootCmd.AddCommand(ListCmd)
}
