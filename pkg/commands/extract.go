package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beam-cloud/untar/pkg/common"
	"github.com/beam-cloud/untar/pkg/extract"
	"github.com/beam-cloud/untar/pkg/metrics"
	"github.com/beam-cloud/untar/pkg/storage"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type ExtractOptions struct {
	Archive     string
	Directory   string
	UnsafePaths bool
	Parents     bool
	Verbose     bool
	Source      SourceOptions
}

type SourceOptions struct {
	CachePath   string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

var extractOpts = &ExtractOptions{}

var ExtractCmd = &cobra.Command{
	Use:   "extract <archive>",
	Short: "Extract a ustar archive into a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	addExtractFlags(ExtractCmd, extractOpts)
}

func addExtractFlags(cmd *cobra.Command, opts *ExtractOptions) {
	cmd.Flags().StringVarP(&opts.Directory, "directory", "C", getEnvString("UNTAR_DIRECTORY", "."), "Directory to extract into")
	cmd.Flags().BoolVar(&opts.UnsafePaths, "unsafe-paths", false, "Resolve entry paths literally, allowing them to escape the directory")
	cmd.Flags().BoolVar(&opts.Parents, "parents", false, "Create missing parent directories")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Verbose output")
	addSourceFlags(cmd, &opts.Source)
}

func addSourceFlags(cmd *cobra.Command, opts *SourceOptions) {
	cmd.Flags().StringVar(&opts.CachePath, "cache-path", getEnvString("UNTAR_CACHE_PATH", ""), "Download remote archives to this path before extracting")
	cmd.Flags().StringVar(&opts.S3Region, "s3-region", getEnvString("UNTAR_S3_REGION", "us-east-1"), "Region of the S3 bucket")
	cmd.Flags().StringVar(&opts.S3Endpoint, "s3-endpoint", getEnvString("UNTAR_S3_ENDPOINT", ""), "Custom S3 endpoint")
	cmd.Flags().BoolVar(&opts.S3PathStyle, "s3-path-style", getEnvBool("UNTAR_S3_PATH_STYLE", false), "Use path style S3 addressing")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	extractOpts.Archive = args[0]
	if extractOpts.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	report, err := Extract(cmd.Context(), *extractOpts)
	if err != nil {
		return err
	}

	if failed := report.Failed(); len(failed) > 0 {
		log.Warn().Msgf("%d of %d entries could not be extracted", len(failed), len(report.Outcomes))
	}
	metrics.LogMetricsSummary()
	return nil
}

// Extract opens the archive and applies it to the destination directory.
// Entry failures are reported, not returned.
func Extract(ctx context.Context, opts ExtractOptions) (*extract.Report, error) {
	if opts.Directory == "" {
		opts.Directory = "."
	}

	src, err := openSource(opts.Archive, opts.Source)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.Directory, 0755); err != nil {
		return nil, err
	}

	unlock, err := lockDestination(opts.Directory)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	log.Info().Msgf("extracting archive <%s> into <%s>", src, opts.Directory)

	e := extract.NewExtractor(extract.ExtractorOpts{
		FS: extract.NewHostFS(extract.HostFSOptions{
			Root:         opts.Directory,
			UnsafePaths:  opts.UnsafePaths,
			MkdirParents: opts.Parents,
		}),
	})

	report, err := e.Extract(ctx, rc)
	if err != nil {
		return report, fmt.Errorf("failed to extract <%s>: %w", src, err)
	}

	distinct := len(report.Names())
	log.Info().
		Int("entries", len(report.Outcomes)).
		Int("distinct", distinct).
		Int("overwritten", len(report.Outcomes)-distinct).
		Int("failed", len(report.Failed())).
		Int("skipped", len(report.Skipped())).
		Str("end", report.End.String()).
		Msg("archive extracted")

	return report, nil
}

func openSource(archive string, opts SourceOptions) (storage.ArchiveSource, error) {
	return storage.NewArchiveSource(storage.ArchiveSourceOpts{
		Archive:        archive,
		CachePath:      opts.CachePath,
		Region:         opts.S3Region,
		Endpoint:       opts.S3Endpoint,
		ForcePathStyle: opts.S3PathStyle,
	})
}

// lockDestination takes an exclusive lock keyed on the absolute destination
// directory. The lock file lives in the temp dir, never inside the destination.
func lockDestination(dir string) (func(), error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(abs))
	lockFilePath := filepath.Join(os.TempDir(), fmt.Sprintf("untar-%s.lock", hex.EncodeToString(sum[:8])))

	fileLock := flock.New(lockFilePath)
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("error while trying to acquire file lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", common.ErrDestinationBusy, abs)
	}

	return func() {
		if err := fileLock.Unlock(); err != nil {
			log.Warn().Err(err).Str("path", lockFilePath).Msg("failed to release destination lock")
		}
	}, nil
}
