package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/saphetor/vc-file-upload/storage"
	"github.com/saphetor/vc-file-upload/upload"
	"github.com/saphetor/vc-file-upload/version"
)

// CLI is the command line of vc-file-upload.
type CLI struct {
	RootPath               string           `arg:"" name:"root-path" help:"Root path to search. For LOCAL an absolute directory, for cloud backends bucket or container and an optional subpath (bucket@namespace/subpath for OCI)."`
	Backend                string           `name:"backend" enum:"LOCAL,AWS,GCP,OCI,AZURE" default:"LOCAL" help:"Storage backend to use (${enum})."`
	VclinBaseURL           string           `name:"vclin-base-url" default:"${base_url}" help:"VarSome Clinical base URL."`
	AcceptedFileExtensions string           `name:"accepted-file-extensions" default:"vcf,vcf.gz,fastq.gz,bam" help:"Comma separated list of accepted file extensions."`
	SignedURLExpiration    int              `name:"signed-url-expiration" default:"86400" help:"Signed URL expiration in seconds for remote backends."`
	Token                  string           `name:"token" env:"VCLIN_API_TOKEN" required:"" help:"VarSome Clinical API token."`
	Progress               bool             `name:"progress" help:"Show a progress bar for every chunked upload."`
	Verbose                bool             `name:"verbose" short:"v" help:"Enable debug logging."`
	Version                kong.VersionFlag `name:"version" help:"Print the version and exit."`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("vc-file-upload"),
		kong.Description("Transfer files from a local directory or a cloud storage provider to VarSome Clinical"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{
			"version":  version.Version(),
			"base_url": upload.DefaultBaseURL,
		},
	)

	logger := log.NewLogger()
	logger.EnableDebugLog(cli.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cli, env.NewRepository(), logger, os.Stderr))
}

// run performs the transfer and returns the process exit code.
func run(ctx context.Context, cli CLI, envRepo env.Repository, logger log.Logger, progressOutput io.Writer) int {
	if err := transfer(ctx, cli, envRepo, logger, progressOutput); err != nil {
		logger.Errorf("Transfer failed: %s", err)
		return 1
	}
	return 0
}

func transfer(ctx context.Context, cli CLI, envRepo env.Repository, logger log.Logger, progressOutput io.Writer) error {
	backend, err := storage.ParseBackend(cli.Backend)
	if err != nil {
		return err
	}

	extensions := storage.ParseExtensions(cli.AcceptedFileExtensions)
	if len(extensions) == 0 {
		extensions = storage.AllowedExtensions
		logger.Infof("Using default accepted extensions: %v", extensions)
	}

	store, err := storage.New(ctx, backend, cli.RootPath, storage.ConfigFromEnv(envRepo), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("Failed to close storage: %s", err)
		}
	}()

	fileSystem, err := storage.NewFileSystem(store, backend, extensions, time.Duration(cli.SignedURLExpiration)*time.Second, logger)
	if err != nil {
		return err
	}

	logger.Infof("Retrieving files from filesystem under %s", cli.RootPath)
	files, err := fileSystem.FilesWithNames(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logger.Infof("No files found to transfer under %s", cli.RootPath)
		return nil
	}
	logger.Infof("Discovered %d files for transfer (backend: %s, root path: %s)", len(files), backend, cli.RootPath)

	config := upload.DefaultConfig(cli.Token)
	config.BaseURL = cli.VclinBaseURL
	if !backend.IsBucket() {
		config.Size = store.Size
	}
	if cli.Progress && !backend.IsBucket() {
		bars := newProgressBars(progressOutput)
		defer bars.Wait()
		config.Progress = bars.Update
	}
	uploader := upload.New(config, logger)

	var outcome upload.Outcome
	if backend.IsBucket() {
		logger.Infof("Requesting VarSome Clinical to retrieve external files")
		outcome = uploader.RetrieveExternalFiles(ctx, files)
	} else {
		logger.Infof("Uploading local files to VarSome Clinical")
		outcome = uploader.UploadLocalFiles(ctx, files)
	}

	failed := outcome.Failed()
	for _, locator := range failed {
		logger.Warnf("Not transferred: %s", files[locator])
	}
	logger.Donef("Transfer completed: %d files processed, %d failed", len(outcome), len(failed))
	return nil
}
