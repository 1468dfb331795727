package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func exportCommand() *cli.Command {
	var (
		cfg    config
		output string
		bucket string
		object string
	)

	flags := snapshotFlags(&output, &bucket, &object, "Path to write the snapshot to")
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "export",
		Usage: "Export all memories as a JSONL snapshot",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := cfg.newLocalUseCase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer() }()

			w, err := openSnapshotWriter(ctx, &cfg, output, bucket, object)
			if err != nil {
				return err
			}

			count, err := uc.Export(ctx, w)
			if err != nil {
				_ = w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return goerr.Wrap(err, "failed to finalize snapshot")
			}

			fmt.Fprintf(c.Root().Writer, "Exported %d memories\n", count)
			return nil
		},
	}
}

func importCommand() *cli.Command {
	var (
		cfg    config
		input  string
		bucket string
		object string
	)

	flags := snapshotFlags(&input, &bucket, &object, "Path to read the snapshot from")
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "import",
		Usage: "Import memories from a JSONL snapshot, skipping existing ones",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := cfg.newLocalUseCase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer() }()

			r, err := openSnapshotReader(ctx, &cfg, input, bucket, object)
			if err != nil {
				return err
			}
			defer r.Close()

			count, err := uc.Import(ctx, r)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Imported %d memories\n", count)
			return nil
		},
	}
}

func snapshotFlags(file, bucket, object *string, fileUsage string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "file",
			Aliases:     []string{"f"},
			Usage:       fileUsage,
			Destination: file,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for the snapshot",
			Sources:     cli.EnvVars("KIOKU_SNAPSHOT_BUCKET"),
			Destination: bucket,
		},
		&cli.StringFlag{
			Name:        "object",
			Usage:       "Cloud Storage object name for the snapshot",
			Sources:     cli.EnvVars("KIOKU_SNAPSHOT_OBJECT"),
			Destination: object,
		},
	}
}

func openSnapshotWriter(ctx context.Context, cfg *config, file, bucket, object string) (io.WriteCloser, error) {
	switch {
	case bucket != "":
		if object == "" {
			return nil, goerr.New("object is required when exporting to a bucket")
		}
		storage, err := cfg.newStorage(ctx, bucket)
		if err != nil {
			return nil, err
		}
		return storage.Put(ctx, object)

	case file != "":
		f, err := os.Create(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create snapshot file", goerr.V("path", file))
		}
		return f, nil

	default:
		return nil, goerr.New("either --file or --bucket is required")
	}
}

func openSnapshotReader(ctx context.Context, cfg *config, file, bucket, object string) (io.ReadCloser, error) {
	switch {
	case bucket != "":
		if object == "" {
			return nil, goerr.New("object is required when importing from a bucket")
		}
		storage, err := cfg.newStorage(ctx, bucket)
		if err != nil {
			return nil, err
		}
		return storage.Get(ctx, object)

	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open snapshot file", goerr.V("path", file))
		}
		return f, nil

	default:
		return nil, goerr.New("either --file or --bucket is required")
	}
}
