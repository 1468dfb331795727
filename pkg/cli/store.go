package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func storeCommand() *cli.Command {
	var (
		cfg   config
		tags  []string
		metas []string
	)

	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "tag",
			Aliases:     []string{"t"},
			Usage:       "Tag to attach to the memory (repeatable)",
			Destination: &tags,
		},
		&cli.StringSliceFlag{
			Name:        "meta",
			Aliases:     []string{"m"},
			Usage:       "Metadata entry in key=value form (repeatable)",
			Destination: &metas,
		},
	}
	flags = append(flags, allFlags(&cfg)...)

	return &cli.Command{
		Name:      "store",
		Usage:     "Store a piece of text as a memory",
		ArgsUsage: "<text>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			text, err := textArg(c)
			if err != nil {
				return err
			}

			metadata, err := parseMetadata(metas)
			if err != nil {
				return err
			}

			uc, closer, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer() }()

			m, err := uc.Store(ctx, memory.StoreInput{
				Text:     text,
				Tags:     tags,
				Metadata: metadata,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Stored memory %s (%d chunks)\n", m.ID, len(m.Chunks))
			return nil
		},
	}
}

// textArg returns the memory text from the arguments, falling back to stdin
// so that `kioku store` works in a pipe.
func textArg(c *cli.Command) (string, error) {
	if c.Args().Len() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}

	raw, err := io.ReadAll(c.Root().Reader)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read text from stdin")
	}
	return string(raw), nil
}

func parseMetadata(entries []string) (model.Metadata, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	metadata := model.Metadata{}
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, goerr.New("metadata must be in key=value form",
				goerr.T(model.ErrTagInput), goerr.V("entry", entry))
		}
		metadata[key] = value
	}
	return metadata, nil
}
