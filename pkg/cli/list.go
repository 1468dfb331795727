package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

const summaryRunes = 80

func listCommand() *cli.Command {
	var (
		cfg    config
		offset int64
		limit  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Offset for pagination",
			Value:       0,
			Sources:     cli.EnvVars("KIOKU_LIST_OFFSET"),
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Usage:       "Maximum number of memories to list",
			Value:       100,
			Sources:     cli.EnvVars("KIOKU_LIST_LIMIT"),
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List stored memories, newest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := cfg.newLocalUseCase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer() }()

			memories, err := uc.List(ctx, memory.ListOptions{
				Offset: int(offset),
				Limit:  int(limit),
			})
			if err != nil {
				return goerr.Wrap(err, "failed to list memories")
			}

			for _, m := range memories {
				fmt.Fprintf(c.Root().Writer, "%s  %s  %s\n",
					m.ID, m.CreatedAt.Format("2006-01-02 15:04"), m.Summary(summaryRunes))
			}
			fmt.Fprintf(c.Root().Writer, "\n%d memories\n", len(memories))
			return nil
		},
	}
}

func countCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "count",
		Usage: "Show the number of stored chunks",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := cfg.newLocalUseCase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer() }()

			count, err := uc.Count(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "%d\n", count)
			return nil
		},
	}
}
