package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func queryCommand() *cli.Command {
	var (
		cfg   config
		raw   bool
		limit int64
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "raw",
			Aliases:     []string{"r"},
			Usage:       "Return the matching chunks without answer synthesis",
			Destination: &raw,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of chunks to retrieve",
			Destination: &limit,
		},
	}
	flags = append(flags, allFlags(&cfg)...)

	return &cli.Command{
		Name:      "query",
		Usage:     "Retrieve memories relevant to a natural language question",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return goerr.New("question is required", goerr.T(model.ErrTagInput))
			}
			question := strings.Join(c.Args().Slice(), " ")

			uc, closer, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer() }()

			out, err := runQuery(ctx, uc, c.Root().ErrWriter, memory.QueryInput{
				Question: question,
				Raw:      raw,
				Limit:    int(limit),
			})
			if err != nil {
				return err
			}

			printQueryOutput(c.Root().Writer, out)
			return nil
		},
	}
}

// runQuery executes the query with a progress spinner on the error stream so
// that stdout stays clean for the result.
func runQuery(ctx context.Context, uc *memory.UseCase, errWriter io.Writer, input memory.QueryInput) (*memory.QueryOutput, error) {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
		spinner.WithWriter(errWriter), spinner.WithSuffix(" searching memories..."))
	sp.Start()
	defer sp.Stop()

	return uc.Query(ctx, input)
}

func printQueryOutput(w io.Writer, out *memory.QueryOutput) {
	if out.Warning != "" {
		fmt.Fprintf(w, "Warning: %s\n\n", out.Warning)
	}

	if out.Answer != "" {
		fmt.Fprintln(w, out.Answer)
		if len(out.Results) > 0 {
			fmt.Fprintln(w, "\nSources:")
		}
	}

	if out.Answer == "" && len(out.Results) == 0 {
		fmt.Fprintln(w, "No matching memories found")
		return
	}

	for _, r := range out.Results {
		printResult(w, r)
	}
}

func printResult(w io.Writer, r *model.SearchResult) {
	fmt.Fprintf(w, "- [%.3f] %s (%s)\n", r.Score, r.Chunk.Text, r.CreatedAt.Format("2006-01-02 15:04"))
}
