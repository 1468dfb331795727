package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func interactiveCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:    "interactive",
		Aliases: []string{"i"},
		Usage:   "Interactive shell for storing and querying memories",
		Flags:   allFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closer() }()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "kioku> ",
				HistoryFile:     filepath.Join(os.TempDir(), ".kioku_history"),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize interactive shell")
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintln(w, "Interactive memory shell. Type /help for commands, /quit to exit.")

			shell := &shell{uc: uc, out: w, errOut: c.Root().ErrWriter}
			for {
				line, err := rl.Readline()
				if err == readline.ErrInterrupt {
					if len(line) == 0 {
						break
					}
					continue
				}
				if err == io.EOF {
					break
				}

				if quit := shell.handle(ctx, strings.TrimSpace(line)); quit {
					break
				}
			}
			return nil
		},
	}
}

type shell struct {
	uc     *memory.UseCase
	out    io.Writer
	errOut io.Writer
}

// handle processes one input line. Errors are printed rather than returned
// so a failed operation never ends the session.
func (s *shell) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		s.printHelp()

	case "/store":
		m, err := s.uc.Store(ctx, memory.StoreInput{Text: rest})
		if err != nil {
			fmt.Fprintf(s.out, "Error: %s\n", err)
			return false
		}
		fmt.Fprintf(s.out, "Stored memory %s (%d chunks)\n", m.ID, len(m.Chunks))

	case "/raw":
		s.query(ctx, rest, true)

	case "/count":
		count, err := s.uc.Count(ctx)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %s\n", err)
			return false
		}
		fmt.Fprintf(s.out, "%d chunks stored\n", count)

	default:
		if strings.HasPrefix(cmd, "/") {
			fmt.Fprintf(s.out, "Unknown command: %s (try /help)\n", cmd)
			return false
		}
		s.query(ctx, line, false)
	}
	return false
}

func (s *shell) query(ctx context.Context, question string, raw bool) {
	out, err := runQuery(ctx, s.uc, s.errOut, memory.QueryInput{
		Question: question,
		Raw:      raw,
	})
	if err != nil {
		fmt.Fprintf(s.out, "Error: %s\n", err)
		return
	}
	printQueryOutput(s.out, out)
}

func (s *shell) printHelp() {
	fmt.Fprint(s.out, `Commands:
  /store <text>   Store text as a new memory
  /raw <query>    Search without answer synthesis
  /count          Show the number of stored chunks
  /quit, /exit    Leave the shell
Any other input is treated as a query.
`)
}
