// Package interactive provides the interactive command-line interface
// for fwctl.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/fwctl/fwctl-go/pkg/config"
	"github.com/fwctl/fwctl-go/pkg/quadlet"
)

// Reader reads one quadlet at a hex address and renders it.
type Reader interface {
	Read(ctx context.Context, addr string) (string, error)
}

// Loop runs functions on the event loop that owns the unit.
type Loop interface {
	Do(ctx context.Context, fn func()) error
	Quit()
}

// lineReader is the part of *readline.Instance the console uses.
type lineReader interface {
	Readline() (string, error)
	Stdout() io.Writer
	Close() error
}

// Console handles interactive mode for fwctl.
type Console struct {
	reader Reader
	loop   Loop
	cfg    config.ConsoleConfig
	rl     lineReader
}

// New creates a console reading from the terminal.
func New(r Reader, loop Loop, cfg config.ConsoleConfig) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "fwctl> ",
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("read"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{reader: r, loop: loop, cfg: cfg, rl: rl}, nil
}

// Close releases the terminal. A blocked Run returns.
func (c *Console) Close() error {
	return c.rl.Close()
}

// Run reads commands until quit, EOF, Ctrl-C or ctx is done. Leaving the
// console stops the event loop. The terminal is in raw mode while a line is
// read, so Ctrl-C arrives here as readline.ErrInterrupt instead of SIGINT.
func (c *Console) Run(ctx context.Context) {
	c.printHelp(c.rl.Stdout())

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			fmt.Fprintln(c.rl.Stdout(), "Interrupted.")
			c.loop.Quit()
			return
		}
		if err != nil {
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			c.loop.Quit()
			return
		}

		if c.Execute(ctx, line, c.rl.Stdout()) {
			c.loop.Quit()
			return
		}
	}
}

// Execute runs one command line and writes its output to w. It returns
// true when the console should exit.
func (c *Console) Execute(ctx context.Context, line string, w io.Writer) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp(w)
	case "read", "r":
		c.cmdRead(ctx, args, w)
	case "quit", "exit", "q":
		return true
	default:
		if _, err := quadlet.ParseAddress(cmd); err == nil {
			c.cmdRead(ctx, parts, w)
			return false
		}
		fmt.Fprintf(w, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp(w io.Writer) {
	fmt.Fprintf(w, `
fwctl Commands:
    read [address]     - Read one quadlet (default 0x%012x)
    <address>          - Same as read <address>
    help               - Show this help
    quit               - Exit

  Addresses are hex, with or without 0x.
`, c.cfg.ReadAddress)
}

// cmdRead reads on the event loop so the result is ordered with unit
// callbacks.
func (c *Console) cmdRead(ctx context.Context, args []string, w io.Writer) {
	addr := fmt.Sprintf("0x%012x", c.cfg.ReadAddress)
	if len(args) > 0 {
		addr = args[0]
	}

	var (
		value   string
		readErr error
	)
	if err := c.loop.Do(ctx, func() {
		value, readErr = c.reader.Read(ctx, addr)
	}); err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	if readErr != nil {
		fmt.Fprintf(w, "Error: %v\n", readErr)
		return
	}
	fmt.Fprintln(w, value)
}
