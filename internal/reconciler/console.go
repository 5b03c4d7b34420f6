package reconciler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ConsoleOperator asks a human on a terminal to resolve vehicles
type ConsoleOperator struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewConsoleOperator creates an operator reading answers from in and writing prompts to out
func NewConsoleOperator(in io.Reader, out io.Writer) *ConsoleOperator {
	return &ConsoleOperator{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// Brief prints the known units and the vehicles that still need attention
func (c *ConsoleOperator) Brief(_ context.Context, knownUnits, pending []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out, "Known units:")
	fmt.Fprintf(c.out, "  %s\n", strings.Join(knownUnits, ", "))
	fmt.Fprintf(c.out, "Vehicles without a unit (%d):\n", len(pending))
	for _, vehicle := range pending {
		fmt.Fprintf(c.out, "  %s\n", vehicle)
	}
	return nil
}

// Resolve asks whether the vehicle has a matching unit and, if so, which one
func (c *ConsoleOperator) Resolve(ctx context.Context, q Query) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\nInfo for %s:\n", q.Vehicle)
	if len(q.Descriptors) == 0 {
		fmt.Fprintln(c.out, "  (no descriptor)")
	}
	for _, desc := range q.Descriptors {
		fmt.Fprintf(c.out, "  %s\n", desc)
	}

	yes, err := c.askYesNo(ctx, fmt.Sprintf("Is there a matching unit for %s?", q.Vehicle), false)
	if err != nil || !yes {
		return "", false, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		fmt.Fprint(c.out, "Enter unit: ")
		line, err := c.readLine()
		if err != nil {
			return "", false, err
		}
		switch {
		case isAbort(line):
			return "", false, ErrAborted
		case line != "":
			return line, true, nil
		}
	}
}

// isAbort reports whether an answer asks to stop the run
func isAbort(answer string) bool {
	switch strings.ToLower(answer) {
	case "q", "quit", "abort":
		return true
	}
	return false
}

// Confirm asks a yes/no question, def being the answer for an empty line
func (c *ConsoleOperator) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.askYesNo(ctx, question, def)
}

func (c *ConsoleOperator) askYesNo(ctx context.Context, question string, def bool) (bool, error) {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "%s %s ", question, hint)
		line, err := c.readLine()
		if err != nil {
			return false, err
		}

		if isAbort(line) {
			return false, ErrAborted
		}
		switch strings.ToLower(line) {
		case "":
			return def, nil
		case "y", "ye", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		default:
			fmt.Fprintln(c.out, "Please respond with 'yes' or 'no' (or 'y' or 'n').")
		}
	}
}

// readLine returns the next trimmed line; end of input aborts the run
func (c *ConsoleOperator) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil {
		if err == io.EOF && strings.TrimSpace(line) != "" {
			return strings.TrimSpace(line), nil
		}
		if err == io.EOF {
			return "", ErrAborted
		}
		return "", fmt.Errorf("failed to read operator input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
