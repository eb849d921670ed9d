package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/servicecall/internal/secrets"
)

// secretCommand returns the 'secret' command for managing keyring entries
// referenced as keyring:<name> in header values.
func secretCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "Manage secrets referenced by keyring:<name> header values",
		Commands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Store a secret in the OS keyring",
				ArgsUsage: "NAME",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name, err := secretName(cmd)
					if err != nil {
						return err
					}

					value, err := readSecret(ctx, fmt.Sprintf("Value for %s: ", name))
					if err != nil {
						return err
					}
					if value == "" {
						return errors.New("refusing to store an empty secret")
					}

					if err := secrets.New(s.cfg.Secrets.Service).Set(name, value); err != nil {
						return err
					}
					fmt.Fprintf(os.Stderr, "Secret %s stored; reference it as %s%s\n", name, secrets.Prefix, name)
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Remove a secret from the OS keyring",
				ArgsUsage: "NAME",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name, err := secretName(cmd)
					if err != nil {
						return err
					}
					if err := secrets.New(s.cfg.Secrets.Service).Delete(name); err != nil {
						return err
					}
					fmt.Fprintf(os.Stderr, "Secret %s deleted\n", name)
					return nil
				},
			},
		},
	}
}

func secretName(cmd *cli.Command) (string, error) {
	if cmd.NArg() != 1 || strings.TrimSpace(cmd.Args().First()) == "" {
		return "", cli.Exit("expected exactly one NAME argument", 2)
	}
	return strings.TrimSpace(cmd.Args().First()), nil
}

// readSecret prompts with hidden input on a terminal and reads one line from
// stdin otherwise, so secrets can be piped in.
func readSecret(ctx context.Context, prompt string) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return readSecureInput(ctx, prompt)
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read secret from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readSecureInput reads user input with hidden display and context cancellation support.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}
