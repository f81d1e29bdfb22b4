package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"showoff/internal/infra/config"
)

func newEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [VALUE]",
		Short: "Encrypt a secret for use as an enc: config value",
		Long: `Encrypt a gateway or surface token so it can be stored in config.yaml
as "enc:<output>". The passphrase is read from SHOWOFF_CONFIG_KEY, or
prompted for when stdin is a terminal. VALUE defaults to the first line
of stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()

			passphrase := os.Getenv(config.ConfigKeyEnv)
			if passphrase == "" {
				p, err := promptPassphrase(in, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				passphrase = p
			}

			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				line, err := bufio.NewReader(in).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read value: %w", err)
				}
				value = strings.TrimRight(line, "\r\n")
			}
			if value == "" {
				return errors.New("nothing to encrypt")
			}

			enc, err := config.EncryptValue(value, passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enc:%s\n", enc)
			return nil
		},
	}
}

// promptPassphrase reads a passphrase without echo. It fails when in is not
// a terminal so scripts must set the environment variable instead.
func promptPassphrase(in io.Reader, prompt io.Writer) (string, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", fmt.Errorf("%s is not set and stdin is not a terminal", config.ConfigKeyEnv)
	}

	fmt.Fprint(prompt, "Passphrase: ")
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if len(b) == 0 {
		return "", errors.New("empty passphrase")
	}
	return string(b), nil
}
