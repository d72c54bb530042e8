package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword returns the password from LDAPAUTH_PASSWORD, or prompts on
// errOut and reads it from in. Terminal input is read without echo; piped
// input is read up to the first newline.
func readPassword(in io.Reader, errOut io.Writer) (string, error) {
	if password, ok := os.LookupEnv(envPassword); ok {
		return password, nil
	}

	fmt.Fprint(errOut, "Password: ")

	if f, ok := in.(*os.File); ok {
		fd := int(f.Fd())
		if term.IsTerminal(fd) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(errOut)
			if err != nil {
				return "", fmt.Errorf("failed to read password: %w", err)
			}
			return string(b), nil
		}
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
