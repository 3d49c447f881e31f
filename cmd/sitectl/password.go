package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"maritimeacademy/site-admin/internal/auth"
)

func runHashPassword(_ context.Context, args []string, stdin *os.File, stdout io.Writer) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	cost := fs.Int("cost", 0, "bcrypt cost (0 uses the library default)")
	skipPolicy := fs.Bool("skip-policy", false, "hash even if the password fails the strength policy")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	pass, err := readPassword(stdin, stdout, "Password: ")
	if err != nil {
		return err
	}
	if !*skipPolicy {
		if err := auth.ValidatePasswordPolicy(pass); err != nil {
			return err
		}
	}
	hash, err := auth.Hasher{Cost: *cost}.Hash(pass)
	if err != nil {
		return fmt.Errorf("while hashing password: %w", err)
	}
	fmt.Fprintln(stdout, hash)
	return nil
}

// readPassword prompts without echo on a terminal. Otherwise it reads one
// line, so passwords can be piped in.
func readPassword(stdin *os.File, prompt io.Writer, label string) (string, error) {
	if term.IsTerminal(int(stdin.Fd())) {
		fmt.Fprint(prompt, label)
		pass, err := term.ReadPassword(int(stdin.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("while reading password: %w", err)
		}
		return string(pass), nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("while reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
