// Command hashpw prints the salted hash of an admin password for
// config.yaml. The password is read from stdin, never from argv, so it
// stays out of shell history and process listings.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/term"
	"minishelf/internal/auth"
)

func main() {
	password, err := readPassword()
	if err != nil {
		log.Fatalf("read password: %v", err)
	}
	if password == "" {
		log.Fatal("password must not be empty")
	}
	fmt.Println(auth.HashPassword(password))
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "password: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
