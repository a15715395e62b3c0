package common

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/howeyc/gopass"
)

func Die(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

// Prompter reads one answer per line. A read that outlives a cancelled
// prompt is handed to the next prompt rather than lost.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer

	mu      sync.Mutex
	pending chan answer
}

type answer struct {
	text string
	err  error
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Stdin prompts on the terminal.
var Stdin = NewPrompter(os.Stdin, os.Stdout)

// Ask prints prompt and returns the next input line without surrounding
// whitespace. It gives up with ctx's error when ctx ends first.
func (p *Prompter) Ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.out, prompt)

	p.mu.Lock()
	if p.pending == nil {
		var ch = make(chan answer, 1)
		p.pending = ch
		go func() {
			text, err := p.in.ReadString('\n')
			ch <- answer{text: text, err: err}
		}()
	}
	var pending = p.pending
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	case a := <-pending:
		p.mu.Lock()
		p.pending = nil
		p.mu.Unlock()
		if a.err != nil && a.text == "" {
			return "", a.err
		}
		return strings.TrimSpace(a.text), nil
	}
}

func DefaultDirectory() string {
	var homeDirectory string
	if runtime.GOOS == "windows" {
		homeDirectory = os.Getenv("APPDATA")
	} else {
		homeDirectory = os.Getenv("HOME")
	}
	return filepath.Join(homeDirectory, ".otpkeeper")
}

// GetPassword asks for the passphrase of an existing database.
func GetPassword() ([]byte, error) {
	fmt.Printf("Enter passphrase: ")
	return gopass.GetPasswd()
}

// GetNewPassword asks for a passphrase twice. An empty passphrase means the
// database is stored unencrypted and is returned as nil.
func GetNewPassword() ([]byte, error) {
	for {
		fmt.Printf("Enter the passphrase (empty for no passphrase): ")
		password, err := gopass.GetPasswd()
		if err != nil {
			return nil, err
		}
		if len(password) == 0 {
			return nil, nil
		}
		fmt.Printf("Enter the same passphrase again: ")
		password2, err := gopass.GetPasswd()
		if err != nil {
			return nil, err
		}
		if string(password) == string(password2) {
			return password, nil
		}
		fmt.Println("Passphrases don't match")
	}
}
