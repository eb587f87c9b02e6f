package confirm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUserDeclined is returned when the operator did not type the confirmation token.
var ErrUserDeclined = errors.New("operation declined by user")

// Token is the only answer that lets a destructive operation proceed.
const Token = "yes"

const prompt = "Are you sure you want to do this?  Type '" + Token + "' to continue: "

// Ask prints the prompt to out and reads one line from in.
func Ask(in io.Reader, out io.Writer) error {
	if _, err := fmt.Fprint(out, prompt); err != nil {
		return err
	}
	// line-buffered writers would otherwise hold the prompt back
	if f, ok := out.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return err
		}
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if strings.TrimSpace(line) != Token {
		fmt.Fprintln(out, "exit")
		return ErrUserDeclined
	}
	fmt.Fprintln(out)
	return nil
}
