package confirm

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"
)

// promptKeyFunc is a var indirection so tests can substitute a fake reader.
var promptKeyFunc = promptKey

// promptKey draws the confirmation prompt and blocks for a single keypress.
// On a real TTY it puts stdin into raw mode via golang.org/x/term so the
// answer doesn't require Enter; x/term stands in for hand-written per-OS
// termios/ioctl implementations with one portable call. When stdin isn't a
// terminal (piped input, tests) it falls back to a line read.
func promptKey(ctx context.Context, toolName, preview string) (byte, error) {
	fmt.Printf("\n%s\n", preview)
	fmt.Printf("Allow %s? [y]es/[n]o/[a]lways/[?]help: ", toolName)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		b, err := readLineKey()
		fmt.Println()
		return b, err
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		b, rerr := readLineKey()
		fmt.Println()
		return b, rerr
	}
	defer term.Restore(fd, state)

	type result struct {
		b   byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := os.Stdin.Read(buf)
		ch <- result{buf[0], err}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-ch:
		fmt.Println()
		return r.b, r.err
	}
}

func readLineKey() (byte, error) {
	var line string
	_, err := fmt.Scanln(&line)
	if err != nil && len(line) == 0 {
		return 0, err
	}
	if len(line) == 0 {
		return '\n', nil
	}
	return line[0], nil
}

func printHelp() {
	fmt.Println("  y - allow this call")
	fmt.Println("  n - refuse this call")
	fmt.Println("  a - allow this and every later call this session (auto mode)")
	fmt.Println("  ? - show this help")
}
