// Package picker renders a raw-terminal selection list with arrow-key and
// vim-style navigation.
package picker

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// Pick shows title and items, returns the chosen index. warn, when non-nil,
// flags items that deserve a caution tag next to their label.
func Pick(title string, items []string, warn func(string) bool) (int, error) {
	if len(items) == 0 {
		return 0, fmt.Errorf("nothing to pick from")
	}
	if len(items) == 1 {
		return 0, nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return 0, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	cursor := 0
	renderList := func() {
		fmt.Print("\r\x1b[J")
		fmt.Printf("%s (↑/↓, Enter to confirm):\r\n\r\n", title)
		for i, item := range items {
			tag := ""
			if warn != nil && warn(item) {
				tag = " \x1b[33m[⚠ Lower audio quality]\x1b[0m"
			}
			if i == cursor {
				fmt.Printf("  \x1b[1;36m▶ %s%s\x1b[0m\r\n", item, tag)
			} else {
				fmt.Printf("    %s%s\r\n", item, tag)
			}
		}
	}

	renderList()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("reading input: %w", err)
		}

		if n == 1 {
			switch buf[0] {
			case 13: // Enter
				fmt.Print("\r\n")
				term.Restore(fd, oldState)
				return cursor, nil
			case 3: // Ctrl+C
				fmt.Print("\r\n")
				term.Restore(fd, oldState)
				os.Exit(130)
			case 'j':
				if cursor < len(items)-1 {
					cursor++
				}
			case 'k':
				if cursor > 0 {
					cursor--
				}
			}
		} else if n == 3 && buf[0] == 0x1b && buf[1] == '[' {
			switch buf[2] {
			case 'A': // Up arrow
				if cursor > 0 {
					cursor--
				}
			case 'B': // Down arrow
				if cursor < len(items)-1 {
					cursor++
				}
			}
		}

		lines := len(items) + 2
		fmt.Printf("\x1b[%dA", lines)
		renderList()
	}
}
