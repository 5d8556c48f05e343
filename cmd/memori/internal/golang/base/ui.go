package base

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrOpCancelled is returned when the user declines a confirmation prompt.
var ErrOpCancelled = errors.New("operation cancelled")

// YesNo prompts the user on stdout and reads the answer from stdin.  The
// default answer is no.
func YesNo(message string) bool {
	return YesNoWR(os.Stdout, os.Stdin, message)
}

func YesNoWR(w io.Writer, r io.Reader, message string) bool {
	const pleaseAnswerYN = "Please answer yes or no and press Enter or Return."
	for {
		fmt.Fprint(w, message, "? (y/N) ")
		var resp string
		if _, err := fmt.Fscanln(r, &resp); err != nil {
			// Fscanln has no typed error for a bare Enter press.
			if strings.EqualFold(err.Error(), "unexpected newline") {
				return false
			}
			fmt.Fprintln(w, pleaseAnswerYN)
			continue
		}
		switch strings.ToLower(strings.TrimSpace(resp)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		fmt.Fprintln(w, pleaseAnswerYN)
	}
}
