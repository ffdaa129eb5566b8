package prompt

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C).
var ErrAborted = errors.New("aborted")

// IsAborted reports whether err means the user gave up on a prompt.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Input asks for free text, prefilled with def.
func Input(label, def string) (string, error) {
	return run(promptui.Prompt{Label: label, Default: def})
}

// InputAddress asks for a host:port pair, prefilled with def.
func InputAddress(label, def string) (string, error) {
	return run(promptui.Prompt{Label: label, Default: def, Validate: ValidateAddress})
}

func run(p promptui.Prompt) (string, error) {
	result, err := p.Run()
	return result, wrapError(err)
}

// ValidateAddress accepts host:port with a port in 1-65535.
func ValidateAddress(input string) error {
	_, portStr, err := net.SplitHostPort(input)
	if err != nil {
		return fmt.Errorf("must be host:port")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a valid port (1-65535)")
	}
	return nil
}
