package prompt

import (
	"io"

	"github.com/manifoldco/promptui"
)

// Line reads one line of input for an interactive session. io.EOF is
// returned on Ctrl+D and ErrAborted on Ctrl+C.
func Line(label string) (string, error) {
	prompt := promptui.Prompt{
		Label: label,
		Templates: &promptui.PromptTemplates{
			Prompt:  "{{ . }} ",
			Valid:   "{{ . }} ",
			Invalid: "{{ . }} ",
			Success: "{{ . }} ",
		},
	}

	result, err := prompt.Run()
	if err == promptui.ErrEOF {
		return "", io.EOF
	}
	return result, wrapError(err)
}
