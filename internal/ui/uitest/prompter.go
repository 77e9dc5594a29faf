// Package uitest provides a scripted ui.Prompter for tests.
package uitest

import (
	"fmt"
	"strings"
)

// Prompter answers prompts from fixed scripts and records what was asked.
// Running out of script answers "no" to confirmations and "" to lines.
type Prompter struct {
	Confirms []bool
	Lines    []string

	Asked []string
}

// Confirm pops the next scripted confirmation
func (p *Prompter) Confirm(prompt string) bool {
	p.Asked = append(p.Asked, "confirm: "+prompt)
	if len(p.Confirms) == 0 {
		return false
	}
	answer := p.Confirms[0]
	p.Confirms = p.Confirms[1:]
	return answer
}

// ReadLine pops the next scripted line
func (p *Prompter) ReadLine(prompt string) string {
	p.Asked = append(p.Asked, "line: "+prompt)
	if len(p.Lines) == 0 {
		return ""
	}
	answer := p.Lines[0]
	p.Lines = p.Lines[1:]
	return strings.TrimSpace(answer)
}

// ConfirmCount returns how many confirmations were requested
func (p *Prompter) ConfirmCount() int {
	n := 0
	for _, a := range p.Asked {
		if strings.HasPrefix(a, "confirm: ") {
			n++
		}
	}
	return n
}

func (p *Prompter) String() string {
	return fmt.Sprintf("uitest.Prompter(%d asked)", len(p.Asked))
}
