package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/uam-labs/arbiter/pkg/contracts"
	"github.com/uam-labs/arbiter/pkg/tracker"
)

// terminalSetup asks the setup questions on the terminal. It is the
// presentation side of training: the answers it collects become the
// persisted training configuration.
type terminalSetup struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminalSetup(in io.Reader, out io.Writer) *terminalSetup {
	return &terminalSetup{in: bufio.NewReader(in), out: out}
}

// CollectAnswers implements training.Setup.
func (s *terminalSetup) CollectAnswers(ctx context.Context, summary tracker.Summary, questions []contracts.Question) (*contracts.AnswerSet, error) {
	fmt.Fprintln(s.out, "")
	fmt.Fprintln(s.out, "=== Arbiter setup ===")
	fmt.Fprintf(s.out, "Active rule set: %d rules, snapshot %s\n", summary.RuleCount, summary.SnapshotHash)
	for typ, n := range summary.PermissionTypes {
		fmt.Fprintf(s.out, "  %-20s %d rules\n", typ, n)
	}
	fmt.Fprintf(s.out, "Auto-grant enabled on %d rules\n", summary.AutoGrantEnabled)
	fmt.Fprintln(s.out, "")

	answers := &contracts.AnswerSet{Answers: make(map[string]string)}
	for _, q := range questions {
		if err := ctx.Err(); err != nil {
			return nil, contracts.ErrSetupCancelled
		}

		fmt.Fprintf(s.out, "%s\n", q.Prompt)
		if q.HelpText != "" {
			fmt.Fprintf(s.out, "  (%s)\n", q.HelpText)
		}
		if !q.Required {
			fmt.Fprintln(s.out, "  [optional, empty to skip]")
		}
		fmt.Fprint(s.out, "> ")

		line, err := s.readAnswer()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contracts.ErrSetupCancelled, err)
		}
		answers.Answers[q.ID] = line
	}

	// Guard expressions are entered one per line, blank line to finish.
	fmt.Fprintln(s.out, "")
	fmt.Fprintln(s.out, "Special-case guard expressions (CEL over user/rule/permission),")
	fmt.Fprintln(s.out, "one per line, blank line to finish:")
	for {
		if err := ctx.Err(); err != nil {
			return nil, contracts.ErrSetupCancelled
		}
		fmt.Fprint(s.out, "> ")
		line, err := s.readAnswer()
		if err != nil || line == "" {
			break
		}
		answers.SpecialCaseGuards = append(answers.SpecialCaseGuards, line)
	}

	return answers, nil
}

func (s *terminalSetup) readAnswer() (string, error) {
	line, err := s.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
