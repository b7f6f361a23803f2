package pathguard

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// maxListed caps how many existing files the prompt names
const maxListed = 10

// OverwriteRefusedError is returned when existing files would be replaced without a terminal to ask
type OverwriteRefusedError struct {
	Count int
}

func (e *OverwriteRefusedError) Error() string {
	return fmt.Sprintf("Refusing to overwrite %d existing file(s) in non-interactive mode. Use --force to override.", e.Count)
}

func (e *OverwriteRefusedError) Unwrap() error {
	return domain.ErrOverwriteRefused
}

// OverwritePolicy decides whether existing destination files may be replaced
type OverwritePolicy struct {
	Force       bool
	Interactive bool
	In          io.Reader
	Out         io.Writer
	Logger      *utils.Logger
}

// NewOverwritePolicy creates a policy bound to the process terminal
func NewOverwritePolicy(force bool, logger *utils.Logger) *OverwritePolicy {
	return &OverwritePolicy{
		Force:       force,
		Interactive: IsInteractive(),
		In:          os.Stdin,
		Out:         os.Stderr,
		Logger:      logger,
	}
}

// IsInteractive reports whether both stdin and stdout are terminals
func IsInteractive() bool {
	return isTerminal(os.Stdin) && isTerminal(os.Stdout)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Check asks once for the whole batch of existing files.
// Force approves without asking, a terminal gets a [y/N] prompt, and anything else is refused.
func (p *OverwritePolicy) Check(existing []string) error {
	if len(existing) == 0 {
		return nil
	}

	if p.Force {
		if p.Logger != nil {
			p.Logger.Debug().Int("count", len(existing)).Msg("Force set, overwriting existing files")
		}
		return nil
	}

	if !p.Interactive {
		return &OverwriteRefusedError{Count: len(existing)}
	}

	if p.Logger != nil {
		p.Logger.Warn().Int("count", len(existing)).Msg("Existing files will be overwritten if confirmed")
	}
	return p.prompt(existing)
}

func (p *OverwritePolicy) prompt(existing []string) error {
	out := p.Out
	if out == nil {
		out = io.Discard
	}

	fmt.Fprintf(out, "\nThe following %d file(s) already exist:\n", len(existing))
	for i, path := range existing {
		if i == maxListed {
			break
		}
		fmt.Fprintf(out, "  - %s\n", path)
	}
	if len(existing) > maxListed {
		fmt.Fprintf(out, "  ... and %d more\n", len(existing)-maxListed)
	}
	fmt.Fprint(out, "\nOverwrite these file(s)? [y/N]: ")

	if p.In == nil {
		return domain.ErrOverwriteDeclined
	}
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && line == "" {
		return domain.ErrOverwriteDeclined
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	default:
		return domain.ErrOverwriteDeclined
	}
}
