package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/zerofox/zerofox/pkg/defaults"
)

// Version information, overridable at build time via ldflags:
// go build -ldflags "-X github.com/zerofox/zerofox/pkg/ui.Commit=abc123"
var (
	Version   = defaults.Version
	BuildDate = "unknown"
	Commit    = "dev"
)

// Global UI state
var (
	silentMode  bool
	noColorMode bool
	output      io.Writer = os.Stderr
	uiMu        sync.RWMutex
)

// SetSilent enables or disables silent mode (suppresses most output)
func SetSilent(silent bool) {
	uiMu.Lock()
	defer uiMu.Unlock()
	silentMode = silent
}

// IsSilent returns whether silent mode is enabled
func IsSilent() bool {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return silentMode
}

// SetNoColor disables colored output
func SetNoColor(noColor bool) {
	uiMu.Lock()
	defer uiMu.Unlock()
	noColorMode = noColor
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsNoColor returns whether color is disabled
func IsNoColor() bool {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return noColorMode
}

// SetOutput redirects console output; nil restores stderr.
func SetOutput(w io.Writer) {
	uiMu.Lock()
	defer uiMu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	output = w
}

// Output returns the current console writer.
func Output() io.Writer {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return output
}

const bannerArt = `
                      ___
 ___ ___ _ _ ___  ___|  _|___ _ _
|- _| -_| '_| . ||___|  _| . |_'_|
|___|___|_| |___|    |_| |___|_,_|
`

const bannerSeparator = "__________________________________________"

// PrintBanner prints the application banner with version info
func PrintBanner() {
	if IsSilent() {
		return
	}
	w := Output()
	for _, line := range strings.Split(bannerArt, "\n") {
		if line != "" {
			fmt.Fprintln(w, BannerStyle.Render(line))
		}
	}
	fmt.Fprintf(w, "                 v%s\n\n", VersionStyle.Render(Version))
}

// PrintDivider prints a horizontal divider
func PrintDivider() {
	fmt.Fprintln(Output(), DividerStyle.Render(bannerSeparator))
}

// PrintSection prints a section header
func PrintSection(title string) {
	if IsSilent() {
		return
	}
	w := Output()
	fmt.Fprintln(w)
	fmt.Fprintln(w, SectionStyle.Render("> "+title))
	PrintDivider()
}

// PrintConfig prints configuration sorted by key
func PrintConfig(config map[string]string) {
	if IsSilent() {
		return
	}
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		PrintConfigLine(k, config[k])
	}
}

// PrintConfigLine prints a single config line
func PrintConfigLine(key, value string) {
	if IsSilent() {
		return
	}
	fmt.Fprintf(Output(), "  %s %s\n",
		ConfigLabelStyle.Render(key+":"),
		ConfigValueStyle.Render(value),
	)
}

// BracketPart represents a piece of bracketed output
type BracketPart struct {
	Text  string
	Style lipgloss.Style
}

// Brackets renders parts nuclei-style: [smoke] [html] https://...
func Brackets(parts ...BracketPart) string {
	var b strings.Builder
	for i, part := range parts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(BracketStyle.Render("["))
		b.WriteString(part.Style.Render(part.Text))
		b.WriteString(BracketStyle.Render("]"))
	}
	return b.String()
}

func StageBracket(stage string) BracketPart {
	return BracketPart{Text: stage, Style: StageStyle(stage)}
}

func ContextBracket(context string) BracketPart {
	return BracketPart{Text: context, Style: ContextStyle}
}

func StatusBracket(code int) BracketPart {
	return BracketPart{Text: fmt.Sprintf("%d", code), Style: StatusCodeStyle(code)}
}

func MutedBracket(text string) BracketPart {
	return BracketPart{Text: text, Style: lipgloss.NewStyle().Foreground(Muted)}
}

// PrintHelp prints contextual help
func PrintHelp(text string) {
	fmt.Fprintln(Output(), HelpStyle.Render("  [i] "+text))
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	if IsSilent() {
		return
	}
	fmt.Fprintln(Output(), PassStyle.Render(Sanitizef("  %s %s", Icon("✔", "[+]"), message)))
}

// PrintError prints an error message; errors are shown even in silent mode
func PrintError(message string) {
	fmt.Fprintln(Output(), FailStyle.Render("  [X] "+message))
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	if IsSilent() {
		return
	}
	fmt.Fprintln(Output(), WarnStyle.Render("  [!] "+message))
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	if IsSilent() {
		return
	}
	fmt.Fprintf(Output(), "  %s %s\n", InfoStyle.Render("*"), message)
}

// Stat is one line of a summary table.
type Stat struct {
	Label string
	Value string
}

// PrintStats prints label/value pairs aligned in a column.
func PrintStats(stats []Stat) {
	if IsSilent() {
		return
	}
	width := 0
	for _, s := range stats {
		if len(s.Label) > width {
			width = len(s.Label)
		}
	}
	w := Output()
	for _, s := range stats {
		fmt.Fprintf(w, "  %s  %s\n",
			StatLabelStyle.Render(s.Label+strings.Repeat(" ", width-len(s.Label))),
			StatValueStyle.Render(s.Value))
	}
}
