package cli

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/term"
)

const indentUnit = 4

func indent(level int) string { return strings.Repeat(" ", indentUnit*level) }

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	FlagSet     *FlagSet
	Action      func(args []string) error

	// Stdout receives the help page, Stderr the usage page on flag errors.
	Stdout io.Writer
	Stderr io.Writer
	// Width of the help page; zero asks the terminal.
	Width int
}

func NewApp(name string) *App {
	return &App{
		Name:    name,
		FlagSet: NewFlagSet(name),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintln(a.Stderr, err)
		a.writeUsage(a.Stderr)
		return err
	}
	if help {
		a.writeHelp(a.Stdout)
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

func (a *App) width() int {
	if a.Width > 0 {
		return a.Width
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 20)
}

// layout holds the column widths shared by every entry of a page.
type layout struct {
	termWidth  int
	leftWidth  int
	usageWidth int
}

func (a *App) writeUsage(w io.Writer) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Usage: %s %s\n", a.Name, a.Synopsis)

	options := a.optionFlags()
	if len(options) > 0 {
		l := layout{termWidth: a.width()}
		for _, flag := range options {
			l.leftWidth = max(l.leftWidth, len(formatFlag(flag)))
			l.usageWidth = max(l.usageWidth, len(flag.Usage))
		}
		fmt.Fprintf(&sb, "\n%sOptions\n", indent(1))
		for _, flag := range options {
			l.flagLine(&sb, flag)
		}
	}
	fmt.Fprintf(&sb, "\nRun '%s --help' for all available options and flags.\n", a.Name)
	fmt.Fprint(w, sb.String())
}

func (a *App) writeHelp(w io.Writer) {
	var sb strings.Builder
	options := a.optionFlags()
	l := layout{termWidth: a.width()}
	for _, flag := range options {
		l.leftWidth = max(l.leftWidth, len(formatFlag(flag)))
		l.usageWidth = max(l.usageWidth, len(flag.Usage))
	}
	for _, group := range a.FlagSet.flagGroups {
		prefix := group.Flags[0].Prefix
		l.leftWidth = max(l.leftWidth, len(fmt.Sprintf("-%sno-<%s>", prefix, group.GroupType)))
		for _, entry := range group.Flags {
			l.leftWidth = max(l.leftWidth, len(entry.Name))
			l.usageWidth = max(l.usageWidth, len(entry.Usage))
		}
	}

	fmt.Fprintf(&sb, "\n%sCopyright (c) %d: %s\n", indent(1), time.Now().Year(), strings.Join(a.Authors, ", ")+" and contributors")
	if a.Repository != "" {
		fmt.Fprintf(&sb, "%sFor more details refer to %s\n", indent(1), a.Repository)
	}
	if a.Synopsis != "" {
		synopsis := strings.NewReplacer("[", "<", "]", ">").Replace(a.Synopsis)
		fmt.Fprintf(&sb, "\n%sSynopsis\n%s%s %s\n", indent(1), indent(2), a.Name, synopsis)
	}
	if a.Description != "" {
		fmt.Fprintf(&sb, "\n%sDescription\n%s%s\n", indent(1), indent(2), a.Description)
	}
	if len(options) > 0 {
		fmt.Fprintf(&sb, "\n%sOptions\n", indent(1))
		for _, flag := range options {
			l.flagLine(&sb, flag)
		}
	}

	groups := slices.Clone(a.FlagSet.flagGroups)
	slices.SortFunc(groups, func(x, y FlagGroup) int { return strings.Compare(x.Name, y.Name) })
	for _, group := range groups {
		l.group(&sb, group)
	}
	fmt.Fprint(w, sb.String())
}

// optionFlags returns the flags that are neither special prefixes nor
// members of a flag group, sorted by name.
func (a *App) optionFlags() []*Flag {
	grouped := make(map[string]bool)
	for _, group := range a.FlagSet.flagGroups {
		for _, e := range group.Flags {
			grouped[e.Prefix+e.Name] = true
			grouped[e.Prefix+"no-"+e.Name] = true
		}
	}
	var options []*Flag
	for name, flag := range a.FlagSet.flags {
		if _, special := a.FlagSet.specialPrefix[name]; special || grouped[name] {
			continue
		}
		options = append(options, flag)
	}
	slices.SortFunc(options, func(x, y *Flag) int { return strings.Compare(x.Name, y.Name) })
	return options
}

func formatFlag(flag *Flag) string {
	if flag.Shorthand == "" {
		if flag.isBool() || flag.ExpectedType == "" {
			return "--" + flag.Name
		}
		return fmt.Sprintf("--%s=%s", flag.Name, flag.ExpectedType)
	}
	if flag.isBool() {
		return fmt.Sprintf("-%s, --%s", flag.Shorthand, flag.Name)
	}
	return fmt.Sprintf("-%s <%s>, --%s <%s>", flag.Shorthand, flag.ExpectedType, flag.Name, flag.ExpectedType)
}

func (l layout) flagLine(sb *strings.Builder, flag *Flag) {
	right := ""
	if !flag.isBool() && flag.DefValue != "" && flag.DefValue != "[]" && flag.DefValue != "0" {
		right = fmt.Sprintf("|%s|", flag.DefValue)
	}
	l.entry(sb, formatFlag(flag), flag.Usage, right)
}

// entry writes a left column, the usage text wrapped to the terminal and
// an optional right column on the first line.
func (l layout) entry(sb *strings.Builder, left, usage, right string) {
	maxUsage := max(l.termWidth-(indentUnit*2+l.leftWidth+3+len(right)), 10)
	lines := wrapText(usage, maxUsage)
	first := ""
	if len(lines) > 0 {
		first = lines[0]
	}
	if right != "" {
		fmt.Fprintf(sb, "%s%-*s %-*s  %s\n", indent(2), l.leftWidth, left, min(l.usageWidth, maxUsage), first, right)
	} else {
		fmt.Fprintf(sb, "%s%-*s %s\n", indent(2), l.leftWidth, left, first)
	}
	for _, line := range lines[min(1, len(lines)):] {
		fmt.Fprintf(sb, "%s%s%s\n", indent(2), strings.Repeat(" ", l.leftWidth+1), line)
	}
}

func (l layout) group(sb *strings.Builder, group FlagGroup) {
	prefix := group.Flags[0].Prefix
	kind := group.GroupType
	if kind == "" {
		kind = "flag"
	}
	fmt.Fprintf(sb, "\n%s%s\n", indent(1), group.Name)
	fmt.Fprintf(sb, "%s%-*s Enable a specific %s\n", indent(2), l.leftWidth, fmt.Sprintf("-%s<%s>", prefix, kind), kind)
	fmt.Fprintf(sb, "%s%-*s Disable a specific %s\n", indent(2), l.leftWidth, fmt.Sprintf("-%sno-<%s>", prefix, kind), kind)
	if group.AvailableFlagsHeader != "" {
		fmt.Fprintf(sb, "%s%s\n", indent(1), group.AvailableFlagsHeader)
	}

	entries := slices.Clone(group.Flags)
	slices.SortFunc(entries, func(x, y FlagGroupEntry) int { return strings.Compare(x.Name, y.Name) })
	for _, e := range entries {
		state := "|-|"
		if e.Enabled != nil && *e.Enabled && (e.Disabled == nil || !*e.Disabled) {
			state = "|x|"
		}
		l.entry(sb, e.Name, e.Usage, state)
	}
}

func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if maxWidth <= 0 || len(words) == 0 {
		return words
	}
	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if len(current)+1+len(word) > maxWidth {
			lines = append(lines, current)
			current = word
			continue
		}
		current += " " + word
	}
	return append(lines, current)
}
