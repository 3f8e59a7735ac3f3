package dialog

import (
	"fmt"
	"sort"
	"strings"
)

// Command importance buckets, used only to order the generated help
// listing (original_source/passerd's dialogs.py CMD_IMP_* constants).
const (
	ImportantCmd       = 0
	CommonCmd          = 2
	InterestingCmd     = 5
	UnimportantCmd     = 6
	AdvancedCmd        = 8
	DebuggingCmd       = 8
	AliasCmd           = 7
	DefaultImportance  = InterestingCmd
)

// CommandFunc handles one `COMMAND args` invocation.
type CommandFunc func(args string) error

type commandEntry struct {
	name       string
	fn         CommandFunc
	shortHelp  string
	importance int
	longHelp   func(args string)
}

// CommandOption customizes a registered command's help/importance.
type CommandOption func(*commandEntry)

// WithShortHelp sets the one-line description shown in the command list.
func WithShortHelp(s string) CommandOption { return func(e *commandEntry) { e.shortHelp = s } }

// WithImportance overrides a command's default help-listing bucket.
func WithImportance(imp int) CommandOption { return func(e *commandEntry) { e.importance = imp } }

// WithLongHelp sets the handler run for `HELP <command> [args]`.
func WithLongHelp(fn func(args string)) CommandOption {
	return func(e *commandEntry) { e.longHelp = fn }
}

// CommandDialog is a Dialog specialized for `COMMAND args` messages: a
// command table, sub-dialogs, aliases, and an auto-generated HELP command
// (original_source/passerd's dialogs.py CommandDialog).
type CommandDialog struct {
	Dialog

	cmdPrefix  string
	helpHeader string
	order      []string
	commands   map[string]*commandEntry
}

// NewCommandDialog returns a CommandDialog with HELP/? wired in.
func NewCommandDialog() *CommandDialog {
	cd := &CommandDialog{commands: make(map[string]*commandEntry)}
	cd.AddCommand("help", cd.commandHelp,
		WithShortHelp("Show help"),
		WithImportance(UnimportantCmd),
		WithLongHelp(func(args string) { cd.Message(cd.syntax("help", "command-or-topic")) }),
	)
	cd.AddAlias("?", "help")
	return cd
}

// SetCmdPrefix sets the prefix shown on command examples in help text
// (e.g. "!" for channel commands), propagating to any sub-dialogs.
func (cd *CommandDialog) SetCmdPrefix(prefix string) {
	cd.cmdPrefix = prefix
}

// SetHelpHeader sets a line printed before the command list in HELP
// output with no arguments.
func (cd *CommandDialog) SetHelpHeader(s string) { cd.helpHeader = s }

// AddCommand registers cmd (case-insensitively) to run fn.
func (cd *CommandDialog) AddCommand(cmd string, fn CommandFunc, opts ...CommandOption) {
	cmd = strings.ToLower(cmd)
	e := &commandEntry{name: cmd, fn: fn, importance: DefaultImportance}
	for _, o := range opts {
		o(e)
	}
	if _, exists := cd.commands[cmd]; !exists {
		cd.order = append(cd.order, cmd)
	}
	cd.commands[cmd] = e
}

// AddAlias registers alias as a synonym for an already-registered target
// command, inheriting its handler and deriving a "Synonym to X" short
// help line.
func (cd *CommandDialog) AddAlias(alias, target string) {
	alias = strings.ToLower(alias)
	target = strings.ToLower(target)

	tgt, ok := cd.commands[target]
	if !ok {
		panic(fmt.Sprintf("dialog: AddAlias(%q, %q): unknown target command", alias, target))
	}

	sh := ""
	if tgt.shortHelp != "" {
		sh = fmt.Sprintf("Synonym to `%s`: %s", strings.ToUpper(target), tgt.shortHelp)
	}

	e := &commandEntry{name: alias, fn: tgt.fn, importance: AliasCmd, shortHelp: sh}
	if _, exists := cd.commands[alias]; !exists {
		cd.order = append(cd.order, alias)
	}
	cd.commands[alias] = e
}

// AddSubdialog mounts sub under cmd: "CMD rest-of-message" is forwarded
// to sub.RecvMessage("rest-of-message"), and sub inherits this dialog's
// message func and an extended command prefix.
func (cd *CommandDialog) AddSubdialog(cmd string, sub *CommandDialog, shortHelp string) {
	cmd = strings.ToLower(cmd)
	sub.SetCmdPrefix(cd.cmdPrefix + strings.ToUpper(cmd) + " ")
	sub.SetMessageFunc(cd.Message)

	if shortHelp == "" {
		shortHelp = sub.helpHeader
	}

	handle := func(args string) error {
		sub.RecvMessage(args)
		return nil
	}

	cd.AddCommand(cmd, handle,
		WithShortHelp(shortHelp),
		WithLongHelp(func(args string) { sub.ShowHelp(strings.ToUpper(cmd)+": ", args) }),
	)
}

func (cd *CommandDialog) lookup(cmd string) (*commandEntry, bool) {
	e, ok := cd.commands[strings.ToLower(cmd)]
	return e, ok
}

// SplitArgs splits "cmd rest of message" into its command word and the
// (possibly empty) remainder.
func SplitArgs(s string) (cmd, args string) {
	s = strings.TrimLeft(s, " ")
	parts := strings.SplitN(s, " ", 2)
	cmd = parts[0]
	if len(parts) > 1 {
		args = parts[1]
	}
	return cmd, args
}

// TryMsg attempts to run msg as a command, returning whether a matching
// command was found. A matched command's error (if any) is reported via
// ErrorReply rather than returned, so a dialog's overall message loop
// never needs to unwind on a single failed command.
func (cd *CommandDialog) TryMsg(msg string) (handled bool, cmd, args string) {
	cmd, args = SplitArgs(msg)
	e, ok := cd.lookup(cmd)
	if !ok {
		return false, cmd, args
	}
	if err := e.fn(args); err != nil {
		cd.ErrorReply(msg, err)
	}
	return true, cmd, args
}

// RecvMessage overrides Dialog.RecvMessage with command dispatch.
func (cd *CommandDialog) RecvMessage(msg string) {
	handled, cmd, args := cd.TryMsg(msg)
	if !handled {
		cd.UnknownCommand(cmd, args)
	}
}

// UnknownCommand is called when msg's first word isn't a registered
// command.
func (cd *CommandDialog) UnknownCommand(cmd, args string) {
	cd.Message(fmt.Sprintf("Sorry, I don't get it. Type '%sHELP' for available commands", cd.cmdPrefix))
}

func (cd *CommandDialog) syntax(cmd, args string) string {
	if args != "" {
		return fmt.Sprintf("Usage: %s%s %s", cd.cmdPrefix, strings.ToUpper(cmd), args)
	}
	return fmt.Sprintf("Usage: %s%s", cd.cmdPrefix, strings.ToUpper(cmd))
}

func (cd *CommandDialog) commandHelp(args string) error {
	cd.ShowHelp("", args)
	return nil
}

func (cd *CommandDialog) shortHelpLine(name string) string {
	e := cd.commands[name]
	if e.shortHelp == "" {
		return ""
	}
	return fmt.Sprintf("%s%s - %s", cd.cmdPrefix, strings.ToUpper(name), e.shortHelp)
}

// ShowHelp prints either the full command listing (args == "") or the
// long help for a specific topic, each line prefixed with prefix.
func (cd *CommandDialog) ShowHelp(prefix, args string) {
	if args != "" {
		cmd, rest := SplitArgs(args)
		cd.longHelp(cmd, rest)
		return
	}

	type topic struct {
		importance int
		name       string
	}
	topics := make([]topic, 0, len(cd.order))
	for _, name := range cd.order {
		topics = append(topics, topic{cd.commands[name].importance, name})
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].importance != topics[j].importance {
			return topics[i].importance < topics[j].importance
		}
		return topics[i].name < topics[j].name
	})

	if cd.helpHeader != "" {
		cd.Message(cd.helpHeader)
	}

	var main, rest []string
	for _, t := range topics {
		if t.importance <= InterestingCmd {
			main = append(main, t.name)
		} else {
			rest = append(rest, t.name)
		}
	}

	if len(main) > 0 {
		cd.Message(prefix + "Available commands:")
		for _, name := range main {
			if sh := cd.shortHelpLine(name); sh != "" {
				cd.Message(sh)
			}
		}
	}
	if len(rest) > 0 {
		label := "Other commands"
		if len(main) == 0 {
			label = "Available commands"
		}
		names := make([]string, len(rest))
		for i, name := range rest {
			names[i] = cd.cmdPrefix + strings.ToUpper(name)
		}
		cd.Message(fmt.Sprintf("%s: %s", label, strings.Join(names, " ")))
	}
}

func (cd *CommandDialog) longHelp(cmd, args string) {
	e, ok := cd.lookup(cmd)
	if !ok {
		cd.Message("Unknown help topic: " + cmd)
		return
	}
	if e.longHelp != nil {
		e.longHelp(args)
		return
	}
	if sh := cd.shortHelpLine(e.name); sh != "" {
		cd.Message(sh)
		return
	}
	cd.Message("Unknown help topic: " + cmd)
}
