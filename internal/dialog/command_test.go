package dialog

import (
	"errors"
	"strings"
	"testing"
)

func newCommandRecorder(cd *CommandDialog) *[]string {
	var msgs []string
	cd.SetMessageFunc(func(msg string) { msgs = append(msgs, msg) })
	return &msgs
}

func TestTryMsgDispatchesRegisteredCommand(t *testing.T) {
	cd := NewCommandDialog()
	called := ""
	cd.AddCommand("rt", func(args string) error {
		called = args
		return nil
	})

	handled, cmd, args := cd.TryMsg("RT 12345")
	if !handled || cmd != "RT" || args != "12345" {
		t.Fatalf("TryMsg() = %v, %q, %q", handled, cmd, args)
	}
	if called != "12345" {
		t.Errorf("command ran with args = %q", called)
	}
}

func TestTryMsgUnknownCommand(t *testing.T) {
	cd := NewCommandDialog()
	handled, cmd, _ := cd.TryMsg("BOGUS foo")
	if handled {
		t.Fatal("expected unhandled")
	}
	if cmd != "BOGUS" {
		t.Errorf("cmd = %q", cmd)
	}
}

func TestRecvMessageUnknownCommandReply(t *testing.T) {
	cd := NewCommandDialog()
	cd.SetCmdPrefix("!")
	msgs := newCommandRecorder(cd)

	cd.RecvMessage("bogus")
	if len(*msgs) != 1 {
		t.Fatalf("msgs = %v", *msgs)
	}
	if !strings.Contains((*msgs)[0], "!HELP") {
		t.Errorf("msgs[0] = %q, want it to mention !HELP", (*msgs)[0])
	}
}

func TestCommandErrorGoesToErrorReply(t *testing.T) {
	cd := NewCommandDialog()
	msgs := newCommandRecorder(cd)
	cd.AddCommand("fail", func(args string) error { return errors.New("nope") })

	cd.RecvMessage("fail")
	if len(*msgs) != 1 || !strings.Contains((*msgs)[0], "nope") {
		t.Errorf("msgs = %v", *msgs)
	}
}

func TestAddAliasInheritsHandler(t *testing.T) {
	cd := NewCommandDialog()
	var got string
	cd.AddCommand("post", func(args string) error {
		got = args
		return nil
	}, WithShortHelp("post a status"))
	cd.AddAlias("s", "post")

	handled, _, _ := cd.TryMsg("s hello")
	if !handled || got != "hello" {
		t.Fatalf("alias did not dispatch: handled=%v got=%q", handled, got)
	}
}

func TestAddAliasUnknownTargetPanics(t *testing.T) {
	cd := NewCommandDialog()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown alias target")
		}
	}()
	cd.AddAlias("x", "does-not-exist")
}

func TestShowHelpListsCommandsByImportance(t *testing.T) {
	cd := NewCommandDialog()
	msgs := newCommandRecorder(cd)
	cd.AddCommand("post", func(string) error { return nil }, WithShortHelp("post a status"), WithImportance(ImportantCmd))
	cd.AddCommand("gc", func(string) error { return nil }, WithShortHelp("diagnostics"), WithImportance(DebuggingCmd))

	cd.ShowHelp("", "")

	joined := strings.Join(*msgs, "\n")
	if !strings.Contains(joined, "POST") {
		t.Errorf("help output missing POST:\n%s", joined)
	}
	if !strings.Contains(joined, "Other commands") {
		t.Errorf("help output should bucket GC under 'Other commands':\n%s", joined)
	}
}

func TestAddSubdialogForwardsRemainder(t *testing.T) {
	parent := NewCommandDialog()
	parent.SetCmdPrefix("!")
	sub := NewCommandDialog()
	var gotArgs string
	sub.AddCommand("on", func(args string) error {
		gotArgs = args
		return nil
	})
	parent.AddSubdialog("rate", sub, "rate limit controls")

	handled, _, _ := parent.TryMsg("RATE on now")
	if !handled {
		t.Fatal("expected RATE to be handled")
	}
	if gotArgs != "now" {
		t.Errorf("sub-dialog got args = %q, want %q", gotArgs, "now")
	}
}
