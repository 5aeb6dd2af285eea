package console

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sujalbistaa/postbox/internal/store"
)

const testPassword = "hunter2-but-longer"

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	st := store.New(database)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func runConsole(t *testing.T, st *store.Store, password, input string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := NewWithIO(st, nil, password, strings.NewReader(input), &out)
	err := c.Run()
	return out.String(), err
}

func TestRunDisabledWithoutPassword(t *testing.T) {
	st := newTestStore(t)
	out, err := runConsole(t, st, "", "")
	if !errors.Is(err, ErrAdminDisabled) {
		t.Fatalf("err = %v, want ErrAdminDisabled", err)
	}
	if !strings.Contains(out, "admin console disabled") {
		t.Errorf("output missing disabled notice: %q", out)
	}
}

func TestRunRejectsWrongPassword(t *testing.T) {
	st := newTestStore(t)
	_, err := runConsole(t, st, testPassword, "not-the-password\n")
	if !errors.Is(err, ErrBadPassword) {
		t.Fatalf("err = %v, want ErrBadPassword", err)
	}
}

func TestStatsScreen(t *testing.T) {
	st := newTestStore(t)
	key, err := st.StoreMessage("a message to be counted here", false)
	if err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}
	if err := st.StoreReply(key, "counted"); err != nil {
		t.Fatalf("StoreReply: %v", err)
	}

	out, err := runConsole(t, st, testPassword, testPassword+"\n2\nq\n")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{"Total Messages: 1", "Replied:        1", "Pending:        0", "Goodbye!"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestReplyFlow(t *testing.T) {
	st := newTestStore(t)
	key, err := st.StoreMessage("please reply to me from the console", false)
	if err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}

	// password, open browser, open message 1, reply, text, end marker,
	// back out of the detail view, back out of the browser, quit.
	input := testPassword + "\n1\n1\nr\nThanks for writing!\n.\nb\nb\nq\n"
	out, err := runConsole(t, st, testPassword, input)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "Reply stored successfully.") {
		t.Errorf("output missing confirmation:\n%s", out)
	}

	reply, err := st.GetReply(key)
	if err != nil {
		t.Fatalf("GetReply: %v", err)
	}
	if reply == nil || reply.Body != "Thanks for writing!" {
		t.Fatalf("reply = %+v", reply)
	}
	msg, err := st.GetMessage(key)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if !msg.Replied {
		t.Error("message not marked replied")
	}
}

func TestReplaceReplyNeedsConfirmation(t *testing.T) {
	st := newTestStore(t)
	key, err := st.StoreMessage("already answered, touch carefully", false)
	if err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}
	if err := st.StoreReply(key, "the original answer"); err != nil {
		t.Fatalf("StoreReply: %v", err)
	}

	// Decline the replace confirmation, then leave.
	input := testPassword + "\n1\n1\nr\nn\nb\nb\nq\n"
	if _, err := runConsole(t, st, testPassword, input); err != nil {
		t.Fatalf("Run: %v", err)
	}
	reply, err := st.GetReply(key)
	if err != nil {
		t.Fatalf("GetReply: %v", err)
	}
	if reply == nil || reply.Body != "the original answer" {
		t.Fatalf("declined replace still changed the reply: %+v", reply)
	}
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	st := newTestStore(t)
	key, err := st.StoreMessage("to be deleted after confirming", false)
	if err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}

	input := testPassword + "\n1\n1\nd\ny\nq\n"
	out, err := runConsole(t, st, testPassword, input)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "Message deleted.") {
		t.Errorf("output missing delete confirmation:\n%s", out)
	}
	if _, err := st.GetMessage(key); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetMessage after delete: err = %v, want ErrNotFound", err)
	}
}

func TestMainMenuIgnoresUnknownSelection(t *testing.T) {
	st := newTestStore(t)
	out, err := runConsole(t, st, testPassword, testPassword+"\n3\nq\n")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// "3" is not a menu option: the menu must redraw instead of quitting.
	if got := strings.Count(out, "Main Menu:"); got != 2 {
		t.Errorf("menu rendered %d times, want 2:\n%s", got, out)
	}
	if !strings.Contains(out, "Goodbye!") {
		t.Errorf("console did not quit cleanly:\n%s", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 50); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := strings.Repeat("x", 60)
	got := truncate(long, 50)
	if len([]rune(got)) != 50 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate(long) = %q", got)
	}
}
