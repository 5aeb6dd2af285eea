// Package console is the terminal front end for local administration.
// It performs the same store operations as the admin API, plus display
// formatting and confirmation prompts for the destructive ones.
package console

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/sujalbistaa/postbox/internal/models"
	"github.com/sujalbistaa/postbox/internal/store"
	"github.com/sujalbistaa/postbox/internal/ws"
)

const pageSize = 10

// ErrAdminDisabled is returned by Run when no admin password is
// configured; the API keeps serving public endpoints regardless.
var ErrAdminDisabled = errors.New("admin password not configured")

// ErrBadPassword is returned when the operator fails the password gate.
var ErrBadPassword = errors.New("invalid admin password")

type Console struct {
	store    *store.Store
	hub      *ws.Hub
	password string

	in      *bufio.Reader
	out     io.Writer
	stdinFd int // -1 when stdin is not a real terminal (tests)
}

func New(st *store.Store, hub *ws.Hub, password string) *Console {
	return &Console{
		store:    st,
		hub:      hub,
		password: password,
		in:       bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		stdinFd:  int(os.Stdin.Fd()),
	}
}

// NewWithIO builds a console over arbitrary streams. Password entry
// falls back to plain line reads when stdin is not a terminal.
func NewWithIO(st *store.Store, hub *ws.Hub, password string, in io.Reader, out io.Writer) *Console {
	return &Console{
		store:    st,
		hub:      hub,
		password: password,
		in:       bufio.NewReader(in),
		out:      out,
		stdinFd:  -1,
	}
}

// Run gates on the admin password and then drops into the main menu.
// It returns when the operator quits or input is exhausted.
func (c *Console) Run() error {
	fmt.Fprintln(c.out, "=== Anonymous Contact Message System ===")

	if c.password == "" {
		fmt.Fprintln(c.out, "CONTACT_ADMIN_PASSWORD not set - admin console disabled.")
		fmt.Fprintln(c.out, "Set it with: export CONTACT_ADMIN_PASSWORD=your_password")
		return ErrAdminDisabled
	}

	entered, err := c.promptPassword("Enter admin password: ")
	if err != nil {
		return err
	}
	if entered != c.password {
		fmt.Fprintln(c.out, "Invalid password.")
		return ErrBadPassword
	}

	return c.mainMenu()
}

func (c *Console) promptPassword(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	if c.stdinFd >= 0 && term.IsTerminal(c.stdinFd) {
		b, err := term.ReadPassword(c.stdinFd)
		fmt.Fprintln(c.out)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := c.readLine()
	if err != nil {
		return "", err
	}
	return line, nil
}

func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *Console) mainMenu() error {
	for {
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, "Main Menu:")
		fmt.Fprintln(c.out, "  [1] List all messages")
		fmt.Fprintln(c.out, "  [2] Show statistics")
		fmt.Fprintln(c.out, "  [q] Quit")
		fmt.Fprint(c.out, "> ")

		choice, err := c.readLine()
		if err != nil {
			return nil // EOF: treat as quit
		}
		switch choice {
		case "1":
			c.browseMessages()
		case "2":
			c.showStats()
		case "q", "Q":
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		}
	}
}

func (c *Console) browseMessages() {
	page := 0
	for {
		msgs, err := c.store.ListAllMessages()
		if err != nil {
			fmt.Fprintf(c.out, "Failed to list messages: %v\n", err)
			return
		}
		if len(msgs) == 0 {
			fmt.Fprintln(c.out, "No messages found.")
			return
		}

		totalPages := (len(msgs)-1)/pageSize + 1
		if page >= totalPages {
			page = totalPages - 1
		}
		start := page * pageSize
		end := start + pageSize
		if end > len(msgs) {
			end = len(msgs)
		}

		fmt.Fprintf(c.out, "\nMessages %d-%d of %d (page %d/%d)\n", start+1, end, len(msgs), page+1, totalPages)
		for i, m := range msgs[start:end] {
			status := "pending"
			if m.Replied {
				status = "replied"
			}
			visibility := ""
			if m.Public {
				visibility = " [public]"
			}
			fmt.Fprintf(c.out, "  [%d] %s  %s  %-7s%s  %s\n",
				start+i+1, m.Key, m.CreatedAt.Format("01/02 15:04"), status, visibility, truncate(m.Body, 50))
		}
		fmt.Fprint(c.out, "[#] open  [n] next page  [p] prev page  [b] back > ")

		choice, err := c.readLine()
		if err != nil {
			return
		}
		switch choice {
		case "n", "N":
			if page < totalPages-1 {
				page++
			}
		case "p", "P":
			if page > 0 {
				page--
			}
		case "b", "B", "":
			return
		default:
			idx, err := strconv.Atoi(choice)
			if err != nil || idx < 1 || idx > len(msgs) {
				fmt.Fprintln(c.out, "Unknown selection.")
				continue
			}
			c.viewMessage(msgs[idx-1].Key)
		}
	}
}

func (c *Console) viewMessage(key string) {
	for {
		msg, err := c.store.GetMessage(key)
		if err != nil {
			// Deleted from under us (other front end); nothing to show.
			fmt.Fprintln(c.out, "Message no longer exists.")
			return
		}
		reply, err := c.store.GetReply(key)
		if err != nil {
			fmt.Fprintf(c.out, "Failed to load reply: %v\n", err)
			return
		}

		fmt.Fprintf(c.out, "\n--- Message %s ---\n", key)
		fmt.Fprintln(c.out, msg.Body)
		fmt.Fprintf(c.out, "Sent: %s\n", msg.CreatedAt.Format("2006-01-02 15:04:05"))
		if msg.Replied {
			fmt.Fprintln(c.out, "Status: replied")
		} else {
			fmt.Fprintln(c.out, "Status: pending")
		}
		fmt.Fprintf(c.out, "Public: %v\n", msg.Public)
		if reply != nil {
			fmt.Fprintf(c.out, "Reply:\n%s\n", reply.Body)
		}

		if msg.Replied {
			fmt.Fprint(c.out, "[r] reply  [e] edit reply  [t] toggle public  [d] delete  [b] back > ")
		} else {
			fmt.Fprint(c.out, "[r] reply  [t] toggle public  [d] delete  [b] back > ")
		}

		choice, err := c.readLine()
		if err != nil {
			return
		}
		switch strings.ToLower(choice) {
		case "r":
			if msg.Replied && !c.confirm("This message already has a reply. Replace it?") {
				continue
			}
			c.replyTo(msg)
		case "e":
			if !msg.Replied {
				continue
			}
			if reply != nil {
				fmt.Fprintf(c.out, "Current reply:\n%s\n", reply.Body)
			}
			c.replyTo(msg)
		case "t":
			public, err := c.store.TogglePublic(key)
			if err != nil {
				fmt.Fprintf(c.out, "Failed to toggle visibility: %v\n", err)
				continue
			}
			c.broadcast("visibility", map[string]any{"key": key, "public": public})
			fmt.Fprintf(c.out, "Public is now %v.\n", public)
		case "d":
			if !c.confirm("Delete this message and its reply?") {
				continue
			}
			if err := c.store.DeleteMessage(key); err != nil {
				fmt.Fprintf(c.out, "Failed to delete: %v\n", err)
				continue
			}
			c.broadcast("delete", map[string]any{"key": key})
			fmt.Fprintln(c.out, "Message deleted.")
			return
		case "b", "":
			return
		}
	}
}

func (c *Console) replyTo(msg *models.Message) {
	text := c.readMultiline("Enter your reply (end with a single '.' line):")
	if text == "" {
		fmt.Fprintln(c.out, "Empty reply, nothing stored.")
		return
	}
	if err := c.store.StoreReply(msg.Key, text); err != nil {
		fmt.Fprintf(c.out, "Failed to store reply: %v\n", err)
		return
	}
	c.broadcast("reply", map[string]any{"key": msg.Key})
	fmt.Fprintln(c.out, "Reply stored successfully.")
}

func (c *Console) readMultiline(prompt string) string {
	fmt.Fprintln(c.out, prompt)
	var lines []string
	for {
		line, err := c.in.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "." {
			break
		}
		if line != "" {
			lines = append(lines, trimmed)
		}
		if err != nil {
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (c *Console) confirm(question string) bool {
	fmt.Fprintf(c.out, "%s [y/N] ", question)
	answer, err := c.readLine()
	if err != nil {
		return false
	}
	return strings.EqualFold(answer, "y")
}

func (c *Console) showStats() {
	stats, err := c.store.GetStats()
	if err != nil {
		fmt.Fprintf(c.out, "Failed to fetch stats: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "\nStatistics:")
	fmt.Fprintf(c.out, "  Total Messages: %d\n", stats.TotalMessages)
	fmt.Fprintf(c.out, "  Replied:        %d\n", stats.RepliedMessages)
	fmt.Fprintf(c.out, "  Pending:        %d\n", stats.PendingMessages)
	fmt.Fprintf(c.out, "  Total Replies:  %d\n", stats.TotalReplies)
}

// broadcast mirrors the API's admin event feed so websocket
// subscribers see console actions too.
func (c *Console) broadcast(eventType string, data map[string]any) {
	if c.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{"type": eventType, "data": data})
	if err != nil {
		log.Printf("Error marshalling WS message: %v", err)
		return
	}
	c.hub.Broadcast <- payload
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
