package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/hikmah-ai/hikmah/pkg/chat"
	"github.com/hikmah-ai/hikmah/pkg/config"
	"github.com/hikmah-ai/hikmah/pkg/core"
	"github.com/hikmah-ai/hikmah/pkg/live"
	"github.com/hikmah-ai/hikmah/pkg/storage"
)

type appDeps struct {
	Conversation *chat.Conversation
	Store        *storage.Router
	Manager      *live.Manager
	DataDir      string
	Prefs        config.Preferences
	Logger       *slog.Logger
}

type app struct {
	conv    *chat.Conversation
	store   *storage.Router
	manager *live.Manager
	dataDir string
	prefs   config.Preferences
	logger  *slog.Logger

	principal core.Principal
	session   *core.ChatSession
	listing   []core.ChatSession
	search    bool
}

func newApp(deps appDeps) *app {
	return &app{
		conv:      deps.Conversation,
		store:     deps.Store,
		manager:   deps.Manager,
		dataDir:   deps.DataDir,
		prefs:     deps.Prefs,
		logger:    deps.Logger,
		principal: core.Guest,
		session:   chat.NewSession(),
	}
}

func (a *app) run(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	a.manager.OnState = func(s core.ConnectionState) {
		fmt.Fprintf(out, "\n[voice] %s\n", s)
	}
	a.manager.OnError = func(msg string) {
		fmt.Fprintf(errOut, "\n[voice] error: %s\n", msg)
	}
	a.manager.OnDisconnect = func() {
		fmt.Fprintln(out, "[voice] session ended")
	}
	defer a.manager.Disconnect()

	fmt.Fprintln(out, "Al-Hikmah Scholar. Ask about Islamic history, the lives of Prophets, or biographies of the Sahaba.")
	fmt.Fprintln(out, "Type /help for commands, /exit to stop.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			fmt.Fprintln(out, "bye")
			return nil
		}
		if strings.HasPrefix(line, "/") {
			a.handleCommand(ctx, line, out, errOut)
			continue
		}
		a.ask(ctx, line, out, errOut)
	}
}

func (a *app) handleCommand(ctx context.Context, line string, out, errOut io.Writer) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		printHelp(out)
	case "/live":
		if err := a.manager.Toggle(ctx, a.prefs.LiveConfig()); err != nil {
			fmt.Fprintf(errOut, "voice connect error: %v\n", err)
		}
	case "/search":
		switch arg {
		case "on":
			a.search = true
			fmt.Fprintln(out, "search grounding on")
		case "off":
			a.search = false
			fmt.Fprintln(out, "search grounding off")
		default:
			fmt.Fprintf(out, "search grounding is %s (use /search on|off)\n", onOff(a.search))
		}
	case "/image":
		a.editImage(ctx, arg, out, errOut)
	case "/new":
		a.saveSession(ctx, errOut)
		a.session = chat.NewSession()
		fmt.Fprintln(out, "started a new discussion")
	case "/sessions":
		a.listSessions(ctx, out, errOut)
	case "/open":
		a.openSession(ctx, arg, out, errOut)
	case "/delete":
		a.deleteSession(ctx, arg, out, errOut)
	case "/login":
		a.login(ctx, arg, out, errOut)
	case "/voice", "/language", "/style":
		a.setPreference(cmd, arg, out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown command %s (try /help)\n", cmd)
	}
}

// ask sends a chat turn, printing deltas as they fold into the reply.
func (a *app) ask(ctx context.Context, text string, out, errOut io.Writer) {
	var printed int
	onUpdate := func() {
		if len(a.session.Messages) == 0 {
			return
		}
		reply := a.session.Messages[len(a.session.Messages)-1]
		if reply.Role != core.RoleModel {
			return
		}
		if len(reply.Text) > printed {
			fmt.Fprint(out, reply.Text[printed:])
			printed = len(reply.Text)
		}
	}

	if a.search {
		a.conv.AskGrounded(ctx, a.session, text, onUpdate)
		last := a.session.Messages[len(a.session.Messages)-1]
		for _, c := range last.Citations {
			fmt.Fprintf(out, "\n  [%s] %s", c.Title, c.URI)
		}
	} else {
		a.conv.Ask(ctx, a.session, text, onUpdate)
	}
	fmt.Fprintln(out)
	a.saveSession(ctx, errOut)
}

// editImage handles "/image <path> <prompt>": the edited image is written
// next to the input file.
func (a *app) editImage(ctx context.Context, arg string, out, errOut io.Writer) {
	path, prompt, ok := strings.Cut(arg, " ")
	prompt = strings.TrimSpace(prompt)
	if !ok || path == "" || prompt == "" {
		fmt.Fprintln(errOut, "usage: /image <path> <prompt>")
		return
	}
	img, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(errOut, "read image: %v\n", err)
		return
	}

	a.conv.EditImage(ctx, a.session, img, mimeTypeFor(path), prompt, nil)
	last := a.session.Messages[len(a.session.Messages)-1]
	if last.Text != "" {
		fmt.Fprintln(out, last.Text)
	}
	if len(last.Images) > 0 {
		outPath := editedPath(path)
		if err := writeBase64File(outPath, last.Images[0]); err != nil {
			fmt.Fprintf(errOut, "write edited image: %v\n", err)
		} else {
			fmt.Fprintf(out, "edited image written to %s\n", outPath)
		}
	}
	a.saveSession(ctx, errOut)
}

func (a *app) listSessions(ctx context.Context, out, errOut io.Writer) {
	sessions, err := a.store.List(ctx, a.principal)
	if err != nil {
		fmt.Fprintf(errOut, "list sessions: %v\n", err)
		return
	}
	a.listing = sessions
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no saved discussions")
		return
	}
	for i, s := range sessions {
		fmt.Fprintf(out, "%2d. %s (%d messages, %s)\n",
			i+1, s.Title, len(s.Messages), s.UpdatedAt.Format("2006-01-02 15:04"))
	}
}

func (a *app) openSession(ctx context.Context, arg string, out, errOut io.Writer) {
	s, ok := a.sessionByIndex(arg, errOut)
	if !ok {
		return
	}
	full, err := a.store.Get(ctx, a.principal, s.ID)
	if err != nil {
		fmt.Fprintf(errOut, "open session: %v\n", err)
		return
	}
	if full == nil {
		fmt.Fprintln(errOut, "session no longer exists")
		return
	}
	a.saveSession(ctx, errOut)
	a.session = full
	fmt.Fprintf(out, "resumed %q\n", full.Title)
	for _, m := range full.Messages {
		fmt.Fprintf(out, "%s: %s\n", m.Role, m.Text)
	}
}

func (a *app) deleteSession(ctx context.Context, arg string, out, errOut io.Writer) {
	s, ok := a.sessionByIndex(arg, errOut)
	if !ok {
		return
	}
	if err := a.store.Delete(ctx, a.principal, s.ID); err != nil {
		fmt.Fprintf(errOut, "delete session: %v\n", err)
		return
	}
	if a.session != nil && a.session.ID == s.ID {
		a.session = chat.NewSession()
	}
	fmt.Fprintf(out, "deleted %q\n", s.Title)
}

func (a *app) sessionByIndex(arg string, errOut io.Writer) (core.ChatSession, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(a.listing) {
		fmt.Fprintln(errOut, "pick a number from /sessions first")
		return core.ChatSession{}, false
	}
	return a.listing[n-1], true
}

// login switches to a signed-in principal and carries guest history over.
func (a *app) login(ctx context.Context, userID string, out, errOut io.Writer) {
	if userID == "" {
		fmt.Fprintln(errOut, "usage: /login <user-id>")
		return
	}
	a.principal = core.Principal{UserID: userID}
	a.listing = nil
	moved, err := a.store.MigrateGuestToAccount(ctx, a.principal)
	if err != nil {
		fmt.Fprintf(errOut, "migrate guest history: %v\n", err)
	}
	if moved > 0 {
		fmt.Fprintf(out, "moved %d discussion(s) to your account\n", moved)
	}
	fmt.Fprintf(out, "signed in as %s\n", userID)
}

func (a *app) setPreference(cmd, arg string, out, errOut io.Writer) {
	if arg == "" {
		fmt.Fprintf(out, "voice=%s language=%s style=%s\n", a.prefs.Voice, a.prefs.Language, a.prefs.Style)
		return
	}
	switch cmd {
	case "/voice":
		a.prefs.Voice = arg
	case "/language":
		a.prefs.Language = arg
	case "/style":
		a.prefs.Style = parseStyle(arg)
	}
	if err := config.SavePreferences(a.dataDir, a.prefs); err != nil {
		fmt.Fprintf(errOut, "save preferences: %v\n", err)
		return
	}
	fmt.Fprintln(out, "preference saved (applies to the next voice session)")
}

func (a *app) saveSession(ctx context.Context, errOut io.Writer) {
	if a.session == nil || len(a.session.Messages) == 0 {
		return
	}
	if err := a.store.Save(ctx, a.principal, a.session); err != nil {
		fmt.Fprintf(errOut, "save session: %v\n", err)
	}
}

func parseStyle(s string) core.ResponseStyle {
	switch strings.ToLower(s) {
	case "concise":
		return core.StyleConcise
	case "detailed":
		return core.StyleDetailed
	default:
		return core.StyleConversational
	}
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `commands:
  /live                 start or stop a voice conversation
  /search on|off        toggle search-grounded answers with citations
  /image <path> <text>  edit an image with a prompt
  /new                  start a new discussion
  /sessions             list saved discussions
  /open <n>             resume discussion n from the list
  /delete <n>           delete discussion n from the list
  /login <user-id>      sign in and move guest history to your account
  /voice <name>         set the live voice
  /language <lang>      set the conversation language
  /style <style>        conversational | concise | detailed
  /exit                 quit`)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
