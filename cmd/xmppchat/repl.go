// Copyright 2024-2026 Aiku AI

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aiku/xmppchat/pkg/chat"
)

var errQuit = errors.New("quit")

type command struct {
	usage string
	// args is the number of arguments; the last one takes the rest of the
	// line.
	args     int
	optional int
	run      func(ctx context.Context, r *repl, args []string) error
}

var commands = map[string]command{
	"/msg": {usage: "/msg <address> <text>", args: 2, run: func(ctx context.Context, r *repl, args []string) error {
		return r.ctrl.SendMessage(ctx, r.ctrl.Identity(), chat.ParseUserIdentity(args[0]), "normal", args[1])
	}},
	"/chat": {usage: "/chat <address> <text>", args: 2, run: func(ctx context.Context, r *repl, args []string) error {
		return r.ctrl.SendPrivateChat(ctx, r.ctrl.Identity(), chat.ParseUserIdentity(args[0]), args[1])
	}},
	"/join": {usage: "/join <room> [nickname] [password]", args: 3, optional: 2, run: func(ctx context.Context, r *repl, args []string) error {
		nickname := args[1]
		if nickname == "" {
			nickname = r.ctrl.Identity().Local
		}
		return r.ctrl.JoinRoom(ctx, chat.MakeRoomID(args[0]), nickname, args[2])
	}},
	"/create": {usage: "/create <room> [password]", args: 2, optional: 1, run: func(ctx context.Context, r *repl, args []string) error {
		return r.ctrl.CreateRoom(ctx, r.ctrl.Identity(), chat.MakeRoomID(args[0]), args[1] != "", args[1])
	}},
	"/configure": {usage: "/configure <room> [password]", args: 2, optional: 1, run: func(ctx context.Context, r *repl, args []string) error {
		return r.ctrl.ConfigureRoom(ctx, r.ctrl.Identity(), chat.MakeRoomID(args[0]), args[1] != "", args[1])
	}},
	"/leave": {usage: "/leave <room>", args: 1, run: func(ctx context.Context, r *repl, args []string) error {
		return r.ctrl.ExitRoom(ctx, chat.MakeRoomID(args[0]))
	}},
	"/say": {usage: "/say <room> <text>", args: 2, run: func(ctx context.Context, r *repl, args []string) error {
		return r.ctrl.SendRoomChat(ctx, chat.MakeRoomID(args[0]), args[1])
	}},
	"/refresh": {usage: "/refresh <room>", args: 1, run: func(ctx context.Context, r *repl, args []string) error {
		return r.ctrl.RefreshRoom(ctx, chat.MakeRoomID(args[0]))
	}},
	"/members": {usage: "/members <room>", args: 1, run: func(_ context.Context, r *repl, args []string) error {
		members := r.ctrl.GetRoomMembers(chat.MakeRoomID(args[0]))
		if len(members) == 0 {
			r.printf("No known members in %s", args[0])
			return nil
		}
		for _, member := range members {
			r.printf("%s (%s, %s) %s", member.Nickname, member.Status, member.Affiliation, member.StatusText)
		}
		return nil
	}},
	"/presence": {usage: "/presence <status> [text]", args: 2, optional: 1, run: func(ctx context.Context, r *repl, args []string) error {
		status, err := chat.ParsePresenceStatus(args[0])
		if err != nil {
			return err
		}
		return r.ctrl.SetPresence(ctx, status != chat.PresenceOffline, status, args[1])
	}},
	"/probe": {usage: "/probe <address>", args: 1, run: func(ctx context.Context, r *repl, args []string) error {
		return r.ctrl.QueryPresence(ctx, chat.ParseUserIdentity(args[0]))
	}},
	"/roster": {usage: "/roster", run: func(_ context.Context, r *repl, _ []string) error {
		members, err := r.ctrl.RosterMembers()
		if err != nil {
			return err
		}
		for _, member := range members {
			r.printf("%s", member)
		}
		return nil
	}},
	"/pubsub": {usage: "/pubsub <create|destroy|subscribe|unsubscribe|publish> <node> [payload]", args: 3, optional: 1, run: runPubSub},
}

func runPubSub(ctx context.Context, r *repl, args []string) error {
	action, node, payload := args[0], args[1], args[2]
	switch action {
	case "create":
		return r.ctrl.CreatePubSubNode(ctx, node)
	case "destroy":
		return r.ctrl.DestroyPubSubNode(ctx, node)
	case "subscribe":
		return r.ctrl.SubscribePubSub(ctx, node)
	case "unsubscribe":
		return r.ctrl.UnsubscribePubSub(ctx, node)
	case "publish":
		if payload == "" {
			return fmt.Errorf("publish needs a payload")
		}
		return r.ctrl.PublishPubSub(ctx, node, payload)
	default:
		return fmt.Errorf("unknown pubsub action %q", action)
	}
}

// splitArgs splits line into at most n fields. The last field keeps the
// rest of the line, spaces included. Missing fields are empty strings.
func splitArgs(line string, n int) ([]string, int) {
	args := make([]string, n)
	found := 0
	rest := strings.TrimSpace(line)
	for i := 0; i < n && rest != ""; i++ {
		if i == n-1 {
			args[i] = rest
		} else {
			field, remainder, _ := strings.Cut(rest, " ")
			args[i] = field
			rest = strings.TrimSpace(remainder)
		}
		found++
	}
	return args, found
}

type repl struct {
	ctrl *chat.SessionController
	out  io.Writer
}

func (r *repl) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *repl) run(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for ctx.Err() == nil && scanner.Scan() {
		err := r.exec(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			return
		} else if err != nil {
			r.printf("Error: %v", err)
		}
	}
}

// exec runs one input line. Lines without a leading slash are ignored.
func (r *repl) exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return nil
	}
	name, rest, _ := strings.Cut(line, " ")
	switch name {
	case "/quit":
		return errQuit
	case "/help":
		r.printHelp()
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %s, try /help", name)
	}
	args, found := splitArgs(rest, cmd.args)
	if found < cmd.args-cmd.optional {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	return cmd.run(ctx, r, args)
}

func (r *repl) printHelp() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	r.printf("  /help")
	r.printf("  /quit")
	for _, name := range names {
		r.printf("  %s", commands[name].usage)
	}
}

// printer writes incoming events to the terminal.
type printer struct {
	out io.Writer
	cfg *chat.Config
}

func (p *printer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) subscribe(sink *chat.EventSink) {
	sink.Subscribe(chat.EventLoginComplete, chat.Handle(func(evt chat.LoginCompleteEvent) {
		if evt.Success {
			p.printf("* Logged in as %s", evt.User)
		} else {
			p.printf("* Login failed: %s", evt.Error)
		}
	}))
	sink.Subscribe(chat.EventLogoutComplete, chat.Handle(func(evt chat.LogoutCompleteEvent) {
		p.printf("* Logged out")
	}))
	sink.Subscribe(chat.EventDirectMessageReceived, chat.Handle(func(evt chat.DirectMessageEvent) {
		p.printf("<%s> %s", evt.From, evt.Message.Payload)
	}))
	sink.Subscribe(chat.EventPrivateChatReceived, chat.Handle(func(evt chat.PrivateChatEvent) {
		p.printf("<%s> %s", evt.From.Bare(), evt.Body)
	}))
	sink.Subscribe(chat.EventRoomMessageReceived, chat.Handle(func(evt chat.RoomMessageEvent) {
		p.printf("%s", p.cfg.FormatRoomMessage(evt))
	}))
	joined := chat.Handle(func(evt chat.RoomJoinEvent) {
		if evt.Success {
			p.printf("* Joined %s", evt.Room)
		} else {
			p.printf("* Failed to join %s: %s", evt.Room, evt.Error)
		}
	})
	sink.Subscribe(chat.EventRoomJoinPublicComplete, joined)
	sink.Subscribe(chat.EventRoomJoinPrivateComplete, joined)
	sink.Subscribe(chat.EventRoomMemberJoined, chat.Handle(func(evt chat.RoomMemberEvent) {
		p.printf("* %s joined %s", evt.Member.Nickname, evt.Room)
	}))
	sink.Subscribe(chat.EventRoomMemberExited, chat.Handle(func(evt chat.RoomMemberEvent) {
		p.printf("* %s left %s", evt.Member.Nickname, evt.Room)
	}))
}
