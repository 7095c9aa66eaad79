package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"simple-chat/internal/client"
	"simple-chat/internal/logger"

	"github.com/joho/godotenv"
	"github.com/peterh/liner"
)

var commands = []string{"/list", "/open", "/new", "/delete", "/clear", "/quit", "/help"}

type repl struct {
	session *client.Session
	out     io.Writer
}

func main() {
	_ = godotenv.Load()

	logger.Log.SetOutput(os.Stderr)
	logger.Configure(getEnvOrDefault("LOG_LEVEL", "warn"), "text")

	serverURL := getEnvOrDefault("CHAT_SERVER_URL", "http://localhost:8080")
	r := &repl{
		session: client.NewSession(client.New(serverURL, nil)),
		out:     os.Stdout,
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(input string) []string {
		var matches []string
		for _, c := range commands {
			if strings.HasPrefix(c, input) {
				matches = append(matches, c)
			}
		}
		return matches
	})

	fmt.Fprintf(r.out, "Connected to %s. Type /help for commands, Ctrl-C stops a reply.\n", serverURL)

	ctx := context.Background()
	for {
		input, err := line.Prompt(r.prompt())
		if err == liner.ErrPromptAborted {
			continue
		}
		if err != nil {
			// EOF (Ctrl-D) or a terminal error
			fmt.Fprintln(r.out)
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if !r.command(ctx, input) {
				return
			}
			continue
		}
		r.send(ctx, input)
	}
}

func (r *repl) prompt() string {
	if id, ok := r.session.ConversationID(); ok {
		return fmt.Sprintf("chat #%d> ", id)
	}
	return "chat (new)> "
}

// send submits one turn; SIGINT during the stream cancels it
func (r *repl) send(ctx context.Context, text string) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			r.session.Cancel()
		case <-done:
		}
	}()

	err := r.session.Submit(ctx, text, func(chunk string) {
		fmt.Fprint(r.out, chunk)
	})
	close(done)
	fmt.Fprintln(r.out)

	switch {
	case errors.Is(err, client.ErrCanceled):
		fmt.Fprintln(r.out, "[canceled]")
	case err != nil:
		fmt.Fprintf(r.out, "[error] %v\n", err)
	}
}

// command runs a slash command and reports whether the loop should continue
func (r *repl) command(ctx context.Context, input string) bool {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch name {
	case "/quit", "/exit":
		return false
	case "/help":
		fmt.Fprintln(r.out, "/list  /open <id>  /new  /delete <id>  /clear  /quit")
	case "/list":
		err = r.list(ctx)
	case "/new":
		r.session.New()
		fmt.Fprintln(r.out, "Started a new conversation.")
	case "/open":
		var id int64
		if id, err = parseID(arg); err == nil {
			if err = r.session.Select(ctx, id); err == nil {
				r.history()
			}
		}
	case "/delete":
		var id int64
		if id, err = parseID(arg); err == nil {
			if err = r.session.Delete(ctx, id); err == nil {
				fmt.Fprintf(r.out, "Deleted conversation #%d.\n", id)
			}
		}
	case "/clear":
		if err = r.session.ClearAll(ctx); err == nil {
			fmt.Fprintln(r.out, "Deleted all conversations.")
		}
	default:
		err = fmt.Errorf("unknown command %s", name)
	}

	if err != nil {
		fmt.Fprintf(r.out, "[error] %v\n", err)
	}
	return true
}

func (r *repl) list(ctx context.Context) error {
	conversations, err := r.session.Conversations(ctx)
	if err != nil {
		return err
	}
	if len(conversations) == 0 {
		fmt.Fprintln(r.out, "No conversations yet.")
		return nil
	}

	active, _ := r.session.ConversationID()
	for _, c := range conversations {
		marker := " "
		if c.ID == active {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s #%-4d %s  %s (%d messages)\n",
			marker, c.ID, c.CreatedAt.Local().Format("2006-01-02 15:04"), c.Title, len(c.Messages))
	}
	return nil
}

func (r *repl) history() {
	for _, m := range r.session.Messages() {
		fmt.Fprintf(r.out, "[%s] %s\n", m.Role, m.Content)
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("conversation id must be a positive number, got %q", arg)
	}
	return id, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
