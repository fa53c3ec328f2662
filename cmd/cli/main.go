// Command typegpt is a CLI client for the typegpt gateway.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/and161185/typegpt/internal/model"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `typegpt CLI
Usage:
  typegpt -addr URL <cmd> [args]

Commands:
  version
  register   -e <email> -p <password>           (saves session)
  login      -e <email> -p <password>           (saves session)
  logout
  me
  chats
  new        [-title <title>]
  rm         -id <chat id>
  history    -id <chat id>
  send       -id <chat id> -m <message | ->     (streams the answer)
  image      -prompt <text> [-ratio 1:1] [-o file]
  images
`)
	os.Exit(2)
}

// main dispatches subcommands.
func main() {
	addr := flag.String("addr", "http://localhost:8080", "gateway base URL")
	timeout := flag.Duration("timeout", 2*time.Minute, "request timeout")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, *addr, cmd, args, os.Stdout); err != nil {
		fail(err)
	}
}

func run(ctx context.Context, addr, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "version":
		fmt.Fprintf(out, "typegpt %s (%s)\n", version, buildDate)
		return nil
	case "register", "login":
		return cmdCredentials(ctx, addr, cmd, args, out)
	case "logout":
		return cmdLogout(ctx, addr, out)
	}

	s, err := loadSession()
	if err != nil {
		return err
	}
	c := newClient(addr, &s)

	switch cmd {
	case "me":
		var p model.Principal
		if _, err := c.call(ctx, http.MethodGet, "/api/me", nil, &p); err != nil {
			return err
		}
		printJSON(out, p)

	case "chats":
		var resp struct {
			Chats []model.Thread `json:"chats"`
		}
		if _, err := c.call(ctx, http.MethodGet, "/api/chats", nil, &resp); err != nil {
			return err
		}
		printJSON(out, resp.Chats)

	case "new":
		fs := flag.NewFlagSet("new", flag.ContinueOnError)
		title := fs.String("title", "", "chat title")
		if err := fs.Parse(args); err != nil {
			return err
		}
		var resp struct {
			Chat model.Thread `json:"chat"`
		}
		if _, err := c.call(ctx, http.MethodPost, "/api/chats", map[string]string{"title": *title}, &resp); err != nil {
			return err
		}
		fmt.Fprintln(out, resp.Chat.ID)

	case "rm":
		id, err := chatID("rm", args)
		if err != nil {
			return err
		}
		if _, err := c.call(ctx, http.MethodDelete, "/api/chats/"+id, nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")

	case "history":
		id, err := chatID("history", args)
		if err != nil {
			return err
		}
		var resp struct {
			Messages []model.Message `json:"messages"`
		}
		if _, err := c.call(ctx, http.MethodGet, "/api/chats/"+id+"/messages", nil, &resp); err != nil {
			return err
		}
		for _, m := range resp.Messages {
			fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
		}

	case "send":
		return cmdSend(ctx, c, args, out)

	case "image":
		return cmdImage(ctx, c, args, out)

	case "images":
		var resp struct {
			Images []model.Image `json:"images"`
		}
		if _, err := c.call(ctx, http.MethodGet, "/api/images", nil, &resp); err != nil {
			return err
		}
		type row struct {
			ID          int64     `json:"id"`
			Prompt      string    `json:"prompt"`
			AspectRatio string    `json:"aspect_ratio"`
			CreatedAt   time.Time `json:"created_at"`
		}
		rows := []row{}
		for _, img := range resp.Images {
			rows = append(rows, row{img.ID, img.Prompt, img.AspectRatio, img.CreatedAt})
		}
		printJSON(out, rows)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func cmdCredentials(ctx context.Context, addr, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	e := fs.String("e", "", "email")
	p := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *e == "" || *p == "" {
		return errors.New("need -e and -p")
	}

	var body struct {
		User model.Principal `json:"user"`
	}
	resp, err := newClient(addr, nil).call(ctx, http.MethodPost, "/api/auth/"+cmd,
		map[string]string{"email": *e, "password": *p}, &body)
	if err != nil {
		return err
	}
	s, err := sessionFrom(resp)
	if err != nil {
		return err
	}
	if err := saveSession(s); err != nil {
		return err
	}
	fmt.Fprintln(out, body.User.ID)
	return nil
}

// cmdLogout always forgets the local session, even if the server call fails.
func cmdLogout(ctx context.Context, addr string, out io.Writer) error {
	s, err := loadSession()
	if err == nil {
		if _, err := newClient(addr, &s).call(ctx, http.MethodGet, "/api/logout", nil, nil); err != nil {
			fmt.Fprintln(os.Stderr, "logout:", err)
		}
	}
	if err := clearSession(); err != nil {
		return err
	}
	fmt.Fprintln(out, "ok")
	return nil
}

func cmdSend(ctx context.Context, c *client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	id := fs.String("id", "", "chat id")
	msg := fs.String("m", "", "message, - reads stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *msg == "" {
		return errors.New("need -id and -m")
	}
	content := *msg
	if content == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		content = strings.TrimSpace(string(b))
	}

	var streamErr error
	err := c.stream(ctx, "/api/chats/"+*id+"/messages", map[string]string{"content": content}, func(ev model.StreamEvent) error {
		switch {
		case ev.Error != "":
			streamErr = errors.New(ev.Error)
		case ev.Done:
			fmt.Fprintln(out)
		default:
			fmt.Fprint(out, ev.Content)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return streamErr
}

func cmdImage(ctx context.Context, c *client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("image", flag.ContinueOnError)
	prompt := fs.String("prompt", "", "image prompt")
	ratio := fs.String("ratio", "1:1", "aspect ratio")
	file := fs.String("o", "", "output file (default image-<id><ext>)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *prompt == "" {
		return errors.New("need -prompt")
	}

	var resp struct {
		Image model.Image `json:"image"`
	}
	if _, err := c.call(ctx, http.MethodPost, "/api/images/generate",
		map[string]string{"prompt": *prompt, "aspectRatio": *ratio}, &resp); err != nil {
		return err
	}
	mimeType, data, err := decodeDataURI(resp.Image.ImageURL)
	if err != nil {
		return err
	}
	path := *file
	if path == "" {
		path = fmt.Sprintf("image-%d%s", resp.Image.ID, imageExt(mimeType))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintln(out, path)
	return nil
}

func chatID(cmd string, args []string) (string, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	id := fs.String("id", "", "chat id")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if *id == "" {
		return "", errors.New("need -id")
	}
	return *id, nil
}

// ---- helpers ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "api error: status=%d code=%s msg=%s\n", ae.Status, ae.Code, ae.Message)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
