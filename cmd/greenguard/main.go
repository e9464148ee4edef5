package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"greenguard/internal/app"
	"greenguard/internal/assistant"
	"greenguard/internal/transcript"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	go repl(ctx, a, cancel)

	<-ctx.Done()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)
}

// repl drives the assistant from stdin, one command per line.
func repl(ctx context.Context, a *app.App, quit context.CancelFunc) {
	fmt.Println("greenguard ready. Type 'help' for commands.")
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch strings.ToLower(cmd) {
		case "help":
			printHelp()
		case "upload":
			uploadFile(ctx, a, rest)
		case "capture":
			capturePhoto(ctx, a, rest)
		case "ask":
			if err := a.Orchestrator().SendText(ctx, rest); err != nil {
				reportFlowErr(err)
			}
			printTranscriptTail(a, 2)
		case "notifications":
			printNotifications(a)
		case "read":
			markRead(a, rest)
		case "clear":
			a.Notifications().Clear()
			fmt.Println("notifications cleared")
		case "history":
			printHistory(ctx, a)
		case "go":
			a.VisitSurface(rest)
			fmt.Println("now on:", rest)
		case "quit", "exit":
			quit()
			return
		default:
			fmt.Println("unknown command; try 'help'")
		}
	}
}

func printHelp() {
	fmt.Println(`commands:
  upload <file>       analyze an image file
  capture <data-url>  analyze a base64 camera capture
  ask <text>          chat with the assistant
  notifications       list notifications
  read <id|all>       mark notification(s) read
  clear               clear all notifications
  history             list detection history
  go <surface>        switch surface (dashboard, farmers, library)
  quit                exit`)
}

func uploadFile(ctx context.Context, a *app.App, path string) {
	if path == "" {
		fmt.Println("usage: upload <file>")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		fmt.Println("open:", err)
		return
	}
	defer f.Close()

	mimeType := mimeFromExt(path)
	if err := a.Orchestrator().UploadImage(ctx, filepath.Base(path), mimeType, f); err != nil {
		reportFlowErr(err)
	}
	printTranscriptTail(a, 2)
}

func capturePhoto(ctx context.Context, a *app.App, dataURL string) {
	if dataURL == "" {
		fmt.Println("usage: capture <data-url>")
		return
	}
	if err := a.Orchestrator().CapturePhoto(ctx, dataURL); err != nil {
		reportFlowErr(err)
	}
	printTranscriptTail(a, 2)
}

func reportFlowErr(err error) {
	if err == assistant.ErrBusy {
		fmt.Println("busy: wait for the current request to finish")
		return
	}
	// flow errors already landed in the transcript as inline messages
}

func printTranscriptTail(a *app.App, n int) {
	msgs := a.Transcript().Messages()
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	for _, m := range msgs {
		role := string(m.Role)
		if m.Status == transcript.StatusError {
			role += "!"
		}
		fmt.Printf("  [%s] %s\n", role, firstLine(m.Content))
	}
}

func printNotifications(a *app.App) {
	recs := a.Notifications().Snapshot()
	if len(recs) == 0 {
		fmt.Println("no notifications")
		return
	}
	for _, r := range recs {
		mark := " "
		if !r.Read {
			mark = "*"
		}
		fmt.Printf("%s %d [%s] %s: %s\n", mark, r.ID, r.Kind, r.Title, r.Message)
	}
	fmt.Printf("%d unread\n", a.Notifications().UnreadCount())
}

func markRead(a *app.App, arg string) {
	if arg == "all" {
		a.Notifications().MarkAllRead()
		fmt.Println("all read")
		return
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Println("usage: read <id|all>")
		return
	}
	a.Notifications().MarkRead(id)
}

func printHistory(ctx context.Context, a *app.App) {
	st := a.History()
	if st == nil {
		fmt.Println("history disabled")
		return
	}
	entries, err := st.List(ctx)
	if err != nil {
		fmt.Println("history:", err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("no detections yet")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s  %s  %s (%.0f%%)\n",
			e.At.Format(time.RFC3339), e.Image, e.Detection, e.Confidence*100)
	}
}

func mimeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
