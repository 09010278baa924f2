// Chat CLI - command line client for the chat server
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/limaxs-dev/chat-server/clients/go/chat"
	"github.com/limaxs-dev/chat-server/internal/events"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	client := chat.NewClient(os.Getenv("CHAT_URL"), "")
	cmd := os.Args[1]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "login":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chat login <token>")
			os.Exit(1)
		}
		client.Token = os.Args[2]
		exitOnError(client.SaveToken())
		fmt.Println("Token saved")

	case "presence":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chat presence <user_id>")
			os.Exit(1)
		}
		resp, err := client.Presence(ctx, os.Args[2])
		exitOnError(err)
		fmt.Printf("%s is %s\n", resp.UserID, resp.Status)

	case "webrtc":
		resp, err := client.WebRTCConfig(ctx)
		exitOnError(err)
		printJSON(resp)

	case "listen":
		session := dial(ctx, client)
		defer session.Close()
		fmt.Printf("Connected as %s (%s)\n", session.Presence.UserName, session.Presence.UserID)
		listen(ctx, session)

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: chat send <room_id> <message>")
			os.Exit(1)
		}
		roomID := parseUUID(os.Args[2])
		session := dial(ctx, client)
		defer session.Close()

		exitOnError(session.SendMessage(roomID, strings.Join(os.Args[3:], " ")))
		frame := nextReply(ctx, session)
		if frame.Event == events.NewMessage {
			var msg events.NewMessageData
			exitOnError(frame.DecodeData(&msg))
			fmt.Printf("Posted: %s\n", msg.ID)
		}

	case "typing":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chat typing <room_id>")
			os.Exit(1)
		}
		roomID := parseUUID(os.Args[2])
		session := dial(ctx, client)
		defer session.Close()

		exitOnError(session.SetTyping(roomID, true))
		nextReply(ctx, session)
		fmt.Println("Typing indicator sent")

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`Chat CLI

Usage: chat <command> [options]

Commands:
  login <token>              Save an access token
  listen                     Print every event received
  send <room_id> <message>   Post a message to a room
  typing <room_id>           Send a typing indicator
  presence <user_id>         Check whether a user is online
  webrtc                     Show the ICE server configuration
  health                     Check server health

Environment:
  CHAT_URL      Server URL (default: http://localhost:8080)
  CHAT_TOKEN    Access token (overrides the saved token)
  CHAT_CONFIG   Config directory (default: ~/.chat)`)
}

func dial(ctx context.Context, client *chat.Client) *chat.Session {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	session, err := client.Dial(dialCtx)
	exitOnError(err)
	return session
}

// nextReply waits for the direct reply to the last frame sent.
func nextReply(ctx context.Context, session *chat.Session) events.Frame {
	replyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	frame, err := session.Next(replyCtx)
	exitOnError(err)
	if frame.Code != "" {
		exitOnError(fmt.Errorf("%s: %s", frame.Code, frame.Error))
	}
	return frame
}

func listen(ctx context.Context, session *chat.Session) {
	go func() {
		<-ctx.Done()
		session.Close()
	}()

	for {
		frame, err := session.Next(context.Background())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			exitOnError(err)
		}

		ts := time.Now().Format("15:04:05")
		switch {
		case frame.Code != "":
			fmt.Printf("[%s] error %s: %s\n", ts, frame.Code, frame.Error)
		case frame.Status != "":
			fmt.Printf("[%s] %s\n", ts, frame.Status)
		case frame.Event == events.NewMessage:
			var msg events.NewMessageData
			if err := frame.DecodeData(&msg); err == nil {
				from := msg.SenderID.String()[:8]
				fmt.Printf("[%s] %s@%s: %s\n", ts, from, msg.RoomID, msg.ContentText)
				continue
			}
			fallthrough
		default:
			fmt.Printf("[%s] %s %s\n", ts, frame.Event, frame.Data)
		}
	}
}

func parseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	exitOnError(err)
	return id
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
