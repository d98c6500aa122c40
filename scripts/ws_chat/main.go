package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080", "server base address")
	room := flag.String("room", "lobby", "room to join")
	user := flag.String("user", "cli-user", "display name")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	url := fmt.Sprintf("%s/ws/%s/%s", *addr, *room, *user)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s as %s in room %s\n", *addr, *user, *room)
	fmt.Println("Type messages and press Enter to send. Commands: /activity <type>, /info. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg map[string]any
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch msg["type"] {
		case "message":
			if msg["own_message"] == true {
				fmt.Printf("you: %v\n", msg["message"])
			} else {
				fmt.Printf("%v: %v\n", msg["username"], msg["message"])
			}
		case "user_joined":
			fmt.Printf("* %v joined\n", msg["username"])
		case "user_left":
			fmt.Printf("* %v left\n", msg["username"])
		case "host_changed":
			fmt.Printf("* host is now %v\n", msg["host"])
		case "role_assigned":
			fmt.Printf("* you are %v (host: %v)\n", msg["role"], msg["host"])
		case "activity_changed":
			fmt.Printf("* activity changed to %v by %v\n", msg["activity_type"], msg["changed_by"])
		case "activity_state":
			fmt.Printf("* activity: %v\n", msg["activity_type"])
		case "room_info":
			fmt.Printf("* room %v: host=%v activity=%v users=%v\n",
				msg["room_id"], msg["host"], msg["current_activity"], msg["user_count"])
		case "error":
			fmt.Printf("! %v\n", msg["message"])
		default:
			fmt.Printf("frame: %v\n", msg)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			var frame map[string]any
			switch {
			case strings.HasPrefix(text, "/activity "):
				frame = map[string]any{
					"type":          "change_activity",
					"activity_type": strings.TrimSpace(strings.TrimPrefix(text, "/activity ")),
				}
			case text == "/info":
				frame = map[string]any{"type": "get_room_info"}
			default:
				frame = map[string]any{"type": "message", "message": text}
			}

			if err := wsjson.Write(ctx, conn, frame); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
