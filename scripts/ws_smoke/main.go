package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080", "server base address")
	room := flag.String("room", "lobby", "room to join")
	user := flag.String("user", "tester", "display name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	url := fmt.Sprintf("%s/ws/%s/%s", *addr, *room, *user)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	// Welcome sequence: role, activity snapshot, catalog.
	for i := 0; i < 3; i++ {
		msg, err := read(ctx, conn)
		if err != nil {
			return err
		}
		switch msg["type"] {
		case "role_assigned":
			fmt.Printf("Role: %v (host=%v)\n", msg["role"], msg["host"])
		case "activity_state":
			fmt.Printf("Activity: %v\n", msg["activity_type"])
		case "available_activities":
			if list, ok := msg["activities"].([]any); ok {
				fmt.Printf("Catalog: %d activities\n", len(list))
			}
		default:
			fmt.Printf("Frame: type=%v\n", msg["type"])
		}
	}

	if err := wsjson.Write(ctx, conn, map[string]any{"type": "message", "message": *text}); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	for {
		msg, err := read(ctx, conn)
		if err != nil {
			return err
		}
		if msg["type"] == "message" && msg["own_message"] == true {
			fmt.Printf("Echo: %v\n", msg["message"])
			return nil
		}
		fmt.Printf("Frame: type=%v\n", msg["type"])
	}
}

func read(ctx context.Context, conn *websocket.Conn) (map[string]any, error) {
	var msg map[string]any
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return msg, nil
}
