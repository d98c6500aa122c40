package core

import (
	"fmt"
	"testing"

	"parlor-server/internal/log"
	"parlor-server/internal/proto"
)

// benchConn swallows writes so the benchmark measures fan-out, not
// encoding or I/O.
type benchConn struct{ id string }

func (c *benchConn) ID() string                { return c.id }
func (c *benchConn) Send(msg any) error        { return nil }
func (c *benchConn) Close(reason string) error { return nil }

func benchmarkRoomBroadcast(b *testing.B, recipients int) {
	reg := NewRegistry(log.Nop())
	defer reg.Shutdown()

	for i := 0; i < recipients; i++ {
		reg.Connect("bench", fmt.Sprintf("user-%d", i), &benchConn{id: fmt.Sprintf("conn-%d", i)})
	}

	msg := proto.ChatMessage{
		Type:     proto.OutboundTypeMessage,
		Username: "sender",
		Message:  "payload",
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		reg.Broadcast("bench", msg, "")
	}
}

func BenchmarkRoomBroadcast_10(b *testing.B)  { benchmarkRoomBroadcast(b, 10) }
func BenchmarkRoomBroadcast_100(b *testing.B) { benchmarkRoomBroadcast(b, 100) }
func BenchmarkRoomBroadcast_500(b *testing.B) { benchmarkRoomBroadcast(b, 500) }
