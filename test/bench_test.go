package test

import (
	"encoding/json"
	"testing"
	"time"

	"jaysonic/client"
	"jaysonic/codec"
	"jaysonic/config"
	"jaysonic/server"
)

func setupBenchServer(b *testing.B, addr string) (*server.Server, *client.Client) {
	svr := newArithServer()
	go svr.ListenStream("tcp", addr)
	time.Sleep(100 * time.Millisecond)

	cfg := config.DefaultClientConfig()
	cfg.Host, cfg.Port = "127.0.0.1", portOf(addr)
	cfg.TimeoutSeconds = 5
	c := client.New(client.KindStream, cfg)
	if err := c.Connect(); err != nil {
		b.Fatal(err)
	}
	return svr, c
}

func portOf(addr string) int {
	var port int
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			for _, ch := range addr[i+1:] {
				port = port*10 + int(ch-'0')
			}
			break
		}
	}
	return port
}

// BenchmarkSerialCall measures one goroutine issuing sequential Send calls
// over a single persistent stream connection.
func BenchmarkSerialCall(b *testing.B) {
	svr, c := setupBenchServer(b, "127.0.0.1:29090")
	b.Cleanup(func() { c.End(); svr.Close() })

	params, _ := json.Marshal([]int{1, 2})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fut, err := c.Send("add", params)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := fut.Wait(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkConcurrentCall measures many goroutines multiplexing Send calls
// over the same connection, exercising the correlation table under
// contention.
func BenchmarkConcurrentCall(b *testing.B) {
	svr, c := setupBenchServer(b, "127.0.0.1:29091")
	b.Cleanup(func() { c.End(); svr.Close() })

	params, _ := json.Marshal([]int{1, 2})
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			fut, err := c.Send("add", params)
			if err != nil {
				b.Fatal(err)
			}
			if _, err := fut.Wait(); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkEncodeRequest measures the marshaling cost of a single request
// frame, independent of any network round trip.
func BenchmarkEncodeRequest(b *testing.B) {
	cdc := codec.New("")
	params, _ := json.Marshal([]int{1, 2})
	id := int64(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cdc.EncodeRequest("add", params, &id); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDecodeFrame measures the decode side of the same frame shape.
func BenchmarkDecodeFrame(b *testing.B) {
	cdc := codec.New("")
	params, _ := json.Marshal([]int{1, 2})
	id := int64(1)
	frame, err := cdc.EncodeRequest("add", params, &id)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cdc.Decode(frame); err != nil {
			b.Fatal(err)
		}
	}
}
