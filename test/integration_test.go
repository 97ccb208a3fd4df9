// Package test holds end-to-end scenarios that exercise a full client-server
// round trip over each transport, plus the discovery-mode connect path.
package test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"jaysonic/client"
	"jaysonic/config"
	"jaysonic/loadbalance"
	"jaysonic/registry"
	"jaysonic/rpcerr"
	"jaysonic/server"
)

// mockRegistry is an in-memory registry.Registry, used so discovery-mode
// tests don't require a live etcd cluster.
type mockRegistry struct {
	instances map[string][]registry.ServiceInstance
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{instances: make(map[string][]registry.ServiceInstance)}
}

func (m *mockRegistry) Register(serviceName string, inst registry.ServiceInstance, ttl int64) error {
	m.instances[serviceName] = append(m.instances[serviceName], inst)
	return nil
}

func (m *mockRegistry) Deregister(serviceName string, addr string) error {
	insts := m.instances[serviceName]
	for i, inst := range insts {
		if inst.Addr == addr {
			m.instances[serviceName] = append(insts[:i], insts[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockRegistry) Discover(serviceName string) ([]registry.ServiceInstance, error) {
	return m.instances[serviceName], nil
}

func (m *mockRegistry) Watch(serviceName string) <-chan []registry.ServiceInstance {
	return nil
}

func newArithServer() *server.Server {
	svr := server.New(config.DefaultServerConfig())
	svr.Method("add", func(params json.RawMessage) (any, error) {
		var args []int
		if err := json.Unmarshal(params, &args); err != nil || len(args) != 2 {
			return nil, rpcerr.InvalidParamsSignal
		}
		return args[0] + args[1], nil
	})
	svr.Method("multiply", func(params json.RawMessage) (any, error) {
		var args []int
		if err := json.Unmarshal(params, &args); err != nil || len(args) != 2 {
			return nil, rpcerr.InvalidParamsSignal
		}
		return args[0] * args[1], nil
	})
	return svr
}

func callAdd(t *testing.T, c *client.Client, a, b int) int {
	t.Helper()
	params, _ := json.Marshal([]int{a, b})
	fut, err := c.Send("add", params)
	if err != nil {
		t.Fatalf("send add: %v", err)
	}
	raw, err := fut.Wait()
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	var resp struct {
		Result int `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode add response: %v", err)
	}
	return resp.Result
}

// TestStreamEndToEnd covers S1/S2 over a raw stream socket: a successful
// call and a method-not-found rejection on the same connection.
func TestStreamEndToEnd(t *testing.T) {
	addr := "127.0.0.1:19180"
	svr := newArithServer()
	go svr.ListenStream("tcp", addr)
	time.Sleep(50 * time.Millisecond)
	t.Cleanup(func() { svr.Close() })

	cfg := config.DefaultClientConfig()
	cfg.Host, cfg.Port = "127.0.0.1", 19180
	cfg.TimeoutSeconds = 2
	c := client.New(client.KindStream, cfg)
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	defer c.End()

	if got := callAdd(t, c, 3, 5); got != 8 {
		t.Fatalf("expect 8, got %d", got)
	}

	fut, err := c.Send("subtract", json.RawMessage(`[]`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fut.Wait(); err == nil {
		t.Fatal("expected an error for an unregistered method")
	}
}

// TestHTTPEndToEnd covers the stateless HTTP transport: one request, one
// response, no persistent connection.
func TestHTTPEndToEnd(t *testing.T) {
	addr := "127.0.0.1:19181"
	svr := newArithServer()
	go svr.ListenHTTP(addr, "/")
	time.Sleep(50 * time.Millisecond)
	t.Cleanup(func() { svr.Close() })

	cfg := config.DefaultClientConfig()
	cfg.URL = fmt.Sprintf("http://%s/", addr)
	cfg.TimeoutSeconds = 2
	c := client.New(client.KindHTTP, cfg)
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	defer c.End()

	if got := callAdd(t, c, 4, 6); got != 10 {
		t.Fatalf("expect 10, got %d", got)
	}
}

// TestHTTPNotifyEndToEnd is spec §8 scenario S7: a notification posted over
// HTTP resolves once the server replies 204 with an empty body, and the
// server's handler actually ran.
func TestHTTPNotifyEndToEnd(t *testing.T) {
	addr := "127.0.0.1:19190"
	svr := newArithServer()
	seen := make(chan string, 1)
	svr.OnNotify(func(method string, params json.RawMessage) { seen <- method })
	go svr.ListenHTTP(addr, "/")
	time.Sleep(50 * time.Millisecond)
	t.Cleanup(func() { svr.Close() })

	cfg := config.DefaultClientConfig()
	cfg.URL = fmt.Sprintf("http://%s/", addr)
	cfg.TimeoutSeconds = 2
	c := client.New(client.KindHTTP, cfg)
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	defer c.End()

	fut := c.Notify("notify", json.RawMessage(`[]`))
	if _, err := fut.Wait(); err != nil {
		t.Fatalf("expect the notification promise to resolve, got %v", err)
	}

	select {
	case method := <-seen:
		if method != "notify" {
			t.Fatalf("expect the server to have run the notify handler, got method %q", method)
		}
	case <-time.After(time.Second):
		t.Fatal("expect the server to have observed the notification")
	}
}

// TestWSEndToEnd covers the WebSocket transport end to end.
func TestWSEndToEnd(t *testing.T) {
	addr := "127.0.0.1:19182"
	svr := newArithServer()
	go svr.ListenWS(addr, "/ws")
	time.Sleep(50 * time.Millisecond)
	t.Cleanup(func() { svr.Close() })

	cfg := config.DefaultClientConfig()
	cfg.URL = fmt.Sprintf("ws://%s/ws", addr)
	cfg.TimeoutSeconds = 2
	c := client.New(client.KindWS, cfg)
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	defer c.End()

	if got := callAdd(t, c, 7, 8); got != 15 {
		t.Fatalf("expect 15, got %d", got)
	}
}

// TestDiscoveryModeRoundRobin registers two server instances in a mock
// registry and confirms a discovery-mode client connects to the instance
// its round-robin balancer picks and completes a call there.
func TestDiscoveryModeRoundRobin(t *testing.T) {
	addr1, addr2 := "127.0.0.1:19183", "127.0.0.1:19184"
	svr1, svr2 := newArithServer(), newArithServer()
	go svr1.ListenStream("tcp", addr1)
	go svr2.ListenStream("tcp", addr2)
	time.Sleep(50 * time.Millisecond)
	t.Cleanup(func() { svr1.Close(); svr2.Close() })

	reg := newMockRegistry()
	reg.Register("arith", registry.ServiceInstance{Addr: addr1, Weight: 10}, 10)
	reg.Register("arith", registry.ServiceInstance{Addr: addr2, Weight: 10}, 10)

	cfg := config.DefaultClientConfig()
	cfg.ServiceName = "arith"
	cfg.TimeoutSeconds = 2
	c := client.New(client.KindStream, cfg).WithDiscovery(reg, &loadbalance.RoundRobinBalancer{})
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	defer c.End()

	if got := callAdd(t, c, 1, 1); got != 2 {
		t.Fatalf("expect 2, got %d", got)
	}
}

// TestMultipleRequestsPreserveOrderingOfIDs exercises ten sequential calls
// over one connection, confirming each settles with its own result.
func TestMultipleRequestsPreserveOrderingOfIDs(t *testing.T) {
	addr := "127.0.0.1:19185"
	svr := newArithServer()
	go svr.ListenStream("tcp", addr)
	time.Sleep(50 * time.Millisecond)
	t.Cleanup(func() { svr.Close() })

	cfg := config.DefaultClientConfig()
	cfg.Host, cfg.Port = "127.0.0.1", 19185
	cfg.TimeoutSeconds = 2
	c := client.New(client.KindStream, cfg)
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	defer c.End()

	for i := 1; i <= 10; i++ {
		if got := callAdd(t, c, i, i*10); got != i+i*10 {
			t.Fatalf("request %d: expect %d, got %d", i, i+i*10, got)
		}
	}
}
