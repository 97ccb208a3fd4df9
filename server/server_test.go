package server

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"jaysonic/config"
	"jaysonic/registry"
	"jaysonic/rpcerr"
)

// fakeRegistry is a minimal in-memory registry.Registry for exercising
// Advertise without etcd.
type fakeRegistry struct {
	registered map[string]registry.ServiceInstance
}

func (r *fakeRegistry) Register(serviceName string, instance registry.ServiceInstance, ttl int64) error {
	if r.registered == nil {
		r.registered = make(map[string]registry.ServiceInstance)
	}
	r.registered[serviceName+"/"+instance.Addr] = instance
	return nil
}
func (r *fakeRegistry) Deregister(serviceName, addr string) error {
	delete(r.registered, serviceName+"/"+addr)
	return nil
}
func (r *fakeRegistry) Discover(serviceName string) ([]registry.ServiceInstance, error) {
	return nil, nil
}
func (r *fakeRegistry) Watch(serviceName string) <-chan []registry.ServiceInstance { return nil }

func newTestServer() *Server {
	s := New(config.DefaultServerConfig())
	s.Method("add", func(params json.RawMessage) (any, error) {
		var args []int
		if err := json.Unmarshal(params, &args); err != nil || len(args) != 2 {
			return nil, rpcerr.InvalidParamsSignal
		}
		return args[0] + args[1], nil
	})
	return s
}

// TestDispatchAdd is the S1 scenario from the server side: a well-formed
// request for a registered method produces the expected response shape.
func TestDispatchAdd(t *testing.T) {
	s := newTestServer()
	resp, has := s.dispatchFrame([]byte(`{"jsonrpc":"2.0","method":"add","params":[1,2],"id":1}`))
	if !has {
		t.Fatal("expected a response")
	}
	var got map[string]any
	if err := json.Unmarshal(resp, &got); err != nil {
		t.Fatal(err)
	}
	if got["result"].(float64) != 3 {
		t.Fatalf("expect result 3, got %v", got["result"])
	}
	if got["id"].(float64) != 1 {
		t.Fatalf("expect id 1, got %v", got["id"])
	}
}

// TestDispatchMethodNotFound is S2: an unregistered method yields -32601.
func TestDispatchMethodNotFound(t *testing.T) {
	s := newTestServer()
	resp, has := s.dispatchFrame([]byte(`{"jsonrpc":"2.0","method":"nonexistent","params":[],"id":3}`))
	if !has {
		t.Fatal("expected a response")
	}
	assertErrorCode(t, resp, int(rpcerr.MethodNotFound), 3)
}

// TestDispatchParseError is S3: unparseable input yields -32700 with a nil
// id.
func TestDispatchParseError(t *testing.T) {
	s := newTestServer()
	resp, has := s.dispatchFrame([]byte("test"))
	if !has {
		t.Fatal("expected a response")
	}
	if !strings.Contains(string(resp), `"id":null`) {
		t.Fatalf("expect a null id in parse error response, got %s", resp)
	}
	assertErrorCode(t, resp, int(rpcerr.ParseError), 0)
}

// TestDispatchInvalidRequestNonStringMethod is S4: a non-string method
// yields -32600.
func TestDispatchInvalidRequestNonStringMethod(t *testing.T) {
	s := newTestServer()
	resp, has := s.dispatchFrame([]byte(`{"jsonrpc":"2.0","method":1,"params":[],"id":69}`))
	if !has {
		t.Fatal("expected a response")
	}
	assertErrorCode(t, resp, int(rpcerr.InvalidRequest), 0)
}

// TestDispatchNotificationNoResponse verifies notifications never get a
// reply and instead fire the notify event (spec §4.6 step 4).
func TestDispatchNotificationNoResponse(t *testing.T) {
	s := newTestServer()
	var seenMethod string
	s.OnNotify(func(method string, params json.RawMessage) { seenMethod = method })

	_, has := s.dispatchFrame([]byte(`{"jsonrpc":"2.0","method":"ping","params":[]}`))
	if has {
		t.Fatal("notifications must never get a response")
	}
	if seenMethod != "ping" {
		t.Fatalf("expected notify event for 'ping', got %q", seenMethod)
	}
}

// TestDispatchBatch is S5 from the server side: a batch of two add calls
// produces a response array with both results present, in input order.
func TestDispatchBatch(t *testing.T) {
	s := newTestServer()
	resp, has := s.dispatchFrame([]byte(
		`[{"jsonrpc":"2.0","method":"add","params":[1,2],"id":5},` +
			`{"jsonrpc":"2.0","method":"add","params":[3,4],"id":6}]`))
	if !has {
		t.Fatal("expected a response")
	}

	var results []map[string]any
	if err := json.Unmarshal(resp, &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expect 2 results, got %d", len(results))
	}
	if results[0]["id"].(float64) != 5 || results[1]["id"].(float64) != 6 {
		t.Fatalf("expect ids 5,6 in order, got %v", results)
	}
}

// TestDispatchBatchIndependentFailure verifies a single bad element in a
// batch doesn't abort the others.
func TestDispatchBatchIndependentFailure(t *testing.T) {
	s := newTestServer()
	resp, has := s.dispatchFrame([]byte(
		`[{"jsonrpc":"2.0","method":"add","params":[1,2],"id":1},` +
			`{"jsonrpc":"2.0","method":"nonexistent","params":[],"id":2}]`))
	if !has {
		t.Fatal("expected a response")
	}

	var results []map[string]any
	if err := json.Unmarshal(resp, &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expect 2 results, got %d", len(results))
	}
	if _, ok := results[0]["result"]; !ok {
		t.Fatalf("expect first element to still succeed: %v", results[0])
	}
	if _, ok := results[1]["error"]; !ok {
		t.Fatalf("expect second element to carry an error: %v", results[1])
	}
}

// TestDispatchAllNotificationBatchHasNoResponse verifies an all-notification
// batch produces no response at all (spec §4.6 step 2).
func TestDispatchAllNotificationBatchHasNoResponse(t *testing.T) {
	s := newTestServer()
	_, has := s.dispatchFrame([]byte(
		`[{"jsonrpc":"2.0","method":"ping","params":[]},{"jsonrpc":"2.0","method":"pong","params":[]}]`))
	if has {
		t.Fatal("all-notification batch must produce no response")
	}
}

// TestInvalidParamsSignal verifies a handler's InvalidParamsSignal maps to
// -32602 rather than Internal Error.
func TestInvalidParamsSignal(t *testing.T) {
	s := newTestServer()
	resp, has := s.dispatchFrame([]byte(`{"jsonrpc":"2.0","method":"add","params":[1],"id":9}`))
	if !has {
		t.Fatal("expected a response")
	}
	assertErrorCode(t, resp, int(rpcerr.InvalidParams), 9)
}

// TestHandlerPanicRecovers verifies a panicking handler becomes an Internal
// Error instead of crashing dispatch.
func TestHandlerPanicRecovers(t *testing.T) {
	s := New(config.DefaultServerConfig())
	s.Method("boom", func(params json.RawMessage) (any, error) {
		panic("kaboom")
	})
	resp, has := s.dispatchFrame([]byte(`{"jsonrpc":"2.0","method":"boom","params":[],"id":1}`))
	if !has {
		t.Fatal("expected a response")
	}
	assertErrorCode(t, resp, int(rpcerr.InternalError), 1)
}

// TestAdvertiseRegistersMethodNames verifies Advertise reports the
// server's current registered methods as part of the instance it puts in
// the registry, so discovery-mode clients can tell compatible instances
// apart from ones missing a method they need.
func TestAdvertiseRegistersMethodNames(t *testing.T) {
	s := newTestServer()
	s.Method("sub", func(params json.RawMessage) (any, error) { return nil, nil })
	reg := &fakeRegistry{}

	if err := s.Advertise(reg, "rpc-service", "127.0.0.1:9000", 5, 10); err != nil {
		t.Fatal(err)
	}

	inst, ok := reg.registered["rpc-service/127.0.0.1:9000"]
	if !ok {
		t.Fatal("expect the instance to be registered")
	}
	methods := append([]string(nil), inst.Methods...)
	sort.Strings(methods)
	if len(methods) != 2 || methods[0] != "add" || methods[1] != "sub" {
		t.Fatalf("unexpected advertised methods: %v", methods)
	}
	if inst.Weight != 5 {
		t.Fatalf("expect weight 5, got %d", inst.Weight)
	}
}

func assertErrorCode(t *testing.T, resp []byte, wantCode int, wantID float64) {
	t.Helper()
	var got struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
		ID *float64 `json:"id"`
	}
	if err := json.Unmarshal(resp, &got); err != nil {
		t.Fatal(err)
	}
	if got.Error == nil {
		t.Fatalf("expected an error object in %s", resp)
	}
	if got.Error.Code != wantCode {
		t.Fatalf("expect code %d, got %d", wantCode, got.Error.Code)
	}
	if wantID != 0 && (got.ID == nil || *got.ID != wantID) {
		t.Fatalf("expect id %v, got %v", wantID, got.ID)
	}
}
