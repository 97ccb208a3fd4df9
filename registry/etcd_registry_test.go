package registry

import (
	"testing"
	"time"
)

func TestRegisterAndDiscover(t *testing.T) {
	reg, err := NewEtcdRegistry([]string{"localhost:2379"}, "jaysonic-test")
	if err != nil {
		t.Fatal(err)
	}

	// Register two instances
	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0", Methods: []string{"add"}}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0", Methods: []string{"add", "sub"}}

	if err := reg.Register("rpc-service", inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("rpc-service", inst2, 10); err != nil {
		t.Fatal(err)
	}

	// Discover
	instances, err := reg.Discover("rpc-service")
	if err != nil {
		t.Fatal(err)
	}

	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}

	// Deregister one
	if err := reg.Deregister("rpc-service", inst1.Addr); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	instances, err = reg.Discover("rpc-service")
	if err != nil {
		t.Fatal(err)
	}

	if len(instances) != 1 {
		t.Fatalf("expect 1 instance after deregister, got %d", len(instances))
	}

	if instances[0].Addr != inst2.Addr {
		t.Fatalf("expect %s, got %s", inst2.Addr, instances[0].Addr)
	}
	if len(instances[0].Methods) != 2 {
		t.Fatalf("expect advertised methods to round-trip through etcd, got %v", instances[0].Methods)
	}

	// Cleanup
	reg.Deregister("rpc-service", inst2.Addr)
}

func TestTwoNamespacesDoNotCollide(t *testing.T) {
	a, err := NewEtcdRegistry([]string{"localhost:2379"}, "tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewEtcdRegistry([]string{"localhost:2379"}, "tenant-b")
	if err != nil {
		t.Fatal(err)
	}

	inst := ServiceInstance{Addr: "127.0.0.1:9001", Weight: 1}
	if err := a.Register("rpc-service", inst, 10); err != nil {
		t.Fatal(err)
	}
	defer a.Deregister("rpc-service", inst.Addr)

	instances, err := b.Discover("rpc-service")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 0 {
		t.Fatalf("expect tenant-b to see nothing registered under tenant-a, got %v", instances)
	}
}
