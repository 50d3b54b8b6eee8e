package store

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}

	// should start empty
	if len(store.GetAll()) != 0 {
		t.Errorf("GetAll() = %v items, want 0", len(store.GetAll()))
	}
}

func TestMemoryStore_Update(t *testing.T) {
	store := NewMemoryStore()

	state := EntityState{
		Key:          "pbx.local:8000_ext_101",
		Name:         "GonoPBX Ext Alice",
		Platform:     "binary_sensor",
		ConnectionID: "pbx.local:8000",
		Value:        true,
		Icon:         "mdi:phone-voip",
		DeviceClass:  "connectivity",
		Available:    true,
		UpdatedAt:    time.Now(),
	}

	store.Update(state)

	all := store.GetAll()
	if len(all) != 1 {
		t.Fatalf("GetAll() = %v items, want 1", len(all))
	}
	if all[0].Name != "GonoPBX Ext Alice" {
		t.Errorf("GetAll()[0].Name = %v, want %v", all[0].Name, "GonoPBX Ext Alice")
	}
	if all[0].Value != true {
		t.Errorf("GetAll()[0].Value = %v, want true", all[0].Value)
	}
}

func TestMemoryStore_UpdateOverwrites(t *testing.T) {
	store := NewMemoryStore()

	store.Update(EntityState{Key: "c_active_calls", Value: 1, Available: true})
	// same key replaces the previous value
	store.Update(EntityState{Key: "c_active_calls", Value: 4, Available: true})

	all := store.GetAll()
	if len(all) != 1 {
		t.Fatalf("GetAll() = %v items, want 1", len(all))
	}
	if all[0].Value != 4 {
		t.Errorf("GetAll()[0].Value = %v, want 4", all[0].Value)
	}
}

func TestMemoryStore_GetAllOrderedByKey(t *testing.T) {
	store := NewMemoryStore()

	store.Update(EntityState{Key: "c_trunk_sip1"})
	store.Update(EntityState{Key: "c_active_calls"})
	store.Update(EntityState{Key: "c_ext_101"})

	all := store.GetAll()
	want := []string{"c_active_calls", "c_ext_101", "c_trunk_sip1"}
	if len(all) != len(want) {
		t.Fatalf("GetAll() = %v items, want %d", len(all), len(want))
	}
	for i, k := range want {
		if all[i].Key != k {
			t.Errorf("GetAll()[%d].Key = %q, want %q", i, all[i].Key, k)
		}
	}
}

func TestMemoryStore_Get(t *testing.T) {
	store := NewMemoryStore()
	store.Update(EntityState{Key: "c_system", Value: false})

	got, ok := store.Get("c_system")
	if !ok {
		t.Fatal("Get(c_system) ok = false, want true")
	}
	if got.Value != false {
		t.Errorf("Get(c_system).Value = %v, want false", got.Value)
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("Get(missing) ok = true, want false")
	}
}

func TestMemoryStore_GetAllReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	store.Update(EntityState{Key: "c_system", Name: "GonoPBX System"})

	all := store.GetAll()
	all[0].Name = "mutated"

	got, _ := store.Get("c_system")
	if got.Name != "GonoPBX System" {
		t.Errorf("store was mutated through GetAll result: Name = %q", got.Name)
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore()
	ch := store.Subscribe()
	defer store.Unsubscribe(ch)

	store.Update(EntityState{Key: "c_calls_today", Value: 12})

	select {
	case got := <-ch:
		if got.Key != "c_calls_today" {
			t.Errorf("received Key = %q, want c_calls_today", got.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for update")
	}
}

func TestMemoryStore_MultipleSubscribers(t *testing.T) {
	store := NewMemoryStore()
	ch1 := store.Subscribe()
	ch2 := store.Subscribe()
	defer store.Unsubscribe(ch1)
	defer store.Unsubscribe(ch2)

	store.Update(EntityState{Key: "c_system", Value: true})

	for i, ch := range []<-chan EntityState{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Key != "c_system" {
				t.Errorf("subscriber %d received Key = %q", i, got.Key)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timeout waiting for update", i)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore()
	ch := store.Subscribe()

	store.Unsubscribe(ch)

	// channel should be closed
	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}

	// second unsubscribe is a no-op
	store.Unsubscribe(ch)

	// updates after unsubscribe must not panic
	store.Update(EntityState{Key: "c_system"})
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewMemoryStore()
	ch := store.Subscribe()
	defer store.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		// overflow the subscriber buffer without reading
		for i := 0; i < subscriberBuffer*2; i++ {
			store.Update(EntityState{Key: fmt.Sprintf("c_ext_%d", i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Update blocked on a slow subscriber")
	}

	if got := len(ch); got != subscriberBuffer {
		t.Errorf("buffered updates = %d, want %d", got, subscriberBuffer)
	}
	if got := len(store.GetAll()); got != subscriberBuffer*2 {
		t.Errorf("GetAll() = %d items, want %d", got, subscriberBuffer*2)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.Update(EntityState{Key: fmt.Sprintf("c_ext_%d", n), Value: j})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = store.GetAll()
			}
		}()
		go func() {
			defer wg.Done()
			ch := store.Subscribe()
			store.Unsubscribe(ch)
		}()
	}
	wg.Wait()

	if got := len(store.GetAll()); got != 10 {
		t.Errorf("GetAll() = %d items, want 10", got)
	}
}

func TestMemoryStore_ImplementsStore(t *testing.T) {
	var _ Store = NewMemoryStore()
}
