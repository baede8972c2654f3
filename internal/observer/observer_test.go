package observer

import (
	"reflect"
	"testing"
)

func TestRegistry_NotifyInOrder(t *testing.T) {
	var r Registry[int]
	var got []string

	r.Subscribe(func(v int) { got = append(got, "a") })
	r.Subscribe(func(v int) { got = append(got, "b") })
	r.Subscribe(func(v int) { got = append(got, "c") })

	r.Notify(1)
	r.Notify(2)

	expected := []string{"a", "b", "c", "a", "b", "c"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestRegistry_Unsubscribe(t *testing.T) {
	var r Registry[string]
	calls := map[string]int{}

	unsubA := r.Subscribe(func(v string) { calls["a"]++ })
	r.Subscribe(func(v string) { calls["b"]++ })

	r.Notify("x")
	unsubA()
	unsubA() // second call is a no-op
	r.Notify("y")

	if calls["a"] != 1 {
		t.Errorf("Expected a called once, got %d", calls["a"])
	}
	if calls["b"] != 2 {
		t.Errorf("Expected b called twice, got %d", calls["b"])
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 handler left, got %d", r.Len())
	}
}

func TestRegistry_UnsubscribeDuringNotify(t *testing.T) {
	var r Registry[int]
	count := 0

	var unsub func()
	unsub = r.Subscribe(func(int) {
		count++
		unsub()
	})
	r.Subscribe(func(int) { count++ })

	r.Notify(0)
	if count != 2 {
		t.Errorf("Expected both handlers on first notify, got %d", count)
	}

	r.Notify(0)
	if count != 3 {
		t.Errorf("Expected only remaining handler on second notify, got %d", count)
	}
}
