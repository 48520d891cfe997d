package cart

import (
	"context"
	"testing"
)

func TestAddItemMergesUntaggedLines(t *testing.T) {
	c := &Cart{SessionID: "s1"}

	c.AddItem(1, "Widget", 1, 10, nil)
	c.AddItem(1, "Widget", 2, 10, nil)
	if len(c.Items) != 1 {
		t.Fatalf("got %d lines, want 1 merged line", len(c.Items))
	}
	if c.Items[0].Quantity != 3 {
		t.Errorf("got quantity %d, want 3", c.Items[0].Quantity)
	}
	if c.Total != 30.00 {
		t.Errorf("got total %v, want 30.00", c.Total)
	}
}

func TestAddItemTaggedLineNeverMerges(t *testing.T) {
	c := &Cart{SessionID: "s1"}

	c.AddItem(1, "Widget", 1, 10, nil)
	c.AddItem(1, "Widget", 1, 8, map[string]string{MetaBumpID: "5"})
	if len(c.Items) != 2 {
		t.Fatalf("got %d lines, want separate bump line", len(c.Items))
	}
	line := c.FindBump("5")
	if line == nil {
		t.Fatal("bump line not found")
	}
	if line.UnitPrice != 8 {
		t.Errorf("got unit price %v, want 8", line.UnitPrice)
	}
	if c.Total != 18.00 {
		t.Errorf("got total %v, want 18.00", c.Total)
	}
}

func TestRemoveItemRecomputes(t *testing.T) {
	c := &Cart{SessionID: "s1"}
	a := c.AddItem(1, "Widget", 1, 10, nil)
	c.AddItem(2, "Gadget", 1, 5, nil)

	if !c.RemoveItem(a.Key) {
		t.Fatal("RemoveItem reported no removal")
	}
	if c.RemoveItem(a.Key) {
		t.Error("RemoveItem removed the same line twice")
	}
	if c.Total != 5.00 {
		t.Errorf("got total %v, want 5.00", c.Total)
	}
}

func TestInMemoryStoreCopySemantics(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	c, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c == nil || len(c.Items) != 0 {
		t.Fatalf("got %+v for absent session, want empty cart", c)
	}

	c.AddItem(1, "Widget", 1, 10, nil)
	if err := s.Save(ctx, c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the returned cart must not leak into the store.
	loaded, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	loaded.AddItem(2, "Gadget", 1, 5, nil)

	again, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(again.Items) != 1 {
		t.Errorf("store leaked a mutation, got %d items", len(again.Items))
	}

	if err := s.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	c, err = s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(c.Items) != 0 {
		t.Errorf("cart survived delete")
	}
}
