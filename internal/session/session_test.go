package session

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryNoncesIssueIsStable(t *testing.T) {
	n := NewInMemoryNonces(time.Hour)
	ctx := context.Background()

	first, err := n.Issue(ctx, "s1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, err := n.Issue(ctx, "s1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if first != second {
		t.Error("nonce changed between issues for the same session")
	}
}

func TestInMemoryNoncesCheck(t *testing.T) {
	n := NewInMemoryNonces(time.Hour)
	ctx := context.Background()

	nonce, err := n.Issue(ctx, "s1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	ok, err := n.Check(ctx, "s1", nonce)
	if err != nil || !ok {
		t.Errorf("got ok=%v err=%v for issued nonce, want match", ok, err)
	}
	ok, _ = n.Check(ctx, "s1", "wrong")
	if ok {
		t.Error("wrong nonce matched")
	}
	ok, _ = n.Check(ctx, "s1", "")
	if ok {
		t.Error("empty nonce matched")
	}
	ok, _ = n.Check(ctx, "s2", nonce)
	if ok {
		t.Error("nonce matched a different session")
	}
}

func TestInMemoryNoncesExpiry(t *testing.T) {
	n := NewInMemoryNonces(time.Millisecond)
	ctx := context.Background()

	nonce, err := n.Issue(ctx, "s1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	ok, _ := n.Check(ctx, "s1", nonce)
	if ok {
		t.Error("expired nonce matched")
	}
	reissued, err := n.Issue(ctx, "s1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if reissued == nonce {
		t.Error("expired nonce was reissued unchanged")
	}
}
