package transcript

import (
	"sync"
	"testing"
)

func TestLog_MergeFragments(t *testing.T) {
	l := NewLog()

	l.Append(SenderUser, "Hel")
	l.Append(SenderUser, "lo")
	l.Append(SenderModel, "Hi")

	turns := l.Turns()
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Sender != SenderUser || turns[0].Text != "Hello" {
		t.Errorf("turn 0 = {%s %q}, want {user \"Hello\"}", turns[0].Sender, turns[0].Text)
	}
	if turns[1].Sender != SenderModel || turns[1].Text != "Hi" {
		t.Errorf("turn 1 = {%s %q}, want {model \"Hi\"}", turns[1].Sender, turns[1].Text)
	}
	for i, turn := range turns {
		if turn.Complete {
			t.Errorf("turn %d should be incomplete", i)
		}
		if turn.ID == "" {
			t.Errorf("turn %d has empty ID", i)
		}
	}
	if turns[0].ID == turns[1].ID {
		t.Error("turns should have distinct IDs")
	}
}

func TestLog_SenderChangeStartsNewTurn(t *testing.T) {
	l := NewLog()

	l.Append(SenderUser, "one")
	l.Append(SenderModel, "two")
	l.Append(SenderUser, "three")

	if n := l.Len(); n != 3 {
		t.Errorf("Len = %d, want 3 (alternating senders never merge)", n)
	}
}

func TestLog_FinalizeAll(t *testing.T) {
	l := NewLog()
	l.Append(SenderUser, "Hello")
	l.Append(SenderModel, "Hi there")

	changed := l.FinalizeAll()
	if len(changed) != 2 {
		t.Fatalf("FinalizeAll changed %d turns, want 2", len(changed))
	}

	for i, turn := range l.Turns() {
		if !turn.Complete {
			t.Errorf("turn %d incomplete after FinalizeAll", i)
		}
	}

	// A new fragment after finalization starts a third turn rather than
	// extending the first user turn.
	l.Append(SenderUser, "More")
	turns := l.Turns()
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(turns))
	}
	if turns[0].Text != "Hello" {
		t.Errorf("first turn mutated after finalization: %q", turns[0].Text)
	}
	if turns[2].Text != "More" || turns[2].Complete {
		t.Errorf("new turn = {%q complete=%v}, want {\"More\" incomplete}", turns[2].Text, turns[2].Complete)
	}
}

func TestLog_FinalizeLast(t *testing.T) {
	l := NewLog()
	l.Append(SenderUser, "question")
	l.Append(SenderModel, "partial answ")

	turn, ok := l.FinalizeLast(SenderModel)
	if !ok {
		t.Fatal("FinalizeLast should finalize the trailing model turn")
	}
	if turn.Text != "partial answ" || !turn.Complete {
		t.Errorf("finalized turn = {%q complete=%v}", turn.Text, turn.Complete)
	}

	turns := l.Turns()
	if !turns[1].Complete {
		t.Error("model turn should be complete")
	}
	if turns[0].Complete {
		t.Error("user turn should be untouched")
	}

	// Trailing turn is no longer incomplete, so nothing to finalize.
	if _, ok := l.FinalizeLast(SenderModel); ok {
		t.Error("second FinalizeLast should be a no-op")
	}

	// Next model fragment starts a fresh turn.
	l.Append(SenderModel, "new answer")
	if n := l.Len(); n != 3 {
		t.Errorf("Len = %d, want 3", n)
	}
}

func TestLog_FinalizeLast_WrongSender(t *testing.T) {
	l := NewLog()
	l.Append(SenderUser, "hello")

	if _, ok := l.FinalizeLast(SenderModel); ok {
		t.Error("FinalizeLast(model) should not touch a trailing user turn")
	}
}

func TestLog_SnapshotIsCopy(t *testing.T) {
	l := NewLog()
	l.Append(SenderUser, "Hel")

	snap := l.Turns()
	l.Append(SenderUser, "lo")

	if snap[0].Text != "Hel" {
		t.Errorf("snapshot mutated: %q", snap[0].Text)
	}
}

func TestLog_Reset(t *testing.T) {
	l := NewLog()
	l.Append(SenderUser, "a")
	l.Reset()
	if l.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", l.Len())
	}
}

func TestLog_ConcurrentAppend(t *testing.T) {
	l := NewLog()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		sender := SenderUser
		if i%2 == 1 {
			sender = SenderModel
		}
		go func(s Sender) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Append(s, "x")
			}
		}(sender)
	}
	wg.Wait()

	// Every fragment must be accounted for across all turns.
	total := 0
	for _, turn := range l.Turns() {
		total += len(turn.Text)
	}
	if total != 400 {
		t.Errorf("total fragment characters = %d, want 400", total)
	}
}
