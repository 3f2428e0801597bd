package processor

import (
	"context"
	"testing"

	"github.com/nexusbridge/relayer/pkg/domain"
	"github.com/nexusbridge/relayer/pkg/logstore"
	"github.com/nexusbridge/relayer/pkg/matchinglist"
	"github.com/nexusbridge/relayer/pkg/relayererrors"
)

type fakeStore struct {
	messages  map[uint32]domain.RawCommittedMessage
	processed map[uint32]bool
	delivery  map[[32]byte]logstore.DeliveryState
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages:  make(map[uint32]domain.RawCommittedMessage),
		processed: make(map[uint32]bool),
		delivery:  make(map[[32]byte]logstore.DeliveryState),
	}
}

func (f *fakeStore) LoadMessage(origin, nonce uint32) (domain.RawCommittedMessage, error) {
	m, ok := f.messages[nonce]
	if !ok {
		return domain.RawCommittedMessage{}, relayererrors.ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) IsProcessed(origin, nonce uint32) (bool, error) {
	return f.processed[nonce], nil
}

func (f *fakeStore) LoadDeliveryState(messageID [32]byte) (logstore.DeliveryState, error) {
	return f.delivery[messageID], nil
}

func (f *fakeStore) put(nonce uint32, m domain.Message) {
	f.messages[nonce] = domain.RawCommittedMessage{LeafIndex: uint64(nonce), Raw: m.CanonicalBytes()}
}

type fakeTree struct {
	updatedTo []uint32
}

func (f *fakeTree) UpdateToIndex(target uint32) error {
	f.updatedTo = append(f.updatedTo, target)
	return nil
}

func newProcessorForTest(store *fakeStore, tree *fakeTree, destinations map[uint32]*Queue) *Processor {
	return New(Config{
		Origin:       1,
		Store:        store,
		Tree:         tree,
		Destinations: destinations,
		Contexts:     map[uint32]*MessageContext{},
	})
}

func TestStepWaitsWhenMessageAbsent(t *testing.T) {
	store := newFakeStore()
	tree := &fakeTree{}
	p := newProcessorForTest(store, tree, map[uint32]*Queue{2: NewQueue()})

	advanced, err := p.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if advanced {
		t.Error("expected no advance with no message at cursor")
	}
	if p.Cursor() != 0 {
		t.Errorf("cursor moved: %d", p.Cursor())
	}
}

func TestStepSkipsAlreadyProcessed(t *testing.T) {
	store := newFakeStore()
	store.put(0, domain.Message{Origin: 1, Destination: 2, Nonce: 0})
	store.processed[0] = true
	tree := &fakeTree{}
	p := newProcessorForTest(store, tree, map[uint32]*Queue{2: NewQueue()})

	advanced, err := p.Step(context.Background())
	if err != nil || !advanced {
		t.Fatalf("step: advanced=%v err=%v", advanced, err)
	}
	if p.Cursor() != 1 {
		t.Errorf("cursor = %d, want 1", p.Cursor())
	}
	if len(tree.updatedTo) != 0 {
		t.Error("tree should not be touched for an already-processed message")
	}
}

// TestSelfDestinationSkip exercises scenario S6: a message with
// destination == origin is skipped without being queued.
func TestSelfDestinationSkip(t *testing.T) {
	store := newFakeStore()
	store.put(0, domain.Message{Origin: 1, Destination: 1, Nonce: 0})
	tree := &fakeTree{}
	queue := NewQueue()
	p := newProcessorForTest(store, tree, map[uint32]*Queue{1: queue})

	advanced, err := p.Step(context.Background())
	if err != nil || !advanced {
		t.Fatalf("step: advanced=%v err=%v", advanced, err)
	}
	if _, ok := queue.TryReceive(); ok {
		t.Error("expected no message queued for a self-destination message")
	}
}

func TestUnknownDestinationSkipped(t *testing.T) {
	store := newFakeStore()
	store.put(0, domain.Message{Origin: 1, Destination: 99, Nonce: 0})
	tree := &fakeTree{}
	p := newProcessorForTest(store, tree, map[uint32]*Queue{2: NewQueue()})

	advanced, err := p.Step(context.Background())
	if err != nil || !advanced {
		t.Fatalf("step: advanced=%v err=%v", advanced, err)
	}
	if p.Cursor() != 1 {
		t.Errorf("cursor = %d, want 1", p.Cursor())
	}
}

func TestBlacklistedMessageSkipped(t *testing.T) {
	store := newFakeStore()
	store.put(0, domain.Message{Origin: 1, Destination: 2, Nonce: 0, Sender: [32]byte{0xAA}})
	tree := &fakeTree{}
	queue := NewQueue()
	p := newProcessorForTest(store, tree, map[uint32]*Queue{2: queue})
	sender := [32]byte{0xAA}
	p.blacklist = matchinglist.List{{SenderAddress: &sender}}

	advanced, err := p.Step(context.Background())
	if err != nil || !advanced {
		t.Fatalf("step: advanced=%v err=%v", advanced, err)
	}
	if _, ok := queue.TryReceive(); ok {
		t.Error("expected no message queued for a blacklisted sender")
	}
}

func TestExplicitNonceSkip(t *testing.T) {
	store := newFakeStore()
	store.put(0, domain.Message{Origin: 1, Destination: 2, Nonce: 0})
	tree := &fakeTree{}
	queue := NewQueue()
	p := newProcessorForTest(store, tree, map[uint32]*Queue{2: queue})
	p.noncesToSkip = NoncesToSkip{1: {0: true}}

	advanced, err := p.Step(context.Background())
	if err != nil || !advanced {
		t.Fatalf("step: advanced=%v err=%v", advanced, err)
	}
	if _, ok := queue.TryReceive(); ok {
		t.Error("expected no message queued for an explicitly skipped nonce")
	}
}

func TestAcceptedMessageAdvancesTreeAndQueues(t *testing.T) {
	store := newFakeStore()
	msg := domain.Message{Origin: 1, Destination: 2, Nonce: 0, Body: []byte("hi")}
	store.put(0, msg)
	store.delivery[msg.ID()] = logstore.DeliveryState{Attempts: 3}
	tree := &fakeTree{}
	queue := NewQueue()
	p := newProcessorForTest(store, tree, map[uint32]*Queue{2: queue})

	advanced, err := p.Step(context.Background())
	if err != nil || !advanced {
		t.Fatalf("step: advanced=%v err=%v", advanced, err)
	}
	if len(tree.updatedTo) != 1 || tree.updatedTo[0] != 0 {
		t.Errorf("tree update calls = %v, want [0]", tree.updatedTo)
	}
	pending, ok := queue.TryReceive()
	if !ok {
		t.Fatal("expected a queued pending message")
	}
	if pending.RetryCount != 3 {
		t.Errorf("retry count = %d, want 3", pending.RetryCount)
	}
	if pending.MessageID != msg.ID() {
		t.Error("message id mismatch")
	}
}

// TestProcessorNeverSkipsAheadOfCursor asserts the fairness property:
// the processor never emits nonce n+1 before it has resolved nonce n.
func TestProcessorNeverSkipsAheadOfCursor(t *testing.T) {
	store := newFakeStore()
	for i := uint32(0); i < 3; i++ {
		store.put(i, domain.Message{Origin: 1, Destination: 2, Nonce: i})
	}
	tree := &fakeTree{}
	queue := NewQueue()
	p := newProcessorForTest(store, tree, map[uint32]*Queue{2: queue})

	var seen []uint32
	for i := 0; i < 3; i++ {
		if _, err := p.Step(context.Background()); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		msg, ok := queue.TryReceive()
		if !ok {
			t.Fatalf("expected message at step %d", i)
		}
		seen = append(seen, msg.Message.Nonce)
	}
	for i, nonce := range seen {
		if nonce != uint32(i) {
			t.Errorf("processed out of order: %v", seen)
			break
		}
	}
}
