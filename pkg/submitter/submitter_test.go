package submitter

import (
	"context"
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/stretchr/testify/require"

	"github.com/nexusbridge/relayer/pkg/chainclient"
	"github.com/nexusbridge/relayer/pkg/domain"
	"github.com/nexusbridge/relayer/pkg/logstore"
	"github.com/nexusbridge/relayer/pkg/processor"
)

// fakeMailbox implements chainclient.Mailbox with scripted responses.
type fakeMailbox struct {
	domain      uint32
	delivered   bool
	deliverErr  error
	processFn   func() (chainclient.TxReceipt, error)
	estimateGas uint64
}

func (f *fakeMailbox) Domain() uint32 { return f.domain }

func (f *fakeMailbox) Delivered(ctx context.Context, messageID [32]byte) (bool, error) {
	return f.delivered, f.deliverErr
}

func (f *fakeMailbox) Process(ctx context.Context, message domain.Message, metadata []byte) (chainclient.TxReceipt, error) {
	if f.processFn != nil {
		return f.processFn()
	}
	return chainclient.TxReceipt{Success: true}, nil
}

func (f *fakeMailbox) EstimateGas(ctx context.Context, message domain.Message, metadata []byte) (uint64, error) {
	return f.estimateGas, nil
}

func (f *fakeMailbox) RecipientIsmAddress(ctx context.Context, recipient [32]byte) ([32]byte, error) {
	return [32]byte{}, nil
}

func newTestStore(t *testing.T) *logstore.Store {
	t.Helper()
	return logstore.New(logstore.NewDBAdapter(dbm.NewMemDB()))
}

// TestSubmitterIdempotentOnAlreadyDelivered exercises testable property
// 6, submitter idempotence: when the destination mailbox already
// reports a message delivered, Prepare returns AlreadyDelivered without
// ever calling Submit.
func TestSubmitterIdempotentOnAlreadyDelivered(t *testing.T) {
	store := newTestStore(t)
	mailbox := &fakeMailbox{delivered: true, processFn: func() (chainclient.TxReceipt, error) {
		t.Fatal("submit should never be called for an already-delivered message")
		return chainclient.TxReceipt{}, nil
	}}

	msg := &processor.PendingMessage{
		Message:   domain.Message{Origin: 1, Destination: 2, Nonce: 0},
		MessageID: [32]byte{0x01},
		Context:   &processor.MessageContext{Destination: 2, Mailbox: mailbox},
	}

	op := NewMessageOperation(msg, store, time.Second, nil, nil)
	outcome, err := op.Prepare(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyDelivered, outcome)
}

// TestRetryPersistenceSeedsInitialBackoff exercises scenario S5: three
// messages with persisted retry counts (3, 0, 10) each get an initial
// NextAttemptAfter of now+backoff(retries).
func TestRetryPersistenceSeedsInitialBackoff(t *testing.T) {
	store := newTestStore(t)
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixedNow }

	for _, retries := range []uint32{3, 0, 10} {
		msg := &processor.PendingMessage{
			Message:    domain.Message{Origin: 1, Destination: 2, Nonce: retries},
			MessageID:  [32]byte{byte(retries)},
			Context:    &processor.MessageContext{Destination: 2, Mailbox: &fakeMailbox{}},
			RetryCount: retries,
		}
		op := NewMessageOperation(msg, store, time.Second, clock, nil)
		want := fixedNow.Add(CalculateBackoff(retries))
		require.True(t, op.NextAttemptAfter().Equal(want), "retries=%d got=%s want=%s", retries, op.NextAttemptAfter(), want)
	}
}

// TestPriorityQueueOrdersByAttemptThenNonce asserts §4.I's ordering:
// earliest NextAttemptAfter first (None/zero first), nonce ascending
// breaking ties.
func TestPriorityQueueOrdersByAttemptThenNonce(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Minute)

	mkOp := func(nonce uint32, attempt time.Time) *MessageOperation {
		msg := &processor.PendingMessage{
			Message: domain.Message{Nonce: nonce},
		}
		op := &MessageOperation{msg: msg, nextAttemptAfter: attempt, clock: time.Now}
		return op
	}

	pq := newPriorityQueue()
	pq.push(mkOp(5, later))
	pq.push(mkOp(1, time.Time{}))
	pq.push(mkOp(2, time.Time{}))
	pq.push(mkOp(3, now))

	var order []uint32
	for pq.Len() > 0 {
		op, ok := pq.popReady()
		require.True(t, ok)
		order = append(order, op.SortKey())
	}
	require.Equal(t, []uint32{1, 2, 3, 5}, order)
}

// TestSubmitterDrainsAndDeliversReadyMessage drains one message into
// the Submitter's queue, pops it, and calls its Submit and Validate
// directly (Prepare-less, without the Run loop) for a message whose
// destination accepts immediately, confirming delivery on the first
// Validate check.
func TestSubmitterDrainsAndDeliversReadyMessage(t *testing.T) {
	store := newTestStore(t)
	mailbox := &fakeMailbox{}

	incoming := processor.NewQueue()
	sub := New(Config{
		Destination:   2,
		Incoming:      incoming,
		Store:         store,
		ValidateDelay: time.Millisecond,
	})

	msg := &processor.PendingMessage{
		Message:   domain.Message{Origin: 1, Destination: 2, Nonce: 0},
		MessageID: [32]byte{0xAB},
		Context:   &processor.MessageContext{Destination: 2, Mailbox: mailbox},
	}
	incoming.Send(msg)

	sub.drain()
	require.Equal(t, 1, sub.QueueLen())

	op, ok := sub.queue.popReady()
	require.True(t, ok)
	require.Equal(t, PhasePrepare, op.Phase())

	op.SetPhase(PhaseSubmit)
	outcome, err := op.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, outcome)
	require.Equal(t, PhaseValidate, op.Phase())

	mailbox.delivered = true
	outcome, err = op.Validate(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeValid, outcome)
}
