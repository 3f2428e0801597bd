package logstore

import (
	"testing"
	"time"

	"github.com/nexusbridge/relayer/pkg/domain"
	"github.com/nexusbridge/relayer/pkg/relayererrors"
)

type memKV struct {
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(key []byte) ([]byte, error) {
	return m.data[string(key)], nil
}

func (m *memKV) Set(key, value []byte) error {
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func TestSaveAndLoadMessage(t *testing.T) {
	store := New(newMemKV())

	msg := domain.RawCommittedMessage{LeafIndex: 7, Raw: []byte("hello")}
	if err := store.SaveMessage(1, 7, msg); err != nil {
		t.Fatalf("save message: %v", err)
	}

	got, err := store.LoadMessage(1, 7)
	if err != nil {
		t.Fatalf("load message: %v", err)
	}
	if got.LeafIndex != msg.LeafIndex || string(got.Raw) != string(msg.Raw) {
		t.Errorf("message mismatch: got %+v, want %+v", got, msg)
	}
}

func TestLoadMessageNotFound(t *testing.T) {
	store := New(newMemKV())
	if _, err := store.LoadMessage(1, 99); err != relayererrors.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	store := New(newMemKV())

	state := CursorState{LastIndexedBlock: 1000, NextSequence: 5, UpdatedAt: time.Unix(0, 0).UTC()}
	if err := store.SaveCursor(42, state); err != nil {
		t.Fatalf("save cursor: %v", err)
	}

	got, err := store.LoadCursor(42)
	if err != nil {
		t.Fatalf("load cursor: %v", err)
	}
	if got.LastIndexedBlock != 1000 || got.NextSequence != 5 {
		t.Errorf("cursor mismatch: got %+v", got)
	}

	// An unseen domain starts at the zero value, not an error.
	zero, err := store.LoadCursor(99)
	if err != nil {
		t.Fatalf("load cursor for unseen domain: %v", err)
	}
	if zero.LastIndexedBlock != 0 {
		t.Errorf("expected zero cursor, got %+v", zero)
	}
}

func TestGasPaymentsAccumulate(t *testing.T) {
	store := New(newMemKV())
	var messageID [32]byte
	messageID[0] = 0xAB

	if err := store.AddGasPayment(messageID, domain.InterchainGasPayment{
		MessageID: messageID,
		Payment:   domain.BigUintFromUint64(100),
		GasAmount: domain.BigUintFromUint64(21000),
	}); err != nil {
		t.Fatalf("add payment 1: %v", err)
	}
	if err := store.AddGasPayment(messageID, domain.InterchainGasPayment{
		MessageID: messageID,
		Payment:   domain.BigUintFromUint64(50),
		GasAmount: domain.BigUintFromUint64(21000),
	}); err != nil {
		t.Fatalf("add payment 2: %v", err)
	}

	payments, err := store.GasPayments(messageID)
	if err != nil {
		t.Fatalf("gas payments: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}

	total, err := store.TotalGasPayment(messageID)
	if err != nil {
		t.Fatalf("total gas payment: %v", err)
	}
	if total.Cmp(domain.BigUintFromUint64(150)) != 0 {
		t.Errorf("total mismatch: got %s, want 150", total.String())
	}
}

func TestDeliveryStateDefaultsToPending(t *testing.T) {
	store := New(newMemKV())
	var messageID [32]byte
	messageID[0] = 0xCD

	state, err := store.LoadDeliveryState(messageID)
	if err != nil {
		t.Fatalf("load delivery state: %v", err)
	}
	if state.Status != DeliveryPending || state.Attempts != 0 {
		t.Errorf("expected fresh pending state, got %+v", state)
	}

	state.Status = DeliverySubmitted
	state.Attempts = 1
	if err := store.SaveDeliveryState(messageID, state); err != nil {
		t.Fatalf("save delivery state: %v", err)
	}

	got, err := store.LoadDeliveryState(messageID)
	if err != nil {
		t.Fatalf("reload delivery state: %v", err)
	}
	if got.Status != DeliverySubmitted || got.Attempts != 1 {
		t.Errorf("delivery state mismatch: got %+v", got)
	}
}

func TestAnnouncementRoundTrip(t *testing.T) {
	store := New(newMemKV())
	var validator [20]byte
	validator[0] = 0xEF

	ann := domain.Announcement{
		Validator:        validator,
		StorageLocations: []string{"s3://bucket/validator"},
		MailboxDomain:    1,
	}
	if err := store.SaveAnnouncement(ann); err != nil {
		t.Fatalf("save announcement: %v", err)
	}

	got, err := store.LoadAnnouncement(validator)
	if err != nil {
		t.Fatalf("load announcement: %v", err)
	}
	if len(got.StorageLocations) != 1 || got.StorageLocations[0] != ann.StorageLocations[0] {
		t.Errorf("announcement mismatch: got %+v", got)
	}
}

func TestLoadAnnouncementNotFound(t *testing.T) {
	store := New(newMemKV())
	var validator [20]byte
	if _, err := store.LoadAnnouncement(validator); err != relayererrors.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNonceMessageIDIndexRoundTrip(t *testing.T) {
	store := New(newMemKV())
	var messageID [32]byte
	messageID[0] = 0x11

	if err := store.IndexMessageID(7, 42, messageID, 1000); err != nil {
		t.Fatalf("index message id: %v", err)
	}

	gotID, err := store.MessageIDByNonce(7, 42)
	if err != nil {
		t.Fatalf("message id by nonce: %v", err)
	}
	if gotID != messageID {
		t.Errorf("id mismatch: got %x, want %x", gotID, messageID)
	}

	origin, nonce, err := store.NonceByMessageID(messageID)
	if err != nil {
		t.Fatalf("nonce by message id: %v", err)
	}
	if origin != 7 || nonce != 42 {
		t.Errorf("nonce mismatch: got (%d,%d), want (7,42)", origin, nonce)
	}

	block, err := store.DispatchedBlockByNonce(7, 42)
	if err != nil {
		t.Fatalf("dispatched block: %v", err)
	}
	if block != 1000 {
		t.Errorf("dispatched block mismatch: got %d, want 1000", block)
	}
}

func TestMessageIDByNonceNotFound(t *testing.T) {
	store := New(newMemKV())
	if _, err := store.MessageIDByNonce(1, 1); err != relayererrors.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProcessedDefaultsFalse(t *testing.T) {
	store := New(newMemKV())

	processed, err := store.IsProcessed(1, 5)
	if err != nil {
		t.Fatalf("is processed: %v", err)
	}
	if processed {
		t.Fatal("expected a never-seen nonce to default to unprocessed")
	}

	if err := store.MarkProcessed(1, 5); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	processed, err = store.IsProcessed(1, 5)
	if err != nil {
		t.Fatalf("is processed after mark: %v", err)
	}
	if !processed {
		t.Fatal("expected nonce to be marked processed")
	}
}

func TestHighWatermarkRoundTrip(t *testing.T) {
	store := New(newMemKV())

	zero, err := store.HighWatermark(3)
	if err != nil {
		t.Fatalf("high watermark: %v", err)
	}
	if zero != 0 {
		t.Errorf("expected zero watermark for unseen domain, got %d", zero)
	}

	if err := store.SaveHighWatermark(3, 12345); err != nil {
		t.Fatalf("save high watermark: %v", err)
	}
	got, err := store.HighWatermark(3)
	if err != nil {
		t.Fatalf("reload high watermark: %v", err)
	}
	if got != 12345 {
		t.Errorf("watermark mismatch: got %d, want 12345", got)
	}
}

func TestGasExpenditureAccumulates(t *testing.T) {
	store := New(newMemKV())
	var messageID [32]byte
	messageID[0] = 0x42

	if err := store.AddGasExpenditure(messageID, domain.GasExpenditure{
		TokensUsed: domain.BigUintFromUint64(10),
		GasUsed:    domain.BigUintFromUint64(21000),
	}); err != nil {
		t.Fatalf("add gas expenditure 1: %v", err)
	}
	if err := store.AddGasExpenditure(messageID, domain.GasExpenditure{
		TokensUsed: domain.BigUintFromUint64(5),
		GasUsed:    domain.BigUintFromUint64(21000),
	}); err != nil {
		t.Fatalf("add gas expenditure 2: %v", err)
	}

	total, err := store.GasExpenditure(messageID)
	if err != nil {
		t.Fatalf("gas expenditure: %v", err)
	}
	if total.TokensUsed.Cmp(domain.BigUintFromUint64(15)) != 0 {
		t.Errorf("tokens used mismatch: got %s, want 15", total.TokensUsed.String())
	}
	if total.GasUsed.Cmp(domain.BigUintFromUint64(42000)) != 0 {
		t.Errorf("gas used mismatch: got %s, want 42000", total.GasUsed.String())
	}
}
