// Package logstore is the persistent, namespaced key-value store every
// relayer component reads and writes through: dispatched messages
// indexed by their origin and nonce, per-domain sync cursors, gas
// payments, and delivery/submission state per message. One store
// instance is shared process-wide; callers namespace their own keys by
// domain or message ID as needed.
package logstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/nexusbridge/relayer/pkg/domain"
	"github.com/nexusbridge/relayer/pkg/relayererrors"
)

// KV is the minimal key-value contract the store needs, so tests can
// supply an in-memory fake without pulling in cometbft-db.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

// dbAdapter wraps a cometbft-db dbm.DB to satisfy KV.
type dbAdapter struct {
	db dbm.DB
}

// NewDBAdapter wraps db as a KV.
func NewDBAdapter(db dbm.DB) KV {
	return &dbAdapter{db: db}
}

func (a *dbAdapter) Get(key []byte) ([]byte, error) {
	v, err := a.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("logstore: get: %w", err)
	}
	return v, nil
}

func (a *dbAdapter) Set(key, value []byte) error {
	if err := a.db.SetSync(key, value); err != nil {
		return fmt.Errorf("logstore: set: %w", err)
	}
	return nil
}

// Store is the high-level, typed accessor layer over a KV engine.
type Store struct {
	kv KV
}

// New wraps kv as a Store.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// ====== key layout ======
//
// Each key is its ASCII prefix (e.g. "msg/") followed by the listed
// fields as raw bytes (integers big-endian), with no separator between
// fields; the "/" between fields below is notation only.
//
// "msg/<origin:u32>/<nonce:u32>"          -> json(domain.RawCommittedMessage)
// "cursor/<domain:u32>"                   -> json(CursorState)
// "gas/<messageID:32>"                    -> json([]domain.InterchainGasPayment)
// "gasexp/<messageID:32>"                 -> json(domain.GasExpenditure)
// "delivery/<messageID:32>"               -> json(DeliveryState)
// "announce/<validator:20>"               -> json(domain.Announcement)
// "id_by_nonce/<origin:u32>/<nonce:u32>"  -> json([32]byte)
// "nonce_by_id/<messageID:32>"            -> json(nonceByID)
// "dispatched_block/<origin:u32>/<nonce>" -> json(uint64)
// "processed/<origin:u32>/<nonce:u32>"    -> json(bool)
// "watermark/<domain:u32>"                -> json(uint32)

func msgKey(origin, nonce uint32) []byte {
	b := make([]byte, 0, 4+4+4)
	b = append(b, []byte("msg/")...)
	b = binary.BigEndian.AppendUint32(b, origin)
	b = binary.BigEndian.AppendUint32(b, nonce)
	return b
}

func cursorKey(d uint32) []byte {
	b := append([]byte("cursor/"), 0, 0, 0, 0)
	binary.BigEndian.PutUint32(b[len(b)-4:], d)
	return b
}

func gasKey(messageID [32]byte) []byte {
	return append([]byte("gas/"), messageID[:]...)
}

func gasExpenditureKey(messageID [32]byte) []byte {
	return append([]byte("gasexp/"), messageID[:]...)
}

func deliveryKey(messageID [32]byte) []byte {
	return append([]byte("delivery/"), messageID[:]...)
}

func announceKey(validator [20]byte) []byte {
	return append([]byte("announce/"), validator[:]...)
}

func idByNonceKey(origin, nonce uint32) []byte {
	b := make([]byte, 0, len("id_by_nonce/")+4+4)
	b = append(b, []byte("id_by_nonce/")...)
	b = binary.BigEndian.AppendUint32(b, origin)
	b = binary.BigEndian.AppendUint32(b, nonce)
	return b
}

func nonceByIDKey(messageID [32]byte) []byte {
	return append([]byte("nonce_by_id/"), messageID[:]...)
}

func dispatchedBlockKey(origin, nonce uint32) []byte {
	b := make([]byte, 0, len("dispatched_block/")+4+4)
	b = append(b, []byte("dispatched_block/")...)
	b = binary.BigEndian.AppendUint32(b, origin)
	b = binary.BigEndian.AppendUint32(b, nonce)
	return b
}

func processedKey(origin, nonce uint32) []byte {
	b := make([]byte, 0, len("processed/")+4+4)
	b = append(b, []byte("processed/")...)
	b = binary.BigEndian.AppendUint32(b, origin)
	b = binary.BigEndian.AppendUint32(b, nonce)
	return b
}

func watermarkKey(d uint32) []byte {
	b := append([]byte("watermark/"), 0, 0, 0, 0)
	binary.BigEndian.PutUint32(b[len(b)-4:], d)
	return b
}

func (s *Store) getJSON(key []byte, out interface{}) (bool, error) {
	b, err := s.kv.Get(key)
	if err != nil {
		return false, err
	}
	if len(b) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("logstore: unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) setJSON(key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("logstore: marshal %s: %w", key, err)
	}
	return s.kv.Set(key, b)
}

// ====== dispatched messages ======

// SaveMessage records a message observed on an origin mailbox at a
// given merkle leaf index.
func (s *Store) SaveMessage(origin uint32, nonce uint32, msg domain.RawCommittedMessage) error {
	return s.setJSON(msgKey(origin, nonce), msg)
}

// LoadMessage returns the message stored for (origin, nonce), or
// relayererrors.ErrNotFound if the merkle tree builder has not seen it
// yet.
func (s *Store) LoadMessage(origin, nonce uint32) (domain.RawCommittedMessage, error) {
	var m domain.RawCommittedMessage
	ok, err := s.getJSON(msgKey(origin, nonce), &m)
	if err != nil {
		return domain.RawCommittedMessage{}, err
	}
	if !ok {
		return domain.RawCommittedMessage{}, relayererrors.ErrNotFound
	}
	return m, nil
}

// ====== nonce <-> message ID indices ======

// IndexMessageID records the two-way mapping between a dispatched
// message's origin-scoped nonce and its canonical ID, and the block it
// was dispatched at, so callers that only have one value (the
// submitter only has the ID; the processor only has the nonce) can
// resolve the other without replaying the merkle tree.
func (s *Store) IndexMessageID(origin, nonce uint32, messageID [32]byte, dispatchedBlock uint64) error {
	if err := s.setJSON(idByNonceKey(origin, nonce), messageID); err != nil {
		return err
	}
	if err := s.setJSON(nonceByIDKey(messageID), nonceByID{Origin: origin, Nonce: nonce}); err != nil {
		return err
	}
	return s.setJSON(dispatchedBlockKey(origin, nonce), dispatchedBlock)
}

// nonceByID is the reverse-lookup row keyed by message ID.
type nonceByID struct {
	Origin uint32
	Nonce  uint32
}

// MessageIDByNonce returns the message ID recorded for (origin, nonce),
// or relayererrors.ErrNotFound if it hasn't been indexed yet.
func (s *Store) MessageIDByNonce(origin, nonce uint32) ([32]byte, error) {
	var id [32]byte
	ok, err := s.getJSON(idByNonceKey(origin, nonce), &id)
	if err != nil {
		return [32]byte{}, err
	}
	if !ok {
		return [32]byte{}, relayererrors.ErrNotFound
	}
	return id, nil
}

// NonceByMessageID returns the (origin, nonce) pair a message ID was
// indexed under, or relayererrors.ErrNotFound.
func (s *Store) NonceByMessageID(messageID [32]byte) (origin, nonce uint32, err error) {
	var row nonceByID
	ok, err := s.getJSON(nonceByIDKey(messageID), &row)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, relayererrors.ErrNotFound
	}
	return row.Origin, row.Nonce, nil
}

// DispatchedBlockByNonce returns the block number a message was
// dispatched at, for reorg-aware metrics and debugging.
func (s *Store) DispatchedBlockByNonce(origin, nonce uint32) (uint64, error) {
	var block uint64
	ok, err := s.getJSON(dispatchedBlockKey(origin, nonce), &block)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, relayererrors.ErrNotFound
	}
	return block, nil
}

// ====== processed marker ======

// MarkProcessed records that (origin, nonce) has completed delivery,
// so the message processor's main loop never re-evaluates it.
func (s *Store) MarkProcessed(origin, nonce uint32) error {
	return s.setJSON(processedKey(origin, nonce), true)
}

// IsProcessed reports whether (origin, nonce) has already been marked
// processed. Never-seen nonces default to false.
func (s *Store) IsProcessed(origin, nonce uint32) (bool, error) {
	var processed bool
	if _, err := s.getJSON(processedKey(origin, nonce), &processed); err != nil {
		return false, err
	}
	return processed, nil
}

// ====== high watermark ======

// SaveHighWatermark persists the conservative shared watermark the
// rate-limited cursor advances, so a restart never re-queries below it
// even if several cursors share the same underlying chunk range.
func (s *Store) SaveHighWatermark(domainID uint32, block uint32) error {
	return s.setJSON(watermarkKey(domainID), block)
}

// HighWatermark returns a domain's persisted watermark, defaulting to
// zero for a domain never synced before.
func (s *Store) HighWatermark(domainID uint32) (uint32, error) {
	var block uint32
	if _, err := s.getJSON(watermarkKey(domainID), &block); err != nil {
		return 0, err
	}
	return block, nil
}

// ====== sync cursors ======

// CursorState is the per-origin-domain progress the contract sync
// indexer has made.
type CursorState struct {
	// LastIndexedBlock is the highest block fully indexed so far.
	LastIndexedBlock uint64
	// NextSequence is the next expected on-chain message sequence
	// number (nonce), used by the sequence-aware cursor to detect gaps.
	NextSequence uint32
	UpdatedAt    time.Time
}

// SaveCursor persists a domain's sync progress.
func (s *Store) SaveCursor(d uint32, state CursorState) error {
	return s.setJSON(cursorKey(d), state)
}

// LoadCursor returns a domain's sync progress, or the zero value if
// nothing has been indexed yet.
func (s *Store) LoadCursor(d uint32) (CursorState, error) {
	var state CursorState
	_, err := s.getJSON(cursorKey(d), &state)
	if err != nil {
		return CursorState{}, err
	}
	return state, nil
}

// ====== gas payments ======

// AddGasPayment appends a payment to the set recorded for messageID.
// Payments accumulate because a message can be topped up more than
// once before it is delivered.
func (s *Store) AddGasPayment(messageID [32]byte, payment domain.InterchainGasPayment) error {
	var payments []domain.InterchainGasPayment
	if _, err := s.getJSON(gasKey(messageID), &payments); err != nil {
		return err
	}
	payments = append(payments, payment)
	return s.setJSON(gasKey(messageID), payments)
}

// GasPayments returns every payment recorded for messageID.
func (s *Store) GasPayments(messageID [32]byte) ([]domain.InterchainGasPayment, error) {
	var payments []domain.InterchainGasPayment
	if _, err := s.getJSON(gasKey(messageID), &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// TotalGasPayment sums every payment recorded for messageID.
func (s *Store) TotalGasPayment(messageID [32]byte) (domain.BigUint, error) {
	payments, err := s.GasPayments(messageID)
	if err != nil {
		return domain.BigUint{}, err
	}
	total := domain.BigUintFromUint64(0)
	for _, p := range payments {
		total = total.Add(p.Payment)
	}
	return total, nil
}

// ====== gas expenditure ======

// AddGasExpenditure accumulates tokens/gas actually spent attempting to
// deliver messageID, across however many submit attempts it has taken.
func (s *Store) AddGasExpenditure(messageID [32]byte, spent domain.GasExpenditure) error {
	var total domain.GasExpenditure
	if _, err := s.getJSON(gasExpenditureKey(messageID), &total); err != nil {
		return err
	}
	total.TokensUsed = total.TokensUsed.Add(spent.TokensUsed)
	total.GasUsed = total.GasUsed.Add(spent.GasUsed)
	return s.setJSON(gasExpenditureKey(messageID), total)
}

// GasExpenditure returns the accumulated spend recorded for messageID.
func (s *Store) GasExpenditure(messageID [32]byte) (domain.GasExpenditure, error) {
	var total domain.GasExpenditure
	if _, err := s.getJSON(gasExpenditureKey(messageID), &total); err != nil {
		return domain.GasExpenditure{}, err
	}
	return total, nil
}

// ====== delivery / submission state ======

// DeliveryStatus is the serial submitter's state for one message.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySubmitted DeliveryStatus = "submitted"
	DeliveryConfirmed DeliveryStatus = "confirmed"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryState tracks a message's progress through the submitter's
// prepare/submit/confirm state machine, including the backoff schedule
// for its next retry.
type DeliveryState struct {
	Status      DeliveryStatus
	Attempts    uint32
	LastTxHash  [32]byte
	NextAttempt time.Time
	LastError   string
}

// SaveDeliveryState persists a message's submission progress.
func (s *Store) SaveDeliveryState(messageID [32]byte, state DeliveryState) error {
	return s.setJSON(deliveryKey(messageID), state)
}

// LoadDeliveryState returns a message's submission progress, defaulting
// to DeliveryPending with zero attempts if nothing has been recorded.
func (s *Store) LoadDeliveryState(messageID [32]byte) (DeliveryState, error) {
	state := DeliveryState{Status: DeliveryPending}
	if _, err := s.getJSON(deliveryKey(messageID), &state); err != nil {
		return DeliveryState{}, err
	}
	return state, nil
}

// ====== validator announcements ======

// SaveAnnouncement records where a validator publishes signed checkpoints.
func (s *Store) SaveAnnouncement(a domain.Announcement) error {
	return s.setJSON(announceKey(a.Validator), a)
}

// LoadAnnouncement returns a validator's announcement, or
// relayererrors.ErrNotFound if none has been observed.
func (s *Store) LoadAnnouncement(validator [20]byte) (domain.Announcement, error) {
	var a domain.Announcement
	ok, err := s.getJSON(announceKey(validator), &a)
	if err != nil {
		return domain.Announcement{}, err
	}
	if !ok {
		return domain.Announcement{}, relayererrors.ErrNotFound
	}
	return a, nil
}
