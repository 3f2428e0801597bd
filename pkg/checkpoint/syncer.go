// Package checkpoint implements the validator-signed checkpoint store
// abstraction (spec component B): a small polymorphic interface with
// local-filesystem and S3 backends, plus a multisig reader that walks
// several validators' stores looking for a quorum of checkpoints that
// agree on the same root, index and message ID.
package checkpoint

import (
	"context"
	"fmt"

	"github.com/nexusbridge/relayer/pkg/domain"
)

// Syncer is the per-validator checkpoint store contract. The same
// interface serves both the validator (writer) and the relayer
// (reader) side; a read-only backend simply errors on the write
// methods.
type Syncer interface {
	// LatestIndex returns the highest fully-written checkpoint index,
	// or ok=false if the store has never been written to.
	LatestIndex(ctx context.Context) (index uint32, ok bool, err error)

	// FetchCheckpoint returns the signed checkpoint at index, or
	// ok=false if none has been published there.
	FetchCheckpoint(ctx context.Context, index uint32) (signed domain.SignedCheckpoint, ok bool, err error)

	// WriteCheckpoint publishes a signed checkpoint at its own index.
	WriteCheckpoint(ctx context.Context, signed domain.SignedCheckpoint) error

	// WriteLatestIndex advances the published high-water marker.
	WriteLatestIndex(ctx context.Context, index uint32) error

	// WriteAnnouncement publishes a signed validator announcement.
	WriteAnnouncement(ctx context.Context, signed SignedAnnouncement) error

	// AnnouncementLocation returns the storage-location string other
	// relayers should record for this syncer (e.g. "file:///..." or
	// "s3://bucket/region/folder").
	AnnouncementLocation() string
}

// SignedAnnouncement pairs an Announcement with the validator's
// signature over it, the same shape as SignedCheckpoint.
type SignedAnnouncement struct {
	Value     domain.Announcement
	Signature domain.ECDSASignature
}

// checkpointFileName returns the per-index filename for a checkpoint
// with message ID, matching the bit-exact layout the relayer and
// validator agents share: "<index>_with_id.json".
func checkpointFileName(index uint32) string {
	return fmt.Sprintf("%d_with_id.json", index)
}

const (
	indexFileName        = "index.json"
	announcementFileName = "announcement.json"
)

// jsonSignature is the wire shape of an ECDSA signature: lower-case hex
// without a 0x prefix is intentionally avoided in favor of the
// 0x-prefixed hex the rest of the wire format uses.
type jsonSignature struct {
	R string `json:"r"`
	S string `json:"s"`
	V uint8  `json:"v"`
}

// jsonCheckpointValue is the "value" object inside a signed checkpoint
// file, matching spec §6's bit-exact field set.
type jsonCheckpointValue struct {
	MerkleTreeHookAddress string  `json:"merkle_tree_hook_address"`
	MailboxDomain         uint32  `json:"mailbox_domain"`
	Root                  string  `json:"root"`
	Index                 uint32  `json:"index"`
	MessageID             *string `json:"message_id,omitempty"`
}

type jsonSignedCheckpoint struct {
	Value     jsonCheckpointValue `json:"value"`
	Signature jsonSignature       `json:"signature"`
}

type jsonAnnouncementValue struct {
	Validator        string   `json:"validator"`
	StorageLocations []string `json:"storage_locations"`
	MailboxDomain    uint32   `json:"mailbox_domain"`
}

type jsonSignedAnnouncement struct {
	Value     jsonAnnouncementValue `json:"value"`
	Signature jsonSignature         `json:"signature"`
}
