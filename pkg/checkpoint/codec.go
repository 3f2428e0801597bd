package checkpoint

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nexusbridge/relayer/pkg/domain"
)

func hexEncode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func hexDecodeFixed(s string, out []byte) error {
	if len(s) >= 2 && s[0:2] == "0x" {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("checkpoint: decode hex %q: %w", s, err)
	}
	if len(b) != len(out) {
		return fmt.Errorf("checkpoint: expected %d bytes, got %d", len(out), len(b))
	}
	copy(out, b)
	return nil
}

// marshalSignedCheckpoint encodes a signed checkpoint into the bit-exact
// "<index>_with_id.json" shape.
func marshalSignedCheckpoint(signed domain.SignedCheckpoint) ([]byte, error) {
	var messageID *string
	if signed.Value.MessageID != nil {
		s := hexEncode(signed.Value.MessageID[:])
		messageID = &s
	}
	jv := jsonSignedCheckpoint{
		Value: jsonCheckpointValue{
			MerkleTreeHookAddress: hexEncode(signed.Value.MerkleTreeAddress[:]),
			MailboxDomain:         signed.Value.MailboxDomain,
			Root:                  hexEncode(signed.Value.Root[:]),
			Index:                 signed.Value.Index,
			MessageID:             messageID,
		},
		Signature: jsonSignature{
			R: hexEncode(signed.Signature.R[:]),
			S: hexEncode(signed.Signature.S[:]),
			V: signed.Signature.V,
		},
	}
	return json.Marshal(jv)
}

// unmarshalSignedCheckpoint reverses marshalSignedCheckpoint. A nil
// MessageID in the JSON decodes as a legacy (index-only) checkpoint.
func unmarshalSignedCheckpoint(data []byte) (domain.SignedCheckpoint, error) {
	var jv jsonSignedCheckpoint
	if err := json.Unmarshal(data, &jv); err != nil {
		return domain.SignedCheckpoint{}, fmt.Errorf("checkpoint: unmarshal: %w", err)
	}

	var out domain.SignedCheckpoint
	if err := hexDecodeFixed(jv.Value.MerkleTreeHookAddress, out.Value.MerkleTreeAddress[:]); err != nil {
		return domain.SignedCheckpoint{}, err
	}
	if err := hexDecodeFixed(jv.Value.Root, out.Value.Root[:]); err != nil {
		return domain.SignedCheckpoint{}, err
	}
	out.Value.MailboxDomain = jv.Value.MailboxDomain
	out.Value.Index = jv.Value.Index

	if jv.Value.MessageID != nil {
		var id [32]byte
		if err := hexDecodeFixed(*jv.Value.MessageID, id[:]); err != nil {
			return domain.SignedCheckpoint{}, err
		}
		out.Value.MessageID = &id
	}

	if err := hexDecodeFixed(jv.Signature.R, out.Signature.R[:]); err != nil {
		return domain.SignedCheckpoint{}, err
	}
	if err := hexDecodeFixed(jv.Signature.S, out.Signature.S[:]); err != nil {
		return domain.SignedCheckpoint{}, err
	}
	out.Signature.V = jv.Signature.V
	return out, nil
}

func marshalSignedAnnouncement(signed SignedAnnouncement) ([]byte, error) {
	jv := jsonSignedAnnouncement{
		Value: jsonAnnouncementValue{
			Validator:        hexEncode(signed.Value.Validator[:]),
			StorageLocations: signed.Value.StorageLocations,
			MailboxDomain:    signed.Value.MailboxDomain,
		},
		Signature: jsonSignature{
			R: hexEncode(signed.Signature.R[:]),
			S: hexEncode(signed.Signature.S[:]),
			V: signed.Signature.V,
		},
	}
	return json.Marshal(jv)
}

func unmarshalSignedAnnouncement(data []byte) (SignedAnnouncement, error) {
	var jv jsonSignedAnnouncement
	if err := json.Unmarshal(data, &jv); err != nil {
		return SignedAnnouncement{}, fmt.Errorf("checkpoint: unmarshal announcement: %w", err)
	}
	var out SignedAnnouncement
	if err := hexDecodeFixed(jv.Value.Validator, out.Value.Validator[:]); err != nil {
		return SignedAnnouncement{}, err
	}
	out.Value.StorageLocations = jv.Value.StorageLocations
	out.Value.MailboxDomain = jv.Value.MailboxDomain

	if err := hexDecodeFixed(jv.Signature.R, out.Signature.R[:]); err != nil {
		return SignedAnnouncement{}, err
	}
	if err := hexDecodeFixed(jv.Signature.S, out.Signature.S[:]); err != nil {
		return SignedAnnouncement{}, err
	}
	out.Signature.V = jv.Signature.V
	return out, nil
}
