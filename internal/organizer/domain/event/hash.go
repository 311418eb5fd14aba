package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// hashEnvelope is the canonical representation hashed for content addressing.
// Field order is fixed here and must not change: the stored hashes of every
// existing journal depend on it.
type hashEnvelope struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Seq           uint64          `json:"seq"`
	OccurredAt    int64           `json:"occurred_at"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// ContentHash computes the SHA-256 content hash of an event envelope.
//
// GlobalSeq and the chain fields are excluded: the content hash identifies
// the fact itself, independent of where it landed in the journal file.
func ContentHash(evt Event) (string, error) {
	if strings.TrimSpace(evt.AggregateID) == "" {
		return "", fmt.Errorf("aggregate id is required")
	}
	if !evt.Type.IsValid() {
		return "", fmt.Errorf("event type is required")
	}
	envelope := hashEnvelope{
		AggregateID:   evt.AggregateID,
		AggregateType: evt.AggregateType,
		Seq:           evt.Seq,
		OccurredAt:    evt.OccurredAt.UTC().UnixMilli(),
		Type:          string(evt.Type),
		Payload:       json.RawMessage(evt.PayloadJSON),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("marshal hash envelope: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ChainHash computes the SHA-256 hash linking an event to its predecessor's
// chain hash. prevChainHash is empty for the first event of a stream.
func ChainHash(evt Event, prevChainHash string) (string, error) {
	contentHash := evt.Hash
	if contentHash == "" {
		computed, err := ContentHash(evt)
		if err != nil {
			return "", err
		}
		contentHash = computed
	}
	sum := sha256.Sum256([]byte(prevChainHash + ":" + contentHash))
	return hex.EncodeToString(sum[:]), nil
}
