package oracle

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrBadAttestation is returned when a signature does not recover the
// claimed signer.
var ErrBadAttestation = errors.New("oracle: attestation signature mismatch")

// Attestation is a signed price submission. The signature covers the
// feed key, value, and timestamp, so a relay cannot replay one feed's
// quote onto another.
type Attestation struct {
	FeedKey   string `json:"feed_key"`
	Value     int64  `json:"value"`
	Timestamp int64  `json:"timestamp"` // unix seconds
	Signer    string `json:"signer"`    // hex address
	Signature string `json:"signature"` // hex, 65 bytes
}

// attestationDigest is the keccak256 hash the signature covers.
func attestationDigest(feedKey string, value, timestamp int64) []byte {
	msg := fmt.Sprintf("settle-feed|%s|%d|%d", feedKey, value, timestamp)
	return crypto.Keccak256([]byte(msg))
}

// SignAttestation produces an attestation for a price submission.
func SignAttestation(key *ecdsa.PrivateKey, feedKey string, value, timestamp int64) (Attestation, error) {
	sig, err := crypto.Sign(attestationDigest(feedKey, value, timestamp), key)
	if err != nil {
		return Attestation{}, fmt.Errorf("sign attestation: %w", err)
	}
	return Attestation{
		FeedKey:   feedKey,
		Value:     value,
		Timestamp: timestamp,
		Signer:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Signature: hexutil.Encode(sig),
	}, nil
}

// VerifyAttestation checks that the signature recovers the claimed
// signer address.
func VerifyAttestation(a Attestation) error {
	sig, err := hexutil.Decode(a.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadAttestation, err)
	}
	pub, err := crypto.SigToPub(attestationDigest(a.FeedKey, a.Value, a.Timestamp), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadAttestation, err)
	}
	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(a.Signer) {
		return ErrBadAttestation
	}
	return nil
}
