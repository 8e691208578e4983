package api

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/ruteri/contract-registry/interfaces"
)

// Headers carrying the caller identity of a signed request.
const (
	CallerHeader    = "X-Registry-Caller"
	TimestampHeader = "X-Registry-Timestamp"
	SignatureHeader = "X-Registry-Signature"
	NonceHeader     = "X-Registry-Nonce"
)

// DefaultMaxClockSkew bounds how far a request timestamp may drift from the server clock.
const DefaultMaxClockSkew = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrInvalidSignature = errors.New("invalid request signature")
	ErrStaleRequest     = errors.New("request timestamp outside allowed window")
)

// SigningHash is the digest a caller signs. It binds the method, the host the
// request is addressed to, the request path, the timestamp, a per-request nonce
// and the keccak256 of the body, wrapped in the Ethereum signed message prefix
// so ordinary wallets can produce it.
func SigningHash(method, host, path string, timestamp int64, nonce string, body []byte) []byte {
	message := fmt.Sprintf("%s\n%s\n%s\n%d\n%s\n%x",
		strings.ToUpper(method), strings.ToLower(host), path, timestamp, nonce, crypto.Keccak256(body))
	return accounts.TextHash([]byte(message))
}

// SignRequest sets the identity headers on req. body must be the exact bytes sent.
func SignRequest(req *http.Request, body []byte, key *ecdsa.PrivateKey, now time.Time) error {
	timestamp := now.Unix()
	nonce := uuid.NewString()
	signature, err := crypto.Sign(SigningHash(req.Method, requestHost(req), req.URL.Path, timestamp, nonce, body), key)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	req.Header.Set(CallerHeader, PrincipalFromKey(key).String())
	req.Header.Set(TimestampHeader, strconv.FormatInt(timestamp, 10))
	req.Header.Set(NonceHeader, nonce)
	req.Header.Set(SignatureHeader, hex.EncodeToString(signature))
	return nil
}

// VerifiedRequest is the outcome of a successful signature check.
type VerifiedRequest struct {
	Caller interfaces.Principal
	// Digest is the signed hash; it identifies the request for replay detection.
	Digest    common.Hash
	Timestamp time.Time
}

// VerifyRequest recovers the signer of r and checks it matches the claimed caller.
// It does not detect replays; see ReplayGuard.
func VerifyRequest(r *http.Request, body []byte, now time.Time, maxSkew time.Duration) (interfaces.Principal, error) {
	verified, err := verifyRequest(r, body, now, maxSkew)
	if err != nil {
		return interfaces.Principal{}, err
	}
	return verified.Caller, nil
}

func verifyRequest(r *http.Request, body []byte, now time.Time, maxSkew time.Duration) (VerifiedRequest, error) {
	callerStr := r.Header.Get(CallerHeader)
	timestampStr := r.Header.Get(TimestampHeader)
	nonce := r.Header.Get(NonceHeader)
	signatureStr := r.Header.Get(SignatureHeader)
	if callerStr == "" || timestampStr == "" || nonce == "" || signatureStr == "" {
		return VerifiedRequest{}, ErrMissingSignature
	}

	caller, err := interfaces.NewPrincipalFromHex(callerStr)
	if err != nil {
		return VerifiedRequest{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return VerifiedRequest{}, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	if maxSkew <= 0 {
		maxSkew = DefaultMaxClockSkew
	}
	if skew := now.Sub(time.Unix(timestamp, 0)); skew > maxSkew || skew < -maxSkew {
		return VerifiedRequest{}, ErrStaleRequest
	}

	signature, err := hex.DecodeString(strings.TrimPrefix(signatureStr, "0x"))
	if err != nil || len(signature) != crypto.SignatureLength {
		return VerifiedRequest{}, fmt.Errorf("%w: malformed signature", ErrInvalidSignature)
	}
	// Wallets produce v in {27, 28}.
	if signature[crypto.RecoveryIDOffset] >= 27 {
		signature[crypto.RecoveryIDOffset] -= 27
	}

	digest := SigningHash(r.Method, requestHost(r), r.URL.Path, timestamp, nonce, body)
	pubkey, err := crypto.SigToPub(digest, signature)
	if err != nil {
		return VerifiedRequest{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if signer := interfaces.Principal(crypto.PubkeyToAddress(*pubkey)); signer != caller {
		return VerifiedRequest{}, fmt.Errorf("%w: signed by %s", ErrInvalidSignature, signer)
	}
	return VerifiedRequest{
		Caller:    caller,
		Digest:    common.BytesToHash(digest),
		Timestamp: time.Unix(timestamp, 0),
	}, nil
}

// requestHost is the Host header on the server side and the dialled host on
// the client side.
func requestHost(r *http.Request) string {
	if r.Host != "" {
		return r.Host
	}
	return r.URL.Host
}

// PrincipalFromKey returns the address of a secp256k1 key.
func PrincipalFromKey(key *ecdsa.PrivateKey) interfaces.Principal {
	return interfaces.Principal(crypto.PubkeyToAddress(key.PublicKey))
}
