package api

import (
	"container/list"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/contract-registry/interfaces"
)

// DefaultReplayCapacity bounds the number of remembered request digests.
const DefaultReplayCapacity = 65536

// ErrReplayedRequest is returned for a signed request that was already accepted.
// It matches ErrStaleRequest.
var ErrReplayedRequest = fmt.Errorf("%w: request already seen", ErrStaleRequest)

type seenRequest struct {
	digest  common.Hash
	expires time.Time
}

// ReplayGuard verifies signed requests and accepts each one at most once.
//
// A digest is remembered for twice the allowed clock skew after it was first
// seen, which outlives the window in which its timestamp is still accepted.
// When more than capacity digests are live the oldest is forgotten.
type ReplayGuard struct {
	maxSkew  time.Duration
	capacity int

	mu    sync.Mutex
	seen  map[common.Hash]*list.Element
	order *list.List
}

// NewReplayGuard creates a guard. Non-positive arguments select the defaults.
func NewReplayGuard(maxSkew time.Duration, capacity int) *ReplayGuard {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxClockSkew
	}
	if capacity <= 0 {
		capacity = DefaultReplayCapacity
	}
	return &ReplayGuard{
		maxSkew:  maxSkew,
		capacity: capacity,
		seen:     make(map[common.Hash]*list.Element),
		order:    list.New(),
	}
}

// Verify checks the signature on r like VerifyRequest and then refuses a
// request whose signed digest has already been accepted.
func (g *ReplayGuard) Verify(r *http.Request, body []byte, now time.Time) (interfaces.Principal, error) {
	verified, err := verifyRequest(r, body, now, g.maxSkew)
	if err != nil {
		return interfaces.Principal{}, err
	}
	if err := g.remember(verified.Digest, now); err != nil {
		return interfaces.Principal{}, err
	}
	return verified.Caller, nil
}

func (g *ReplayGuard) remember(digest common.Hash, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for front := g.order.Front(); front != nil; front = g.order.Front() {
		entry := front.Value.(seenRequest)
		if now.Before(entry.expires) {
			break
		}
		g.order.Remove(front)
		delete(g.seen, entry.digest)
	}

	if _, ok := g.seen[digest]; ok {
		return ErrReplayedRequest
	}

	for g.order.Len() >= g.capacity {
		oldest := g.order.Front()
		g.order.Remove(oldest)
		delete(g.seen, oldest.Value.(seenRequest).digest)
	}

	g.seen[digest] = g.order.PushBack(seenRequest{digest: digest, expires: now.Add(2 * g.maxSkew)})
	return nil
}

// Len reports how many digests are currently remembered.
func (g *ReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.order.Len()
}

