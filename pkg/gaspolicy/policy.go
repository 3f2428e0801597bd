// Package gaspolicy implements the gas-payment enforcer: an ordered
// sequence of policies, each guarded by a whitelist, where the first
// policy whose whitelist matches a message
// decides whether it has been paid for enough to submit. This mirrors
// the teacher's credit-balance gating shape in
// pkg/execution/credit_checker.go (cached balance, a single yes/no gate
// in front of submission) generalized from one fixed Accumulate credit
// check to a configurable chain of policies, since the spec allows
// different destinations or message shapes to be gated differently.
package gaspolicy

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/nexusbridge/relayer/pkg/chainclient"
	"github.com/nexusbridge/relayer/pkg/domain"
	"github.com/nexusbridge/relayer/pkg/logstore"
	"github.com/nexusbridge/relayer/pkg/matchinglist"
)

// TxCostEstimate is the destination gas estimate a policy evaluates a
// message's payment against.
type TxCostEstimate struct {
	GasLimit uint64
}

// Policy is one gas-payment rule. Approve returns the gas limit to
// submit with when the message is payable, or ok=false when it is not
// (yet) payable — the caller treats that as NotReady and retries later.
type Policy interface {
	// Matches reports whether this policy's whitelist covers message;
	// the enforcer consults policies in order and stops at the first
	// match.
	Matches(message domain.Message) bool

	Approve(ctx context.Context, message domain.Message, estimate TxCostEstimate) (gasLimit uint64, ok bool, err error)
}

// basePolicy holds the whitelist every concrete policy kind embeds.
type basePolicy struct {
	whitelist matchinglist.List
}

func (p basePolicy) Matches(message domain.Message) bool {
	return p.whitelist.MatchesAsWhitelist(message)
}

// NonePolicy always approves, returning the transaction estimate's gas
// limit unchanged.
type NonePolicy struct {
	basePolicy
}

// NewNonePolicy returns a policy that approves every message its
// whitelist matches.
func NewNonePolicy(whitelist matchinglist.List) *NonePolicy {
	return &NonePolicy{basePolicy{whitelist: whitelist}}
}

func (p *NonePolicy) Approve(ctx context.Context, message domain.Message, estimate TxCostEstimate) (uint64, bool, error) {
	return estimate.GasLimit, true, nil
}

// MinimumPolicy approves once the aggregate payment recorded for a
// message reaches a configured floor.
type MinimumPolicy struct {
	basePolicy
	store     *logstore.Store
	threshold domain.BigUint
}

// NewMinimumPolicy returns a policy that requires at least threshold
// total payment before approving, reading accumulated payments from
// store.
func NewMinimumPolicy(whitelist matchinglist.List, store *logstore.Store, threshold domain.BigUint) *MinimumPolicy {
	return &MinimumPolicy{basePolicy: basePolicy{whitelist: whitelist}, store: store, threshold: threshold}
}

func (p *MinimumPolicy) Approve(ctx context.Context, message domain.Message, estimate TxCostEstimate) (uint64, bool, error) {
	total, err := p.store.TotalGasPayment(message.ID())
	if err != nil {
		return 0, false, fmt.Errorf("gaspolicy: minimum: total payment: %w", err)
	}
	if total.Cmp(p.threshold) < 0 {
		return 0, false, nil
	}
	return estimate.GasLimit, true, nil
}

// GasFraction is a configurable multiplier applied to a gas-oracle
// quote, expressed as an exact rational to avoid floating-point drift
// across restarts (e.g. 11/10 for a 10% safety margin).
type GasFraction struct {
	Numerator   uint64
	Denominator uint64
}

// Apply scales amount by the fraction, rounding down.
func (f GasFraction) Apply(amount domain.BigUint) domain.BigUint {
	denom := f.Denominator
	if denom == 0 {
		denom = 1
	}
	num := f.Numerator
	if num == 0 {
		num = 1
	}
	scaled := amount.Int()
	scaled.Mul(scaled, big.NewInt(0).SetUint64(num))
	scaled.Div(scaled, big.NewInt(0).SetUint64(denom))
	return domain.NewBigUint(scaled)
}

// OnChainFeeQuotingPolicy converts the destination gas estimate into an
// origin-token amount via a gas oracle, scaled by GasFraction, and
// approves once the payment recorded for the message meets that
// required amount. Quotes are cached for cacheValidDuration so every
// message bound for the same destination in a short window doesn't
// re-price against the oracle.
type OnChainFeeQuotingPolicy struct {
	basePolicy
	store      *logstore.Store
	oracle     chainclient.GasOracle
	destDomain uint32
	fraction   GasFraction
	logger     *log.Logger

	mu                 sync.Mutex
	cachedQuote        domain.BigUint
	cachedForGasLimit  uint64
	lastQuoteAt        time.Time
	cacheValidDuration time.Duration
}

// NewOnChainFeeQuotingPolicy returns a policy quoting fees through
// oracle for destDomain.
func NewOnChainFeeQuotingPolicy(whitelist matchinglist.List, store *logstore.Store, oracle chainclient.GasOracle, destDomain uint32, fraction GasFraction) *OnChainFeeQuotingPolicy {
	return &OnChainFeeQuotingPolicy{
		basePolicy:         basePolicy{whitelist: whitelist},
		store:              store,
		oracle:             oracle,
		destDomain:         destDomain,
		fraction:           fraction,
		logger:             log.New(log.Writer(), "[gaspolicy:onchain-fee] ", log.LstdFlags),
		cacheValidDuration: 30 * time.Second,
	}
}

func (p *OnChainFeeQuotingPolicy) quote(ctx context.Context, gasLimit uint64) (domain.BigUint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gasLimit == p.cachedForGasLimit && time.Since(p.lastQuoteAt) < p.cacheValidDuration {
		return p.cachedQuote, nil
	}

	quote, err := p.oracle.Quote(ctx, p.destDomain, gasLimit)
	if err != nil {
		return domain.BigUint{}, err
	}
	p.cachedQuote = quote
	p.cachedForGasLimit = gasLimit
	p.lastQuoteAt = time.Now()
	return quote, nil
}

func (p *OnChainFeeQuotingPolicy) Approve(ctx context.Context, message domain.Message, estimate TxCostEstimate) (uint64, bool, error) {
	quote, err := p.quote(ctx, estimate.GasLimit)
	if err != nil {
		return 0, false, fmt.Errorf("gaspolicy: on-chain fee quoting: oracle quote: %w", err)
	}
	required := p.fraction.Apply(quote)

	current, err := p.store.TotalGasPayment(message.ID())
	if err != nil {
		return 0, false, fmt.Errorf("gaspolicy: on-chain fee quoting: total payment: %w", err)
	}
	if current.Cmp(required) < 0 {
		p.logger.Printf("message %x: payment %s below required %s", message.ID(), current.String(), required.String())
		return 0, false, nil
	}
	return estimate.GasLimit, true, nil
}

// Enforcer consults its policies in order and returns the first
// decision a matching policy makes.
type Enforcer struct {
	policies []Policy
}

// NewEnforcer builds an Enforcer from an ordered policy chain.
func NewEnforcer(policies ...Policy) *Enforcer {
	return &Enforcer{policies: policies}
}

// MessageMeetsGasPaymentRequirement walks the policy chain in order;
// the first policy whose whitelist matches message decides. A message
// matching no policy is never payable.
func (e *Enforcer) MessageMeetsGasPaymentRequirement(ctx context.Context, message domain.Message, estimate TxCostEstimate) (gasLimit uint64, ok bool, err error) {
	for _, policy := range e.policies {
		if !policy.Matches(message) {
			continue
		}
		return policy.Approve(ctx, message, estimate)
	}
	return 0, false, nil
}
