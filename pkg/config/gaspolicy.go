package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/nexusbridge/relayer/pkg/chainclient"
	"github.com/nexusbridge/relayer/pkg/domain"
	"github.com/nexusbridge/relayer/pkg/gaspolicy"
	"github.com/nexusbridge/relayer/pkg/logstore"
)

// BuildGasPaymentEnforcement translates the declarative
// gasPaymentEnforcement rule list into a runtime *gaspolicy.Enforcer.
// oracles supplies a chainclient.GasOracle for every destination an
// "onChainFeeQuoting" rule targets, keyed by the destinationDomain its
// own matchingList names; a rule of that type with no such domain, or
// with no oracle registered for it, is rejected rather than silently
// skipped.
func BuildGasPaymentEnforcement(rules []GasPaymentEnforcementRule, store *logstore.Store, oracles map[uint32]chainclient.GasOracle) (*gaspolicy.Enforcer, error) {
	policies := make([]gaspolicy.Policy, 0, len(rules))
	for i, rule := range rules {
		whitelist, err := ToMatchingList(rule.MatchingList)
		if err != nil {
			return nil, fmt.Errorf("config: gasPaymentEnforcement[%d]: %w", i, err)
		}

		switch rule.Type {
		case "none", "":
			policies = append(policies, gaspolicy.NewNonePolicy(whitelist))

		case "minimum":
			threshold, err := parseBigUint(rule.Minimum)
			if err != nil {
				return nil, fmt.Errorf("config: gasPaymentEnforcement[%d]: minimum: %w", i, err)
			}
			policies = append(policies, gaspolicy.NewMinimumPolicy(whitelist, store, threshold))

		case "onChainFeeQuoting":
			destDomain, ok := destinationOf(rule.MatchingList)
			if !ok {
				return nil, fmt.Errorf("config: gasPaymentEnforcement[%d]: onChainFeeQuoting requires a matchingList entry with destinationDomain set", i)
			}
			oracle, ok := oracles[destDomain]
			if !ok {
				return nil, fmt.Errorf("config: gasPaymentEnforcement[%d]: no gas oracle registered for destination %d", i, destDomain)
			}
			fraction, err := parseGasFraction(rule.GasFraction)
			if err != nil {
				return nil, fmt.Errorf("config: gasPaymentEnforcement[%d]: gasFraction: %w", i, err)
			}
			policies = append(policies, gaspolicy.NewOnChainFeeQuotingPolicy(whitelist, store, oracle, destDomain, fraction))

		default:
			return nil, fmt.Errorf("config: gasPaymentEnforcement[%d]: unknown type %q", i, rule.Type)
		}
	}
	return gaspolicy.NewEnforcer(policies...), nil
}

// destinationOf returns the destination domain the first rule in
// matchingList names, if any.
func destinationOf(matchingList []MatchingListRule) (uint32, bool) {
	for _, rule := range matchingList {
		if rule.DestinationDomain != nil {
			return *rule.DestinationDomain, true
		}
	}
	return 0, false
}

func parseBigUint(s string) (domain.BigUint, error) {
	if s == "" {
		return domain.BigUintFromUint64(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return domain.BigUint{}, fmt.Errorf("invalid integer %q", s)
	}
	return domain.NewBigUint(v), nil
}

// parseGasFraction parses a "numerator/denominator" string, defaulting
// to 1/1 when empty.
func parseGasFraction(s string) (gaspolicy.GasFraction, error) {
	if s == "" {
		return gaspolicy.GasFraction{Numerator: 1, Denominator: 1}, nil
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return gaspolicy.GasFraction{}, fmt.Errorf("expected \"numerator/denominator\", got %q", s)
	}
	num, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return gaspolicy.GasFraction{}, fmt.Errorf("numerator: %w", err)
	}
	denom, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return gaspolicy.GasFraction{}, fmt.Errorf("denominator: %w", err)
	}
	return gaspolicy.GasFraction{Numerator: num, Denominator: denom}, nil
}
