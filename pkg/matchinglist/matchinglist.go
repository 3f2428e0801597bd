// Package matchinglist implements the message-filtering rule shared by
// the gas-payment enforcer and the message processor: a list of rules
// where every populated field of a rule must match a message's
// corresponding field, and an absent field is a wildcard. An empty list
// is "default-allow" for whitelists and "match nothing" for blacklists.
package matchinglist

import "github.com/nexusbridge/relayer/pkg/domain"

// Rule matches a message if every populated field equals the message's
// corresponding field. A nil pointer/empty slice field is a wildcard.
type Rule struct {
	OriginDomain      *uint32
	DestinationDomain *uint32
	SenderAddress     *[32]byte
	RecipientAddress  *[32]byte
}

func (r Rule) matches(m domain.Message) bool {
	if r.OriginDomain != nil && *r.OriginDomain != m.Origin {
		return false
	}
	if r.DestinationDomain != nil && *r.DestinationDomain != m.Destination {
		return false
	}
	if r.SenderAddress != nil && *r.SenderAddress != m.Sender {
		return false
	}
	if r.RecipientAddress != nil && *r.RecipientAddress != m.Recipient {
		return false
	}
	return true
}

// List is an ordered set of rules evaluated as an OR: a message matches
// the list if it matches any rule in it.
type List []Rule

// MatchesAsWhitelist reports whether m is allowed through a whitelist
// built from rules. An empty whitelist matches everything.
func (l List) MatchesAsWhitelist(m domain.Message) bool {
	if len(l) == 0 {
		return true
	}
	return l.matchesAny(m)
}

// MatchesAsBlacklist reports whether m is rejected by a blacklist built
// from rules. An empty blacklist matches nothing.
func (l List) MatchesAsBlacklist(m domain.Message) bool {
	if len(l) == 0 {
		return false
	}
	return l.matchesAny(m)
}

func (l List) matchesAny(m domain.Message) bool {
	for _, rule := range l {
		if rule.matches(m) {
			return true
		}
	}
	return false
}
