package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupOverrideAgentWinsOverBase(t *testing.T) {
	t.Setenv("HYP_BASE_DB", "/data/base.db")
	t.Setenv("HYP_RELAYER_DB", "/data/relayer.db")

	v, ok := lookupOverride("DB", "RELAYER")
	require.True(t, ok)
	require.Equal(t, "/data/relayer.db", v)
}

func TestLookupOverrideFallsBackToBase(t *testing.T) {
	t.Setenv("HYP_BASE_DB", "/data/base.db")

	v, ok := lookupOverride("DB", "RELAYER")
	require.True(t, ok)
	require.Equal(t, "/data/base.db", v)
}

func TestLookupOverrideAbsent(t *testing.T) {
	_, ok := lookupOverride("DOES_NOT_EXIST", "RELAYER")
	require.False(t, ok)
}

func TestParseNoncesToSkip(t *testing.T) {
	skip := parseNoncesToSkip("7:100,7:101,9:5")
	require.True(t, skip[7][100])
	require.True(t, skip[7][101])
	require.True(t, skip[9][5])
	require.False(t, skip[9][6])
}

func TestParseNoncesToSkipEmpty(t *testing.T) {
	require.Nil(t, parseNoncesToSkip(""))
}

func TestToMatchingListParsesHexAddresses(t *testing.T) {
	sender := "0x" + "ab" + strings.Repeat("cd", 31)
	rules := []MatchingListRule{{SenderAddress: &sender}}
	list, err := ToMatchingList(rules)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].SenderAddress)
}

func TestValidateRequiresCoreFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)

	cfg = &Config{DB: "/data/relayer.db", OriginChainNames: []string{"ethereum"}, DestinationChainNames: []string{"cosmos"}}
	require.NoError(t, cfg.Validate())
}
