// Package policy maps foreground processes to classifications.
// Two matching rules live here: exact lowercase lookup against a
// ClassificationTable, and the looser fuzzy matching used for the
// user-typed blacklist/whitelist of a profile.
package policy

import (
	"strings"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// DefaultMonitorTimeout is the dwell time in seconds before a mixed
// process gets analyzed.
const DefaultMonitorTimeout = 2

// Classify returns the category of processName in table.
// First match wins in the order Work, Entertainment, Mixed; anything else
// is Unknown. The name is lowercased but the .exe suffix is kept.
func Classify(processName string, table *domain.ClassificationTable) domain.Classification {
	if processName == "" || table == nil {
		return domain.ClassUnknown
	}
	name := strings.ToLower(processName)

	switch {
	case contains(table.WorkProcesses, name):
		return domain.ClassWork
	case contains(table.EntertainmentProcesses, name):
		return domain.ClassEntertainment
	case contains(table.MixedProcesses, name):
		return domain.ClassMixed
	default:
		return domain.ClassUnknown
	}
}

func contains(list []string, name string) bool {
	for _, entry := range list {
		if strings.ToLower(entry) == name {
			return true
		}
	}
	return false
}

// IsInBlacklist reports whether processName fuzzily matches a blacklist entry.
func IsInBlacklist(processName string, blacklist []string) bool {
	return MatchesList(processName, blacklist)
}

// IsInWhitelist reports whether processName fuzzily matches a whitelist entry.
func IsInWhitelist(processName string, whitelist []string) bool {
	return MatchesList(processName, whitelist)
}

// MatchesList strips .exe and lowercases both sides, then matches when the
// base names are equal or either contains the other.
func MatchesList(processName string, list []string) bool {
	if processName == "" || len(list) == 0 {
		return false
	}
	base := baseName(processName)
	if base == "" {
		return false
	}

	for _, entry := range list {
		candidate := baseName(entry)
		// an empty entry is a substring of everything
		if candidate == "" {
			continue
		}
		if base == candidate || strings.Contains(base, candidate) || strings.Contains(candidate, base) {
			return true
		}
	}
	return false
}

func baseName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, ".exe")
}
