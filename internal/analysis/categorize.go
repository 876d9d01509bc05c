// Package analysis turns scan runs and their logs into failure breakdowns,
// trend reports and coverage figures. It is pure computation: nothing in
// this package talks to the network.
package analysis

import (
	"strings"

	"github.com/snowops/discovery-agent/internal/discovery"
)

// Category is a failure family assigned to error log entries.
type Category string

const (
	CategoryCredentialFailure     Category = "credential_failure"
	CategorySNMPFailure           Category = "snmp_failure"
	CategorySSHFailure            Category = "ssh_failure"
	CategoryWMIFailure            Category = "wmi_failure"
	CategoryPortScanFailure       Category = "port_scan_failure"
	CategoryClassificationFailure Category = "classification_failure"
	CategoryNetworkTimeout        Category = "network_timeout"
	CategoryUnknown               Category = "unknown"
)

// categoryRules is an ordered list: the first rule with a matching keyword
// wins. Credential and protocol-specific rules come before the generic
// network_timeout rule on purpose, so "SNMP timeout" classifies as an SNMP
// failure rather than a plain timeout. The order is part of the contract;
// do not reorder casually.
var categoryRules = []struct {
	category Category
	keywords []string
}{
	{CategoryCredentialFailure, []string{"credential", "authentication", "login", "password", "access denied"}},
	{CategorySNMPFailure, []string{"snmp", "community string", "snmp timeout"}},
	{CategorySSHFailure, []string{"ssh", "key exchange", "host key"}},
	{CategoryWMIFailure, []string{"wmi", "windows management", "dcom"}},
	{CategoryPortScanFailure, []string{"port scan", "port closed", "port unreachable"}},
	{CategoryClassificationFailure, []string{"classification", "pattern", "classify", "unclassified"}},
	{CategoryNetworkTimeout, []string{"timeout", "timed out", "unreachable", "connection refused"}},
}

// CategorizeMessage assigns a single category to one message. Total: every
// message gets a category, falling back to unknown.
func CategorizeMessage(message string) Category {
	lower := strings.ToLower(message)
	for _, rule := range categoryRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.category
			}
		}
	}
	return CategoryUnknown
}

// Categorize buckets the error-severity entries by failure category.
// Non-error entries are ignored. Deterministic: same input, same output.
func Categorize(entries []discovery.LogEntry) map[Category][]discovery.LogEntry {
	buckets := make(map[Category][]discovery.LogEntry)
	for _, entry := range entries {
		if !entry.IsError() {
			continue
		}
		category := CategorizeMessage(entry.Message)
		buckets[category] = append(buckets[category], entry)
	}
	return buckets
}

// CategoryCounts reduces Categorize output to per-category totals
func CategoryCounts(entries []discovery.LogEntry) map[Category]int {
	counts := make(map[Category]int)
	for category, bucket := range Categorize(entries) {
		counts[category] = len(bucket)
	}
	return counts
}
