package answer

import (
	"fmt"
	"regexp"
	"strings"

	"netagent/internal/react"
)

// Truncation budgets per tool family. Head and tail are both kept because
// network tools print their statistics block at the end of the output, so a
// head-only cut would drop exactly the part worth keeping.
type truncation struct {
	max  int
	head int
	tail int
}

var truncations = map[string]truncation{
	"default":  {max: 1500, head: 600, tail: 600},
	"network":  {max: 1200, head: 400, tail: 600},
	"database": {max: 2000, head: 800, tail: 800},
}

var bareNetworkTools = map[string]bool{
	"ping":       true,
	"traceroute": true,
	"mtr":        true,
	"nslookup":   true,
}

var (
	packetLossRe = regexp.MustCompile(`(\d+(?:\.\d+)?%)\s*packet loss`)
	rttRe        = regexp.MustCompile(`(?:rtt|round-trip)\s+min/avg/max[^=]*=\s*([\d.]+)/([\d.]+)/([\d.]+)`)
	lookupAddrRe = regexp.MustCompile(`Address(?:es)?:\s*((?:\d{1,3}\.){3}\d{1,3})`)
	hopLineRe    = regexp.MustCompile(`(?m)^\s*\d+[.|\s]`)
	rowCountRe   = regexp.MustCompile(`(\d+)\s*(?:rows?|records?|条|记录|结果)`)
)

func toolType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "network.") || bareNetworkTools[baseName(lower)]:
		return "network"
	case strings.HasPrefix(lower, "mysql.") || strings.Contains(lower, "sql") || strings.Contains(lower, "database"):
		return "database"
	}
	return "default"
}

func baseName(tool string) string {
	if i := strings.LastIndex(tool, "."); i >= 0 {
		return tool[i+1:]
	}
	return tool
}

// smartTruncate keeps the head and the tail of an over-long observation with
// an elision marker in between. The budget depends on the tool family.
func smartTruncate(text, tool string) string {
	t, ok := truncations[toolType(tool)]
	if !ok {
		t = truncations["default"]
	}

	r := []rune(text)
	if len(r) <= t.max {
		return text
	}

	omitted := len(r) - t.head - t.tail
	return string(r[:t.head]) +
		fmt.Sprintf("\n\n... [%d chars omitted] ...\n\n", omitted) +
		string(r[len(r)-t.tail:])
}

// summarize digests one observation into a one-line heading. Known tool
// families get structured extraction; anything else falls back to the
// generic single-fact summary.
func summarize(tool, observation string) string {
	base := baseName(strings.ToLower(tool))

	var s string
	switch {
	case strings.Contains(base, "ping"):
		s = pingSummary(observation)
	case strings.Contains(base, "nslookup") || strings.Contains(base, "dns"):
		s = lookupSummary(observation)
	case strings.Contains(base, "traceroute") || strings.Contains(base, "mtr"):
		s = hopSummary(observation)
	case toolType(tool) == "database":
		s = rowSummary(observation)
	}

	if s == "" {
		s = react.ExtractResultFact(observation)
	}
	return s
}

func pingSummary(obs string) string {
	loss := packetLossRe.FindStringSubmatch(obs)
	rtt := rttRe.FindStringSubmatch(obs)
	switch {
	case loss != nil && rtt != nil:
		return fmt.Sprintf("packet loss %s, rtt min/avg/max %s/%s/%s ms", loss[1], rtt[1], rtt[2], rtt[3])
	case loss != nil:
		return "packet loss " + loss[1]
	}
	return ""
}

// lookupSummary reports the resolved addresses. The first Address line in
// nslookup output names the resolver, so it is skipped when answers follow.
func lookupSummary(obs string) string {
	matches := lookupAddrRe.FindAllStringSubmatch(obs, -1)
	if len(matches) == 0 {
		return ""
	}
	if len(matches) > 1 {
		matches = matches[1:]
	}
	addrs := make([]string, 0, len(matches))
	for _, m := range matches {
		addrs = append(addrs, m[1])
		if len(addrs) == 3 {
			break
		}
	}
	return "resolves to " + strings.Join(addrs, ", ")
}

func hopSummary(obs string) string {
	hops := len(hopLineRe.FindAllString(obs, -1))
	if hops == 0 {
		return ""
	}
	return fmt.Sprintf("%d hops", hops)
}

func rowSummary(obs string) string {
	if m := rowCountRe.FindStringSubmatch(obs); m != nil {
		return m[1] + " rows"
	}
	return ""
}
