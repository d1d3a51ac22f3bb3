package scrub

import (
	"regexp"

	"github.com/steg2011/netvault/internal/models"
)

// A rule rewrites one volatile field to a fixed sentinel so the surrounding
// structure survives. Rules are applied in order, platform set first, common
// set last.
type rule struct {
	re   *regexp.Regexp
	repl string
}

var iosRules = []rule{
	{regexp.MustCompile(`uptime is [^\n]+`), "uptime is <uptime>"},
	{regexp.MustCompile(`Last configuration change at [^\n]+`), "Last configuration change at <timestamp>"},
	{regexp.MustCompile(`ntp clock-period \d+`), "ntp clock-period <build>"},
	{regexp.MustCompile(`Current configuration : \d+ bytes`), "Current configuration : <build> bytes"},
}

var nxosRules = []rule{
	{regexp.MustCompile(`System uptime:[^\n]+`), "System uptime: <uptime>"},
	{regexp.MustCompile(`Last configuration change at [^\n]+`), "Last configuration change at <timestamp>"},
	{regexp.MustCompile(`serial-number: \S+`), "serial-number: <serial>"},
	{regexp.MustCompile(`module-number: \d+`), "module-number: <build>"},
}

var eosRules = []rule{
	{regexp.MustCompile(`System uptime:[^\n]+`), "System uptime: <uptime>"},
	{regexp.MustCompile(`Last configuration change at [^\n]+`), "Last configuration change at <timestamp>"},
	{regexp.MustCompile(`Management Hostname:[^\n]+`), "Management Hostname: <serial>"},
}

var dellos10Rules = []rule{
	{regexp.MustCompile(`Current date/time is[^\n]+`), "Current date/time is <timestamp>"},
	{regexp.MustCompile(`System uptime is [^\n]+`), "System uptime is <uptime>"},
	{regexp.MustCompile(`Last configuration change on [^\n]+`), "Last configuration change on <timestamp>"},
}

var panosRules = []rule{
	{regexp.MustCompile(`<serial>.*?</serial>`), "<serial><serial></serial>"},
	{regexp.MustCompile(`<uptime>.*?</uptime>`), "<uptime><uptime></uptime>"},
	{regexp.MustCompile(`<time>.*?</time>`), "<time><timestamp></time>"},
	{regexp.MustCompile(`<app-version>.*?</app-version>`), "<app-version><version></app-version>"},
	{regexp.MustCompile(`<threat-version>.*?</threat-version>`), "<threat-version><version></threat-version>"},
	{regexp.MustCompile(`<antivirus-version>.*?</antivirus-version>`), "<antivirus-version><version></antivirus-version>"},
	{regexp.MustCompile(`<wildfire-version>.*?</wildfire-version>`), "<wildfire-version><version></wildfire-version>"},
}

var fortiosRules = []rule{
	{regexp.MustCompile(`uuid\s*=\s*"[^"]*"`), `uuid = "<uuid>"`},
	{regexp.MustCompile(`timestamp\s*=\s*\d+`), "timestamp = <timestamp>"},
	{regexp.MustCompile(`lastupdate\s*=\s*\d+`), "lastupdate = <timestamp>"},
	{regexp.MustCompile(`build\s*=\s*\d+`), "build = <build>"},
}

// Applied to every platform after the platform set.
var commonRules = []rule{
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?`), "<timestamp>"},
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "<ip-address>"},
}

func rulesFor(p models.Platform) []rule {
	switch p {
	case models.PlatformIOS:
		return iosRules
	case models.PlatformNXOS:
		return nxosRules
	case models.PlatformEOS:
		return eosRules
	case models.PlatformDellOS10:
		return dellos10Rules
	case models.PlatformPanOS:
		return panosRules
	case models.PlatformFortiOS:
		return fortiosRules
	}
	return nil
}

// hasCertBlocks reports whether the platform embeds multi-line PKI
// certificate blocks in its running configuration.
func hasCertBlocks(p models.Platform) bool {
	return p == models.PlatformIOS || p == models.PlatformNXOS
}
