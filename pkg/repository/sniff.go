package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileReader is the primitive the site-URL sniffer needs from an adapter:
// fetch one text file, decoded.
type fileReader func(ctx context.Context, path string) (string, error)

// urlProbe pairs a conventional configuration file path with an extractor
// tuned to that file's syntax.
type urlProbe struct {
	path    string
	extract func(content string) string
}

var siteURLPattern = regexp.MustCompile(`['"](https?://[^'"\s]+)['"]`)

// urlProbes is the fixed probe list, in priority order: site-generator
// configs first, then the package manifest's homepage field.
var urlProbes = []urlProbe{
	{"astro.config.mjs", extractQuotedURL},
	{"astro.config.ts", extractQuotedURL},
	{"next.config.js", extractQuotedURL},
	{"config.toml", extractTOMLBaseURL},
	{"hugo.toml", extractTOMLBaseURL},
	{"_config.yml", extractYAMLURL},
	{"package.json", extractPackageHomepage},
}

// extractQuotedURL finds the first quoted http(s) URL in a JavaScript or
// TypeScript config, which in practice is the site/base URL declaration.
func extractQuotedURL(content string) string {
	m := siteURLPattern.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return m[1]
}

func extractTOMLBaseURL(content string) string {
	var cfg struct {
		BaseURL string `toml:"baseURL"`
	}
	if err := toml.Unmarshal([]byte(content), &cfg); err != nil {
		return ""
	}
	return cfg.BaseURL
}

func extractYAMLURL(content string) string {
	var cfg struct {
		URL string `yaml:"url"`
	}
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return ""
	}
	return cfg.URL
}

func extractPackageHomepage(content string) string {
	var pkg struct {
		Homepage string `json:"homepage"`
	}
	if err := json.Unmarshal([]byte(content), &pkg); err != nil {
		return ""
	}
	return pkg.Homepage
}

// discoverSiteURL probes conventional config files in priority order and
// returns the first URL found, trailing slash stripped. Absent or
// unparseable files are skipped silently; no match yields "".
func discoverSiteURL(ctx context.Context, read fileReader) string {
	for _, probe := range urlProbes {
		content, err := read(ctx, probe.path)
		if err != nil {
			continue
		}
		url := probe.extract(content)
		if url == "" || !strings.HasPrefix(url, "http") {
			continue
		}
		url = strings.TrimRight(url, "/")
		slog.Debug("discovered site URL", "source", probe.path, "url", url)
		return url
	}
	return ""
}
