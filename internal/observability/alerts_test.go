package observability

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Alert       string            `yaml:"alert"`
			Expr        string            `yaml:"expr"`
			For         string            `yaml:"for"`
			Labels      map[string]string `yaml:"labels"`
			Annotations map[string]string `yaml:"annotations"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

// runbookAnchors turns every markdown heading into its GitHub anchor.
func runbookAnchors(t *testing.T, path string) map[string]bool {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	strip := regexp.MustCompile(`[^a-z0-9 -]`)
	anchors := map[string]bool{}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "#") {
			continue
		}
		heading := strings.ToLower(strings.TrimSpace(strings.TrimLeft(line, "#")))
		anchors[strings.ReplaceAll(strip.ReplaceAllString(heading, ""), " ", "-")] = true
	}
	return anchors
}

func TestAuthzAlertsWatchExportedMetrics(t *testing.T) {
	root := filepath.Join("..", "..")
	data, err := os.ReadFile(filepath.Join(root, "deploy", "prometheus", "alerts", "authz.yml"))
	require.NoError(t, err)
	var file ruleFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	require.Len(t, file.Groups, 1)
	require.Equal(t, "authz", file.Groups[0].Name)

	// alert -> severity and the collector from metrics.go it must query
	want := map[string]struct{ severity, metric string }{
		"HighErrorRate":     {"critical", "veeduria_http_requests_total"},
		"GuardDenialSpike":  {"warning", "veeduria_authz_decisions_total"},
		"AuditQueueFailing": {"warning", "veeduria_audit_enqueue_failures_total"},
	}
	anchors := runbookAnchors(t, filepath.Join(root, "docs", "runbook-authz.md"))

	seen := map[string]bool{}
	for _, rule := range file.Groups[0].Rules {
		w, ok := want[rule.Alert]
		require.True(t, ok, "unexpected alert %s", rule.Alert)
		seen[rule.Alert] = true

		assert.Equal(t, w.severity, rule.Labels["severity"], rule.Alert)
		assert.Contains(t, rule.Expr, w.metric, rule.Alert)
		assert.NotEmpty(t, rule.For, rule.Alert)
		assert.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		assert.NotEmpty(t, rule.Annotations["description"], rule.Alert)

		doc, anchor, found := strings.Cut(rule.Annotations["runbook"], "#")
		require.True(t, found, rule.Alert)
		assert.Equal(t, "docs/runbook-authz.md", doc, rule.Alert)
		assert.True(t, anchors[anchor], "runbook section %q missing for %s", anchor, rule.Alert)
	}
	assert.Len(t, seen, len(want))
}
