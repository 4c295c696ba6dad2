// # internal/ui/report/formats/sarif.go
package formats

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"externaltypes/internal/engine/findings"
	"externaltypes/internal/shared/version"

	"github.com/google/uuid"
)

// SARIF v2.1.0 schema – see https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json

const (
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
	sarifVersion = "2.1.0"
	toolName     = "check-external-types"
)

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool              sarifTool              `json:"tool"`
	AutomationDetails sarifAutomationDetails `json:"automationDetails"`
	Results           []sarifResult          `json:"results"`
}

type sarifAutomationDetails struct {
	GUID string `json:"guid"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	ShortDescription sarifMessage           `json:"shortDescription"`
	DefaultConfig    sarifRuleDefaultConfig `json:"defaultConfiguration"`
}

type sarifRuleDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
	EndLine     int `json:"endLine,omitempty"`
	EndColumn   int `json:"endColumn,omitempty"`
}

type ruleInfo struct {
	id          string
	name        string
	description string
}

var sarifRules = map[findings.Kind]ruleInfo{
	findings.KindUnapprovedExternalRef: {"CET001", "UnapprovedExternalTypeRef", "An external type that is not on the allow-list is referenced in the public API."},
	findings.KindFieldsStripped:        {"CET002", "FieldsStripped", "A type has fields hidden from documentation that cannot be checked."},
	findings.KindHiddenModule:          {"CET003", "HiddenModule", "A re-exported type lives in a module hidden from documentation."},
	findings.KindHiddenItem:            {"CET004", "HiddenItem", "The public API references an item hidden from documentation."},
	findings.KindUnusedApprovalPattern: {"CET005", "UnusedApprovalPattern", "An allow-list pattern matched no type in the public API."},
	findings.KindDuplicateApproved:     {"CET006", "DuplicateApproved", "An external type is matched by more than one allow-list pattern."},
}

// GenerateSARIF builds a SARIF v2.1.0 document from the findings, in order.
// File URIs are made relative to workspaceRoot; absolute paths are never
// included so that reports are safe to share.
func GenerateSARIF(workspaceRoot string, fs []*findings.Finding) ([]byte, error) {
	results := make([]sarifResult, 0, len(fs))
	seen := make(map[findings.Kind]bool)

	for _, f := range fs {
		info, ok := sarifRules[f.Kind]
		if !ok {
			return nil, fmt.Errorf("no SARIF rule for finding kind %s", f.Kind)
		}
		seen[f.Kind] = true

		msg := f.Headline()
		if sub := f.Subtext(); sub != "" {
			msg += " (" + sub + ")"
		}
		result := sarifResult{
			RuleID:  info.id,
			Level:   f.Severity().String(),
			Message: sarifMessage{Text: msg},
		}
		if f.Span != nil {
			result.Locations = []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{
						URI:       relativeURI(workspaceRoot, f.Span.Filename),
						URIBaseID: "%SRCROOT%",
					},
					// SARIF columns are 1-based, rustdoc's are 0-based.
					Region: &sarifRegion{
						StartLine:   f.Span.Begin[0],
						StartColumn: f.Span.Begin[1] + 1,
						EndLine:     f.Span.End[0],
						EndColumn:   f.Span.End[1] + 1,
					},
				},
			}}
		}
		results = append(results, result)
	}

	report := sarifReport{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:    toolName,
						Version: version.Version,
						Rules:   buildSARIFRules(seen),
					},
				},
				AutomationDetails: sarifAutomationDetails{GUID: uuid.NewString()},
				Results:           results,
			},
		},
	}

	return json.MarshalIndent(report, "", "  ")
}

// buildSARIFRules returns only the rules that are relevant for the given findings.
func buildSARIFRules(seen map[findings.Kind]bool) []sarifRule {
	rules := make([]sarifRule, 0, len(seen))
	for _, kind := range findings.Kinds {
		if !seen[kind] {
			continue
		}
		info := sarifRules[kind]
		rules = append(rules, sarifRule{
			ID:               info.id,
			Name:             info.name,
			ShortDescription: sarifMessage{Text: info.description},
			DefaultConfig:    sarifRuleDefaultConfig{Level: kind.Severity().String()},
		})
	}
	return rules
}

// relativeURI converts an absolute file path to a forward-slash relative URI
// anchored at workspaceRoot. If the path is already relative or workspaceRoot
// is empty, the original path (with forward slashes) is returned.
func relativeURI(workspaceRoot, filePath string) string {
	if workspaceRoot != "" && filepath.IsAbs(filePath) {
		rel, err := filepath.Rel(workspaceRoot, filePath)
		if err == nil {
			filePath = rel
		}
	}
	return filepath.ToSlash(filePath)
}
