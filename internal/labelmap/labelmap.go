// Package labelmap loads and validates the YAML label-map configuration that
// tells the harvester which URLs on the target domain to seed, which links to
// follow, and which CSS selectors to extract as labelled fields.
package labelmap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"
)

// Selector describes one named CSS-selector extraction within a Rule.
type Selector struct {
	Name     string `json:"name"`
	CSS      string `json:"selector"`
	List     bool   `json:"list"`
}

// Rule pairs a path-match regex with the label selectors to apply when a
// page's path matches it, and the absolute URL to seed the frontier with.
type Rule struct {
	PathMatchRe string     `json:"path_match_re"`
	AbsRootURL  string     `json:"abs_root_url"`
	Labels      []Selector `json:"labels"`

	pathMatch *regexp.Regexp
}

// Matches reports whether the rule's path_match_re matches the given
// leading-slash-stripped path.
func (r *Rule) Matches(strippedPath string) bool {
	return r.pathMatch.MatchString(strippedPath)
}

// PathExclude configures an optional path-exclusion filter applied to
// discovered outlinks.
type PathExclude struct {
	Re     string `json:"re"`
	Invert bool   `json:"invert"`
}

// LabelMap is the fully parsed, regex-compiled label-map configuration.
type LabelMap struct {
	Domain       string            `json:"domain"`
	PathExclude  *PathExclude      `json:"path_exclude"`
	Headers      map[string]string `json:"headers"`
	Rules        []*Rule           `json:"maps"`

	excludeRe *regexp.Regexp
}

// MatchingRules returns every rule whose path_match_re matches strippedPath,
// in document order.
func (lm *LabelMap) MatchingRules(strippedPath string) []*Rule {
	var matched []*Rule
	for _, r := range lm.Rules {
		if r.Matches(strippedPath) {
			matched = append(matched, r)
		}
	}
	return matched
}

// ExcludePath reports whether strippedPath should be dropped by the
// configured path_exclude rule. With no path_exclude configured, nothing is
// ever excluded.
func (lm *LabelMap) ExcludePath(strippedPath string) bool {
	if lm.excludeRe == nil {
		return false
	}
	matches := lm.excludeRe.MatchString(strippedPath)
	if lm.PathExclude.Invert {
		return !matches
	}
	return matches
}

// schemaJSON is the structural JSON Schema the label map is validated
// against before being unmarshalled into LabelMap, mirroring the teacher's
// internal/config schema.Validate-before-json.Decode flow.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["domain", "maps"],
  "properties": {
    "domain": {"type": "string", "minLength": 1},
    "path_exclude": {
      "type": "object",
      "required": ["re"],
      "properties": {
        "re": {"type": "string"},
        "invert": {"type": "boolean"}
      }
    },
    "headers": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "maps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["path_match_re", "abs_root_url", "labels"],
        "properties": {
          "path_match_re": {"type": "string"},
          "abs_root_url": {"type": "string"},
          "labels": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "selector"],
              "properties": {
                "name": {"type": "string"},
                "selector": {"type": "string"},
                "list": {"type": "boolean"}
              }
            }
          }
        }
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("labelmap.json", strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("labelmap: invalid embedded schema: %v", err))
	}
	return c.MustCompile("labelmap.json")
}

// Load reads the YAML label map at path, validates its structure against the
// embedded JSON Schema, and compiles every regex up front. Any failure here
// is fatal: a broken label map means the crawler has no seed URLs and no
// rules to extract against.
func Load(path string) (*LabelMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading label map %s: %w", path, err)
	}

	jsonBytes, err := yaml.YAMLToJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("converting label map %s to JSON: %w", path, err)
	}

	var doc interface{}
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, fmt.Errorf("decoding label map %s: %w", path, err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("validating label map %s: %w", path, err)
	}

	lm := &LabelMap{}
	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	if err := dec.Decode(lm); err != nil {
		return nil, fmt.Errorf("unmarshalling label map %s: %w", path, err)
	}

	if lm.PathExclude != nil {
		re, err := regexp.Compile(lm.PathExclude.Re)
		if err != nil {
			return nil, fmt.Errorf("compiling path_exclude regex %q: %w", lm.PathExclude.Re, err)
		}
		lm.excludeRe = re
	}

	for _, r := range lm.Rules {
		re, err := regexp.Compile(r.PathMatchRe)
		if err != nil {
			return nil, fmt.Errorf("compiling path_match_re %q: %w", r.PathMatchRe, err)
		}
		r.pathMatch = re
	}

	return lm, nil
}
