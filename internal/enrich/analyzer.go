package enrich

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/memory-engine/internal/embedding"
	"github.com/rcliao/memory-engine/internal/model"
)

const (
	DefaultMaxKeywords = 10
	maxSummaryLen      = 200
	maxSnippetLen      = 200
)

var (
	filePattern  = regexp.MustCompile(`(?:[\w.-]+/)*[\w-]+\.(?:go|ts|tsx|js|jsx|py|rs|java|rb|md|json|ya?ml|sql|css|html|sh)\b`)
	fencePattern = regexp.MustCompile("(?s)```([\\w+-]*)\\n(.*?)```")
	funcPattern  = regexp.MustCompile(`\b(?:func|function|def|fn)\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)`)
	classPattern = regexp.MustCompile(`\b(?:class|struct|interface|type)\s+([A-Z]\w*)`)
	sentenceEnd  = regexp.MustCompile(`[.!?](?:\s|$)|\n`)
)

// technologies maps lowercase tokens to canonical technology entity names.
var technologies = map[string]string{
	"react": "React", "vue": "Vue", "angular": "Angular", "svelte": "Svelte",
	"golang": "Go", "python": "Python", "typescript": "TypeScript",
	"javascript": "JavaScript", "rust": "Rust", "java": "Java",
	"docker": "Docker", "kubernetes": "Kubernetes", "postgres": "PostgreSQL",
	"postgresql": "PostgreSQL", "redis": "Redis", "sqlite": "SQLite",
	"kafka": "Kafka", "graphql": "GraphQL", "nodejs": "Node.js", "node": "Node.js",
	"terraform": "Terraform", "aws": "AWS", "mongodb": "MongoDB",
}

// KeywordAnalyzer is a heuristic Analyzer: frequency ranked keywords, the
// first sentence as summary, and regex extracted files, code symbols and
// known technologies as entities.
type KeywordAnalyzer struct {
	MaxKeywords int
}

// NewKeywordAnalyzer returns a KeywordAnalyzer with default limits.
func NewKeywordAnalyzer() *KeywordAnalyzer {
	return &KeywordAnalyzer{MaxKeywords: DefaultMaxKeywords}
}

func (a *KeywordAnalyzer) Analyze(ctx context.Context, content string, _ model.Metadata) (model.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return model.Metadata{}, err
	}
	md := model.Metadata{
		Keywords: a.keywords(content),
		Summary:  summarize(content),
	}

	seen := map[string]bool{}
	addEntity := func(e model.Entity) {
		if seen[e.Key()] {
			return
		}
		seen[e.Key()] = true
		md.Entities = append(md.Entities, e)
	}

	for _, f := range filePattern.FindAllString(content, -1) {
		if seen["file:"+f] {
			continue
		}
		md.FileReferences = append(md.FileReferences, f)
		addEntity(model.Entity{Type: "file", Name: f, Confidence: 0.9})
	}
	for _, m := range funcPattern.FindAllStringSubmatch(content, -1) {
		addEntity(model.Entity{Type: "function", Name: m[1], Context: strings.TrimSpace(m[0]), Confidence: 0.8})
	}
	for _, m := range classPattern.FindAllStringSubmatch(content, -1) {
		addEntity(model.Entity{Type: "class", Name: m[1], Context: strings.TrimSpace(m[0]), Confidence: 0.7})
	}
	for _, tok := range embedding.Tokenize(content) {
		if name, ok := technologies[tok]; ok {
			addEntity(model.Entity{Type: "technology", Name: name, Confidence: 0.8})
		}
	}

	for _, m := range fencePattern.FindAllStringSubmatch(content, -1) {
		ref := model.CodeReference{Language: m[1], Snippet: truncate(strings.TrimSpace(m[2]), maxSnippetLen)}
		if len(md.FileReferences) > 0 {
			ref.FilePath = md.FileReferences[0]
		}
		if fm := funcPattern.FindStringSubmatch(m[2]); fm != nil {
			ref.Function = fm[1]
		}
		if cm := classPattern.FindStringSubmatch(m[2]); cm != nil {
			ref.Class = cm[1]
		}
		md.CodeReferences = append(md.CodeReferences, ref)
	}

	switch {
	case len(md.Entities) > 0:
		md.Confidence = 0.8
	case len(md.Keywords) > 0:
		md.Confidence = 0.6
	default:
		md.Confidence = 0.3
	}
	return md, nil
}

// keywords ranks tokens by frequency, breaking ties by first appearance.
func (a *KeywordAnalyzer) keywords(content string) []string {
	limit := a.MaxKeywords
	if limit <= 0 {
		limit = DefaultMaxKeywords
	}
	counts := map[string]int{}
	var order []string
	for _, tok := range embedding.Tokenize(content) {
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

func summarize(content string) string {
	s := strings.TrimSpace(content)
	if loc := sentenceEnd.FindStringIndex(s); loc != nil {
		s = strings.TrimSpace(s[:loc[0]])
	}
	return truncate(s, maxSummaryLen)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
