package chunk

import (
	"regexp"
	"strings"

	"github.com/JoeyEamigh/ccengram/internal/store"
)

// Boundary is one regex family: a line matching Match starts a new
// chunk-type region; ExtractSymbol, when matched, pulls the symbol name
// out of a line within that region.
type Boundary struct {
	Match       *regexp.Regexp
	ChunkType   store.ChunkType
	nameRe      *regexp.Regexp
}

// ExtractSymbol reports whether line names a symbol for this boundary and,
// if so, what it's called.
func (b Boundary) ExtractSymbol(line string) (string, bool) {
	if b.nameRe == nil {
		return "", false
	}
	m := b.nameRe.FindStringSubmatch(line)
	if m == nil || len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// LanguageFamily is one language's ordered set of boundary regexes.
type LanguageFamily struct {
	Boundaries []Boundary
}

// LanguageRegistry maps a language tag (as produced by the scanner) to its
// boundary family.
type LanguageRegistry struct {
	families map[string]*LanguageFamily
}

func DefaultLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{families: map[string]*LanguageFamily{}}
	r.families["go"] = goFamily()
	ts := tsFamily()
	r.families["typescript"] = ts
	r.families["tsx"] = ts
	r.families["javascript"] = ts
	r.families["jsx"] = ts
	r.families["python"] = pyFamily()
	r.families["rust"] = rustFamily()
	r.families["java"] = javaFamily()
	r.families["ruby"] = rubyFamily()
	return r
}

func (r *LanguageRegistry) Get(language string) (*LanguageFamily, bool) {
	fam, ok := r.families[strings.ToLower(language)]
	return fam, ok
}

func boundary(pattern string, ct store.ChunkType, namePattern string) Boundary {
	b := Boundary{Match: regexp.MustCompile(pattern), ChunkType: ct}
	if namePattern != "" {
		b.nameRe = regexp.MustCompile(namePattern)
	}
	return b
}

func goFamily() *LanguageFamily {
	return &LanguageFamily{Boundaries: []Boundary{
		boundary(`^\s*func\s+(\([^)]*\)\s+)?\w+\s*\(`, store.ChunkTypeFunction, `^\s*func\s+(?:\([^)]*\)\s+)?(\w+)\s*\(`),
		boundary(`^\s*type\s+\w+\s+(struct|interface)\s*\{`, store.ChunkTypeClass, `^\s*type\s+(\w+)\s+(?:struct|interface)\s*\{`),
		boundary(`^\s*import\s*\(`, store.ChunkTypeImports, ""),
	}}
}

func tsFamily() *LanguageFamily {
	return &LanguageFamily{Boundaries: []Boundary{
		boundary(`^\s*(export\s+)?(async\s+)?function\s*\*?\s*\w+\s*\(`, store.ChunkTypeFunction, `\bfunction\s*\*?\s*(\w+)\s*\(`),
		boundary(`^\s*(export\s+)?(default\s+)?(abstract\s+)?class\s+\w+`, store.ChunkTypeClass, `\bclass\s+(\w+)`),
		boundary(`^\s*(export\s+)?interface\s+\w+`, store.ChunkTypeClass, `\binterface\s+(\w+)`),
		boundary(`^\s*import\s+.*from\s+['"]`, store.ChunkTypeImports, ""),
	}}
}

func pyFamily() *LanguageFamily {
	return &LanguageFamily{Boundaries: []Boundary{
		boundary(`^\s*(async\s+)?def\s+\w+\s*\(`, store.ChunkTypeFunction, `\bdef\s+(\w+)\s*\(`),
		boundary(`^\s*class\s+\w+`, store.ChunkTypeClass, `\bclass\s+(\w+)`),
		boundary(`^\s*(import\s+\w|from\s+\S+\s+import)`, store.ChunkTypeImports, ""),
	}}
}

func rustFamily() *LanguageFamily {
	return &LanguageFamily{Boundaries: []Boundary{
		boundary(`^\s*(pub\s+)?(async\s+)?fn\s+\w+`, store.ChunkTypeFunction, `\bfn\s+(\w+)`),
		boundary(`^\s*(pub\s+)?(struct|trait|enum)\s+\w+`, store.ChunkTypeClass, `\b(?:struct|trait|enum)\s+(\w+)`),
		boundary(`^\s*impl(\s*<[^>]*>)?\s+\w+`, store.ChunkTypeClass, `\bimpl(?:\s*<[^>]*>)?\s+(\w+)`),
		boundary(`^\s*use\s+\w`, store.ChunkTypeImports, ""),
	}}
}

func javaFamily() *LanguageFamily {
	return &LanguageFamily{Boundaries: []Boundary{
		boundary(`^\s*(public|private|protected)?\s*(static\s+)?[\w<>\[\]]+\s+\w+\s*\([^;]*\)\s*\{?$`, store.ChunkTypeFunction, `\s(\w+)\s*\([^;]*\)\s*\{?$`),
		boundary(`^\s*(public\s+)?(abstract\s+)?(class|interface)\s+\w+`, store.ChunkTypeClass, `\b(?:class|interface)\s+(\w+)`),
		boundary(`^\s*import\s+[\w.]+;`, store.ChunkTypeImports, ""),
	}}
}

func rubyFamily() *LanguageFamily {
	return &LanguageFamily{Boundaries: []Boundary{
		boundary(`^\s*def\s+\w+`, store.ChunkTypeFunction, `\bdef\s+(\w+)`),
		boundary(`^\s*(class|module)\s+\w+`, store.ChunkTypeClass, `\b(?:class|module)\s+(\w+)`),
		boundary(`^\s*require(_relative)?\s+['"]`, store.ChunkTypeImports, ""),
	}}
}
