package brand

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/spirits-cli/internal/similarity"
)

// Fuzzy matches must score strictly above fuzzyFloor; highFloor and above is
// treated as an exact-grade match.
const (
	fuzzyFloor = 0.8
	highFloor  = 0.95
)

// abbreviations expands common short forms token by token.
var abbreviations = map[string]string{
	"co":   "company",
	"corp": "corporation",
	"inc":  "incorporated",
	"ltd":  "limited",
	"llc":  "limited liability company",
	"bros": "brothers",
	"dist": "distillery",
	"yr":   "year",
	"yrs":  "years",
	"yo":   "year old",
}

// stopWords are generic legal and category words that rarely identify a brand.
var stopWords = map[string]bool{
	"the": true, "distillery": true, "company": true, "corporation": true,
	"incorporated": true, "limited": true, "liability": true,
	"inc": true, "ltd": true, "llc": true, "co": true,
	"whisky": true, "whiskey": true, "bourbon": true, "scotch": true,
	"irish": true, "canadian": true, "tennessee": true, "kentucky": true,
	"single": true, "malt": true, "grain": true, "blended": true, "blend": true,
}

var coreSuffixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s+(distillery|company|corporation|inc|ltd|llc|co\.?)$`),
	regexp.MustCompile(`(?i)\s+(whisky|whiskey|bourbon|scotch|irish|canadian)$`),
	regexp.MustCompile(`(?i)\s+(single\s+malt|blended|aged?\s+\d+).*$`),
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'")

// Normalizer resolves raw brand strings against a known-brand table. It is
// safe for concurrent use; AddMapping may run alongside Normalize.
type Normalizer struct {
	mu         sync.RWMutex
	canonicals map[string][]string // canonical -> variations
	index      map[string]string   // normalized variation -> canonical
	keys       []string            // sorted index keys for fuzzy scans
}

// New builds a Normalizer from entries. Later entries win on conflicting
// variations.
func New(entries []Entry) *Normalizer {
	n := &Normalizer{
		canonicals: make(map[string][]string),
		index:      make(map[string]string),
	}
	for _, e := range entries {
		n.add(e.Canonical, e.Variations)
	}
	n.rebuildKeys()
	return n
}

// NewDefault builds a Normalizer from the built-in table plus any extra
// entries.
func NewDefault(extra ...Entry) (*Normalizer, error) {
	entries, err := DefaultEntries()
	if err != nil {
		return nil, err
	}
	return New(append(entries, extra...)), nil
}

// AddMapping registers canonical and its variations.
func (n *Normalizer) AddMapping(canonical string, variations ...string) error {
	canonical = strings.TrimSpace(canonical)
	if canonical == "" {
		return eris.New("brand: empty canonical name")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.add(canonical, variations)
	n.rebuildKeys()
	return nil
}

// add requires n.mu held for writing (or exclusive access).
func (n *Normalizer) add(canonical string, variations []string) {
	canonical = strings.TrimSpace(canonical)
	if canonical == "" {
		return
	}
	n.canonicals[canonical] = append(n.canonicals[canonical], variations...)
	if k := lookupKey(canonical); k != "" {
		n.index[k] = canonical
	}
	for _, v := range variations {
		if k := lookupKey(v); k != "" {
			n.index[k] = canonical
		}
	}
}

func (n *Normalizer) rebuildKeys() {
	keys := make([]string, 0, len(n.index))
	for k := range n.index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	n.keys = keys
}

// Canonicals returns the known canonical names, sorted.
func (n *Normalizer) Canonicals() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]string, 0, len(n.canonicals))
	for c := range n.canonicals {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Normalize runs the normalization pipeline on raw. Results below
// cfg.MinimumConfidence return the trimmed input untouched.
func (n *Normalizer) Normalize(raw string, cfg Config) Result {
	original := strings.TrimSpace(raw)
	if original == "" {
		return Result{
			Confidence:      ConfidenceLow,
			Transformations: []string{TransformEmptyInput},
		}
	}

	var transformations []string
	current := original
	// forms holds every intermediate value, newest first, for exact lookups.
	forms := []string{current}

	step := func(name, next string) {
		if next == "" || next == current {
			return
		}
		current = next
		forms = append([]string{current}, forms...)
		transformations = append(transformations, name)
	}

	if cfg.NormalizeCase {
		current = normalizeText(current, true)
		forms[0] = current
		transformations = append(transformations, TransformNormalizeCase)
	}
	if cfg.ExpandAbbreviations {
		step(TransformExpandAbbreviations, expandAbbreviations(current))
	}
	step(TransformRemoveStopWords, removeStopWords(current))
	step(TransformExtractCoreName, extractCoreName(current))

	canonical, score, found := n.match(forms, cfg.StrictMatching)

	res := Result{Normalized: current, Canonical: current, Confidence: ConfidenceLow}
	switch {
	case found:
		res.Canonical = canonical
		res.IsKnownBrand = true
		transformations = append(transformations, TransformCanonicalLookup)
		if score >= highFloor {
			res.Confidence = ConfidenceHigh
		} else {
			res.Confidence = ConfidenceMedium
		}
	case !cfg.NormalizeCase:
		res.Canonical = original
	}
	res.Transformations = transformations

	if !res.Confidence.AtLeast(cfg.MinimumConfidence) {
		return Result{
			Normalized:      original,
			Canonical:       original,
			Confidence:      ConfidenceLow,
			Transformations: []string{TransformInsufficientConfidence},
		}
	}
	return res
}

// match resolves forms (newest first) to a canonical name. Exact lookups run
// over every form; the fuzzy scan only over the newest.
func (n *Normalizer) match(forms []string, strict bool) (string, float64, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, f := range forms {
		if c, ok := n.index[lookupKey(f)]; ok {
			return c, 1, true
		}
	}
	if strict {
		return "", 0, false
	}

	key := lookupKey(forms[0])
	if key == "" {
		return "", 0, false
	}
	var (
		best      string
		bestScore float64
	)
	for _, v := range n.keys {
		s := similarity.Ratio(key, v)
		if s > fuzzyFloor && s > bestScore {
			best, bestScore = n.index[v], s
		}
	}
	return best, bestScore, best != ""
}

// Canonical returns the canonical form of raw under DefaultConfig.
func (n *Normalizer) Canonical(raw string) string {
	return n.Normalize(raw, DefaultConfig()).Canonical
}

// BatchNormalize normalizes each distinct raw string once.
func (n *Normalizer) BatchNormalize(raws []string, cfg Config) map[string]Result {
	out := make(map[string]Result, len(raws))
	for _, r := range raws {
		if _, ok := out[r]; ok {
			continue
		}
		out[r] = n.Normalize(r, cfg)
	}
	return out
}

// FindDuplicateBrands groups raws by canonical form and returns the groups
// with more than one member, largest first.
func (n *Normalizer) FindDuplicateBrands(raws []string, cfg Config) []Group {
	byCanonical := make(map[string]*Group)
	var order []string
	for _, r := range raws {
		res := n.Normalize(r, cfg)
		g, ok := byCanonical[res.Canonical]
		if !ok {
			g = &Group{Canonical: res.Canonical, Confidence: ConfidenceLow}
			byCanonical[res.Canonical] = g
			order = append(order, res.Canonical)
		}
		g.Brands = append(g.Brands, r)
		if res.Confidence.rank() > g.Confidence.rank() {
			g.Confidence = res.Confidence
		}
	}

	var groups []Group
	for _, c := range order {
		if g := byCanonical[c]; len(g.Brands) > 1 {
			groups = append(groups, *g)
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].Brands) > len(groups[j].Brands)
	})
	return groups
}

// normalizeText folds diacritics, optionally lowercases, replaces everything
// except letters, digits, underscores, apostrophes and periods with spaces, and
// collapses whitespace.
func normalizeText(s string, lower bool) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}
	s = apostrophes.Replace(s)
	if lower {
		s = strings.ToLower(s)
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '\'' || r == '.' {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func lookupKey(s string) string {
	return normalizeText(s, true)
}

func expandAbbreviations(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		key := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, w)
		if exp, ok := abbreviations[key]; ok {
			words[i] = exp
		}
	}
	return strings.Join(words, " ")
}

func removeStopWords(s string) string {
	words := strings.Fields(s)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if stopWords[strings.Trim(strings.ToLower(w), ".")] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func extractCoreName(s string) string {
	for _, re := range coreSuffixes {
		s = re.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}
