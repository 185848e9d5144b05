// Package memory stores long-lived user memories and the rolling session
// summary, and recalls memories with a hashed bag-of-tokens embedding.
package memory

import (
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Dimensions is the embedding width.
const Dimensions = 256

var tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields("a an the and or is are was were to of in for on with at by from it this that these those be been being as if but not no you your we our they their he she his her") {
		stopWords[w] = struct{}{}
	}
}

// Tokenize lower-cases text, splits on non-alphanumerics and drops
// single-character tokens and stop words.
func Tokenize(text string) []string {
	raw := tokenSplit.Split(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if len(tok) <= 1 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Embed hashes the tokens of content and tags into a unit vector. Text
// without tokens yields the zero vector.
func Embed(content string, tags []string) []float64 {
	vec := make([]float64, Dimensions)
	joined := content + " " + strings.Join(tags, " ")
	for _, tok := range Tokenize(joined) {
		vec[xxhash.Sum64String(tok)%Dimensions] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// cosine is the clamped dot product of two unit vectors.
func cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	return math.Max(0, dot)
}

func termFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

// score ranks an entry for a query: log-scaled term frequency in the content,
// double weight for tags, plus three times the embedding cosine.
func score(e Entry, terms []string, queryVec []float64) float64 {
	if len(terms) == 0 {
		return 0
	}
	contentTF := termFrequencies(Tokenize(e.Content))
	tagTF := termFrequencies(Tokenize(strings.Join(e.Tags, " ")))
	var s float64
	for _, term := range terms {
		s += math.Log1p(float64(contentTF[term]))
		s += 2 * math.Log1p(float64(tagTF[term]))
	}
	vec := e.Embedding
	if len(vec) == 0 {
		vec = Embed(e.Content, e.Tags)
	}
	return s + 3*cosine(queryVec, vec)
}
