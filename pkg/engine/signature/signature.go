// Package signature computes compact, comparable fingerprints of HTTP
// response bodies for near-duplicate detection by the Similarity filter.
// Two distinct algorithms are used depending on body size: a context
// triggered piecewise hash ("fuzzy hash") for longer bodies, and a MinHash
// sketch over whitespace-tokenized content for shorter ones, where a
// piecewise hash has too few trigger points to be stable.
package signature

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// sizeThreshold is the body-length boundary, in bytes, below which a
// MinHash sketch is used instead of a fuzzy hash. Bodies shorter than this
// rarely contain enough rolling-hash trigger points to produce a stable
// piecewise hash.
const sizeThreshold = 256

// minHashPermutations is the number of independent hash permutations used
// to build a MinHash sketch, matching the 256-permutation 16-bit scheme
// this engine's similarity filter was derived from.
const minHashPermutations = 256

// fuzzyBlockSize is the base rolling-hash block size; a second pass also
// produces blocks at twice this size, mirroring ssdeep's two-resolution
// scheme so that comparisons can tolerate small insertions/deletions.
const fuzzyBlockSize = 3

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// Kind identifies which algorithm produced a Signature.
type Kind int

const (
	// Fuzzy is a printable context-triggered piecewise hash string.
	Fuzzy Kind = iota
	// MinHash is a fixed-length vector of 16-bit sketch values.
	MinHash
)

// Signature is the tagged union over the two supported representations.
// Exactly one of Hash/Vector is meaningful, selected by Kind.
type Signature struct {
	Kind   Kind
	Hash   string
	Vector []uint16
}

// New computes a Signature appropriate to the size of body: a fuzzy hash
// for bodies at or above sizeThreshold, a MinHash sketch otherwise.
func New(body []byte) Signature {
	if len(body) >= sizeThreshold {
		return Signature{Kind: Fuzzy, Hash: FuzzyHash(body)}
	}
	return Signature{Kind: MinHash, Vector: MinHashSketch(body)}
}

// FuzzyHash computes a context-triggered piecewise hash string of the form
// "blocksize:hash-at-blocksize:hash-at-2xblocksize", in the spirit of
// ssdeep's rolling-hash scheme: the input is split into blocks wherever a
// rolling hash crosses a trigger boundary, and each block is folded into a
// single printable character.
func FuzzyHash(body []byte) string {
	blockSize := fuzzyBlockSize
	return fmt.Sprintf("%d:%s:%s", blockSize, piecewiseHash(body, blockSize), piecewiseHash(body, blockSize*2))
}

// piecewiseHash splits data into variable-length blocks using a rolling
// hash trigger tuned by blockSize, emitting one base64 alphabet character
// per block boundary crossed.
func piecewiseHash(data []byte, blockSize int) string {
	if len(data) == 0 {
		return ""
	}

	var sb strings.Builder
	var rollingSum uint32
	blockStart := 0

	for i, b := range data {
		rollingSum = rollingSum*33 + uint32(b)

		// A trigger fires when the rolling hash's low bits, scaled by the
		// block size, hit zero — the same "every ~blockSize bytes on
		// average" property a true rolling hash trigger provides.
		if int(rollingSum%uint32(blockSize)) == 0 && i > blockStart {
			h := xxhash.Sum64(data[blockStart : i+1])
			sb.WriteByte(base64Alphabet[h%uint64(len(base64Alphabet))])
			blockStart = i + 1
		}
	}

	if blockStart < len(data) {
		h := xxhash.Sum64(data[blockStart:])
		sb.WriteByte(base64Alphabet[h%uint64(len(base64Alphabet))])
	}

	return sb.String()
}

// CompareFuzzy returns an integer 0-100 estimating the similarity of two
// fuzzy hash strings produced by FuzzyHash. Comparison only makes sense
// between hashes built with equal or power-of-two-related block sizes;
// mismatched block sizes score 0, matching the source algorithm's
// refusal to compare incompatible resolutions.
func CompareFuzzy(a, b string) int {
	aBlock, aHash1, aHash2, ok := splitFuzzy(a)
	if !ok {
		return 0
	}
	bBlock, bHash1, bHash2, ok := splitFuzzy(b)
	if !ok {
		return 0
	}

	switch {
	case aBlock == bBlock:
		return max(similarityScore(aHash1, bHash1), similarityScore(aHash2, bHash2))
	case aBlock*2 == bBlock:
		return similarityScore(aHash2, bHash1)
	case bBlock*2 == aBlock:
		return similarityScore(aHash1, bHash2)
	default:
		return 0
	}
}

func splitFuzzy(s string) (blockSize int, hash1, hash2 string, ok bool) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return 0, "", "", false
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", "", false
	}
	return n, parts[1], parts[2], true
}

// similarityScore turns an edit distance between two block-hash strings
// into a 0-100 similarity percentage.
func similarityScore(a, b string) int {
	if len(a) == 0 && len(b) == 0 {
		return 100
	}
	dist := levenshtein(a, b)
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 100
	}
	score := 100 - (dist*100)/longest
	if score < 0 {
		score = 0
	}
	return score
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}

	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// MinHashSketch builds a fixed-length MinHash signature over the
// whitespace-delimited tokens of body, using minHashPermutations
// independently seeded hash functions and keeping the minimum 16-bit
// hash value observed per permutation.
func MinHashSketch(body []byte) []uint16 {
	tokens := strings.Fields(string(body))

	sketch := make([]uint16, minHashPermutations)
	for i := range sketch {
		sketch[i] = 0xFFFF
	}

	if len(tokens) == 0 {
		return sketch
	}

	for _, tok := range tokens {
		for perm := 0; perm < minHashPermutations; perm++ {
			h := hashWithSeed(tok, uint64(perm))
			v := uint16(h & 0xFFFF)
			if v < sketch[perm] {
				sketch[perm] = v
			}
		}
	}

	return sketch
}

func hashWithSeed(s string, seed uint64) uint64 {
	d := xxhash.New()
	var seedBytes [8]byte
	for i := 0; i < 8; i++ {
		seedBytes[i] = byte(seed >> (8 * i))
	}
	d.Write(seedBytes[:])
	d.Write([]byte(s))
	return d.Sum64()
}

// JaccardSimilarity estimates the Jaccard index of the two token sets that
// produced sketches a and b, as the fraction of permutation slots where
// both sketches agree. Both sketches must have been built with the same
// minHashPermutations count.
func JaccardSimilarity(a, b []uint16) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}

	return float64(matches) / float64(len(a))
}
