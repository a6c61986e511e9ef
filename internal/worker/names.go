package worker

import (
	"math/rand/v2"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const systemWordList = "/usr/share/dict/words"

// Registry hands out shared-memory channel names and tracks which ones are
// held by live workers. Uniqueness among concurrently live workers is
// guaranteed by the in-use set rather than by collision improbability.
type Registry struct {
	mu    sync.Mutex
	inUse map[string]struct{}
	words []string
}

// NewRegistry builds a registry backed by the system word list when
// available. Without a word list, names fall back to short uuid suffixes.
func NewRegistry() *Registry {
	return &Registry{
		inUse: make(map[string]struct{}),
		words: loadWords(systemWordList),
	}
}

// Acquire returns a fresh channel name of the form "/<word>", retrying on
// collision with names currently in use.
func (r *Registry) Acquire() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for attempt := 0; attempt < 32; attempt++ {
		name := "/" + r.candidate()
		if _, taken := r.inUse[name]; taken {
			continue
		}
		r.inUse[name] = struct{}{}
		return name
	}
	// Exhausting 32 draws means the dictionary is tiny or absent; a uuid
	// cannot collide with a held name in practice.
	name := "/" + uuid.NewString()[:13]
	r.inUse[name] = struct{}{}
	return name
}

// Release frees a channel name for reuse. Releasing a name that is not
// held is a no-op.
func (r *Registry) Release(name string) {
	r.mu.Lock()
	delete(r.inUse, name)
	r.mu.Unlock()
}

// Held reports how many channel names are currently in use.
func (r *Registry) Held() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inUse)
}

func (r *Registry) candidate() string {
	if len(r.words) == 0 {
		return uuid.NewString()[:8]
	}
	return r.words[rand.IntN(len(r.words))]
}

// RandomWord returns one alphanumeric word for naming runs. It shares the
// registry's word list but does not reserve anything.
func (r *Registry) RandomWord() string {
	w := r.candidate()
	return strings.ToLower(w)
}

func loadWords(path string) []string {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	lines := strings.Split(string(b), "\n")
	words := make([]string, 0, len(lines))
	for _, w := range lines {
		if w != "" && isAlnum(w) {
			words = append(words, w)
		}
	}
	return words
}

func isAlnum(s string) bool {
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
