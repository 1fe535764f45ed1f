package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
)

const (
	employeeIDPrefix        = "EMP"
	employeeIDWidth         = 5
	defaultLoginMaxAttempts = 1000
)

// ErrLoginNamespaceExhausted is returned when no free login handle was found within the attempt budget.
var ErrLoginNamespaceExhausted = errors.New("login handle namespace exhausted")

// ErrEmptyLoginCandidate is returned when the names yield no usable handle.
var ErrEmptyLoginCandidate = errors.New("login handle requires a first and last name")

// LoginTakenFunc reports whether a login handle is already in use.
type LoginTakenFunc func(ctx context.Context, login string) (bool, error)

// IdentifierGenerator produces employee identifiers and login handles.
type IdentifierGenerator struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	maxAttempts int
	onCollision func()
}

// NewIdentifierGenerator builds a generator. A nil source seeds from the clock.
func NewIdentifierGenerator(src rand.Source, maxAttempts int) *IdentifierGenerator {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultLoginMaxAttempts
	}
	return &IdentifierGenerator{rnd: rand.New(src), maxAttempts: maxAttempts}
}

// OnCollision registers a hook invoked each time a candidate handle is taken.
func (g *IdentifierGenerator) OnCollision(fn func()) {
	g.onCollision = fn
}

// NextEmployeeID returns the identifier following the highest parseable one in existing.
// Callers must serialize this with the insert that consumes the identifier.
func NextEmployeeID(existing []string) string {
	highest := 0
	for _, id := range existing {
		if !strings.HasPrefix(id, employeeIDPrefix) {
			continue
		}
		digits := id[len(employeeIDPrefix):]
		if !isASCIIDigits(digits) {
			continue
		}
		n, err := strconv.Atoi(digits)
		if err != nil || n == math.MaxInt {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%0*d", employeeIDPrefix, employeeIDWidth, highest+1)
}

func isASCIIDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// LoginCandidate derives the base handle: first rune of first plus last, lowercased, whitespace removed.
func LoginCandidate(first, last string) string {
	first = stripSpace(first)
	last = stripSpace(last)
	if first == "" || last == "" {
		return ""
	}
	initial := []rune(first)[0]
	return strings.ToLower(string(initial) + last)
}

// NextLoginHandle returns the base candidate when free, otherwise the candidate with a
// random three digit suffix, giving up after the configured number of attempts.
func (g *IdentifierGenerator) NextLoginHandle(ctx context.Context, first, last string, taken LoginTakenFunc) (string, error) {
	base := LoginCandidate(first, last)
	if base == "" {
		return "", ErrEmptyLoginCandidate
	}
	candidate := base
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		used, err := taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
		if g.onCollision != nil {
			g.onCollision()
		}
		candidate = base + strconv.Itoa(g.suffix())
	}
	return "", ErrLoginNamespaceExhausted
}

func (g *IdentifierGenerator) suffix() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return 100 + g.rnd.Intn(900)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
