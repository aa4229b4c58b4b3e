package questionbank

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Question is one duel question. Immutable once handed to a session; the
// correct index never travels to clients.
type Question struct {
	ID        string
	Prompt    string
	Code      string
	Options   []string
	Correct   int
	TimeLimit time.Duration
}

// Provider supplies the fixed question sequence for a new duel. Both players
// of a session always receive the exact same sequence in the same order.
type Provider interface {
	QuestionsForDuel(ctx context.Context, mode string, count int) ([]Question, error)
}

// StaticBank serves questions from an in-memory pool, shuffled per duel.
// It backs development and test setups where no Postgres store is wired.
type StaticBank struct {
	mu   sync.Mutex
	rng  *rand.Rand
	pool []Question
}

// NewStaticBank creates a bank over the given pool. An empty pool falls back
// to the built-in HTML question set.
func NewStaticBank(pool []Question) *StaticBank {
	if len(pool) == 0 {
		pool = defaultPool
	}
	return &StaticBank{
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		pool: pool,
	}
}

// QuestionsForDuel returns up to count questions in a fresh shuffled order.
func (b *StaticBank) QuestionsForDuel(_ context.Context, _ string, count int) ([]Question, error) {
	if count <= 0 {
		return nil, fmt.Errorf("question count must be positive, got %d", count)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.rng.Perm(len(b.pool))
	if count > len(idx) {
		count = len(idx)
	}

	out := make([]Question, 0, count)
	for _, i := range idx[:count] {
		q := b.pool[i]
		q.Options = append([]string(nil), q.Options...)
		out = append(out, q)
	}
	return out, nil
}

var defaultPool = []Question{
	{
		ID:        "html-paragraph",
		Prompt:    "Which tag is used to create a paragraph in HTML?",
		Options:   []string{"<p>", "<paragraph>", "<text>", "<para>"},
		Correct:   0,
		TimeLimit: 10 * time.Second,
	},
	{
		ID:        "html-link-href",
		Prompt:    "Which attribute defines the URL of a link?",
		Options:   []string{"src", "href", "url", "link"},
		Correct:   1,
		TimeLimit: 10 * time.Second,
	},
	{
		ID:        "html-form-input",
		Prompt:    "How do you create a text field inside a form?",
		Code:      "<form>\n  <!-- which option? -->\n</form>",
		Options:   []string{"<input type=\"text\">", "<text>", "<textfield>", "<input text>"},
		Correct:   0,
		TimeLimit: 10 * time.Second,
	},
	{
		ID:        "html-list-unordered",
		Prompt:    "Which tag starts an unordered list?",
		Options:   []string{"<ol>", "<list>", "<ul>", "<li>"},
		Correct:   2,
		TimeLimit: 10 * time.Second,
	},
	{
		ID:        "html-image-src",
		Prompt:    "Which tag embeds an image in a page?",
		Options:   []string{"<image>", "<img>", "<picture src>", "<media>"},
		Correct:   1,
		TimeLimit: 10 * time.Second,
	},
	{
		ID:        "html-heading-largest",
		Prompt:    "Which heading tag renders the largest text by default?",
		Options:   []string{"<h6>", "<head>", "<h1>", "<header>"},
		Correct:   2,
		TimeLimit: 10 * time.Second,
	},
	{
		ID:        "html-break",
		Prompt:    "Which tag inserts a single line break?",
		Options:   []string{"<break>", "<lb>", "<newline>", "<br>"},
		Correct:   3,
		TimeLimit: 10 * time.Second,
	},
}
