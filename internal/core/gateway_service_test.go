package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/db"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/identity"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/llm"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/metrics"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/models"
)

type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []llm.Completion
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Completion) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.reply, f.err
}

type gatewayFixture struct {
	svc       GatewayService
	repo      *db.MemoryAccountRepository
	completer *fakeCompleter
	metrics   *metrics.Metrics
}

func newGatewayFixture(t *testing.T, metering bool) *gatewayFixture {
	t.Helper()
	repo := db.NewMemoryAccountRepository()
	m := metrics.New(prometheus.NewRegistry())
	ledger := NewCreditLedger(repo, nil, m, zap.NewNop(), LedgerConfig{
		FreeModel:    "gpt-3.5-turbo",
		PremiumModel: "gpt-4",
	})
	completer := &fakeCompleter{reply: "bonjour"}
	svc := NewGatewayService(ledger, completer, m, zap.NewNop(), GatewayConfig{
		FreeModel:       "gpt-3.5-turbo",
		PremiumModel:    "gpt-4",
		AllowedModels:   []string{"gpt-4o-mini"},
		MeteringEnabled: metering,
	})
	return &gatewayFixture{svc: svc, repo: repo, completer: completer, metrics: m}
}

func (f *gatewayFixture) credit(t *testing.T, uid string) int64 {
	t.Helper()
	acct, err := f.repo.GetByID(context.Background(), uid)
	require.NoError(t, err)
	return acct.Credit
}

var alice = &identity.Identity{UserID: "alice", Email: "alice@example.com"}

func TestCompleteText_Translate(t *testing.T) {
	f := newGatewayFixture(t, true)
	seed(t, f.repo, models.Account{ID: "alice", Tier: "free", Credit: 2})

	out, err := f.svc.CompleteText(context.Background(), alice, TextInput{
		Operation: OpTranslate,
		Text:      "hello",
		Language:  "French",
		Glossary:  []models.GlossaryEntry{{Term: "hello", Replacement: "salut"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "bonjour", out)

	require.Len(t, f.completer.calls, 1)
	call := f.completer.calls[0]
	assert.Equal(t, "gpt-4", call.Model)
	assert.Contains(t, call.User, "French")
	assert.Contains(t, call.User, `"hello" -> "salut"`)
	assert.NotEmpty(t, call.System)
	assert.Equal(t, int64(1), f.credit(t, "alice"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CompletionsTotal.WithLabelValues("translate", "gpt-4", "ok")))
}

func TestCompleteText_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   TextInput
	}{
		{"empty text", TextInput{Operation: OpExplain, Text: "  ", Language: "en"}},
		{"empty language", TextInput{Operation: OpSummarize, Text: "x"}},
		{"model not allowed", TextInput{Operation: OpTranslate, Text: "x", Language: "en", Model: "gpt-5-secret"}},
		{"unknown operation", TextInput{Operation: "rewrite", Text: "x", Language: "en"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGatewayFixture(t, true)
			seed(t, f.repo, models.Account{ID: "alice", Credit: 5})

			_, err := f.svc.CompleteText(context.Background(), alice, tt.in)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Empty(t, f.completer.calls)
			assert.Equal(t, int64(5), f.credit(t, "alice"), "validation failures must not spend credit")
		})
	}
}

func TestCompleteText_ModelResolution(t *testing.T) {
	t.Run("anonymous gets free model", func(t *testing.T) {
		f := newGatewayFixture(t, true)
		_, err := f.svc.CompleteText(context.Background(), nil, TextInput{Operation: OpEnhance, Text: "x", Language: "en", Model: "gpt-4"})
		require.NoError(t, err)
		assert.Equal(t, "gpt-3.5-turbo", f.completer.calls[0].Model)
	})

	t.Run("explicit free model spends nothing", func(t *testing.T) {
		f := newGatewayFixture(t, true)
		seed(t, f.repo, models.Account{ID: "alice", Credit: 5})
		_, err := f.svc.CompleteText(context.Background(), alice, TextInput{Operation: OpEnhance, Text: "x", Language: "en", Model: "gpt-3.5-turbo"})
		require.NoError(t, err)
		assert.Equal(t, "gpt-3.5-turbo", f.completer.calls[0].Model)
		assert.Equal(t, int64(5), f.credit(t, "alice"))
	})

	t.Run("metering off uses caller model", func(t *testing.T) {
		f := newGatewayFixture(t, false)
		seed(t, f.repo, models.Account{ID: "alice", Credit: 5})
		_, err := f.svc.CompleteText(context.Background(), alice, TextInput{Operation: OpEnhance, Text: "x", Language: "en", Model: "gpt-4o-mini"})
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", f.completer.calls[0].Model)
		assert.Equal(t, int64(5), f.credit(t, "alice"))
	})

	t.Run("metering off derives model from tier", func(t *testing.T) {
		f := newGatewayFixture(t, false)
		seed(t, f.repo, models.Account{ID: "alice", Tier: "team", Credit: 0})
		_, err := f.svc.CompleteText(context.Background(), alice, TextInput{Operation: OpEnhance, Text: "x", Language: "en"})
		require.NoError(t, err)
		assert.Equal(t, "gpt-4", f.completer.calls[0].Model)
	})
}

func TestCompleteText_UpstreamFailureKeepsSpentCredit(t *testing.T) {
	f := newGatewayFixture(t, true)
	seed(t, f.repo, models.Account{ID: "alice", Credit: 1})
	f.completer.err = errors.New("connection reset")

	_, err := f.svc.CompleteText(context.Background(), alice, TextInput{Operation: OpTranslate, Text: "x", Language: "de"})
	assert.ErrorIs(t, err, llm.ErrUpstream)
	assert.Equal(t, int64(0), f.credit(t, "alice"))
}

func TestTranslateBatch(t *testing.T) {
	f := newGatewayFixture(t, true)
	f.completer.reply = "Here you go:\n```json\n{\"ids\":[7,12],\"outputs\":[\"Bonjour\",\"Monde\"]}\n```"

	out, err := f.svc.TranslateBatch(context.Background(), nil, BatchInput{
		IDs:      []int64{7, 12},
		Texts:    []string{"Hello", "World"},
		Language: "French",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bonjour", "Monde"}, out)
	require.Len(t, f.completer.calls, 1)
	assert.True(t, strings.Contains(f.completer.calls[0].User, "exactly 2"))
}

func TestTranslateBatch_ShapeMatchesInput(t *testing.T) {
	for _, size := range []int{1, 3, 8} {
		f := newGatewayFixture(t, true)
		ids := make([]int64, size)
		texts := make([]string, size)
		outputs := make([]string, size)
		for i := range texts {
			ids[i] = int64(i * 10)
			texts[i] = "t" + string(rune('a'+i))
			outputs[i] = "o" + string(rune('a'+i))
		}
		f.completer.reply = `{"translations":["` + strings.Join(outputs, `","`) + `"]}`

		out, err := f.svc.TranslateBatch(context.Background(), nil, BatchInput{IDs: ids, Texts: texts, Language: "es"})
		require.NoError(t, err)
		assert.Equal(t, outputs, out)
	}
}

func TestTranslateBatch_LengthMismatchInRequest(t *testing.T) {
	f := newGatewayFixture(t, true)
	seed(t, f.repo, models.Account{ID: "alice", Credit: 3})

	_, err := f.svc.TranslateBatch(context.Background(), alice, BatchInput{IDs: []int64{1, 2}, Texts: []string{"x"}, Language: "fr"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, f.completer.calls)
	assert.Equal(t, int64(3), f.credit(t, "alice"))
}

func TestTranslateBatch_Empty(t *testing.T) {
	f := newGatewayFixture(t, true)
	seed(t, f.repo, models.Account{ID: "alice", Credit: 3})

	out, err := f.svc.TranslateBatch(context.Background(), alice, BatchInput{IDs: []int64{}, Texts: []string{}, Language: "fr"})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NotNil(t, out)
	assert.Empty(t, f.completer.calls)
	assert.Equal(t, int64(3), f.credit(t, "alice"))
}

func TestTranslateBatch_RejectsShortReply(t *testing.T) {
	f := newGatewayFixture(t, true)
	f.completer.reply = `{"outputs":["only one"]}`

	out, err := f.svc.TranslateBatch(context.Background(), nil, BatchInput{IDs: []int64{1, 2}, Texts: []string{"a", "b"}, Language: "fr"})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, llm.ErrLengthMismatch)
	assert.ErrorIs(t, err, llm.ErrUpstream)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BatchParseFailures.WithLabelValues("length")))
}

func TestTranslateBatch_MalformedReply(t *testing.T) {
	f := newGatewayFixture(t, true)
	f.completer.reply = "I cannot help with that."

	_, err := f.svc.TranslateBatch(context.Background(), nil, BatchInput{IDs: []int64{1}, Texts: []string{"a"}, Language: "fr"})
	assert.ErrorIs(t, err, llm.ErrMalformedReply)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BatchParseFailures.WithLabelValues("malformed")))
}

type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (s *scriptedCompleter) Complete(context.Context, llm.Completion) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.replies[s.calls%len(s.replies)]
	s.calls++
	return out, nil
}

func TestTranslateBatch_CachedRetryAfterBadReplyCallsUpstream(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	upstream := &scriptedCompleter{replies: []string{`{"outputs":["only one"]}`, `{"outputs":["Bonjour","Monde"]}`}}
	ledger := NewCreditLedger(db.NewMemoryAccountRepository(), nil, nil, zap.NewNop(), LedgerConfig{
		FreeModel:    "gpt-3.5-turbo",
		PremiumModel: "gpt-4",
	})
	svc := NewGatewayService(ledger, llm.NewCachedCompleter(upstream, rdb, time.Hour, nil), nil, zap.NewNop(), GatewayConfig{
		FreeModel:       "gpt-3.5-turbo",
		PremiumModel:    "gpt-4",
		MeteringEnabled: true,
	})
	in := BatchInput{IDs: []int64{1, 2}, Texts: []string{"Hello", "World"}, Language: "French"}

	_, err := svc.TranslateBatch(context.Background(), nil, in)
	require.ErrorIs(t, err, llm.ErrLengthMismatch)

	out, err := svc.TranslateBatch(context.Background(), nil, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bonjour", "Monde"}, out)
	assert.Equal(t, 2, upstream.calls)

	// The accepted reply is now served from the cache.
	out, err = svc.TranslateBatch(context.Background(), nil, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bonjour", "Monde"}, out)
	assert.Equal(t, 2, upstream.calls)
}
