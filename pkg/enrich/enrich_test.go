package enrich

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsdocket/docket/pkg/config"
	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/llm"
	"github.com/newsdocket/docket/pkg/models"
	"github.com/newsdocket/docket/pkg/store"
	"github.com/newsdocket/docket/pkg/worker"
	"github.com/newsdocket/docket/test/util"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Stages: config.DefaultStagesConfig(),
		Pool:   config.DefaultPoolConfig(),
		Batch:  config.DefaultBatchConfig(),
		Search: config.DefaultSearchConfig(),
		Loop:   config.DefaultLoopConfig(),
		Models: config.DefaultModelsConfig(),
	}
	cfg.Batch.PollInterval = time.Millisecond
	return cfg
}

func newTestStage(t *testing.T, st *store.Store, handler http.Handler, cfg *config.Config) *Stage {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := llm.NewClient(&config.LLMProviderConfig{
		Type:    config.LLMProviderTypeOpenAI,
		BaseURL: server.URL,
	}, testLogger())
	pool := worker.NewPool(cfg.Pool, testLogger())
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	return New(st, client, pool, cfg, testLogger())
}

func seedCandidate(t *testing.T, st *store.Store, link string) *models.Article {
	t.Helper()
	a := &models.Article{
		Link:       link,
		Title:      "Agency announces new program",
		Date:       dates.NewDate(2025, 6, 1),
		Tags:       []string{"agency"},
		RawContent: "The agency announced a new grant program today.",
	}
	require.NoError(t, st.Articles.Insert(context.Background(), a))
	return a
}

func enrichmentJSON(t *testing.T) string {
	t.Helper()
	payload, err := json.Marshal(models.ArticleEnrichment{
		CleanMarkdown:          "model markdown, ignored",
		SummaryParagraph:       "A new grant program was announced.",
		KeyTakeaways:           []string{"grant program announced"},
		Priority:               4,
		FollowUpQuestions:      []string{"Who is eligible?"},
		FollowUpQuestionGroups: models.QuestionGroups{Mode: "single"},
	})
	require.NoError(t, err)
	return string(payload)
}

// batchHandler implements the minimal files+batches surface for one batch
// whose every request succeeds with the given chat content.
func batchHandler(t *testing.T, content string, uploaded *[]string) http.Handler {
	mux := http.NewServeMux()
	var customIDs []string
	mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(8<<20))
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 1<<20), 1<<20)
		for scanner.Scan() {
			var line struct {
				CustomID string `json:"custom_id"`
				Body     struct {
					Messages []llm.ChatMessage `json:"messages"`
				} `json:"body"`
			}
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
			customIDs = append(customIDs, line.CustomID)
			if uploaded != nil {
				*uploaded = append(*uploaded, line.Body.Messages[0].Content)
			}
		}
		json.NewEncoder(w).Encode(llm.File{ID: "file-in"})
	})
	mux.HandleFunc("POST /batches", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(llm.Batch{ID: "batch-1", Status: "validating"})
	})
	mux.HandleFunc("GET /batches/batch-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(llm.Batch{ID: "batch-1", Status: "completed", OutputFileID: "file-out",
			RequestCounts: llm.BatchRequestCounts{Total: len(customIDs), Completed: len(customIDs)}})
	})
	mux.HandleFunc("GET /files/file-out/content", func(w http.ResponseWriter, r *http.Request) {
		for _, id := range customIDs {
			line := map[string]any{
				"custom_id": id,
				"response": map[string]any{
					"status_code": 200,
					"body": llm.ChatCompletionResponse{
						ID:      "chat-" + id,
						Choices: []llm.ChatChoice{{Message: llm.ChatMessage{Role: "assistant", Content: content}}},
						Usage:   &llm.ChatUsage{PromptTokens: 9, CompletionTokens: 4},
					},
				},
			}
			require.NoError(t, json.NewEncoder(w).Encode(line))
		}
	})
	return mux
}

func TestRunEnrichesViaBatch(t *testing.T) {
	st, _ := util.SetupTestDatabase(t)
	ctx := context.Background()

	var uploaded []string
	stage := newTestStage(t, st, batchHandler(t, enrichmentJSON(t), &uploaded), testConfig())

	// state.gov links use stored raw content instead of a live fetch.
	a := seedCandidate(t, st, "https://www.state.gov/briefings/today")
	require.NoError(t, stage.Run(ctx))

	got, err := st.Articles.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "The agency announced a new grant program today.", got.CleanMarkdown,
		"canonical markdown wins over the model's clean_markdown")
	assert.Equal(t, "A new grant program was announced.", got.SummaryParagraph)
	assert.Equal(t, []string{"grant program announced"}, got.KeyTakeaways)
	require.NotNil(t, got.Priority)
	assert.Equal(t, 4, *got.Priority)
	assert.Equal(t, []string{"Who is eligible?"}, got.FollowUpQuestions)
	assert.Empty(t, got.Leases, "lease released after write")

	require.Len(t, uploaded, 1)
	assert.Contains(t, uploaded[0], "Title: Agency announces new program")
	assert.Contains(t, uploaded[0], "Source Content (fetched):\nThe agency announced a new grant program today.")

	// Candidate set is now empty.
	remaining, err := st.Articles.EnrichmentCandidates(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	usage, err := st.LMLogs.UsageForDate(ctx, dates.Today())
	require.NoError(t, err)
	require.NotEmpty(t, usage)
	assert.Equal(t, "enrich", usage[0].CalledFrom)
}

func TestRunFallsBackToIndividualCalls(t *testing.T) {
	st, _ := util.SetupTestDatabase(t)
	ctx := context.Background()

	var chatCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(llm.File{ID: "file-in"})
	})
	mux.HandleFunc("POST /batches", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(llm.Batch{ID: "batch-1", Status: "validating"})
	})
	mux.HandleFunc("GET /batches/batch-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(llm.Batch{ID: "batch-1", Status: "in_progress"})
	})
	mux.HandleFunc("POST /batches/batch-1/cancel", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(llm.Batch{ID: "batch-1", Status: "cancelling"})
	})
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, r *http.Request) {
		chatCalls.Add(1)
		json.NewEncoder(w).Encode(llm.ChatCompletionResponse{
			ID:      "chat-1",
			Choices: []llm.ChatChoice{{Message: llm.ChatMessage{Role: "assistant", Content: enrichmentJSON(t)}}},
			Usage:   &llm.ChatUsage{PromptTokens: 9, CompletionTokens: 4},
		})
	})

	cfg := testConfig()
	cfg.Batch.IdleTimeout = 5 * time.Millisecond
	stage := newTestStage(t, st, mux, cfg)

	a := seedCandidate(t, st, "https://www.state.gov/press")
	require.NoError(t, stage.Run(ctx))

	assert.Equal(t, int32(1), chatCalls.Load())
	got, err := st.Articles.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Enriched())
	assert.Empty(t, got.Leases)
}

func TestRunSkipsAlreadyLeasedArticles(t *testing.T) {
	st, _ := util.SetupTestDatabase(t)
	ctx := context.Background()

	stage := newTestStage(t, st, batchHandler(t, enrichmentJSON(t), nil), testConfig())

	a := seedCandidate(t, st, "https://www.state.gov/press")
	held, err := stage.leases.Acquire(ctx, "articles", a.ID, leaseName, "other-worker", time.Hour)
	require.NoError(t, err)
	require.True(t, held)

	require.NoError(t, stage.Run(ctx))

	got, err := st.Articles.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Enriched(), "leased article untouched")
}

func TestCanonicalMarkdownFromLivePage(t *testing.T) {
	paras := make([]string, 6)
	for i := range paras {
		paras[i] = fmt.Sprintf("<p>Paragraph %d of the announcement covering the new grant program, its eligibility requirements, application deadlines, and reporting obligations in considerable detail.</p>", i)
	}
	page := fmt.Sprintf(`<html><head><title>Grant program</title></head><body>
		<article><h1>Grant program launched</h1>%s</article>
		<footer>contact us</footer></body></html>`, strings.Join(paras, "\n"))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	t.Cleanup(server.Close)

	f := newContentFetcher("test-agent")
	markdown, err := f.CanonicalMarkdown(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, markdown, "Paragraph 0 of the announcement")
	assert.NotContains(t, markdown, "<p>")
}

func TestCanonicalMarkdownFailureFallsBackToRawContent(t *testing.T) {
	st, _ := util.SetupTestDatabase(t)
	stage := newTestStage(t, st, http.NewServeMux(), testConfig())

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(dead.Close)

	a := &models.Article{Link: dead.URL, RawContent: "stored raw content"}
	assert.Equal(t, "stored raw content", stage.canonicalMarkdown(context.Background(), a))
}
