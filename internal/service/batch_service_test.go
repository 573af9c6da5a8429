package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maheshrc27/reelqueue/internal/models"
	"github.com/maheshrc27/reelqueue/internal/repository"
	"github.com/maheshrc27/reelqueue/pkg/utils"
)

const testSecretKey = "0123456789abcdef0123456789abcdef"

// fakeGraph is an in-process stand-in for the container endpoints of the Graph API.
type fakeGraph struct {
	mu          sync.Mutex
	rejectUsers map[string]bool
	statuses    []string
	statusCalls map[string]int
	creates     map[string]int
	published   []string
	tokens      []string
}

func newFakeGraph(statuses ...string) *fakeGraph {
	return &fakeGraph{
		rejectUsers: map[string]bool{},
		statuses:    statuses,
		statusCalls: map[string]int{},
		creates:     map[string]int{},
	}
}

func (f *fakeGraph) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{ig}/media", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		ig := r.PathValue("ig")
		f.creates[ig]++
		f.tokens = append(f.tokens, r.FormValue("access_token"))

		if f.rejectUsers[ig] || r.FormValue("media_type") != "REELS" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"Invalid parameter","type":"OAuthException","code":100,"is_transient":false}}`)
			return
		}
		fmt.Fprint(w, `{"id":"42"}`)
	})
	mux.HandleFunc("GET /{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		n := f.statusCalls[id]
		f.statusCalls[id]++

		code := f.statuses[len(f.statuses)-1]
		if n < len(f.statuses) {
			code = f.statuses[n]
		}
		fmt.Fprintf(w, `{"id":%q,"status_code":%q,"status":"%s: detail"}`, id, code, code)
	})
	mux.HandleFunc("POST /{ig}/media_publish", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		creationID := r.FormValue("creation_id")
		f.published = append(f.published, creationID)
		fmt.Fprintf(w, `{"id":"media-%s"}`, creationID)
	})
	return mux
}

type pipeline struct {
	store  *repository.MemoryStore
	batch  BatchService
	cipher *utils.TokenCipher
	clock  *FixedTimeProvider
}

func newPipeline(t *testing.T, graph *fakeGraph, now time.Time) *pipeline {
	t.Helper()
	srv := httptest.NewServer(graph.handler())
	t.Cleanup(srv.Close)

	cipher, err := utils.NewTokenCipher([]byte(testSecretKey))
	require.NoError(t, err)

	logger := zap.NewNop()
	rec := &recordingSleeper{}

	caller := NewRemoteCaller(srv.Client(), 3, time.Second, logger)
	caller.sleep = rec.sleep
	ig := NewInstagramService(srv.URL, caller, logger)
	poller := NewStatusPoller(ig, 5*time.Second, 12, logger)
	poller.sleep = rec.sleep

	store := repository.NewMemoryStore(15 * time.Minute)
	clock := NewFixedTimeProvider(now)
	publisher := NewPublishService(ig, poller, cipher, logger)

	return &pipeline{
		store:  store,
		batch:  NewBatchService(store.Posts(), publisher, clock, "cron-secret", 4, 15*time.Minute, logger),
		cipher: cipher,
		clock:  clock,
	}
}

func (p *pipeline) addDuePost(t *testing.T, externalUserID string, scheduledAt time.Time) int64 {
	t.Helper()
	ctx := context.Background()

	sealed, err := p.cipher.Encrypt("token-" + externalUserID)
	require.NoError(t, err)
	accID, err := p.store.Accounts().Upsert(ctx, &models.SocialAccount{
		ExternalUserID: externalUserID,
		AccessToken:    sealed,
		SessionID:      "sess",
	})
	require.NoError(t, err)

	id, err := p.store.Posts().Create(ctx, &models.ScheduledPost{
		AccountID:   accID,
		VideoURL:    "https://cdn.example.com/" + externalUserID + ".mp4",
		Caption:     "caption for " + externalUserID,
		ScheduledAt: scheduledAt,
	})
	require.NoError(t, err)
	return id
}

func (p *pipeline) post(t *testing.T, id int64) *models.ScheduledPost {
	t.Helper()
	post, err := p.store.Posts().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, post)
	return post
}

var batchNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestBatch_PublishesReadyContainer(t *testing.T) {
	graph := newFakeGraph("FINISHED")
	p := newPipeline(t, graph, batchNow)
	id := p.addDuePost(t, "17841400000000001", batchNow.Add(-time.Minute))

	summary, err := p.batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.BatchSummary{Processed: 1, Succeeded: 1, Failed: 0}, summary)

	post := p.post(t, id)
	assert.Equal(t, models.PostStatusPublished, post.Status)
	assert.Equal(t, "media-42", post.MediaID)
	assert.Nil(t, post.ClaimedAt)

	assert.Equal(t, 1, graph.statusCalls["42"])
	assert.Equal(t, []string{"42"}, graph.published)
	assert.Equal(t, []string{"token-17841400000000001"}, graph.tokens, "decrypted token is sent, never the sealed form")
}

func TestBatch_PollBudgetExhausted(t *testing.T) {
	graph := newFakeGraph("IN_PROGRESS")
	p := newPipeline(t, graph, batchNow)
	id := p.addDuePost(t, "17841400000000001", batchNow.Add(-time.Minute))

	summary, err := p.batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.BatchSummary{Processed: 1, Succeeded: 0, Failed: 1}, summary)

	post := p.post(t, id)
	assert.Equal(t, models.PostStatusFailed, post.Status)
	assert.True(t, strings.HasPrefix(post.ErrorMessage, ReasonPublishTimeout), post.ErrorMessage)
	assert.Equal(t, 12, graph.statusCalls["42"])
	assert.Empty(t, graph.published)
}

func TestBatch_OneFailureDoesNotBlockOthers(t *testing.T) {
	graph := newFakeGraph("IN_PROGRESS", "FINISHED")
	graph.rejectUsers["17841400000000001"] = true
	p := newPipeline(t, graph, batchNow)
	bad := p.addDuePost(t, "17841400000000001", batchNow.Add(-2*time.Minute))
	good := p.addDuePost(t, "17841400000000002", batchNow.Add(-time.Minute))

	summary, err := p.batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.BatchSummary{Processed: 2, Succeeded: 1, Failed: 1}, summary)

	badPost := p.post(t, bad)
	assert.Equal(t, models.PostStatusFailed, badPost.Status)
	assert.True(t, strings.HasPrefix(badPost.ErrorMessage, ReasonRemoteNonTransientError), badPost.ErrorMessage)
	assert.Equal(t, 1, graph.creates["17841400000000001"], "non-transient create is not retried")

	goodPost := p.post(t, good)
	assert.Equal(t, models.PostStatusPublished, goodPost.Status)
	assert.Equal(t, "media-42", goodPost.MediaID)
}

func TestBatch_SecondRunIsNoop(t *testing.T) {
	graph := newFakeGraph("FINISHED")
	p := newPipeline(t, graph, batchNow)
	p.addDuePost(t, "17841400000000001", batchNow.Add(-time.Minute))
	p.addDuePost(t, "17841400000000002", batchNow.Add(-time.Hour))

	first, err := p.batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Processed)

	p.clock.AddTime(time.Minute)
	second, err := p.batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.BatchSummary{}, second)
	assert.Len(t, graph.published, 2)
}

func TestBatch_FuturePostsAreLeftAlone(t *testing.T) {
	graph := newFakeGraph("FINISHED")
	p := newPipeline(t, graph, batchNow)
	id := p.addDuePost(t, "17841400000000001", batchNow.Add(time.Second))

	summary, err := p.batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.BatchSummary{}, summary)
	assert.Equal(t, models.PostStatusPending, p.post(t, id).Status)
}

func TestBatch_UnreadableTokenFailsItem(t *testing.T) {
	graph := newFakeGraph("FINISHED")
	p := newPipeline(t, graph, batchNow)
	ctx := context.Background()

	accID, err := p.store.Accounts().Upsert(ctx, &models.SocialAccount{ExternalUserID: "1", AccessToken: "not-sealed"})
	require.NoError(t, err)
	id, err := p.store.Posts().Create(ctx, &models.ScheduledPost{AccountID: accID, VideoURL: "https://x/v.mp4", ScheduledAt: batchNow})
	require.NoError(t, err)

	summary, err := p.batch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.True(t, strings.HasPrefix(p.post(t, id).ErrorMessage, ReasonCredentialError))
	assert.Empty(t, graph.creates)
}

func TestBatch_Trigger(t *testing.T) {
	tests := []struct {
		name          string
		authorization string
		wantErr       error
	}{
		{"valid bearer", "Bearer cron-secret", nil},
		{"missing header", "", ErrUnauthorizedTrigger},
		{"wrong secret", "Bearer nope", ErrUnauthorizedTrigger},
		{"no scheme", "cron-secret", ErrUnauthorizedTrigger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := newFakeGraph("FINISHED")
			p := newPipeline(t, graph, batchNow)
			id := p.addDuePost(t, "17841400000000001", batchNow.Add(-time.Minute))

			summary, err := p.batch.Trigger(context.Background(), tt.authorization)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, models.BatchSummary{}, summary)
				assert.Equal(t, models.PostStatusPending, p.post(t, id).Status)
				assert.Nil(t, p.post(t, id).ClaimedAt, "rejected trigger must not touch the store")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, summary.Succeeded)
		})
	}
}

func TestBatch_EmptySecretRejectsEverything(t *testing.T) {
	posts := &mockPostRepository{}
	batch := NewBatchService(posts, nil, RealTimeProvider{}, "", 1, time.Minute, zap.NewNop())

	_, err := batch.Trigger(context.Background(), "Bearer ")
	assert.ErrorIs(t, err, ErrUnauthorizedTrigger)
	posts.AssertNotCalled(t, "FetchDue", mock.Anything, mock.Anything)
}

type mockPostRepository struct {
	mock.Mock
	repository.PostRepository
}

func (m *mockPostRepository) FetchDue(ctx context.Context, now time.Time) ([]*models.DuePost, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DuePost), args.Error(1)
}

func (m *mockPostRepository) UpdateStatus(ctx context.Context, postID int64, status, errorMessage, mediaID string) error {
	args := m.Called(ctx, postID, status, errorMessage, mediaID)
	return args.Error(0)
}

type stubPublisher struct {
	results map[int64]models.PublishResult
}

func (s stubPublisher) Publish(_ context.Context, due *models.DuePost) models.PublishResult {
	return s.results[due.Post.ID]
}

func TestBatch_PersistenceErrors(t *testing.T) {
	due := []*models.DuePost{
		{Post: models.ScheduledPost{ID: 1}},
		{Post: models.ScheduledPost{ID: 2}},
	}
	publisher := stubPublisher{results: map[int64]models.PublishResult{
		1: models.Published("m1"),
		2: models.Failed(ReasonPublishTimeout, ErrPublishTimeout),
	}}

	t.Run("fetch failure aborts", func(t *testing.T) {
		posts := &mockPostRepository{}
		posts.On("FetchDue", mock.Anything, batchNow).Return(nil, errors.New("db down"))

		batch := NewBatchService(posts, publisher, NewFixedTimeProvider(batchNow), "s", 1, time.Minute, zap.NewNop())
		_, err := batch.Run(context.Background())
		assert.ErrorContains(t, err, "db down")
	})

	t.Run("status conflict is skipped", func(t *testing.T) {
		posts := &mockPostRepository{}
		posts.On("FetchDue", mock.Anything, batchNow).Return(due, nil)
		posts.On("UpdateStatus", mock.Anything, int64(1), models.PostStatusPublished, "", "m1").
			Return(fmt.Errorf("update: %w", repository.ErrStatusConflict))
		posts.On("UpdateStatus", mock.Anything, int64(2), models.PostStatusFailed, mock.Anything, "").Return(nil)

		batch := NewBatchService(posts, publisher, NewFixedTimeProvider(batchNow), "s", 1, time.Minute, zap.NewNop())
		summary, err := batch.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, models.BatchSummary{Processed: 1, Failed: 1}, summary)
		posts.AssertExpectations(t)
	})

	t.Run("write failure aborts", func(t *testing.T) {
		posts := &mockPostRepository{}
		posts.On("FetchDue", mock.Anything, batchNow).Return(due[:1], nil)
		posts.On("UpdateStatus", mock.Anything, int64(1), models.PostStatusPublished, "", "m1").
			Return(errors.New("connection reset"))

		batch := NewBatchService(posts, publisher, NewFixedTimeProvider(batchNow), "s", 1, time.Minute, zap.NewNop())
		_, err := batch.Run(context.Background())
		assert.ErrorContains(t, err, "persist status of post 1")
	})
}

func TestBatch_CancelledItemsStayPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	posts := &mockPostRepository{}
	posts.On("FetchDue", mock.Anything, batchNow).Return([]*models.DuePost{{Post: models.ScheduledPost{ID: 9}}}, nil)

	publisher := cancellingPublisher{cancel: cancel}
	batch := NewBatchService(posts, publisher, NewFixedTimeProvider(batchNow), "s", 1, time.Minute, zap.NewNop())

	summary, err := batch.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.BatchSummary{}, summary)
	posts.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

type cancellingPublisher struct {
	cancel context.CancelFunc
}

func (c cancellingPublisher) Publish(ctx context.Context, _ *models.DuePost) models.PublishResult {
	c.cancel()
	<-ctx.Done()
	return models.Failed(failureReason(ctx.Err()), ctx.Err())
}

func TestBatch_RunIsBoundedByClaimLease(t *testing.T) {
	posts := &mockPostRepository{}
	posts.On("FetchDue", mock.Anything, batchNow).Return([]*models.DuePost{{Post: models.ScheduledPost{ID: 4}}}, nil)

	lease := 50 * time.Millisecond
	batch := NewBatchService(posts, blockingPublisher{}, NewFixedTimeProvider(batchNow), "s", 1, lease, zap.NewNop())

	start := time.Now()
	summary, err := batch.Trigger(context.Background(), "Bearer s")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, models.BatchSummary{}, summary)
	posts.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// blockingPublisher never finishes on its own.
type blockingPublisher struct{}

func (blockingPublisher) Publish(ctx context.Context, _ *models.DuePost) models.PublishResult {
	<-ctx.Done()
	return models.Failed(failureReason(ctx.Err()), ctx.Err())
}
