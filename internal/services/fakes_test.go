package services

import (
	"context"
	"errors"
	"sync"

	"github.com/yungbote/winescan-backend/internal/clients/openai"
	"github.com/yungbote/winescan-backend/internal/clients/redisstore"
	"github.com/yungbote/winescan-backend/internal/domain/scan"
)

type fakeAI struct {
	jsonFn       func(system, user, schemaName string) (map[string]any, error)
	textFn       func(system, user string) (string, error)
	jsonImagesFn func(system, user string, images []openai.ImageInput, schemaName string) (map[string]any, error)
}

func (f *fakeAI) GenerateJSON(_ context.Context, system, user, schemaName string, _ map[string]any) (map[string]any, error) {
	if f.jsonFn == nil {
		return nil, errors.New("unexpected GenerateJSON")
	}
	return f.jsonFn(system, user, schemaName)
}

func (f *fakeAI) GenerateText(_ context.Context, system, user string) (string, error) {
	if f.textFn == nil {
		return "", errors.New("unexpected GenerateText")
	}
	return f.textFn(system, user)
}

func (f *fakeAI) GenerateTextWithImages(ctx context.Context, system, user string, _ []openai.ImageInput) (string, error) {
	return f.GenerateText(ctx, system, user)
}

func (f *fakeAI) GenerateJSONWithImages(_ context.Context, system, user string, images []openai.ImageInput, schemaName string, _ map[string]any) (map[string]any, error) {
	if f.jsonImagesFn == nil {
		return nil, errors.New("unexpected GenerateJSONWithImages")
	}
	return f.jsonImagesFn(system, user, images, schemaName)
}

// fakeStore is an in-memory JobStore with switchable failure modes.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]*scan.Job
	puts []scan.Status

	failPut func(job *scan.Job) bool
	failGet bool
	getHook func(id string) (*scan.Job, *redisstore.StorageError)
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[string]*scan.Job{}}
}

func (s *fakeStore) Put(_ context.Context, job *scan.Job) *redisstore.StorageError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut != nil && s.failPut(job) {
		return &redisstore.StorageError{Op: "put", Err: errors.New("store unavailable")}
	}
	s.puts = append(s.puts, job.Status)
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *fakeStore) putStatuses() []scan.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scan.Status(nil), s.puts...)
}

func (s *fakeStore) Get(_ context.Context, id string) (*scan.Job, *redisstore.StorageError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getHook != nil {
		return s.getHook(id)
	}
	if s.failGet {
		return nil, &redisstore.StorageError{Op: "get", Err: errors.New("store unavailable")}
	}
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) snapshot(id string) *scan.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

type fakeExtractor struct {
	wines []scan.Wine
	err   error
}

func (f *fakeExtractor) ExtractWines(context.Context, openai.ImageInput, string, string) ([]scan.Wine, error) {
	return f.wines, f.err
}

type fakeEnricher struct {
	snippets string
	err      error
}

func (f *fakeEnricher) WineSnippets(context.Context, scan.Wine, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.snippets == "" {
		return NoSnippetsAvailable, nil
	}
	return f.snippets, nil
}

type fakeSynth struct {
	rating int
	err    error
}

func (f *fakeSynth) Synthesize(_ context.Context, wine scan.Wine, snippets string, _ string) (scan.Wine, error) {
	if f.err != nil {
		return wine, f.err
	}
	out := wine
	out.Snippets = snippets
	out.Rating = f.rating
	if out.Rating == 0 {
		out.Rating = 90
	}
	out.Narrative = "test narrative"
	return out, nil
}
