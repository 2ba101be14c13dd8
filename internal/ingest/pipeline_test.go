package ingest

import (
	"context"
	"errors"
	"testing"

	"mcpdocs/internal/crawler"
	"mcpdocs/internal/store"
)

// fakeLoader returns a canned crawl result.
type fakeLoader struct {
	result *crawler.Result
	err    error
}

func (f *fakeLoader) Crawl(_ context.Context, _, _ string, _ []string, _ int) (*crawler.Result, error) {
	return f.result, f.err
}

// fakeProvider embeds every text as a fixed-width vector.
type fakeProvider struct {
	err error
}

func (f *fakeProvider) EmbedTexts(_ context.Context, texts []string) ([][]float32, uint64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3, 4}
	}
	return out, uint64(10 * len(texts)), nil
}

func (f *fakeProvider) Dimensions() int { return 4 }
func (f *fakeProvider) Name() string    { return "fake" }

// jobEvent records one UpdateJob call.
type jobEvent struct {
	status string
	errMsg *string
	docs   *int
}

// fakeStore records pipeline interactions.
type fakeStore struct {
	jobEvents       []jobEvent
	insertedRows    []store.EmbeddingRow
	upsertedVersion *string
	markedPopulated bool

	createJobErr error
	insertErr    error
}

func (f *fakeStore) UpsertPackage(_ context.Context, _ string, version *string) (int, error) {
	f.upsertedVersion = version
	return 42, nil
}

func (f *fakeStore) InsertEmbeddingsBatch(_ context.Context, _ int, _ string, rows []store.EmbeddingRow) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.insertedRows = rows
	return nil
}

func (f *fakeStore) CreateJob(_ context.Context, _ int) (int, error) {
	if f.createJobErr != nil {
		return 0, f.createJobErr
	}
	return 7, nil
}

func (f *fakeStore) UpdateJob(_ context.Context, _ int, status string, errMsg *string, docs *int) error {
	f.jobEvents = append(f.jobEvents, jobEvent{status: status, errMsg: errMsg, docs: docs})
	return nil
}

func (f *fakeStore) MarkPopulated(_ context.Context, _ int, _ *string) error {
	f.markedPopulated = true
	return nil
}

func testCfg() store.PackageConfig {
	return store.PackageConfig{ID: 1, Name: "alpha", VersionSpec: "latest"}
}

func countTokensStub(text string) (int, error) {
	return len(text), nil
}

func TestIngestSuccess(t *testing.T) {
	loader := &fakeLoader{result: &crawler.Result{
		Documents: []crawler.Document{
			{Path: "/alpha/", Content: "root"},
			{Path: "/alpha/sub/", Content: "sub"},
		},
		Version: "1.2.3",
	}}
	st := &fakeStore{}
	p := New(loader, &fakeProvider{}, st, countTokensStub)

	result, err := p.Ingest(context.Background(), testCfg(), 100)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if result.DocumentsLoaded != 2 || result.EmbeddingsGenerated != 2 {
		t.Errorf("result counts = %+v", result)
	}
	if result.Version != "1.2.3" {
		t.Errorf("version = %q", result.Version)
	}
	if result.TotalTokens != 20 {
		t.Errorf("provider tokens = %d, want 20", result.TotalTokens)
	}

	// pending is implicit in CreateJob; transitions recorded are
	// running then completed.
	if len(st.jobEvents) != 2 {
		t.Fatalf("job events = %+v", st.jobEvents)
	}
	if st.jobEvents[0].status != store.JobStatusRunning {
		t.Errorf("first transition = %q, want running", st.jobEvents[0].status)
	}
	last := st.jobEvents[1]
	if last.status != store.JobStatusCompleted || last.docs == nil || *last.docs != 2 {
		t.Errorf("final transition = %+v, want completed with 2 docs", last)
	}

	if len(st.insertedRows) != 2 {
		t.Fatalf("inserted %d rows", len(st.insertedRows))
	}
	if st.insertedRows[0].TokenCount != len("root") {
		t.Errorf("token count = %d", st.insertedRows[0].TokenCount)
	}
	if st.upsertedVersion == nil || *st.upsertedVersion != "1.2.3" {
		t.Errorf("upserted version = %v", st.upsertedVersion)
	}
	if !st.markedPopulated {
		t.Error("config was not marked populated")
	}
}

func TestIngestZeroDocuments(t *testing.T) {
	loader := &fakeLoader{result: &crawler.Result{}}
	st := &fakeStore{}
	p := New(loader, &fakeProvider{}, st, countTokensStub)

	_, err := p.Ingest(context.Background(), testCfg(), 100)
	if !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("err = %v, want ErrNoDocuments", err)
	}

	// The job still completes, with zero documents.
	last := st.jobEvents[len(st.jobEvents)-1]
	if last.status != store.JobStatusCompleted {
		t.Errorf("final status = %q, want completed", last.status)
	}
	if last.docs == nil || *last.docs != 0 {
		t.Errorf("final docs = %v, want 0", last.docs)
	}
}

func TestIngestCrawlFailureMarksJobFailed(t *testing.T) {
	loader := &fakeLoader{err: errors.New("host unreachable")}
	st := &fakeStore{}
	p := New(loader, &fakeProvider{}, st, countTokensStub)

	_, err := p.Ingest(context.Background(), testCfg(), 100)
	if err == nil {
		t.Fatal("expected error")
	}

	last := st.jobEvents[len(st.jobEvents)-1]
	if last.status != store.JobStatusFailed {
		t.Errorf("final status = %q, want failed", last.status)
	}
	if last.errMsg == nil || *last.errMsg == "" {
		t.Error("failed job should carry an error message")
	}
}

func TestIngestEmbedFailureMarksJobFailed(t *testing.T) {
	loader := &fakeLoader{result: &crawler.Result{
		Documents: []crawler.Document{{Path: "/a", Content: "x"}},
	}}
	st := &fakeStore{}
	p := New(loader, &fakeProvider{err: errors.New("quota exceeded")}, st, countTokensStub)

	_, err := p.Ingest(context.Background(), testCfg(), 100)
	if err == nil {
		t.Fatal("expected error")
	}
	last := st.jobEvents[len(st.jobEvents)-1]
	if last.status != store.JobStatusFailed {
		t.Errorf("final status = %q, want failed", last.status)
	}
	if len(st.insertedRows) != 0 {
		t.Error("no rows should be inserted when embedding fails")
	}
}

func TestIngestStoreFailureMarksJobFailed(t *testing.T) {
	loader := &fakeLoader{result: &crawler.Result{
		Documents: []crawler.Document{{Path: "/a", Content: "x"}},
	}}
	st := &fakeStore{insertErr: errors.New("constraint violation")}
	p := New(loader, &fakeProvider{}, st, countTokensStub)

	_, err := p.Ingest(context.Background(), testCfg(), 100)
	if err == nil {
		t.Fatal("expected error")
	}
	last := st.jobEvents[len(st.jobEvents)-1]
	if last.status != store.JobStatusFailed {
		t.Errorf("final status = %q, want failed", last.status)
	}
}
