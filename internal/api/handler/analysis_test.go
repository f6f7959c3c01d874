package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/timmy/imgprompt/internal/domain"
)

type fakeArchive struct {
	items     []domain.Analysis
	err       error
	lastLimit int
	lastOff   int
}

func (f *fakeArchive) Get(ctx context.Context, id string) (*domain.Analysis, error) {
	for i := range f.items {
		if f.items[i].ID == id {
			return &f.items[i], nil
		}
	}
	return nil, domain.ErrAnalysisNotFound
}

func (f *fakeArchive) List(ctx context.Context, limit, offset int) ([]domain.Analysis, int64, error) {
	f.lastLimit, f.lastOff = limit, offset
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.items, int64(len(f.items)), nil
}

func newAnalysisRouter(archive ArchiveReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAnalysisHandler(archive)
	r.GET("/api/analyses", h.ListAnalyses)
	r.GET("/api/analyses/:id", h.GetAnalysis)
	return r
}

func TestListAnalyses(t *testing.T) {
	archive := &fakeArchive{items: []domain.Analysis{{ID: "a1", Prompt: "A red bicycle"}}}
	r := newAnalysisRouter(archive)

	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", defaultPageSize, 0},
		{"?limit=5&offset=10", 5, 10},
		{"?limit=1000", maxPageSize, 0},
		{"?limit=-1&offset=-3", defaultPageSize, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses"+tt.query, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if archive.lastLimit != tt.wantLimit || archive.lastOff != tt.wantOffset {
				t.Errorf("paging = %d/%d, want %d/%d", archive.lastLimit, archive.lastOff, tt.wantLimit, tt.wantOffset)
			}
			var resp ListAnalysesResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if !resp.Success || resp.Total != 1 || len(resp.Analyses) != 1 {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestListAnalyses_StoreError(t *testing.T) {
	r := newAnalysisRouter(&fakeArchive{err: errors.New("db down")})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestGetAnalysis(t *testing.T) {
	r := newAnalysisRouter(&fakeArchive{items: []domain.Analysis{{ID: "a1", Prompt: "A red bicycle"}}})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses/a1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp AnalysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Analysis == nil || resp.Analysis.Prompt != "A red bicycle" {
		t.Errorf("resp = %+v", resp)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rec.Code)
	}
}

func TestAnalysisRoutes_Disabled(t *testing.T) {
	r := newAnalysisRouter(nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
