package pinecone

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/moveset-labs/clipcore/internal/platform/logger"
	"github.com/moveset-labs/clipcore/internal/store/vector"
)

type vectorStore struct {
	log       *logger.Logger
	pc        Client
	indexName string
	indexHost string
	dimension int
}

func NewVectorStore(log *logger.Logger, pc Client) (vector.Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pc == nil {
		return nil, fmt.Errorf("pinecone client required")
	}

	indexName := strings.TrimSpace(os.Getenv("PINECONE_INDEX_NAME"))
	if indexName == "" {
		return nil, fmt.Errorf("missing PINECONE_INDEX_NAME")
	}

	host := strings.TrimSpace(os.Getenv("PINECONE_INDEX_HOST"))
	if host == "" {
		desc, err := pc.DescribeIndex(context.Background(), indexName)
		if err != nil {
			return nil, fmt.Errorf("pinecone describe_index failed: %w", err)
		}
		host = strings.TrimSpace(desc.Host)
		if host == "" {
			return nil, fmt.Errorf("pinecone describe_index returned empty host")
		}
		log.Warn("PINECONE_INDEX_HOST not set; resolved via describe_index (avoid this in production)",
			"index_name", indexName,
			"index_host", host,
		)
	}

	return &vectorStore{
		log:       log.With("service", "PineconeVectorStore"),
		pc:        pc,
		indexName: indexName,
		indexHost: host,
	}, nil
}

func (s *vectorStore) Upsert(ctx context.Context, vectors []vector.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	points := make([]Vector, 0, len(vectors))
	for _, v := range vectors {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return fmt.Errorf("vector id is required")
		}
		if len(v.Values) == 0 {
			return fmt.Errorf("vector %q has empty values", id)
		}
		points = append(points, Vector{ID: id, Values: v.Values, Metadata: v.Metadata})
	}
	_, err := s.pc.UpsertVectors(ctx, s.indexHost, UpsertRequest{Vectors: points})
	return err
}

func (s *vectorStore) Search(ctx context.Context, query []float32, k int, scoreThreshold float64, filter map[string]any) ([]vector.Hit, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	if k <= 0 {
		k = 10
	}
	resp, err := s.pc.Query(ctx, s.indexHost, QueryRequest{
		Vector:          query,
		TopK:            k,
		Filter:          filter,
		IncludeValues:   false,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}

	out := make([]vector.Hit, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		id := strings.TrimSpace(m.ID)
		if id == "" || m.Score < scoreThreshold {
			continue
		}
		out = append(out, vector.Hit{VectorID: id, Score: m.Score, Payload: m.Metadata})
	}
	return out, nil
}

func (s *vectorStore) Delete(ctx context.Context, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil
	}
	_, err := s.pc.DeleteVectors(ctx, s.indexHost, DeleteRequest{IDs: unique})
	return err
}

func (s *vectorStore) Scroll(ctx context.Context, cursor string, limit int) ([]vector.Hit, string, error) {
	if limit <= 0 {
		limit = 100
	}
	listed, err := s.pc.ListVectorIDs(ctx, s.indexHost, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	if len(listed.Vectors) == 0 {
		return nil, "", nil
	}

	ids := make([]string, 0, len(listed.Vectors))
	for _, v := range listed.Vectors {
		ids = append(ids, v.ID)
	}
	fetched, err := s.pc.FetchVectors(ctx, s.indexHost, ids)
	if err != nil {
		return nil, "", err
	}

	out := make([]vector.Hit, 0, len(ids))
	for _, id := range ids {
		v, ok := fetched.Vectors[id]
		if !ok {
			continue
		}
		out = append(out, vector.Hit{VectorID: id, Score: 0, Payload: v.Metadata})
	}
	return out, listed.Pagination.Next, nil
}

func (s *vectorStore) Info(ctx context.Context) (vector.Info, error) {
	stats, err := s.pc.DescribeIndexStats(ctx, s.indexHost)
	if err != nil {
		return vector.Info{}, err
	}
	return vector.Info{Size: stats.TotalVectorCount, Dimension: stats.Dimension}, nil
}
