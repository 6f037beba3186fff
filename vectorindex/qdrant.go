package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"yashubustudio/termalign/alignment"
)

const (
	qdrantDefaultTimeout = 10 * time.Second
	qdrantMaxRetries     = 3
	qdrantBackoffBase    = 100 * time.Millisecond
)

// Qdrant talks to a Qdrant collection over its REST API. Every point carries
// template_id and clause_id in its payload; point ids are derived from both.
type Qdrant struct {
	client      *http.Client
	baseURL     string
	collection  string
	dimension   int
	apiKey      string
	backoffBase time.Duration
}

type qdrantSearchResult struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// NewQdrant opens the collection, creating it only when Qdrant reports it
// missing.
func NewQdrant(ctx context.Context, cfg alignment.VectorIndexConfig) (*Qdrant, error) {
	base := strings.TrimRight(cfg.DSN, "/")
	if base == "" {
		return nil, errors.New("qdrant: dsn is required")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("qdrant: dimension must be greater than zero")
	}
	collection := cfg.Collection
	if collection == "" {
		collection = defaultTable
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = qdrantDefaultTimeout
	}
	store := &Qdrant{
		client:      &http.Client{Timeout: timeout},
		baseURL:     base,
		collection:  collection,
		dimension:   cfg.Dimension,
		apiKey:      cfg.APIKey,
		backoffBase: qdrantBackoffBase,
	}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.dimension,
			"distance": "Cosine",
		},
	}
	path := fmt.Sprintf("/collections/%s", q.collection)
	err := q.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err == nil {
		return nil
	}
	var statusErr *qdrantStatusError
	if !errors.As(err, &statusErr) || statusErr.status != http.StatusNotFound {
		return fmt.Errorf("qdrant: inspect collection: %w", err)
	}
	err = q.doRequest(ctx, http.MethodPut, path, body, nil)
	if errors.As(err, &statusErr) && statusErr.status == http.StatusConflict {
		// created concurrently by another process
		return nil
	}
	return err
}

func pointID(templateID, clauseID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(templateID+"|"+clauseID)).String()
}

func templateFilter(templateID string) map[string]any {
	return map[string]any{
		"must": []any{
			map[string]any{
				"key":   "template_id",
				"match": map[string]any{"value": templateID},
			},
		},
	}
}

// UpsertClauses writes the vectors of one template.
func (q *Qdrant) UpsertClauses(ctx context.Context, templateID string, vectors []alignment.ClauseVector) error {
	if len(vectors) == 0 {
		return nil
	}
	points := make([]any, 0, len(vectors))
	for _, v := range vectors {
		if len(v.Vector) != q.dimension {
			return fmt.Errorf("qdrant: clause %q: %w", v.ClauseID, ErrDimensionMismatch)
		}
		points = append(points, map[string]any{
			"id":     pointID(templateID, v.ClauseID),
			"vector": v.Vector,
			"payload": map[string]any{
				"template_id": templateID,
				"clause_id":   v.ClauseID,
				"section_id":  v.SectionID,
				"title":       v.Title,
				"category":    string(v.Category),
				"text":        v.Text,
			},
		})
	}
	body := map[string]any{"points": points}
	return q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", q.collection), body, nil)
}

// Search queries the collection filtered to one template.
func (q *Qdrant) Search(ctx context.Context, templateID string, query []float32, minScore float64, limit int) ([]alignment.ScoredClause, error) {
	if len(query) != q.dimension {
		return nil, fmt.Errorf("qdrant: query: %w", ErrDimensionMismatch)
	}
	if limit <= 0 {
		return nil, nil
	}
	request := map[string]any{
		"vector":          query,
		"limit":           limit,
		"with_payload":    true,
		"score_threshold": minScore,
		"filter":          templateFilter(templateID),
	}
	var response struct {
		Result []qdrantSearchResult `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", q.collection)
	if err := q.doRequest(ctx, http.MethodPost, path, request, &response); err != nil {
		return nil, err
	}
	hits := make([]alignment.ScoredClause, 0, len(response.Result))
	for _, res := range response.Result {
		if res.Score < minScore {
			continue
		}
		id, _ := res.Payload["clause_id"].(string)
		if id == "" {
			continue
		}
		hits = append(hits, alignment.ScoredClause{ClauseID: id, Score: res.Score})
	}
	return hits, nil
}

// DeleteTemplate removes every point of a template.
func (q *Qdrant) DeleteTemplate(ctx context.Context, templateID string) error {
	request := map[string]any{"filter": templateFilter(templateID)}
	return q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete", q.collection), request, nil)
}

func (q *Qdrant) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

type qdrantStatusError struct {
	status  int
	message string
}

func (e *qdrantStatusError) Error() string {
	return fmt.Sprintf("qdrant: %s (%d)", e.message, e.status)
}

// doRequest retries transport failures and 5xx answers with exponential
// backoff. Client errors are returned at once.
func (q *Qdrant) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: marshal request: %w", err)
		}
	}
	backoff := retry.WithMaxRetries(qdrantMaxRetries, retry.NewExponential(q.backoffBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := q.send(ctx, method, path, payload, out)
		var statusErr *qdrantStatusError
		if err != nil && (!errors.As(err, &statusErr) || statusErr.status >= 500) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (q *Qdrant) send(ctx context.Context, method, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("qdrant: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant: request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("qdrant: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Status struct {
				Error string `json:"error"`
			} `json:"status"`
		}
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Status.Error != "" {
			msg = apiErr.Status.Error
		}
		return &qdrantStatusError{status: resp.StatusCode, message: msg}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return nil
}
