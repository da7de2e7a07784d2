package seoul

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/desain-gratis/congestion/repository/congestion"
	"github.com/desain-gratis/congestion/types/entity"
)

const (
	DefaultBaseURL     = "http://openapi.seoul.go.kr:8088"
	DefaultConcurrency = 8

	service    = "citydata_ppltn"
	resultOK   = "INFO-000"
	maxPayload = 4 << 20
)

var _ congestion.Fetcher = &handler{}

var (
	ErrUpstreamStatus = errors.New("unexpected upstream status")
	ErrUpstreamResult = errors.New("upstream returned error result")
	ErrEmptyResult    = errors.New("upstream returned no data")
)

type handler struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	areas       []string
	concurrency int
}

// New creates a fetcher for the Seoul real-time city population API.
// Each area is a separate request; the result keeps the order of areas.
func New(client *http.Client, baseURL, apiKey string, areas []string, concurrency int) *handler {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &handler{
		client:      client,
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		areas:       areas,
		concurrency: concurrency,
	}
}

type response struct {
	Data   []map[string]json.RawMessage `json:"SeoulRtd.citydata_ppltn"`
	Result struct {
		Code    string `json:"RESULT.CODE"`
		Message string `json:"RESULT.MESSAGE"`
	} `json:"RESULT"`
}

// Fetch is all-or-nothing: one failed area fails the whole snapshot.
func (h *handler) Fetch(ctx context.Context) (entity.Snapshot, error) {
	result := make(entity.Snapshot, len(h.areas))

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(h.concurrency)

	for i, name := range h.areas {
		i, name := i, name
		eg.Go(func() error {
			area, err := h.fetchArea(ectx, name)
			if err != nil {
				return fmt.Errorf("area %v: %w", name, err)
			}
			result[i] = area
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrFetch, err)
	}

	return result, nil
}

func (h *handler) fetchArea(ctx context.Context, name string) (entity.Area, error) {
	endpoint := fmt.Sprintf("%v/%v/json/%v/1/5/%v",
		h.baseURL,
		url.PathEscape(h.apiKey),
		service,
		url.PathEscape(name),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return entity.Area{}, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return entity.Area{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return entity.Area{}, fmt.Errorf("%w: %v", ErrUpstreamStatus, resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return entity.Area{}, err
	}

	var parsed response
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return entity.Area{}, err
	}

	if parsed.Result.Code != "" && parsed.Result.Code != resultOK {
		return entity.Area{}, fmt.Errorf("%w: (%v) %v", ErrUpstreamResult, parsed.Result.Code, parsed.Result.Message)
	}

	if len(parsed.Data) == 0 {
		return entity.Area{}, ErrEmptyResult
	}

	return parseArea(parsed.Data[0])
}

// parseArea lowercases upstream keys and keeps every field other than the
// name and level as opaque pass-through data.
func parseArea(raw map[string]json.RawMessage) (entity.Area, error) {
	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		fields[strings.ToLower(k)] = v
	}

	var name, label string
	if err := unmarshalField(fields, entity.FieldAreaName, &name); err != nil {
		return entity.Area{}, err
	}
	if err := unmarshalField(fields, entity.FieldLevel, &label); err != nil {
		return entity.Area{}, err
	}

	level, err := entity.ParseLevel(label)
	if err != nil {
		return entity.Area{}, err
	}

	delete(fields, entity.FieldAreaName)
	delete(fields, entity.FieldLevel)

	return entity.Area{
		Name:  name,
		Level: level,
		Extra: fields,
	}, nil
}

func unmarshalField(fields map[string]json.RawMessage, key string, v any) error {
	raw, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: %v", entity.ErrMissingField, key)
	}
	return json.Unmarshal(raw, v)
}
