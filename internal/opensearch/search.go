package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/BRO3886/productsync/internal/search"
	"github.com/BRO3886/productsync/internal/types"
	external "github.com/opensearch-project/opensearch-go/v2"
	api "github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/rs/zerolog"
)

type Config struct {
	URLs               []string
	Username           string
	Password           string
	MaxRetries         int
	InsecureSkipVerify bool
}

type openSearchClient struct {
	client *external.Client
	log    zerolog.Logger
}

func New(c Config, log zerolog.Logger) (search.Indexer, error) {
	client, err := external.NewClient(external.Config{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: c.InsecureSkipVerify},
		},
		Addresses:    c.URLs,
		Username:     c.Username,
		Password:     c.Password,
		MaxRetries:   c.MaxRetries,
		DisableRetry: c.MaxRetries <= 0,
	})
	if err != nil {
		return nil, err
	}

	return &openSearchClient{client: client, log: log}, nil
}

func (s *openSearchClient) EnsureIndex(ctx context.Context, index string, body []byte) error {
	resp, err := (api.IndicesExistsRequest{Index: []string{index}}).Do(ctx, s.client)
	if err != nil {
		return err
	}
	status := resp.StatusCode
	resp.Body.Close()
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return &search.ResponseError{Op: "check index", Index: index, Status: status}
	}

	req := api.IndicesCreateRequest{
		Index: index,
	}
	if len(body) > 0 {
		req.Body = bytes.NewReader(body)
	}

	resp, err = req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		rerr := responseError("create index", index, resp)
		if strings.Contains(rerr.Body, "resource_already_exists_exception") {
			return nil
		}
		return rerr
	}

	if resp.HasWarnings() {
		s.log.Warn().Strs("warnings", resp.Warnings()).Msg("index created with warnings")
	}

	s.log.Info().Str("index", index).Msg("index created")

	return nil
}

func (s *openSearchClient) Index(ctx context.Context, doc types.IndexRecord) error {
	data, err := json.Marshal(doc.Data)
	if err != nil {
		return err
	}

	req := api.IndexRequest{
		Index:      doc.Index,
		DocumentID: search.DocumentPath(doc.ID),
		Body:       bytes.NewReader(data),
	}

	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return responseError("index", doc.Index, resp)
	}

	s.log.Debug().Str("index", doc.Index).Str("id", doc.ID).Msg("document indexed")

	return nil
}

func (s *openSearchClient) Update(ctx context.Context, doc types.IndexRecord) error {
	data, err := json.Marshal(map[string]any{"doc": doc.Data})
	if err != nil {
		return err
	}

	req := api.UpdateRequest{
		Index:      doc.Index,
		DocumentID: search.DocumentPath(doc.ID),
		Body:       bytes.NewReader(data),
	}

	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return responseError("update", doc.Index, resp)
	}

	s.log.Debug().Str("index", doc.Index).Str("id", doc.ID).Msg("document updated")

	return nil
}

func (s *openSearchClient) Refresh(ctx context.Context, index string) error {
	req := api.IndicesRefreshRequest{
		Index: []string{index},
	}

	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return responseError("refresh", index, resp)
	}
	return nil
}

func (s *openSearchClient) Delete(ctx context.Context, index, id string) error {
	req := api.DeleteRequest{
		Index:      index,
		DocumentID: search.DocumentPath(id),
	}

	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.IsError() {
		return responseError("delete", index, resp)
	}

	s.log.Debug().Str("index", index).Str("id", id).Msg("document deleted")

	return nil
}

func (s *openSearchClient) Close() error {
	return nil
}

func responseError(op, index string, resp *api.Response) *search.ResponseError {
	body, _ := io.ReadAll(resp.Body)
	return &search.ResponseError{
		Op:     op,
		Index:  index,
		Status: resp.StatusCode,
		Body:   string(body),
	}
}
