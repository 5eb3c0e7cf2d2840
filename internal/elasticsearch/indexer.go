package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/BRO3886/productsync/internal/search"
	"github.com/BRO3886/productsync/internal/types"
	elasticsearch8 "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog"
)

type Config struct {
	Addresses  []string
	Username   string
	Password   string
	MaxRetries int
	Transport  http.RoundTripper
}

type indexer struct {
	client *elasticsearch8.Client
	log    zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) (search.Indexer, error) {
	client, err := elasticsearch8.NewClient(elasticsearch8.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		MaxRetries:   cfg.MaxRetries,
		DisableRetry: cfg.MaxRetries <= 0,
		Transport:    cfg.Transport,
	})
	if err != nil {
		return nil, err
	}
	return &indexer{client: client, log: log}, nil
}

func (s *indexer) Index(ctx context.Context, rec types.IndexRecord) error {
	body, err := json.Marshal(rec.Data)
	if err != nil {
		return err
	}

	res, err := s.client.Index(rec.Index, bytes.NewReader(body),
		s.client.Index.WithDocumentID(search.DocumentPath(rec.ID)),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("index", rec.Index, res)
	}
	s.log.Debug().Str("index", rec.Index).Str("id", rec.ID).Msg("document indexed")
	return nil
}

func (s *indexer) Update(ctx context.Context, rec types.IndexRecord) error {
	body, err := json.Marshal(map[string]any{"doc": rec.Data})
	if err != nil {
		return err
	}

	res, err := s.client.Update(rec.Index, search.DocumentPath(rec.ID), bytes.NewReader(body),
		s.client.Update.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("update", rec.Index, res)
	}
	s.log.Debug().Str("index", rec.Index).Str("id", rec.ID).Msg("document updated")
	return nil
}

func (s *indexer) Delete(ctx context.Context, index, id string) error {
	res, err := s.client.Delete(index, search.DocumentPath(id), s.client.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		s.log.Debug().Str("index", index).Str("id", id).Msg("document already absent")
		return nil
	}
	if res.IsError() {
		return responseError("delete", index, res)
	}
	return nil
}

func (s *indexer) Refresh(ctx context.Context, index string) error {
	res, err := s.client.Indices.Refresh(
		s.client.Indices.Refresh.WithIndex(index),
		s.client.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("refresh", index, res)
	}
	return nil
}

func (s *indexer) EnsureIndex(ctx context.Context, index string, body []byte) error {
	res, err := s.client.Indices.Exists([]string{index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return err
	}
	status := res.StatusCode
	res.Body.Close()
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return &search.ResponseError{Op: "check index", Index: index, Status: status}
	}

	opts := []func(*esapi.IndicesCreateRequest){s.client.Indices.Create.WithContext(ctx)}
	if len(body) > 0 {
		opts = append(opts, s.client.Indices.Create.WithBody(bytes.NewReader(body)))
	}
	res, err = s.client.Indices.Create(index, opts...)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		rerr := responseError("create index", index, res)
		// lost a creation race with another instance
		if strings.Contains(rerr.Body, "resource_already_exists_exception") {
			return nil
		}
		return rerr
	}
	s.log.Info().Str("index", index).Msg("index created")
	return nil
}

func (s *indexer) Close() error {
	return nil
}

func responseError(op, index string, res *esapi.Response) *search.ResponseError {
	body, _ := io.ReadAll(res.Body)
	return &search.ResponseError{
		Op:     op,
		Index:  index,
		Status: res.StatusCode,
		Body:   string(body),
	}
}
