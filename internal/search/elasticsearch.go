package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"example.com/backstage/services/catalog/config"
	"example.com/backstage/services/catalog/internal/catalog"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

func (c *ElasticClient) index() string {
	return config.FormatIndex(c.config, c.config.Index)
}

// IndexProduct indexes a product snapshot under its id
func (c *ElasticClient) IndexProduct(ctx context.Context, product catalog.Snapshot) error {
	doc, err := json.Marshal(product)
	if err != nil {
		return errors.Wrap(err, "failed to marshal product document")
	}

	req := esapi.IndexRequest{
		Index:      c.index(),
		DocumentID: product.ID,
		Body:       bytes.NewReader(doc),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("index", res)
	}

	log.Debug().Str("product_id", product.ID).Msg("product indexed")
	return nil
}

// DeleteProduct removes a product from the index. A missing document is not
// an error.
func (c *ElasticClient) DeleteProduct(ctx context.Context, id string) error {
	req := esapi.DeleteRequest{
		Index:      c.index(),
		DocumentID: id,
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch delete request")
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return responseError("delete", res)
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source catalog.Snapshot `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchProducts runs a full-text query over name, description and category
func (c *ElasticClient) SearchProducts(ctx context.Context, query string, size int) ([]catalog.Snapshot, error) {
	body := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"name^3", "category^2", "description"},
			},
		},
	}

	queryJSON, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	req := esapi.SearchRequest{
		Index: []string{c.index()},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError("search", res)
	}

	var result searchResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	products := make([]catalog.Snapshot, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		products = append(products, hit.Source)
	}
	return products, nil
}

func responseError(op string, res *esapi.Response) error {
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read Elasticsearch %s error response", op)
	}
	return errors.Errorf("Elasticsearch %s error: %s: %s", op, res.Status(), data)
}
