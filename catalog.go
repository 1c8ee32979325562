package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/urfave/cli/v3"
)

// catColumns is the exact column set requested from the _cat/indices API.
// parseCatalog is coupled to this order: field 2 is the index name, field 3
// the primary shard count and field 7 the primary store size.
var catColumns = []string{"h", "s", "i", "p", "r", "dc", "ss", "pri.store.size", "creation.date.string"}

// indexRecord is one open index as listed by the _cat/indices API.
type indexRecord struct {
	name          string
	primaryShards int
	priStoreSize  string
}

// newESClient builds an Elasticsearch client from the connection flags.
// The server certificate is validated against --ca_file if given, otherwise
// against the default trust store.
func newESClient(cmd *cli.Command) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{
			fmt.Sprintf("https://%s:%s", cmd.String("es_host"), cmd.String("es_port")),
		},
		Username: cmd.String("es_user"),
		Password: cmd.String("es_pass"),
		// A failed attempt is final, the monitoring scheduler re-invokes the
		// check on its next interval.
		DisableRetry: true,
	}

	if caFile := cmd.String("ca_file"); caFile != "" {
		cert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}

		cfg.CACert = cert
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	return client, nil
}

// fetchCatalog requests the index listing from the _cat/indices API, sorted
// by index name and filtered by pattern if given, and returns the raw
// tabular text.
func fetchCatalog(ctx context.Context, client *elasticsearch.Client, pattern string) (string, error) {
	options := []func(*esapi.CatIndicesRequest){
		client.Cat.Indices.WithContext(ctx),
		client.Cat.Indices.WithH(catColumns...),
		client.Cat.Indices.WithS("i"),
	}
	if pattern != "" {
		options = append(options, client.Cat.Indices.WithIndex(pattern))
	}

	res, err := client.Cat.Indices(options...)
	if err != nil {
		return "", fmt.Errorf("failed to query _cat/indices: %w", err)
	}

	defer func() {
		_ = res.Body.Close()
	}()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read _cat/indices response: %w", err)
	}

	if res.IsError() {
		return "", fmt.Errorf("_cat/indices returned status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	return string(body), nil
}

// parseCatalog converts the raw _cat/indices text into indexRecords.
// Header rows and closed indices are skipped, closed indices report no
// store size.
func parseCatalog(raw string) ([]indexRecord, error) {
	var records []indexRecord

	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" || strings.Contains(line, " index ") || strings.Contains(line, " close ") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != len(catColumns) {
			return nil, fmt.Errorf("unexpected catalog line %q: got %d columns, want %d", line, len(fields), len(catColumns))
		}

		shards, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("invalid primary shard count in catalog line %q: %w", line, err)
		}

		if shards < 1 {
			return nil, fmt.Errorf("index %q reports %d primary shards", fields[2], shards)
		}

		records = append(records, indexRecord{
			name:          fields[2],
			primaryShards: shards,
			priStoreSize:  fields[7],
		})
	}

	return records, nil
}
