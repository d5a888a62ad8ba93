package cleanup

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func executeNeo4j(ctx context.Context, cfg Config, query string) (int, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return 0, fmt.Errorf("create driver: %w", err)
	}
	defer driver.Close(ctx)

	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithWritersRouting()}
	if cfg.Database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(cfg.Database))
	}

	result, err := neo4j.ExecuteQuery(ctx, driver, query, nil, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return 0, err
	}
	return result.Summary.Counters().NodesDeleted(), nil
}
