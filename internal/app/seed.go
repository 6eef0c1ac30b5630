package app

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	queryrepo "github.com/mediabridge/asset-gateway/internal/data/repos/queries"
	querytypes "github.com/mediabridge/asset-gateway/internal/domain/queries"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
)

type namedQuerySeed struct {
	Customer int    `yaml:"customer"`
	Name     string `yaml:"name"`
	Template string `yaml:"template"`
}

type seedFile struct {
	NamedQueries []namedQuerySeed `yaml:"namedQueries"`
}

// seedNamedQueries upserts templates from an optional YAML file so a fresh
// deployment serves named queries without manual rows.
func seedNamedQueries(ctx context.Context, log *logger.Logger, repo queryrepo.NamedQueryRepo, path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read named query seed file: %w", err)
	}
	var sf seedFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return fmt.Errorf("parse named query seed file: %w", err)
	}

	rows := make([]*querytypes.NamedQuery, 0, len(sf.NamedQueries))
	for _, s := range sf.NamedQueries {
		if s.Name == "" || s.Customer == 0 {
			log.Warn("Skipping invalid named query seed", "customer", s.Customer, "name", s.Name)
			continue
		}
		rows = append(rows, &querytypes.NamedQuery{
			Customer: s.Customer,
			Name:     s.Name,
			Template: s.Template,
		})
	}
	if err := repo.Upsert(ctx, nil, rows); err != nil {
		return fmt.Errorf("upsert named query seeds: %w", err)
	}
	log.Info("Seeded named queries", "count", len(rows), "file", path)
	return nil
}
