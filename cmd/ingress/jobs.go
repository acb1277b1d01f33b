package main

import (
	"errors"
	"fmt"

	"github.com/David-Botos/retail-ingress/pkg/cleaner"
	"github.com/David-Botos/retail-ingress/pkg/config"
	"github.com/David-Botos/retail-ingress/pkg/extract"
	"github.com/David-Botos/retail-ingress/pkg/loader"
	"github.com/David-Botos/retail-ingress/pkg/transfer"
)

// parseEntities resolves entity names; no names selects every entity in load order
func parseEntities(names []string) ([]cleaner.Entity, error) {
	if len(names) == 0 {
		return append([]cleaner.Entity(nil), cleaner.Entities...), nil
	}

	seen := make(map[cleaner.Entity]bool, len(names))
	entities := make([]cleaner.Entity, 0, len(names))
	for _, name := range names {
		e, err := cleaner.ParseEntity(name)
		if err != nil {
			return nil, err
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		entities = append(entities, e)
	}
	return entities, nil
}

// entitySource returns where an entity is read from under cfg
func entitySource(cfg *config.Config, entity cleaner.Entity) (extract.Source, error) {
	src := cfg.Sources
	switch entity {
	case cleaner.EntityUser:
		return extract.Source{Kind: extract.KindRDS, Table: src.UsersTable}, nil

	case cleaner.EntityOrder:
		if src.SnowflakeFrom != "" {
			if cfg.Snowflake == nil {
				return extract.Source{}, errors.New("SNOWFLAKE_SOURCE_TABLE is set but Snowflake is not configured")
			}
			return extract.Source{Kind: extract.KindSnowflake, Table: src.SnowflakeFrom}, nil
		}
		return extract.Source{Kind: extract.KindRDS, Table: src.OrdersTable}, nil

	case cleaner.EntityCard:
		if src.CardPDFURL == "" {
			return extract.Source{}, errors.New("CARD_PDF_URL is not set")
		}
		return extract.Source{
			Kind:     extract.KindPDF,
			Location: src.CardPDFURL,
			Options:  map[string]string{"header": src.PDFHeader},
		}, nil

	case cleaner.EntityStore:
		if cfg.StoreAPI.BaseURL == "" {
			return extract.Source{}, errors.New("STORE_API_BASE_URL is not set")
		}
		return extract.Source{Kind: extract.KindAPI, Location: cfg.StoreAPI.BaseURL}, nil

	case cleaner.EntityProduct:
		if src.ProductsURI == "" {
			return extract.Source{}, errors.New("PRODUCTS_URI is not set")
		}
		return extract.Source{Kind: extract.KindObject, Location: src.ProductsURI}, nil

	case cleaner.EntityDateTime:
		if src.DateTimesURI == "" {
			return extract.Source{}, errors.New("DATE_TIMES_URI is not set")
		}
		return extract.Source{Kind: extract.KindObject, Location: src.DateTimesURI}, nil
	}
	return extract.Source{}, fmt.Errorf("no source for entity %q", entity)
}

// buildJobs creates one job per entity. Every unresolvable source is reported.
func buildJobs(cfg *config.Config, entities []cleaner.Entity, policy loader.Policy) ([]transfer.EntityJob, error) {
	jobs := make([]transfer.EntityJob, 0, len(entities))
	var errs []error
	for _, e := range entities {
		src, err := entitySource(cfg, e)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e, err))
			continue
		}
		jobs = append(jobs, transfer.NewEntityJob(e, src, policy))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return jobs, nil
}

func jobSources(jobs []transfer.EntityJob) []extract.Source {
	sources := make([]extract.Source, len(jobs))
	for i, job := range jobs {
		sources[i] = job.Source
	}
	return sources
}

// applyDestinations replaces destination tables named by entity in dests
func applyDestinations(jobs []transfer.EntityJob, dests map[string]string) ([]transfer.EntityJob, error) {
	overrides := make(map[cleaner.Entity]string, len(dests))
	for name, table := range dests {
		e, err := cleaner.ParseEntity(name)
		if err != nil {
			return nil, err
		}
		if table == "" {
			return nil, fmt.Errorf("empty destination for %s", e)
		}
		overrides[e] = table
	}
	for i, job := range jobs {
		if table, ok := overrides[job.Entity]; ok {
			jobs[i] = job.WithDestination(table)
		}
	}
	return jobs, nil
}
