package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	assetrepo "github.com/mediabridge/asset-gateway/internal/data/repos/assets"
	queryrepo "github.com/mediabridge/asset-gateway/internal/data/repos/queries"
	"github.com/mediabridge/asset-gateway/internal/domain/queries"
	pkgerrors "github.com/mediabridge/asset-gateway/internal/pkg/errors"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
)

// NamedQueryEngine resolves a named-query template into an ordered result
// set. A missing template yields the Empty sentinel; args that cannot
// satisfy the template yield a faulty parse with no store access.
type NamedQueryEngine interface {
	Resolve(ctx context.Context, customer int, queryName string, args []string) (*queries.Result, error)
}

type namedQueryEngine struct {
	log     *logger.Logger
	queries queryrepo.NamedQueryRepo
	assets  assetrepo.AssetRepo
}

func NewNamedQueryEngine(log *logger.Logger, queryRepo queryrepo.NamedQueryRepo, assetRepo assetrepo.AssetRepo) NamedQueryEngine {
	return &namedQueryEngine{
		log:     log.With("service", "NamedQueryEngine"),
		queries: queryRepo,
		assets:  assetRepo,
	}
}

func (e *namedQueryEngine) Resolve(ctx context.Context, customer int, queryName string, args []string) (*queries.Result, error) {
	nq, err := e.queries.GetByCustomerName(ctx, nil, customer, queryName)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return queries.EmptyResult(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup named query %q: %w", queryName, err)
	}

	parsed := ParseTemplate(customer, queryName, nq.Template, args)
	if parsed.Faulty {
		return &queries.Result{Query: parsed}, nil
	}

	matches, err := e.assets.Query(ctx, nil, customer, filterFromParsed(parsed))
	if err != nil {
		return nil, fmt.Errorf("execute named query %q: %w", queryName, err)
	}
	return &queries.Result{Query: parsed, Matches: matches}, nil
}

// ParseTemplate applies caller args to a template of &-separated key=value
// pairs. A value of p1..p9 references the positional arg of that index;
// anything else is a literal. Parsing is pure: no store access, and a
// faulty parse reports via the flag rather than an error.
//
// Recognized keys: space, s1..s3 (string references), n1..n3 (number
// references), minDate, maxDate. Unknown keys are ignored.
func ParseTemplate(customer int, name, template string, args []string) *queries.ParsedQuery {
	parsed := &queries.ParsedQuery{Customer: customer, Name: name, Args: args}

	for _, pair := range strings.Split(template, "&") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, rawValue, ok := strings.Cut(pair, "=")
		if !ok {
			parsed.Faulty = true
			return parsed
		}
		value, ok := substituteArg(rawValue, args)
		if !ok {
			parsed.Faulty = true
			return parsed
		}

		k := strings.ToLower(strings.TrimSpace(key))
		switch k {
		case "space":
			n, err := strconv.Atoi(value)
			if err != nil {
				parsed.Faulty = true
				return parsed
			}
			parsed.Space = &n
		case "s1":
			parsed.String1 = value
		case "s2":
			parsed.String2 = value
		case "s3":
			parsed.String3 = value
		case "n1", "n2", "n3":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				parsed.Faulty = true
				return parsed
			}
			switch k {
			case "n1":
				parsed.Number1 = &n
			case "n2":
				parsed.Number2 = &n
			case "n3":
				parsed.Number3 = &n
			}
		case "mindate":
			t, err := parseDateArg(value)
			if err != nil {
				parsed.Faulty = true
				return parsed
			}
			parsed.MinDate = &t
		case "maxdate":
			t, err := parseDateArg(value)
			if err != nil {
				parsed.Faulty = true
				return parsed
			}
			parsed.MaxDate = &t
		}
	}
	return parsed
}

// substituteArg resolves p1..p9 tokens against args; a reference past the
// supplied arity fails the parse.
func substituteArg(rawValue string, args []string) (string, bool) {
	v := strings.TrimSpace(rawValue)
	if len(v) == 2 && v[0] == 'p' && v[1] >= '1' && v[1] <= '9' {
		idx := int(v[1]-'0') - 1
		if idx >= len(args) {
			return "", false
		}
		return strings.TrimSpace(args[idx]), true
	}
	return v, true
}

func parseDateArg(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func filterFromParsed(p *queries.ParsedQuery) assetrepo.Filter {
	return assetrepo.Filter{
		Space:   p.Space,
		String1: p.String1,
		String2: p.String2,
		String3: p.String3,
		Number1: p.Number1,
		Number2: p.Number2,
		Number3: p.Number3,
		MinDate: p.MinDate,
		MaxDate: p.MaxDate,
	}
}

// ResultVersion derives the optimistic version of a result set: any source
// change bumps an asset version or the match count, so equal versions mean
// an unchanged projection input.
func ResultVersion(res *queries.Result) int64 {
	var maxVersion int64
	for _, m := range res.Matches {
		if m.Version > maxVersion {
			maxVersion = m.Version
		}
	}
	return maxVersion<<20 | int64(len(res.Matches))
}
