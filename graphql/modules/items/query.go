package items

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/graphql-go/graphql"
	"github.com/ortelius/versionwatch/model"
)

// Reader is the read side of the item store.
type Reader interface {
	GetItem(ctx context.Context, key string) (*model.MonitoredItem, error)
	ListItems(ctx context.Context, limit int) ([]*model.MonitoredItem, error)
	ListVersionLogs(ctx context.Context, itemKey string, limit int) ([]*model.VersionLog, error)
}

// GetQueryFields returns the item queries to be mounted in the root schema.
func GetQueryFields(store Reader) graphql.Fields {
	return graphql.Fields{
		"item": &graphql.Field{
			Type: ItemType,
			Args: graphql.FieldConfigArgument{
				"key": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				key := p.Args["key"].(string)
				item, err := store.GetItem(p.Context, key)
				if errors.Is(err, model.ErrNotFound) {
					return nil, nil
				}
				if err != nil {
					return nil, err
				}
				return toMap(item)
			},
		},
		"items": &graphql.Field{
			Type: graphql.NewList(ItemType),
			Args: graphql.FieldConfigArgument{
				"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				list, err := store.ListItems(p.Context, p.Args["limit"].(int))
				if err != nil {
					return nil, err
				}
				return toMaps(list)
			},
		},
		"versionLogs": &graphql.Field{
			Type: graphql.NewList(VersionLogType),
			Args: graphql.FieldConfigArgument{
				"key":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				logs, err := store.ListVersionLogs(p.Context, p.Args["key"].(string), p.Args["limit"].(int))
				if err != nil {
					return nil, err
				}
				return toMaps(logs)
			},
		},
	}
}

// toMap flattens a document to its JSON attribute names, which the types above use as
// field names.
func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toMaps[T any](docs []T) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		m, err := toMap(d)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
