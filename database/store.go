package database

import (
	"context"
	"fmt"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/ortelius/versionwatch/internal/checker"
	"github.com/ortelius/versionwatch/model"
	"github.com/ortelius/versionwatch/util"
)

// DefaultListLimit caps list queries when the caller passes no limit.
const DefaultListLimit = 100

// Store reads and writes items, check sources and version history.
// Concurrent writers to the same item are not coordinated: the last update wins.
type Store struct {
	db   arangodb.Database
	logs arangodb.Collection
}

var _ checker.Store = (*Store)(nil)

// NewStore wraps an initialized connection.
func NewStore(conn DBConnection) *Store {
	return &Store{
		db:   conn.Database,
		logs: conn.Collections[VersionLogCollection],
	}
}

// GetItem returns the item with the given key or model.ErrNotFound.
func (s *Store) GetItem(ctx context.Context, key string) (*model.MonitoredItem, error) {
	var item model.MonitoredItem
	if err := s.byKey(ctx, ItemCollection, key, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetCheckSource returns the check source with the given key or model.ErrNotFound.
func (s *Store) GetCheckSource(ctx context.Context, key string) (*model.CheckSource, error) {
	var src model.CheckSource
	if err := s.byKey(ctx, CheckSourceCollection, key, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

// UpdateItem applies patch to one item in a single statement. Top-level attributes are
// replaced rather than merged, and nil values are stored as null.
func (s *Store) UpdateItem(ctx context.Context, key string, patch model.ItemPatch) error {
	query := `
		FOR i IN item
			FILTER i._key == @key
			UPDATE i WITH @patch IN item OPTIONS { keepNull: true, mergeObjects: false }
			RETURN NEW._key
	`
	bindVars := map[string]interface{}{
		"key":   key,
		"patch": patch,
	}

	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: bindVars,
	})
	if err != nil {
		return fmt.Errorf("updating item %s: %w", key, err)
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return fmt.Errorf("updating item %s: %w", key, model.ErrNotFound)
	}
	return nil
}

// InsertVersionLog appends a history entry, assigning a key when it has none.
func (s *Store) InsertVersionLog(ctx context.Context, entry *model.VersionLog) error {
	if entry.Key == "" {
		entry.Key = util.NewDocumentKey()
	}
	if _, err := s.logs.CreateDocument(ctx, entry); err != nil {
		return fmt.Errorf("inserting version log for %s: %w", entry.ItemKey, err)
	}
	return nil
}

// ListItems returns items ordered by name.
func (s *Store) ListItems(ctx context.Context, limit int) ([]*model.MonitoredItem, error) {
	query := `
		FOR i IN item
			SORT i.name ASC
			LIMIT @limit
			RETURN i
	`
	bindVars := map[string]interface{}{
		"limit": normalizeLimit(limit),
	}

	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: bindVars,
	})
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer cursor.Close()

	items := []*model.MonitoredItem{}
	for cursor.HasMore() {
		var item model.MonitoredItem
		if _, err := cursor.ReadDocument(ctx, &item); err != nil {
			return nil, fmt.Errorf("reading item: %w", err)
		}
		items = append(items, &item)
	}
	return items, nil
}

// ListVersionLogs returns the history of one item, newest first.
func (s *Store) ListVersionLogs(ctx context.Context, itemKey string, limit int) ([]*model.VersionLog, error) {
	query := `
		FOR l IN version_log
			FILTER l.item_key == @item_key
			SORT l.created_at DESC
			LIMIT @limit
			RETURN l
	`
	bindVars := map[string]interface{}{
		"item_key": itemKey,
		"limit":    normalizeLimit(limit),
	}

	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: bindVars,
	})
	if err != nil {
		return nil, fmt.Errorf("listing version logs for %s: %w", itemKey, err)
	}
	defer cursor.Close()

	logs := []*model.VersionLog{}
	for cursor.HasMore() {
		var entry model.VersionLog
		if _, err := cursor.ReadDocument(ctx, &entry); err != nil {
			return nil, fmt.Errorf("reading version log: %w", err)
		}
		logs = append(logs, &entry)
	}
	return logs, nil
}

func (s *Store) byKey(ctx context.Context, collection, key string, out interface{}) error {
	query := `
		FOR d IN @@collection
			FILTER d._key == @key
			LIMIT 1
			RETURN d
	`
	bindVars := map[string]interface{}{
		"@collection": collection,
		"key":         key,
	}

	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: bindVars,
	})
	if err != nil {
		return fmt.Errorf("reading %s %s: %w", collection, key, err)
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return fmt.Errorf("%s %s: %w", collection, key, model.ErrNotFound)
	}
	if _, err := cursor.ReadDocument(ctx, out); err != nil {
		return fmt.Errorf("reading %s %s: %w", collection, key, err)
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultListLimit
	}
	return limit
}
