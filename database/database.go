// Package database - Handles all interaction with ArangoDB
package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
	"github.com/cenkalti/backoff"
	"github.com/ortelius/versionwatch/config"
	"go.uber.org/zap"
)

// Collection names.
const (
	ItemCollection        = "item"
	CheckSourceCollection = "check_source"
	VersionLogCollection  = "version_log"
)

// DBConnection is the structure that defined the database engine and collections
type DBConnection struct {
	Collections map[string]arangodb.Collection
	Database    arangodb.Database
}

// indexConfig defines a persistent index over one or more fields
type indexConfig struct {
	Collection string
	IdxName    string
	Fields     []string
	Unique     bool
	Sparse     bool
}

var indexes = []indexConfig{
	// Item lookups used by the API and the check-all command
	{Collection: ItemCollection, IdxName: "item_name", Fields: []string{"name"}},
	{Collection: ItemCollection, IdxName: "item_type", Fields: []string{"type"}},
	{Collection: ItemCollection, IdxName: "item_status", Fields: []string{"status"}},
	{Collection: ItemCollection, IdxName: "item_purl", Fields: []string{"purl"}, Sparse: true},
	{Collection: ItemCollection, IdxName: "item_source_id", Fields: []string{"source_id"}, Sparse: true},

	{Collection: CheckSourceCollection, IdxName: "check_source_type", Fields: []string{"type"}},

	// History is always read per item, newest first
	{Collection: VersionLogCollection, IdxName: "version_log_item_created", Fields: []string{"item_key", "created_at"}},
}

func dbConnectionConfig(endpoint connection.Endpoint, dbuser string, dbpass string) connection.HttpConfiguration {
	return connection.HttpConfiguration{
		Authentication: connection.NewBasicAuth(dbuser, dbpass),
		Endpoint:       endpoint,
		ContentType:    connection.ApplicationJSON,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // #nosec G402
			},
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 90 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// InitializeDatabase connects to the db engine, creating the database, collections and indexes.
// Connection attempts are retried with exponential backoff until ctx is cancelled.
func InitializeDatabase(ctx context.Context, cfg config.ArangoConfig, logger *zap.Logger) (DBConnection, error) {
	const initialInterval = 10 * time.Second
	const maxInterval = 2 * time.Minute

	logger = logger.Named("database")

	var client arangodb.Client

	//
	// Database connection with backoff retry
	//

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	bo.MaxInterval = maxInterval
	bo.MaxElapsedTime = 0 // Set to 0 for indefinite retries

	err := backoff.RetryNotify(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		logger.Info("Attempting to connect to ArangoDB", zap.String("url", cfg.URL))
		endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL})
		conn := connection.NewHttpConnection(dbConnectionConfig(endpoint, cfg.User, cfg.Pass))

		client = arangodb.NewClient(conn)

		versionInfo, err := client.Version(ctx)
		if err != nil {
			return err
		}

		logger.Sugar().Infof("Database has version '%s' and license '%s'", versionInfo.Version, versionInfo.License)
		return nil
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		logger.Warn("Retrying connection to ArangoDB", zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return DBConnection{}, fmt.Errorf("connecting to ArangoDB: %w", err)
	}

	//
	// Database creation
	//

	db, err := openDatabase(ctx, client, cfg.Database)
	if err != nil {
		return DBConnection{}, err
	}

	//
	// Collection creation for document storage
	//

	collections := make(map[string]arangodb.Collection)
	for _, collectionName := range []string{ItemCollection, CheckSourceCollection, VersionLogCollection} {
		var col arangodb.Collection

		exists, _ := db.CollectionExists(ctx, collectionName)
		if exists {
			var options arangodb.GetCollectionOptions
			if col, err = db.GetCollection(ctx, collectionName, &options); err != nil {
				return DBConnection{}, fmt.Errorf("failed to use collection %s: %w", collectionName, err)
			}
		} else {
			if col, err = db.CreateCollectionV2(ctx, collectionName, nil); err != nil {
				return DBConnection{}, fmt.Errorf("failed to create collection %s: %w", collectionName, err)
			}
		}

		collections[collectionName] = col
	}

	//
	// Index creation
	//

	for _, idx := range indexes {
		created, err := ensureIndex(ctx, collections[idx.Collection], idx)
		if err != nil {
			return DBConnection{}, fmt.Errorf("creating index %s: %w", idx.IdxName, err)
		}
		if created {
			logger.Sugar().Infof("Created index: %s on %s%v", idx.IdxName, idx.Collection, idx.Fields)
		}
	}

	logger.Info("Database initialization complete", zap.String("database", cfg.Database))

	return DBConnection{
		Database:    db,
		Collections: collections,
	}, nil
}

func openDatabase(ctx context.Context, client arangodb.Client, name string) (arangodb.Database, error) {
	exists := false
	dblist, _ := client.Databases(ctx)

	for _, dbinfo := range dblist {
		if dbinfo.Name() == name {
			exists = true
			break
		}
	}

	if exists {
		var options arangodb.GetDatabaseOptions
		db, err := client.GetDatabase(ctx, name, &options)
		if err != nil {
			return nil, fmt.Errorf("failed to get database %s: %w", name, err)
		}
		return db, nil
	}

	db, err := client.CreateDatabase(ctx, name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create database %s: %w", name, err)
	}
	return db, nil
}

// ensureIndex creates the persistent index unless one with the same name exists.
func ensureIndex(ctx context.Context, col arangodb.Collection, idx indexConfig) (bool, error) {
	if existing, err := col.Indexes(ctx); err == nil {
		for _, index := range existing {
			if idx.IdxName == index.Name {
				return false, nil
			}
		}
	}

	unique := idx.Unique
	sparse := idx.Sparse
	indexOptions := arangodb.CreatePersistentIndexOptions{
		Unique: &unique,
		Sparse: &sparse,
		Name:   idx.IdxName,
	}

	if _, _, err := col.EnsurePersistentIndex(ctx, idx.Fields, &indexOptions); err != nil {
		return false, err
	}
	return true, nil
}
