// Package items defines the GraphQL types and queries for monitored items.
package items

import "github.com/graphql-go/graphql"

// ItemType represents a monitored item.
var ItemType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Item",
	Fields: graphql.Fields{
		"_key":              &graphql.Field{Type: graphql.String},
		"name":              &graphql.Field{Type: graphql.String},
		"type":              &graphql.Field{Type: graphql.String},
		"purl":              &graphql.Field{Type: graphql.String},
		"current_version":   &graphql.Field{Type: graphql.String},
		"latest_version":    &graphql.Field{Type: graphql.String},
		"source_id":         &graphql.Field{Type: graphql.String},
		"status":            &graphql.Field{Type: graphql.String},
		"last_checked":      &graphql.Field{Type: graphql.String},
		"release_notes":     &graphql.Field{Type: graphql.String},
		"release_date":      &graphql.Field{Type: graphql.String},
		"release_url":       &graphql.Field{Type: graphql.String},
		"description":       &graphql.Field{Type: graphql.String},
		"download_url":      &graphql.Field{Type: graphql.String},
		"eol_date":          &graphql.Field{Type: graphql.String},
		"is_lts":            &graphql.Field{Type: graphql.Boolean},
		"cves":              &graphql.Field{Type: graphql.NewList(graphql.String)},
		"external_score":    &graphql.Field{Type: graphql.Float},
		"external_severity": &graphql.Field{Type: graphql.String},
		"external_vector":   &graphql.Field{Type: graphql.String},
		"external_source":   &graphql.Field{Type: graphql.String},
		"epss_percent":      &graphql.Field{Type: graphql.Float},
		"vpr_score":         &graphql.Field{Type: graphql.Float},
		"internal_score":    &graphql.Field{Type: graphql.Float},
		"internal_severity": &graphql.Field{Type: graphql.String},
		"score_confidence":  &graphql.Field{Type: graphql.Float},
		"score_updated_at":  &graphql.Field{Type: graphql.String},
		"security_state":    &graphql.Field{Type: graphql.String},
	},
})

// VersionLogType represents one latest-version transition.
var VersionLogType = graphql.NewObject(graphql.ObjectConfig{
	Name: "VersionLog",
	Fields: graphql.Fields{
		"_key":          &graphql.Field{Type: graphql.String},
		"item_key":      &graphql.Field{Type: graphql.String},
		"old_version":   &graphql.Field{Type: graphql.String},
		"new_version":   &graphql.Field{Type: graphql.String},
		"release_notes": &graphql.Field{Type: graphql.String},
		"release_url":   &graphql.Field{Type: graphql.String},
		"cves":          &graphql.Field{Type: graphql.NewList(graphql.String)},
		"created_at":    &graphql.Field{Type: graphql.String},
	},
})
