// Package catalog defines the restaurant catalog graph shared by every other
// package: the entities (Item, Category, SubCategory, ModifierGroup,
// Modifier, Menu, TaxRate), the denormalized snapshots they embed of one
// another, the canonical RowItem produced by ingestion, the error taxonomy,
// and the transactional storage contract the sync engine runs against.
//
// Every entity is scoped to a restaurant and identified by a generated id
// plus its natural key (restaurant id, name). Embedded references are
// sets keyed by id; a snapshot is a copy of a few fields of the referenced
// entity and must always equal the authoritative values once a unit of work
// commits.
package catalog
