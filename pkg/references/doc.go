// Package references provides the concrete reference kinds of a catalog:
// url-reference, whose target type is picked by the dispatch chain, and
// dataset-item, whose target is always a fixed container type carrying the
// item's dataset stratum.
package references
