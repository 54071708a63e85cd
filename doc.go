// Package strata composes catalog models out of layered trait values.
//
// A Catalog owns kinds, models, the stratum order and the dispatch chain.
// Every model holds named strata; reading a trait walks them by priority
// and merges the values according to the trait's strategy:
//
//   - primitives and replace arrays take the strongest defined value
//   - objects deep merge from the weakest stratum up
//   - concat arrays append in ascending priority, dropping duplicates
//   - model references resolve ids to live models and drop dangling ones
//
// Kinds are built from a base Definition plus Capabilities. The Reference
// capability turns a model into a placeholder that resolves, through its
// loader or through Dispatch, into a concrete target that receives the
// placeholder's strata.
//
// Dispatch rules match urls with doublestar globs, extensions, or rule
// expressions evaluated by expr, CEL or (with the js_eval build tag) goja.
package strata
