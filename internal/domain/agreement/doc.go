// Package agreement contains the record model and transformation rules for
// cloning commerce agreements and their subscriptions.
//
// Key concepts:
//   - Record: a decoded JSON object as returned by the commerce API
//   - FieldPath: dot-separated address of a nested field ("externalIds.vendor")
//   - RestoreField / Projection: declarative field tables driving every payload transform
//   - PriceDecision: the markup or purchase-price outcome for a single line
//   - Worksheet: the 35 column export used as both report and re-import source
//
// Everything in this package is a pure function of its input; network and file
// access live in the infrastructure layer.
package agreement
