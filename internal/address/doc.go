// Package address parses and classifies resource addresses.
//
// A resource address has the form
//
//	scheme://authority/table[/rowId][?groupBy=..&having=..&limit=..]
//
// and identifies either a whole table (a collection address, one path
// segment) or a single row of that table (an item address, two path
// segments where the second is all digits). Any other shape is invalid and
// every function in this package fails fast with *Error for it.
//
// Addresses are comparable values: two addresses are == exactly when their
// scheme, authority, path segments and query are equal, so they can be used
// directly as map keys.
//
// # Canonical Base Address
//
// Every item address has exactly one base address: the same scheme,
// authority and table with no row segment and no query. Change
// notifications are always reported at base-address granularity.
//
// Cache memoizes table names and base addresses for hot paths.
package address
