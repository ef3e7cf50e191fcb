// Package schema defines tables in CUE and creates them on first use.
//
// A schema file looks like:
//
//	version: 1
//	table: notes: {
//		columns: {
//			title: {type: "text", notNull: true}
//			body:  {type: "text"}
//			rank:  {type: "integer", default: 0}
//		}
//		unique: [["title"]]
//	}
//
// Every table implicitly gets an "_id INTEGER PRIMARY KEY AUTOINCREMENT"
// column, which is what item addresses refer to.
//
// Definition implements store.Schema. Ensure creates missing tables, adds
// missing columns and records the version in PRAGMA user_version. A
// database whose user_version is newer than requested is refused.
package schema
