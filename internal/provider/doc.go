// Package provider routes resource addresses to table operations.
//
// A collection address (scheme://authority/table) names a whole table; an
// item address (scheme://authority/table/id) names one row by its _id.
// Reads go through the store's readable handle. Writes acquire the single
// writable session, so concurrent writers are serialized.
//
// Every top-level mutation that affects rows emits one change notification
// at the collection address once it has committed. Operations that run
// inside an enclosing transaction, such as the steps of ApplyBatch or the
// rows of BulkInsert, neither open their own transaction nor notify; the
// enclosing call notifies once it commits. The transaction state lives on
// the session, which a batch binds to a provider view with Bind.
package provider
