// Package executor runs compiled requests against a backend and streams
// normalized rows.
//
// A query acquires one Connector from the pool, submits the first page,
// and keeps resubmitting with the next batch_id while the cursor reports
// end < total_elements. Rows are yielded as each page arrives; when the
// consumer stops iterating no further pages are fetched and the Connector
// is returned to the pool.
//
// Backend failures and malformed responses end the query with an
// *ExecutionError. They are never turned into empty results.
package executor
