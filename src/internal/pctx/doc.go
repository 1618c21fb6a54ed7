// Package pctx hands out contexts that carry a logger.
//
// Long-running processes start from Background and derive named children with Child; each
// level of Child appends to the logger name, so a line logged from the stale sweep reads
// "hootjobs.sweeper.sweepStale".  Tests start from TestContext.
//
// The convention is to use oneCamelCaseWord for the logger name, and for parents to name their
// children.
package pctx
