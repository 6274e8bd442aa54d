// Package window implements the windowing construct of the dispatch queue. A window is a segment of one group's
// item sequence, bounded by two consecutive flush signals (or by activation and the first flush). Unlike event-time
// windows, these boundaries are not temporal: a flush is a caller-issued signal which closes the current window of
// every group at the same position in the engine's processing order.
//
// A window has no identity beyond its membership; ID is only an epoch counter, incremented by every flush, so that
// emitted batches can be told apart in logs. Windowing is a two stage process per group,
//   - Append - add the item to the current window, which may complete a full chunk in the buffer
//   - Close - drain the buffer's partial chunk, if any, and open the next window
//
// A window that received no items since its last chunk closes silently: an empty window never produces a chunk.
package window
