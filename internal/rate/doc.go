// Package rate implements the per-credential refresh throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on the first hit of a window. Keys live
// under <prefix>:rl:refresh:<record digest>, so a throttle never names the
// presentable refresh id.
//
// # What this package must NOT do
//
//   - Decide what happens to a throttled rotation beyond rejecting it.
//   - Be imported outside the albumauth module.
package rate
