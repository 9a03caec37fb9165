// Package simulate backtests a candidate rule against the outcome history
// before it is ever put in shadow mode.
//
// A run replays the rule over the stored attribute sets of a historical
// time window and reports would-block counts, per-agent and per-attribute
// breakdowns, an impact level, and a confidence score combining sample
// size (logarithmic, saturating), window coverage, and distribution
// evenness. Runs are bounded by a row budget and a scan deadline; hitting
// either returns a partial report with lowered confidence instead of
// blocking. A run is side-effect free: it never writes a transition and
// never touches live policy state.
package simulate
