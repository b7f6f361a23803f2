// Package manifest reads batch files listing GitHub URLs to fetch in one run.
//
// The format follows the file extension (.yaml, .yml, .json or .toml) and
// decoding is strict, so a misspelled key fails the load instead of being
// ignored:
//
//	sources:
//	  - url: https://github.com/org/repo/tree/main/docs
//	    output: ./vendor/docs
//	  - url: https://github.com/org/other/blob/v1.2.0/LICENSE
//	    strategy: api
//	    force: true
//	options:
//	  continue_on_error: true
//	  output: ./downloads
//	  parallel: 2
//
// Per-source fields override options; see StrategyFor, OutputFor and ForceFor.
package manifest
