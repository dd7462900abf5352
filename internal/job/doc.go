// Package job tracks the jobs launched by the shell.
//
// A Job is one process group started from a single command line: either a
// single command or a two-stage pipeline. The Table owns every Job and hands
// out copies, so callers re-resolve a Job by id or process group id after any
// change to the table.
package job
