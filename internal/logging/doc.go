// Package logging builds the slog loggers used by the queuer CLI and the
// worker daemon.
//
// Console output puts the clip and short job ID in brackets at the front of
// each line and colours the level on a terminal; JSON output is one object
// per line with a "ts" key. WithContext copies the services.JobScope of a
// context onto a logger. ProgressSampler thins encode progress to fixed
// percentage steps and PruneLogs removes run logs past retention.
package logging
