// Package scheduler registers jobs on robfig/cron and runs them with a
// per-job timeout, panic recovery and overlap skipping.
//
// Besides cron expressions and fixed intervals it supports anchored
// schedules: fire at start + k*every, never replaying missed fires.
package scheduler
