// Package jobs runs background maintenance on cron schedules.
//
// The only job today purges refresh-token rows that were superseded by a
// rotation more than AUTHSVC_TOKEN_PURGE_AGE ago.
package jobs
