// Package schedule parses the standup trigger string and decides, per user
// timezone, whether a given instant is the trigger minute.
package schedule
