// Package app provides the application service layer.
//
// VoteService validates and stores votes, serves tallies, and hands the
// realtime announcement of each vote to a Dispatcher so the HTTP response does
// not wait for fan-out. Depends on domain interfaces, not concrete adapters.
package app
