// Package logx is modwatch's logging front end over zerolog. Console
// lines carry a millisecond timestamp and a file:line caller; the optional
// log file gets JSON records.
package logx
