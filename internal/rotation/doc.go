// Package rotation computes the daily duty roster: which name reads which
// range on a given calendar date. The result is a pure function of the date.
package rotation
