// Package auth authenticates requests to werkstatt's HTTP services with
// a chain of three-outcome voters (Yes, No, Abstain), and optionally
// limits request rates per authenticated subject.
package auth
