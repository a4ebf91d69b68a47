// Package translation turns transcript text into the session's target
// language. A Router answers from a bounded, expiring Cache when it can and
// otherwise picks a backend: the online translator when it is enabled, has
// credentials and the network is reachable, else the offline one. A failed
// online call falls back to the offline backend once.
package translation
