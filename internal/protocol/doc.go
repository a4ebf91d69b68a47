// Package protocol implements the websocket wire protocol of a caption session.
// Text messages carry JSON control commands, binary messages carry PCM16LE audio.
package protocol
