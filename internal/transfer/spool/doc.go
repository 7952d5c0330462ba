// Package spool owns the ephemeral filesystem area used by the transfer
// pipeline. Uploads are staged into server-chosen temp files and download
// artifacts are written to a scratch path and atomically renamed before
// anything is streamed to a client.
package spool
