// Package it runs whole clusters in process: a directory server plus any
// number of storage nodes talking over loopback gRPC.
package it
