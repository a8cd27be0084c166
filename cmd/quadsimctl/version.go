package main

// Version is stamped at build time:
//
//	go build -ldflags "-X main.Version=v0.2.0" ./cmd/quadsimctl
var Version = "v0.1.0"
