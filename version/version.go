package version

// Version is overridden at build time via -ldflags "-X prmscan/version.Version=...".
var Version = "dev"
