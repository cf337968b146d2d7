package version

// Version is the current version of the tasting binaries.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/EliasMarine/bourbonbuddy-sub001/internal/version.Version=v1.0.0'"
var Version = "dev"
