package manifold

// Version is set at build time with -ldflags "-X github.com/aretw0/manifold.Version=...".
var Version = "0.1.0-dev"
