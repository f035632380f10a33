package version

// VERSION 构建时通过 -ldflags "-X github.com/chaos-io/fitroom/version.VERSION=..." 覆盖
var VERSION = "dev"
